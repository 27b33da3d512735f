package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/webcollect/collector/internal/schema"
	"github.com/webcollect/collector/internal/ui"
)

var (
	addTitle       string
	addDescription string
	addCategory    string
	addTags        []string
	listCategory   string
	listLimit      int
)

var addCmd = &cobra.Command{
	Use:     "add <url>",
	GroupID: "bookmarks",
	Short:   "Save a bookmark",
	Long: `Save a bookmark to the local library.

The write is local-first: it succeeds even when the cloud is unreachable,
and the upload happens in the background.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		st, mgr := openEngine(cfg)
		defer closeEngine(st, mgr)

		b := schema.NewBookmark(args[0], addTitle)
		b.Description = addDescription
		b.Category = addCategory
		b.Tags = addTags

		if err := mgr.SaveBookmark(context.Background(), b); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving bookmark: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Saved %s\n", ui.RenderPass("✓"), b.URL)
		fmt.Printf("   %s\n", ui.RenderDim(fmt.Sprintf("id: %s  category: %s", b.ID, b.Category)))
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: "bookmarks",
	Short:   "List bookmarks",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		st, mgr := openEngine(cfg)
		defer closeEngine(st, mgr)

		bookmarks, err := st.Bookmarks(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading bookmarks: %v\n", err)
			os.Exit(1)
		}

		shown := 0
		for _, b := range bookmarks {
			if listCategory != "" && b.Category != listCategory {
				continue
			}
			if listLimit > 0 && shown >= listLimit {
				break
			}
			title := b.Title
			if title == "" {
				title = b.URL
			}
			fmt.Printf("%s %s\n", ui.RenderAccent("•"), title)
			detail := fmt.Sprintf("%s  [%s]", b.URL, b.Category)
			if len(b.Tags) > 0 {
				detail += "  " + strings.Join(b.Tags, ",")
			}
			fmt.Printf("  %s\n", ui.RenderDim(detail))
			shown++
		}

		if shown == 0 {
			fmt.Printf("%s No bookmarks found\n", ui.RenderDim("·"))
		}
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <id>",
	GroupID: "bookmarks",
	Short:   "Delete a bookmark",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		st, mgr := openEngine(cfg)
		defer closeEngine(st, mgr)

		if err := mgr.DeleteBookmark(context.Background(), args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error deleting bookmark: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Deleted %s\n", ui.RenderPass("✓"), args[0])
	},
}

var moveCmd = &cobra.Command{
	Use:     "move <id> <category>",
	GroupID: "bookmarks",
	Short:   "Move a bookmark to another category",
	Args:    cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		st, mgr := openEngine(cfg)
		defer closeEngine(st, mgr)

		ctx := context.Background()
		bookmarks, err := st.Bookmarks(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading bookmarks: %v\n", err)
			os.Exit(1)
		}

		var target *schema.Bookmark
		for _, b := range bookmarks {
			if b.ID == args[0] {
				target = b
				break
			}
		}
		if target == nil {
			fmt.Fprintf(os.Stderr, "Error: bookmark %s not found\n", args[0])
			os.Exit(1)
		}

		target.Category = args[1]
		target.UpdateTimestamp()

		if err := mgr.SaveBookmark(ctx, target); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving bookmark: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Moved to %s\n", ui.RenderPass("✓"), args[1])
	},
}

func init() {
	addCmd.Flags().StringVarP(&addTitle, "title", "t", "", "bookmark title")
	addCmd.Flags().StringVarP(&addDescription, "description", "d", "", "bookmark description")
	addCmd.Flags().StringVarP(&addCategory, "category", "c", "", "category name (default "+schema.DefaultCategoryName+")")
	addCmd.Flags().StringSliceVar(&addTags, "tags", nil, "comma-separated tags")

	listCmd.Flags().StringVarP(&listCategory, "category", "c", "", "filter by category name")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 0, "show at most n bookmarks")
}
