package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/webcollect/collector/internal/schema"
	"github.com/webcollect/collector/internal/ui"
	"gopkg.in/yaml.v3"
)

var categoriesCmd = &cobra.Command{
	Use:     "categories",
	GroupID: "categories",
	Short:   "Manage the category tree",
	Long: `Manage the two-level category tree used to organize bookmarks.

The tree syncs to the cloud as a whole: pushes replace the remote set and
prune leftovers, pulls merge the remote tree into the local one without
losing local categories.`,
}

var categoriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List categories",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		st, _ := openEngine(cfg)
		defer st.Close()

		categories, err := st.Categories(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading categories: %v\n", err)
			os.Exit(1)
		}

		for _, cat := range categories {
			icon := cat.Icon
			if icon == "" {
				icon = "📁"
			}
			fmt.Printf("%s %s %s\n", icon, cat.Name, ui.RenderDim(cat.ID))
			for _, child := range cat.Children {
				fmt.Printf("   %s %s %s\n", ui.RenderDim("└"), child.Name, ui.RenderDim(child.ID))
			}
		}
	},
}

var categoriesPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push the category tree to the cloud",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		st, mgr := openEngine(cfg)
		defer closeEngine(st, mgr)

		result, err := mgr.PushCategories(context.Background())
		if err != nil {
			exitSyncErr(mgr, err)
		}
		fmt.Printf("%s %s\n", ui.RenderPass("✓"), result.Message)
	},
}

var categoriesPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Pull and merge the category tree from the cloud",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		st, mgr := openEngine(cfg)
		defer closeEngine(st, mgr)

		result, err := mgr.SyncCategories(context.Background())
		if err != nil {
			exitSyncErr(mgr, err)
		}
		fmt.Printf("%s %s\n", ui.RenderPass("✓"), result.Message)
		fmt.Printf("   Categories: %d\n", len(result.Categories))
	},
}

var categoriesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a category",
	Long: `Delete a category from the tree.

Bookmarks filed under the deleted category (or any of its children) are
reassigned to the default bucket before the category is removed.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		st, mgr := openEngine(cfg)
		defer closeEngine(st, mgr)

		moved, err := mgr.DeleteCategory(context.Background(), args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error deleting category: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Deleted %s\n", ui.RenderPass("✓"), args[0])
		if moved > 0 {
			fmt.Printf("   Reassigned %d bookmarks to %s\n", moved, schema.DefaultCategoryName)
		}
	},
}

var categoriesRenameCmd = &cobra.Command{
	Use:   "rename <id> <new-name>",
	Short: "Rename a category",
	Long: `Rename a category and update every bookmark filed under the old name.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		st, mgr := openEngine(cfg)
		defer closeEngine(st, mgr)

		moved, err := mgr.RenameCategory(context.Background(), args[0], args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error renaming category: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Renamed to %s\n", ui.RenderPass("✓"), args[1])
		if moved > 0 {
			fmt.Printf("   Updated %d bookmarks\n", moved)
		}
	},
}

var categoriesExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export the category tree as YAML",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		st, _ := openEngine(cfg)
		defer st.Close()

		categories, err := st.Categories(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading categories: %v\n", err)
			os.Exit(1)
		}

		data, err := yaml.Marshal(categories)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error marshaling categories: %v\n", err)
			os.Exit(1)
		}

		if len(args) == 0 {
			fmt.Print(string(data))
			return
		}
		if err := os.WriteFile(args[0], data, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", args[0], err)
			os.Exit(1)
		}
		fmt.Printf("%s Exported %d categories to %s\n", ui.RenderPass("✓"), len(categories), args[0])
	},
}

var categoriesImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a category tree from YAML",
	Long: `Replace the local category tree with the one in the given YAML file
and push it to the cloud.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		st, mgr := openEngine(cfg)
		defer closeEngine(st, mgr)

		data, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", args[0], err)
			os.Exit(1)
		}

		var categories []schema.Category
		if err := yaml.Unmarshal(data, &categories); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing %s: %v\n", args[0], err)
			os.Exit(1)
		}

		if err := mgr.SaveCategories(context.Background(), categories); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving categories: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Imported %d categories\n", ui.RenderPass("✓"), len(categories))
	},
}

func init() {
	categoriesCmd.AddCommand(
		categoriesListCmd,
		categoriesPushCmd,
		categoriesPullCmd,
		categoriesDeleteCmd,
		categoriesRenameCmd,
		categoriesExportCmd,
		categoriesImportCmd,
	)
}
