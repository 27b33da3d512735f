package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/webcollect/collector/internal/sync"
	"github.com/webcollect/collector/internal/ui"
)

var pullCmd = &cobra.Command{
	Use:     "pull",
	GroupID: "sync",
	Short:   "Pull and merge bookmarks from the cloud",
	Long: `Fetch the remote bookmark list and merge it with the local library.

Locally newer bookmarks win and are re-uploaded; otherwise the remote copy
is taken with the local screenshot preserved. Categories are synced in the
same run.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		st, mgr := openEngine(cfg)
		defer closeEngine(st, mgr)

		ctx := context.Background()

		result, err := mgr.Pull(ctx)
		if err != nil {
			exitSyncErr(mgr, err)
		}
		fmt.Printf("%s %s\n", ui.RenderPass("✓"), result.Message)
		fmt.Printf("   Bookmarks: %d\n", len(result.Bookmarks))
		if result.Uploaded > 0 {
			fmt.Printf("   Re-uploading: %d locally newer\n", result.Uploaded)
		}

		catResult, err := mgr.SyncCategories(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s Category sync failed: %v\n", ui.RenderWarn("⚠"), err)
			return
		}
		fmt.Printf("%s %s\n", ui.RenderPass("✓"), catResult.Message)
	},
}

var pushCmd = &cobra.Command{
	Use:     "push",
	GroupID: "sync",
	Short:   "Push all local bookmarks to the cloud",
	Long: `Upload every local bookmark to the remote database.

Individual failures do not abort the push; they are reported and recorded
in the retry ledger for a later drain.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		st, mgr := openEngine(cfg)
		defer closeEngine(st, mgr)

		result, err := mgr.Push(context.Background())
		if err != nil {
			exitSyncErr(mgr, err)
		}

		if result.Success {
			fmt.Printf("%s %s\n", ui.RenderPass("✓"), result.Message)
		} else {
			fmt.Printf("%s %s\n", ui.RenderWarn("⚠"), result.Message)
			for _, f := range result.Failed {
				fmt.Printf("   %s %s: %s\n", ui.RenderErr("✗"), f.Title, f.Err)
			}
		}
	},
}

var drainCmd = &cobra.Command{
	Use:     "drain",
	GroupID: "sync",
	Short:   "Replay the retry ledger",
	Long: `Replay every pending upload from the durable retry ledger.

Entries that have already failed three times are abandoned. Entries that
fail again stay in the ledger with their retry count bumped.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		st, mgr := openEngine(cfg)
		defer closeEngine(st, mgr)

		result, err := mgr.DrainRetries(context.Background())
		if err != nil {
			exitSyncErr(mgr, err)
		}

		fmt.Printf("%s Ledger drained\n", ui.RenderPass("✓"))
		fmt.Printf("   Replayed: %d\n", result.Replayed)
		if result.Abandoned > 0 {
			fmt.Printf("   Abandoned: %s\n", ui.RenderWarn(fmt.Sprintf("%d", result.Abandoned)))
		}
		if result.Remaining > 0 {
			fmt.Printf("   Remaining: %d\n", result.Remaining)
		}
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show sync status",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		st, mgr := openEngine(cfg)
		defer closeEngine(st, mgr)

		status, err := mgr.Status(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading status: %v\n", err)
			os.Exit(1)
		}

		glyph := ui.RenderWarn("⚠")
		if status.Enabled {
			glyph = ui.RenderPass("✓")
		}
		fmt.Printf("\n%s %s\n", glyph, status.Message)
		if status.Syncing {
			fmt.Printf("   %s sync in progress\n", ui.RenderAccent("🔄"))
		}
		if status.PendingRetries > 0 {
			fmt.Printf("   Pending retries: %d\n", status.PendingRetries)
		}
		fmt.Printf("   %s\n\n", ui.RenderDim(fmt.Sprintf("store: %s", cfg.Store.Path)))
	},
}

// exitSyncErr prints a sync failure and exits. Disabled sync gets the
// status message instead of a raw error.
func exitSyncErr(mgr *sync.Manager, err error) {
	if errors.Is(err, sync.ErrDisabled) {
		fmt.Fprintf(os.Stderr, "%s %s\n", ui.RenderWarn("⚠"), mgr.StatusMessage())
		fmt.Fprintf(os.Stderr, "   Run 'collect config init' to configure the remote\n")
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}
