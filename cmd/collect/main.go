// Command collect manages a personal bookmark library with optional cloud
// synchronization against a Turso/libSQL database.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/webcollect/collector/internal/config"
	"github.com/webcollect/collector/internal/store"
	"github.com/webcollect/collector/internal/sync"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "collect",
	Short: "Bookmark collector with cloud sync",
	Long: `collect captures bookmarks into a local SQLite library and keeps it
in sync with a Turso/libSQL database.

Local writes always succeed; remote replication happens in the background
and failed uploads are retried from a durable ledger.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default ~/.collect/config.yaml)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "bookmarks", Title: "Bookmark Commands:"},
		&cobra.Group{ID: "categories", Title: "Category Commands:"},
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "setup", Title: "Setup Commands:"},
	)

	rootCmd.AddCommand(
		addCmd, listCmd, deleteCmd, moveCmd,
		categoriesCmd,
		pullCmd, pushCmd, drainCmd, statusCmd, daemonCmd,
		configCmd, remoteCmd,
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file named by --config (or the default path).
func loadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// openEngine opens the local store and builds the sync engine around it.
// The caller owns the returned store and must Close it.
func openEngine(cfg *config.Config) (*store.Store, *sync.Manager) {
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		os.Exit(1)
	}

	logger := log.New(os.Stderr, "[sync] ", log.LstdFlags)
	mgr := sync.New(st, sync.Settings{
		URL:     cfg.Remote.URL,
		Token:   cfg.Remote.Token,
		Enabled: cfg.Remote.Enabled,
	}, logger)

	return st, mgr
}

// closeEngine waits for background remote replication to settle, then closes
// the store. One-shot commands exit as soon as Run returns; closing without
// the wait would kill an in-flight upload before it is delivered or ledgered.
func closeEngine(st *store.Store, mgr *sync.Manager) {
	mgr.Wait()
	_ = st.Close()
}
