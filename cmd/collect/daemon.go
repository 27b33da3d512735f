package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/webcollect/collector/internal/config"
	"github.com/webcollect/collector/internal/daemon"
	"github.com/webcollect/collector/internal/dashboard"
	"github.com/webcollect/collector/internal/ui"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	daemonLogFile   string
	daemonDashboard bool
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the background sync daemon",
	Long: `Run the sync daemon in the foreground.

The daemon drains the retry ledger, runs periodic pull-merge cycles, and
watches the config file for changes. With --dashboard it also serves a
WebSocket event stream and a /status endpoint.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		var logOut io.Writer = os.Stderr
		if daemonLogFile != "" {
			logOut = &lumberjack.Logger{
				Filename:   daemonLogFile,
				MaxSize:    10, // megabytes
				MaxBackups: 3,
				MaxAge:     14, // days
				Compress:   true,
			}
		}

		st, mgr := openEngine(cfg)
		defer closeEngine(st, mgr)

		if daemonDashboard || cfg.Dashboard.Enabled {
			server := dashboard.NewServer(&dashboard.Config{
				Port:   cfg.Dashboard.Port,
				Engine: mgr,
				Logger: log.New(logOut, "[dashboard] ", log.LstdFlags),
			})
			if err := server.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "Error starting dashboard: %v\n", err)
				os.Exit(1)
			}
			defer server.Stop()

			handler := dashboard.NewHandler(server, log.New(logOut, "[dashboard] ", log.LstdFlags))
			mgr.SetNotifier(handler)
			fmt.Printf("%s Dashboard on %s\n", ui.RenderAccent("▸"), server.GetAddr())
		}

		watchPath := cfgPath
		if watchPath == "" {
			watchPath = config.DefaultPath()
		}

		d, err := daemon.New(mgr, &daemon.Config{
			PullInterval:     cfg.Daemon.PullInterval,
			DrainInterval:    cfg.Daemon.DrainInterval,
			DebounceInterval: daemon.DefaultConfig().DebounceInterval,
			ConfigPath:       watchPath,
			Logger:           log.New(logOut, "[daemon] ", log.LstdFlags),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating daemon: %v\n", err)
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("%s Daemon running (pull %s, drain %s)\n",
			ui.RenderPass("✓"), cfg.Daemon.PullInterval, cfg.Daemon.DrainInterval)

		if err := d.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Daemon error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	daemonCmd.Flags().StringVar(&daemonLogFile, "log-file", "", "rotate daemon logs to this file")
	daemonCmd.Flags().BoolVar(&daemonDashboard, "dashboard", false, "serve the WebSocket dashboard")
}
