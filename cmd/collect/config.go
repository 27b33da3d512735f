package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/webcollect/collector/internal/config"
	"github.com/webcollect/collector/internal/turso"
	"github.com/webcollect/collector/internal/ui"
	"golang.org/x/term"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Manage collector configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a config file interactively",
	Long: `Write a config file with the remote database settings.

The auth token is read with echo disabled and the file is written with
0600 permissions.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		reader := bufio.NewReader(os.Stdin)

		fmt.Printf("Database URL (libsql:// or https://) [%s]: ", cfg.Remote.URL)
		line, _ := reader.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			cfg.Remote.URL = line
		}

		token, err := readToken()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading token: %v\n", err)
			os.Exit(1)
		}
		if token != "" {
			cfg.Remote.Token = token
		}

		fmt.Print("Enable cloud sync? [y/N]: ")
		line, _ = reader.ReadString('\n')
		cfg.Remote.Enabled = strings.EqualFold(strings.TrimSpace(line), "y")

		path := cfgPath
		if path == "" {
			path = config.DefaultPath()
		}
		if err := cfg.Save(path); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
	},
}

var configSetTokenCmd = &cobra.Command{
	Use:   "set-token",
	Short: "Update the auth token",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		token, err := readToken()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading token: %v\n", err)
			os.Exit(1)
		}
		if token == "" {
			fmt.Fprintf(os.Stderr, "Error: empty token\n")
			os.Exit(1)
		}
		cfg.Remote.Token = token

		path := cfgPath
		if path == "" {
			path = config.DefaultPath()
		}
		if err := cfg.Save(path); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Token updated\n", ui.RenderPass("✓"))
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		token := "(not set)"
		if cfg.Remote.Token != "" {
			token = "(set)"
		}
		fmt.Printf("remote.url:      %s\n", cfg.Remote.URL)
		fmt.Printf("remote.token:    %s\n", token)
		fmt.Printf("remote.enabled:  %v\n", cfg.Remote.Enabled)
		fmt.Printf("store.path:      %s\n", cfg.Store.Path)
		fmt.Printf("daemon.pull:     %s\n", cfg.Daemon.PullInterval)
		fmt.Printf("daemon.drain:    %s\n", cfg.Daemon.DrainInterval)
		fmt.Printf("dashboard.port:  %d\n", cfg.Dashboard.Port)
	},
}

var remoteCmd = &cobra.Command{
	Use:     "remote",
	GroupID: "setup",
	Short:   "Manage the remote database",
}

var remoteInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the remote tables and indexes",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if cfg.Remote.URL == "" || cfg.Remote.Token == "" {
			fmt.Fprintf(os.Stderr, "%s Remote not configured; run 'collect config init' first\n", ui.RenderWarn("⚠"))
			os.Exit(1)
		}

		client := turso.NewClient(cfg.Remote.URL, cfg.Remote.Token,
			log.New(os.Stderr, "[turso] ", log.LstdFlags))

		result := client.InitSchema(context.Background())
		if !result.Success {
			fmt.Fprintf(os.Stderr, "Error initializing schema: %s\n", result.Err)
			os.Exit(1)
		}
		fmt.Printf("%s Remote schema ready\n", ui.RenderPass("✓"))
	},
}

// readToken prompts for the token with terminal echo disabled, falling back
// to a plain line read when stdin is not a TTY (piped input).
func readToken() (string, error) {
	fmt.Print("Auth token (hidden): ")
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(raw)), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func init() {
	configCmd.AddCommand(configInitCmd, configSetTokenCmd, configShowCmd)
	remoteCmd.AddCommand(remoteInitCmd)
}
