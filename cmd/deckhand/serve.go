package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/deckhand/deckhand/internal/config"
	"github.com/deckhand/deckhand/internal/daemon"
	"github.com/deckhand/deckhand/internal/dashboard"
	"github.com/deckhand/deckhand/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "sync",
	Short:   "Run the background sync daemon",
	Long: `Run deckhand as a long-lived daemon.

The daemon synchronizes every account on the configured interval,
watches the config file for interval changes, and (with --dashboard)
serves a WebSocket dashboard streaming sync results and cache
statistics.

Example usage:
  deckhand serve
  deckhand serve --dashboard --port 9000

Connect a WebSocket client to ws://localhost:<port>/ws for updates.`,
	Run: func(cmd *cobra.Command, args []string) {
		withDash, _ := cmd.Flags().GetBool("dashboard")
		port, _ := cmd.Flags().GetInt("port")

		a, err := openApp()
		if err != nil {
			die("%v", err)
		}
		defer a.Close()

		logger := logging.New("[daemon] ")
		if a.cfg.Log.File != "" {
			fileLogger, closer := logging.NewFile("[daemon] ", logging.FileOptions{
				Path:       a.cfg.Log.File,
				MaxSizeMB:  a.cfg.Log.MaxSizeMB,
				MaxBackups: a.cfg.Log.MaxBackups,
				MaxAgeDays: a.cfg.Log.MaxAgeDays,
			})
			defer closer.Close()
			logger = fileLogger
		}

		var dash *dashboard.Server
		if withDash || a.cfg.Dashboard.Enabled {
			if port == 0 {
				port = a.cfg.Dashboard.Port
			}
			dash = dashboard.NewServer(&dashboard.Config{
				Port:   port,
				Logger: logging.New("[dashboard] "),
			})
			if err := dash.Start(); err != nil {
				die("failed to start dashboard: %v", err)
			}
			fmt.Printf("Dashboard: http://localhost:%d  (ws://localhost:%d/ws)\n", port, port)
		}

		configPath := config.GlobalConfigPath()
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = ""
		}

		d, err := daemon.New(a.store, a.engine, dash, &daemon.Config{
			SyncInterval: a.cfg.Sync.Interval,
			ConfigPath:   configPath,
			Logger:       logger,
		})
		if err != nil {
			die("%v", err)
		}

		fmt.Printf("Syncing every %v. Press Ctrl+C to stop.\n", a.cfg.Sync.Interval)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := d.Start(ctx); err != nil {
			die("%v", err)
		}
		if dash != nil {
			if err := dash.Stop(); err != nil {
				fmt.Fprintf(os.Stderr, "Error during dashboard shutdown: %v\n", err)
			}
		}
	},
}

func init() {
	serveCmd.Flags().Bool("dashboard", false, "serve the WebSocket dashboard")
	serveCmd.Flags().Int("port", 0, "dashboard port (defaults to config)")

	rootCmd.AddCommand(serveCmd)
}
