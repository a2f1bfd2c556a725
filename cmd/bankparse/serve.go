package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/config"
	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/home"
	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/server"
)

var logLevel string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the bankparse server",
	Long: `Start the bankparse HTTP server.

This opens the SQLite store, starts the background processing workers,
and serves the statement API. Shutting down (Ctrl+C or SIGTERM) drains
in-flight requests before exiting.

Examples:
  bankparse serve                        # Use ./config.yaml or defaults
  bankparse serve --config /etc/bp.yaml  # Explicit config file`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: parseLogLevel(logLevel),
		}))

		// With no explicit config, the manager also searches
		// ~/.bankparse, so make sure the directory exists.
		if cfgFile == "" {
			if dir, err := home.New(""); err == nil {
				if err := dir.EnsureExists(); err != nil {
					logger.Warn("failed to create home directory", "path", dir.Path(), "error", err)
				}
			}
		}

		mgr, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		mgr.WatchConfig()

		srv, err := server.New(server.Config{
			ConfigManager: mgr,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Blocks until shutdown
		return srv.Start(cmd.Context())
	},
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func init() {
	serveCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.AddCommand(serveCmd)
}
