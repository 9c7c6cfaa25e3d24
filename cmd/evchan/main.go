package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/risa-org/evchan/config"
	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "evchan",
		Short: "Device event channel client and backend simulator",
		Long: `evchan keeps a console subscribed to a device backend's event stream.

It connects to ws://<host>/ws/events?token=<token>, sends a keep-alive
every few seconds, reconnects after drops, and logs out when the backend
sends the force-logout event.

  serve    run the backend simulator
  watch    log in and stream events to the log
  publish  push an event or kick a console through the backend API`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to evchan.yaml (defaults when empty)")

	load := func() (*config.Config, *slog.Logger, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, nil, err
		}
		logger := cfg.Log.NewLogger(os.Stderr)
		slog.SetDefault(logger)
		return cfg, logger, nil
	}

	rootCmd.AddCommand(
		serveCmd(load),
		watchCmd(load),
		publishCmd(load),
		kickCmd(load),
		hashCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// loader reads the --config file and installs its logger.
type loader func() (*config.Config, *slog.Logger, error)

// apiBase turns the client endpoint into the backend's HTTP base URL.
func apiBase(cfg *config.Config) string {
	scheme := "http"
	if cfg.Client.Secure {
		scheme = "https"
	}
	return scheme + "://" + cfg.Client.Host
}
