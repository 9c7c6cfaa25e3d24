package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/risa-org/evchan/backend"
	"github.com/spf13/cobra"
)

func serveCmd(load loader) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the backend simulator",
		Long: `Run the backend simulator.

Operators log in with POST /api/login and consoles subscribe on
/ws/events. Connections that send nothing for server.idle_timeout are
dropped.

Examples:
  evchan serve
  evchan serve --addr :9000 --config evchan.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if len(cfg.Server.Operators) == 0 {
				logger.Warn("no operators configured, every login will fail")
			}

			srv, err := backend.FromConfig(cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			err = srv.ListenAndServe(ctx, cfg.Server.Addr)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default from server.addr)")

	return cmd
}
