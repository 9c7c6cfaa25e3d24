package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/risa-org/evchan/backend"
	"github.com/risa-org/evchan/client"
	"github.com/risa-org/evchan/codec"
	"github.com/risa-org/evchan/metrics"
	"github.com/spf13/cobra"
)

// maxWatchedType bounds the tags watch subscribes to when --type is unset.
const maxWatchedType = 32

func watchCmd(load loader) *cobra.Command {
	var (
		token    string
		username string
		password string
		types    []int
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Log in and stream events to the log",
		Long: `Log in and stream events to the log.

watch keeps the event channel open across drops and exits when the
backend forces a logout or on Ctrl-C. Set metrics.addr to expose
Prometheus metrics while it runs.

Examples:
  evchan watch --user admin --password secret
  evchan watch --token <token> --type 7 --type 9`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if token == "" {
				if username == "" {
					return errors.New("either --token or --user is required")
				}
				api := &backend.API{BaseURL: apiBase(cfg), HTTP: &http.Client{Timeout: 10 * time.Second}}
				if token, err = api.Login(ctx, username, password); err != nil {
					return fmt.Errorf("login: %w", err)
				}
				logger.Info("logged in", "operator", username)
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector())
			m := metrics.New(reg, "")
			if cfg.Metrics.Addr != "" {
				go serveMetrics(cfg.Metrics.Addr, reg, logger)
			}

			loggedOut := make(chan struct{})
			c := client.FromConfig(cfg, logger, m, func() { close(loggedOut) })

			if len(types) == 0 {
				for t := 0; t < maxWatchedType; t++ {
					types = append(types, t)
				}
			}
			for _, t := range types {
				c.OnEvent(t, func(ev codec.Event) {
					logger.Info("event", "type", ev.Type, "payload", string(ev.Payload))
				})
			}

			c.Start(token)
			defer c.Stop()

			select {
			case <-ctx.Done():
				logger.Info("interrupted, closing channel")
				return nil
			case <-loggedOut:
				return errors.New("logged out by backend")
			}
		},
	}

	cmd.Flags().StringVarP(&token, "token", "t", "", "Use an existing token instead of logging in")
	cmd.Flags().StringVarP(&username, "user", "u", "", "Operator to log in as")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Operator password")
	cmd.Flags().IntSliceVar(&types, "type", nil, "Event types to log (repeatable, default all below 32)")

	return cmd
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	logger.Info("metrics listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", "error", err)
	}
}
