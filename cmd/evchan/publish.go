package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/risa-org/evchan/backend"
	"github.com/spf13/cobra"
)

func publishCmd(load loader) *cobra.Command {
	var (
		token   string
		payload string
	)

	cmd := &cobra.Command{
		Use:   "publish <type>",
		Short: "Push an event to every subscribed console",
		Long: `Push an event to every subscribed console.

The payload is raw JSON. Type 4 is the force-logout event and revokes
every live token.

Examples:
  evchan publish 7 --token <token> --payload '{"zone":3}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventType, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("event type %q is not an integer", args[0])
			}
			if payload != "" && !json.Valid([]byte(payload)) {
				return errors.New("--payload is not valid JSON")
			}

			cfg, _, err := load()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			api := &backend.API{BaseURL: apiBase(cfg), HTTP: http.DefaultClient}
			n, err := api.Publish(ctx, token, eventType, json.RawMessage(payload))
			if err != nil {
				return err
			}
			fmt.Printf("delivered to %d console(s)\n", n)
			return nil
		},
	}

	cmd.Flags().StringVarP(&token, "token", "t", "", "Bearer token from a login")
	cmd.Flags().StringVar(&payload, "payload", "", "JSON payload")
	cmd.MarkFlagRequired("token")

	return cmd
}

func kickCmd(load loader) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "kick <victim-token>",
		Short: "Force the consoles holding a token to log out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := load()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			api := &backend.API{BaseURL: apiBase(cfg), HTTP: http.DefaultClient}
			n, err := api.Kick(ctx, token, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("kicked %d console(s)\n", n)
			return nil
		},
	}

	cmd.Flags().StringVarP(&token, "token", "t", "", "Bearer token from a login")
	cmd.MarkFlagRequired("token")

	return cmd
}
