package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"callflex/internal/auth"
	"callflex/internal/config"
)

// tokenCmd mints a bearer token for local testing against the tenant API.
// Production tokens come from the identity provider.
func tokenCmd() *cobra.Command {
	var (
		email string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token [auth-id]",
		Short: "Sign a development access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.IsProduction() {
				return fmt.Errorf("refusing to sign tokens with APP_ENV=production")
			}
			v, err := auth.NewVerifier(cfg.Auth)
			if err != nil {
				return err
			}
			tok, err := v.Sign(time.Now(), args[0], email, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	return cmd
}
