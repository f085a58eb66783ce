package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/roomchat/internal/auth"
	"github.com/vovakirdan/roomchat/internal/core"
)

var errNoSecret = errors.New("jwt_secret is not configured")

func newTokenCmd(root *rootOptions) *cobra.Command {
	var (
		user  core.User
		ttl   time.Duration
		admin bool
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a token for a chat user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := root.load()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return errNoSecret
			}

			generate := auth.GenerateToken
			if admin {
				generate = auth.GenerateAdminToken
			}
			token, err := generate(&auth.JWTConfig{
				Secret:   []byte(cfg.JWTSecret),
				Issuer:   cfg.JWTIssuer,
				Audience: cfg.JWTAudience,
				TTL:      ttl,
			}, user)
			if err != nil {
				return fmt.Errorf("generate token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&user.ID, "user", "", "user id (token subject)")
	flags.StringVar(&user.FirstName, "first-name", "", "first name")
	flags.StringVar(&user.LastName, "last-name", "", "last name")
	flags.DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	flags.BoolVar(&admin, "admin", false, "allow the token to manage room permissions")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
