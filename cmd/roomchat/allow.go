package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/roomchat/internal/store/sqlite"
)

var errNoDatabase = errors.New("database_path is not configured")

func newAllowCmd(root *rootOptions) *cobra.Command {
	var revoke bool

	cmd := &cobra.Command{
		Use:   "allow ROOM USER...",
		Short: "Grant users access to a room in the database",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			if cfg.DatabasePath == "" {
				return errNoDatabase
			}

			st, err := sqlite.New(cfg.DatabasePath)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			ctx, cancel := contextWithTimeout(cmd)
			defer cancel()

			roomID := args[0]
			for _, userID := range args[1:] {
				if revoke {
					err = st.Revoke(ctx, roomID, userID)
				} else {
					err = st.Allow(ctx, roomID, userID)
				}
				if err != nil {
					return fmt.Errorf("update %s in room %s: %w", userID, roomID, err)
				}
				logger.Info().Str("room_id", roomID).Str("user_id", userID).Bool("revoked", revoke).Msg("permission updated")
			}

			users, err := st.AllowedUsers(ctx, roomID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", roomID, users)
			return nil
		},
	}

	cmd.Flags().BoolVar(&revoke, "revoke", false, "remove the users instead")
	return cmd
}
