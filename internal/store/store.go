package store

import (
	"context"

	"github.com/vovakirdan/roomchat/internal/core"
)

// Permissions answers whether a user may enter a room. Rooms with no entry deny everyone.
type Permissions interface {
	IsAllowed(ctx context.Context, roomID, userID string) (bool, error)
}

// PermissionGranter administers the allow-list.
type PermissionGranter interface {
	Allow(ctx context.Context, roomID, userID string) error
	Revoke(ctx context.Context, roomID, userID string) error
}

// PermissionLister reports the grants of a room, oldest first.
type PermissionLister interface {
	AllowedUsers(ctx context.Context, roomID string) ([]string, error)
}

// Clearer is implemented by permission stores that support wiping their content.
type Clearer interface {
	Clear(ctx context.Context) error
}

// Archive persists delivered chat messages.
type Archive interface {
	SaveMessage(ctx context.Context, msg core.Message) error
	ListMessages(ctx context.Context, roomID string, limit int) ([]core.Message, error)
}

// Store is the full persistence surface of a SQLite-backed deployment.
type Store interface {
	Permissions
	PermissionGranter
	PermissionLister
	Clearer
	Archive
	Close() error
}

// Seed grants every listed user access to its room. Keys are room ids.
func Seed(ctx context.Context, granter PermissionGranter, permissions map[string][]string) error {
	for roomID, userIDs := range permissions {
		for _, userID := range userIDs {
			if err := granter.Allow(ctx, roomID, userID); err != nil {
				return err
			}
		}
	}
	return nil
}
