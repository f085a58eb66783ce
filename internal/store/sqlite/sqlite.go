package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/store"
)

// Schema creates the tables used by SQLiteStore. It is safe to apply repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS room_permissions (
	room_id    TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	granted_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (room_id, user_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	room_id         TEXT NOT NULL,
	user_id         TEXT NOT NULL,
	user_first_name TEXT NOT NULL DEFAULT '',
	user_last_name  TEXT NOT NULL DEFAULT '',
	content         TEXT NOT NULL,
	sent_at         INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_room_sent ON messages(room_id, sent_at);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ store.Store = (*SQLiteStore)(nil)

// New opens the database at dbPath and applies Schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(Schema)
		return err
	})
}

// NewWithSetup opens the database and runs setup instead of applying Schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// A single connection keeps :memory: databases shared and avoids writer contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== Permissions ====

// IsAllowed reports whether userID was granted roomID.
func (s *SQLiteStore) IsAllowed(ctx context.Context, roomID, userID string) (bool, error) {
	query := `SELECT 1 FROM room_permissions WHERE room_id = ? AND user_id = ?`
	var one int
	err := s.db.QueryRowContext(ctx, query, roomID, userID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query permission: %w", err)
	}
	return true, nil
}

// Allow grants userID access to roomID. Granting twice is a no-op.
func (s *SQLiteStore) Allow(ctx context.Context, roomID, userID string) error {
	if roomID == "" || userID == "" {
		return core.ErrBadRequest
	}
	query := `INSERT OR IGNORE INTO room_permissions (room_id, user_id) VALUES (?, ?)`
	if _, err := s.db.ExecContext(ctx, query, roomID, userID); err != nil {
		return fmt.Errorf("insert permission: %w", err)
	}
	return nil
}

// Revoke removes a grant. Revoking a missing grant is a no-op.
func (s *SQLiteStore) Revoke(ctx context.Context, roomID, userID string) error {
	query := `DELETE FROM room_permissions WHERE room_id = ? AND user_id = ?`
	if _, err := s.db.ExecContext(ctx, query, roomID, userID); err != nil {
		return fmt.Errorf("delete permission: %w", err)
	}
	return nil
}

// AllowedUsers lists the users granted roomID, oldest grant first.
func (s *SQLiteStore) AllowedUsers(ctx context.Context, roomID string) ([]string, error) {
	query := `
		SELECT user_id FROM room_permissions
		WHERE room_id = ?
		ORDER BY granted_at ASC, rowid ASC
	`
	rows, err := s.db.QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("query permissions: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Clear removes every grant.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM room_permissions`); err != nil {
		return fmt.Errorf("clear permissions: %w", err)
	}
	return nil
}

// ==== Archive ====

// SaveMessage stores msg. A message id already archived is ignored.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg core.Message) error {
	if msg.ID == "" || msg.Room.ID == "" {
		return core.ErrBadRequest
	}
	query := `
		INSERT OR IGNORE INTO messages (id, room_id, user_id, user_first_name, user_last_name, content, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		msg.ID,
		msg.Room.ID,
		msg.User.ID,
		msg.User.FirstName,
		msg.User.LastName,
		msg.Content,
		msg.TS.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListMessages returns the latest limit messages of a room in chronological order.
// A non-positive limit returns all of them.
func (s *SQLiteStore) ListMessages(ctx context.Context, roomID string, limit int) ([]core.Message, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `
		SELECT id, room_id, user_id, user_first_name, user_last_name, content, sent_at
		FROM (
			SELECT *, rowid AS seq FROM messages
			WHERE room_id = ?
			ORDER BY sent_at DESC, seq DESC
			LIMIT ?
		)
		ORDER BY sent_at ASC, seq ASC
	`
	rows, err := s.db.QueryContext(ctx, query, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := []core.Message{}
	for rows.Next() {
		var (
			msg    core.Message
			sentAt int64
		)
		if err := rows.Scan(
			&msg.ID,
			&msg.Room.ID,
			&msg.User.ID,
			&msg.User.FirstName,
			&msg.User.LastName,
			&msg.Content,
			&sentAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.TS = time.UnixMilli(sentAt).UTC()
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}
