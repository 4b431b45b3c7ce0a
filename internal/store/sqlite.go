// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides conversation/message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id         TEXT PRIMARY KEY,
			title      TEXT NOT NULL,
			user_id    TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_user
			ON conversations(user_id, updated_at DESC);

		CREATE TABLE IF NOT EXISTS messages (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			user_id         TEXT,
			content         TEXT NOT NULL,
			is_bot          INTEGER NOT NULL DEFAULT 0,
			created_at      TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
			ON messages(conversation_id, created_at, id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close releases the underlying database handle
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// CreateConversation inserts a new conversation.
// Returns ErrDuplicateConversation if the ID is already taken.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	query := `
		INSERT INTO conversations (id, title, user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		conv.ID,
		conv.Title,
		conv.UserID,
		formatTime(conv.CreatedAt),
		formatTime(conv.UpdatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateConversation
		}
		return fmt.Errorf("inserting conversation: %w", err)
	}

	s.logger.Debug("created conversation", "id", conv.ID, "user_id", conv.UserID)
	return nil
}

// GetConversation retrieves a conversation by ID.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	query := `
		SELECT id, title, user_id, created_at, updated_at
		FROM conversations
		WHERE id = ?
	`

	var conv Conversation
	var createdAtStr, updatedAtStr string

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&conv.ID,
		&conv.Title,
		&conv.UserID,
		&createdAtStr,
		&updatedAtStr,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	conv.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	conv.UpdatedAt, err = parseTime(updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &conv, nil
}

// ListConversations retrieves a user's conversations ordered by most recent
// activity. If limit is 0 or negative, a default limit of 100 is used.
func (s *SQLiteStore) ListConversations(ctx context.Context, userID string, limit int) ([]*Conversation, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	query := `
		SELECT id, title, user_id, created_at, updated_at
		FROM conversations
		WHERE user_id = ?
		ORDER BY updated_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		var conv Conversation
		var createdAtStr, updatedAtStr string

		if err := rows.Scan(
			&conv.ID,
			&conv.Title,
			&conv.UserID,
			&createdAtStr,
			&updatedAtStr,
		); err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}

		conv.CreatedAt, err = parseTime(createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}

		conv.UpdatedAt, err = parseTime(updatedAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}

		convs = append(convs, &conv)
	}

	return convs, rows.Err()
}

// DeleteConversation removes a conversation and all of its messages.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("deleted conversation", "id", id)
	return nil
}

// SaveMessage appends a message to its conversation and bumps the
// conversation's updated_at in the same transaction.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`,
		formatTime(msg.CreatedAt), msg.ConversationID,
	)
	if err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, user_id, content, is_bot, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID,
		msg.ConversationID,
		nullString(msg.UserID),
		msg.Content,
		boolToInt(msg.IsBot),
		formatTime(msg.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing message: %w", err)
	}

	s.logger.Debug("saved message", "id", msg.ID, "conversation_id", msg.ConversationID, "is_bot", msg.IsBot)
	return nil
}

// ListMessages retrieves messages for a conversation in chronological order,
// limited to the most recent `limit` messages.
// If limit is 0 or negative, all messages are returned.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	var query string
	var args []any

	if limit > 0 {
		// Get the N most recent messages, but return them in chronological order
		query = `
			SELECT id, conversation_id, user_id, content, is_bot, created_at
			FROM (
				SELECT id, conversation_id, user_id, content, is_bot, created_at
				FROM messages
				WHERE conversation_id = ?
				ORDER BY created_at DESC, id DESC
				LIMIT ?
			)
			ORDER BY created_at ASC, id ASC
		`
		args = []any{conversationID, limit}
	} else {
		query = `
			SELECT id, conversation_id, user_id, content, is_bot, created_at
			FROM messages
			WHERE conversation_id = ?
			ORDER BY created_at ASC, id ASC
		`
		args = []any{conversationID}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var msg Message
		var userID sql.NullString
		var isBot int
		var createdAtStr string

		if err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&userID,
			&msg.Content,
			&isBot,
			&createdAtStr,
		); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}

		msg.UserID = userID.String
		msg.IsBot = isBot != 0
		msg.CreatedAt, err = parseTime(createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}

		messages = append(messages, &msg)
	}

	return messages, rows.Err()
}

// timeLayout is RFC 3339 with a fixed-width nanosecond fraction. The fixed
// width keeps lexicographic string order equal to chronological order, which
// the ORDER BY created_at queries rely on. RFC3339Nano would strip trailing
// zeros and break that.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// nullString returns nil for empty strings, otherwise the string itself
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
