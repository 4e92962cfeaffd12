// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides conversation/message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/chatline/internal/chat"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Pragmas are per connection; keep a single one so they stick.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
		now:    time.Now,
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
			id          TEXT PRIMARY KEY,
			owner       TEXT NOT NULL,
			title       TEXT NOT NULL,
			pinned      INTEGER NOT NULL DEFAULT 0,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_owner
			ON conversations(owner, pinned DESC, updated_at DESC);

		CREATE TABLE IF NOT EXISTS messages (
			seq             INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			id              TEXT NOT NULL,
			parent_id       TEXT,
			sender          TEXT NOT NULL,
			kind            TEXT NOT NULL,
			content         TEXT NOT NULL,
			extra           TEXT,
			feedback        TEXT NOT NULL DEFAULT '',
			created_at      TEXT NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE,
			UNIQUE (conversation_id, id),
			CHECK (kind IN ('text', 'file', 'action', 'observation'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages(conversation_id, seq);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// CreateConversation inserts a new conversation. Zero timestamps are set to now.
// Returns ErrDuplicateConversation if the id is taken.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv Conversation) error {
	now := s.now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = conv.CreatedAt
	}

	query := `
		INSERT INTO conversations (id, owner, title, pinned, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		conv.ID,
		conv.Owner,
		conv.Title,
		conv.Pinned,
		conv.CreatedAt.UTC().Format(timeLayout),
		conv.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateConversation
		}
		return fmt.Errorf("inserting conversation: %w", err)
	}

	s.logger.Debug("created conversation", "id", conv.ID, "owner", conv.Owner)
	return nil
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (Conversation, error) {
	var conv Conversation
	var createdAt, updatedAt string
	if err := row.Scan(&conv.ID, &conv.Owner, &conv.Title, &conv.Pinned, &createdAt, &updatedAt); err != nil {
		return Conversation{}, err
	}

	var err error
	conv.CreatedAt, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		return Conversation{}, fmt.Errorf("parsing created_at: %w", err)
	}
	conv.UpdatedAt, err = time.Parse(timeLayout, updatedAt)
	if err != nil {
		return Conversation{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return conv, nil
}

// GetConversation retrieves a conversation by ID.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (Conversation, error) {
	query := `
		SELECT id, owner, title, pinned, created_at, updated_at
		FROM conversations
		WHERE id = ?
	`
	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("querying conversation: %w", err)
	}
	return conv, nil
}

// ListConversations returns owner's conversations, pinned first, then most
// recently active first.
func (s *SQLiteStore) ListConversations(ctx context.Context, owner string) ([]Conversation, error) {
	query := `
		SELECT id, owner, title, pinned, created_at, updated_at
		FROM conversations
		WHERE owner = ?
		ORDER BY pinned DESC, updated_at DESC, created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversation rows: %w", err)
	}
	return convs, nil
}

// UpdateConversation applies patch and returns the updated conversation.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) UpdateConversation(ctx context.Context, id string, patch ConversationPatch) (Conversation, error) {
	var sets []string
	var args []any
	if patch.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *patch.Title)
	}
	if patch.Pinned != nil {
		sets = append(sets, "pinned = ?")
		args = append(args, *patch.Pinned)
	}
	if len(sets) == 0 {
		return s.GetConversation(ctx, id)
	}
	args = append(args, id)

	query := "UPDATE conversations SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return Conversation{}, fmt.Errorf("updating conversation: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return Conversation{}, fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return Conversation{}, ErrNotFound
	}

	s.logger.Debug("updated conversation", "id", id)
	return s.GetConversation(ctx, id)
}

// DeleteConversation removes a conversation and, by cascade, its messages.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
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

// SaveMessage inserts msg or, if a message with the same id exists in the
// conversation, replaces its content and extra in place. The conversation's
// updated_at is bumped. Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg chat.Message) error {
	if !msg.Kind.Valid() {
		return fmt.Errorf("invalid message kind %q", msg.Kind)
	}
	content, err := json.Marshal(msg.Content)
	if err != nil {
		return fmt.Errorf("encoding content: %w", err)
	}
	var extra any
	if len(msg.Extra) > 0 {
		b, err := json.Marshal(msg.Extra)
		if err != nil {
			return fmt.Errorf("encoding extra: %w", err)
		}
		extra = string(b)
	}
	now := s.now().UTC().Format(timeLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, "UPDATE conversations SET updated_at = ? WHERE id = ?", now, msg.Conversation)
	if err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	} else if n == 0 {
		return ErrNotFound
	}

	query := `
		INSERT INTO messages (conversation_id, id, parent_id, sender, kind, content, extra, feedback, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (conversation_id, id) DO UPDATE SET
			content = excluded.content,
			extra = excluded.extra
	`
	_, err = tx.ExecContext(ctx, query,
		msg.Conversation,
		msg.ID,
		nullString(msg.ParentID),
		msg.From,
		string(msg.Kind),
		string(content),
		extra,
		string(msg.Feedback),
		now,
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing message: %w", err)
	}

	s.logger.Debug("saved message", "id", msg.ID, "conversation_id", msg.Conversation, "kind", msg.Kind)
	return nil
}

// nullString returns nil for empty strings, otherwise the string
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Messages returns a conversation's messages in arrival order. If limit is
// positive only the most recent limit messages are returned, still oldest first.
func (s *SQLiteStore) Messages(ctx context.Context, conversationID string, limit int) ([]chat.Message, error) {
	const cols = "seq, conversation_id, id, parent_id, sender, kind, content, extra, feedback"

	var query string
	var args []any
	if limit > 0 {
		query = `
			SELECT ` + cols + ` FROM (
				SELECT ` + cols + ` FROM messages
				WHERE conversation_id = ?
				ORDER BY seq DESC
				LIMIT ?
			)
			ORDER BY seq ASC
		`
		args = []any{conversationID, limit}
	} else {
		query = `SELECT ` + cols + ` FROM messages WHERE conversation_id = ? ORDER BY seq ASC`
		args = []any{conversationID}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []chat.Message
	for rows.Next() {
		var msg chat.Message
		var seq int64
		var parentID, extra sql.NullString
		var kind, content, feedback string

		if err := rows.Scan(&seq, &msg.Conversation, &msg.ID, &parentID, &msg.From, &kind, &content, &extra, &feedback); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		msg.ParentID = parentID.String
		msg.Kind = chat.Kind(kind)
		msg.Feedback = chat.Feedback(feedback)
		if err := json.Unmarshal([]byte(content), &msg.Content); err != nil {
			return nil, fmt.Errorf("decoding content of message %s: %w", msg.ID, err)
		}
		if extra.Valid {
			if err := json.Unmarshal([]byte(extra.String), &msg.Extra); err != nil {
				return nil, fmt.Errorf("decoding extra of message %s: %w", msg.ID, err)
			}
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return msgs, nil
}

// SetFeedback records feedback on a message.
// Returns ErrNotFound if the message doesn't exist.
func (s *SQLiteStore) SetFeedback(ctx context.Context, conversationID, messageID string, fb chat.Feedback) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE messages SET feedback = ? WHERE conversation_id = ? AND id = ?",
		string(fb), conversationID, messageID)
	if err != nil {
		return fmt.Errorf("updating feedback: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
