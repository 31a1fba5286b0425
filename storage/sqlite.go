// SQLite conversation storage.
//
// Information Hiding:
// - SQLite connection management hidden behind interface
// - Schema details encapsulated

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SqliteStore implements ConversationStore on a SQLite database file.
// Thread-safe: sql.DB handles connection pooling and concurrent access.
type SqliteStore struct {
	db *sql.DB
}

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=1", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	return newSqliteStore(db)
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory() (*SqliteStore, error) {
	db, err := sql.Open("sqlite3", "file::memory:?_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	return newSqliteStore(db)
}

func newSqliteStore(db *sql.DB) (*SqliteStore, error) {
	store := &SqliteStore{db: db}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SqliteStore) Close() error {
	return s.db.Close()
}

func (s *SqliteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_user
		ON conversations(user_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id INTEGER NOT NULL,
			sender TEXT NOT NULL CHECK (sender IN ('user', 'ai')),
			text TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation
		ON messages(conversation_id, id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// GetOrCreateConversation returns the user's conversation or creates a new one.
func (s *SqliteStore) GetOrCreateConversation(ctx context.Context, userID string, id int64) (Conversation, error) {
	if id > 0 {
		conv, err := s.conversation(ctx, ConversationRef{UserID: userID, ConversationID: id})
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, ErrConversationNotFound) {
			return Conversation{}, err
		}
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO conversations (user_id, created_at) VALUES (?, ?)",
		userID, now.UnixNano())
	if err != nil {
		return Conversation{}, fmt.Errorf("failed to create conversation: %w", err)
	}
	newID, err := res.LastInsertId()
	if err != nil {
		return Conversation{}, fmt.Errorf("failed to read conversation id: %w", err)
	}

	return Conversation{ID: newID, UserID: userID, CreatedAt: now}, nil
}

func (s *SqliteStore) conversation(ctx context.Context, ref ConversationRef) (Conversation, error) {
	var created int64
	conv := Conversation{ID: ref.ConversationID, UserID: ref.UserID}
	err := s.db.QueryRowContext(ctx, `
		SELECT c.created_at, (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id)
		FROM conversations c
		WHERE c.id = ? AND c.user_id = ?`,
		ref.ConversationID, ref.UserID).Scan(&created, &conv.MessageCount)
	if err == sql.ErrNoRows {
		return Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("failed to get conversation: %w", err)
	}
	conv.CreatedAt = time.Unix(0, created).UTC()
	return conv, nil
}

// ListConversations returns the user's conversations, newest first.
func (s *SqliteStore) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.created_at, (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id)
		FROM conversations c
		WHERE c.user_id = ?
		ORDER BY c.created_at DESC, c.id DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	conversations := []Conversation{}
	for rows.Next() {
		var created int64
		conv := Conversation{UserID: userID}
		if err := rows.Scan(&conv.ID, &created, &conv.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conv.CreatedAt = time.Unix(0, created).UTC()
		conversations = append(conversations, conv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}
	return conversations, nil
}

// History returns the last limit messages of the conversation, oldest first.
func (s *SqliteStore) History(ctx context.Context, ref ConversationRef, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = -1
	}

	// The ownership join makes a foreign conversation look empty.
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.sender, m.text, m.created_at
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE m.conversation_id = ? AND c.user_id = ?
		ORDER BY m.id DESC
		LIMIT ?`,
		ref.ConversationID, ref.UserID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var msg Message
		var sender string
		var created int64
		if err := rows.Scan(&sender, &msg.Text, &created); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if msg.Sender, err = ParseSender(sender); err != nil {
			return nil, fmt.Errorf("invalid sender in database: %w", err)
		}
		msg.CreatedAt = time.Unix(0, created).UTC()
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// Append stores one message at the end of the conversation.
func (s *SqliteStore) Append(ctx context.Context, ref ConversationRef, sender Sender, text string) error {
	return s.insert(ctx, ref, Message{Sender: sender, Text: text})
}

// AppendTurn stores the user message and the answer in one transaction.
func (s *SqliteStore) AppendTurn(ctx context.Context, ref ConversationRef, question, answer string) error {
	return s.insert(ctx, ref,
		Message{Sender: SenderUser, Text: question},
		Message{Sender: SenderAI, Text: answer},
	)
}

func (s *SqliteStore) insert(ctx context.Context, ref ConversationRef, msgs ...Message) error {
	for _, m := range msgs {
		if !m.Sender.Valid() {
			return fmt.Errorf("unknown sender %q", m.Sender)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// defer tx.Rollback() is safe even after Commit() - it becomes a no-op
	defer func() { _ = tx.Rollback() }()

	var owner string
	err = tx.QueryRowContext(ctx,
		"SELECT user_id FROM conversations WHERE id = ?", ref.ConversationID).Scan(&owner)
	if err == sql.ErrNoRows || (err == nil && owner != ref.UserID) {
		return fmt.Errorf("append to %s: %w", ref, ErrConversationNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check conversation: %w", err)
	}

	now := time.Now().UTC().UnixNano()
	for _, m := range msgs {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO messages (conversation_id, sender, text, created_at) VALUES (?, ?, ?, ?)",
			ref.ConversationID, string(m.Sender), m.Text, now)
		if err != nil {
			return fmt.Errorf("failed to insert %s message: %w", m.Sender, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteConversation removes the conversation and, by cascade, its messages.
func (s *SqliteStore) DeleteConversation(ctx context.Context, ref ConversationRef) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM conversations WHERE id = ? AND user_id = ?",
		ref.ConversationID, ref.UserID)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete %s: %w", ref, ErrConversationNotFound)
	}
	return nil
}

// Verify SqliteStore implements ConversationStore
var _ ConversationStore = (*SqliteStore)(nil)
