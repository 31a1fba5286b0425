// Package storage persists user-scoped conversations.
//
// Information Hiding:
// - Storage backend implementation details hidden behind interface
// - Allows swapping between memory and SQLite without API changes

package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrConversationNotFound is returned when a conversation does not exist or
// belongs to another user.
var ErrConversationNotFound = errors.New("conversation not found")

// DefaultHistoryLimit is the number of most recent messages loaded for a run.
const DefaultHistoryLimit = 50

// Sender identifies the author of a stored message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// ParseSender accepts a sender name case-insensitively.
func ParseSender(s string) (Sender, error) {
	switch Sender(strings.ToLower(strings.TrimSpace(s))) {
	case SenderUser:
		return SenderUser, nil
	case SenderAI:
		return SenderAI, nil
	default:
		return "", fmt.Errorf("unknown sender %q", s)
	}
}

// Valid reports whether s is one of the known senders.
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderAI
}

// ConversationRef addresses one conversation of one user.
type ConversationRef struct {
	UserID         string
	ConversationID int64
}

func (r ConversationRef) String() string {
	return fmt.Sprintf("%s/%d", r.UserID, r.ConversationID)
}

// Conversation is a stored conversation header.
type Conversation struct {
	ID           int64
	UserID       string
	CreatedAt    time.Time
	MessageCount int
}

// Ref returns the reference addressing c.
func (c Conversation) Ref() ConversationRef {
	return ConversationRef{UserID: c.UserID, ConversationID: c.ID}
}

// Message is one persisted turn. Only user messages and final answers are stored.
type Message struct {
	Sender    Sender
	Text      string
	CreatedAt time.Time
}

// ConversationStore defines the interface for storing conversation history.
// Within one conversation, appended messages are visible to the next History
// call in insertion order.
type ConversationStore interface {
	// GetOrCreateConversation returns the user's conversation with the given
	// id, or creates a new one when id is zero or does not belong to the user.
	GetOrCreateConversation(ctx context.Context, userID string, id int64) (Conversation, error)

	// ListConversations returns the user's conversations, newest first.
	ListConversations(ctx context.Context, userID string) ([]Conversation, error)

	// History returns the last limit messages of the conversation, oldest
	// first. A limit <= 0 returns every message. A conversation that does not
	// belong to the user yields an empty slice, not an error.
	History(ctx context.Context, ref ConversationRef, limit int) ([]Message, error)

	// Append stores one message at the end of the conversation.
	Append(ctx context.Context, ref ConversationRef, sender Sender, text string) error

	// AppendTurn stores a user message and its answer together: either both
	// are stored or neither is.
	AppendTurn(ctx context.Context, ref ConversationRef, question, answer string) error

	// DeleteConversation removes the conversation and its messages.
	DeleteConversation(ctx context.Context, ref ConversationRef) error

	Close() error
}
