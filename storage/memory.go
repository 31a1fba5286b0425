// In-memory conversation storage.
//
// Information Hiding:
// - Map storage structure hidden from users
// - Thread-safe access via RWMutex hidden behind interface
// - Suitable for testing and ephemeral sessions

package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements ConversationStore using in-memory maps.
// Data is lost when process terminates.
type MemoryStore struct {
	mu            sync.RWMutex
	nextID        int64
	conversations map[int64]*memoryConversation
}

type memoryConversation struct {
	header   Conversation
	messages []Message
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[int64]*memoryConversation),
	}
}

func (s *MemoryStore) owned(ref ConversationRef) (*memoryConversation, bool) {
	conv, ok := s.conversations[ref.ConversationID]
	if !ok || conv.header.UserID != ref.UserID {
		return nil, false
	}
	return conv, true
}

// GetOrCreateConversation returns the user's conversation or creates a new one.
func (s *MemoryStore) GetOrCreateConversation(_ context.Context, userID string, id int64) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv, ok := s.owned(ConversationRef{UserID: userID, ConversationID: id}); ok {
		header := conv.header
		header.MessageCount = len(conv.messages)
		return header, nil
	}

	s.nextID++
	conv := &memoryConversation{
		header: Conversation{ID: s.nextID, UserID: userID, CreatedAt: time.Now().UTC()},
	}
	s.conversations[conv.header.ID] = conv
	return conv.header, nil
}

// ListConversations returns the user's conversations, newest first.
func (s *MemoryStore) ListConversations(_ context.Context, userID string) ([]Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conversations := []Conversation{}
	for _, conv := range s.conversations {
		if conv.header.UserID != userID {
			continue
		}
		header := conv.header
		header.MessageCount = len(conv.messages)
		conversations = append(conversations, header)
	}
	sort.Slice(conversations, func(i, j int) bool {
		a, b := conversations[i], conversations[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	return conversations, nil
}

// History returns the last limit messages of the conversation, oldest first.
func (s *MemoryStore) History(_ context.Context, ref ConversationRef, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.owned(ref)
	if !ok {
		return []Message{}, nil
	}

	msgs := conv.messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	// Return a copy to avoid external mutations
	copied := make([]Message, len(msgs))
	copy(copied, msgs)
	return copied, nil
}

// Append stores one message at the end of the conversation.
func (s *MemoryStore) Append(_ context.Context, ref ConversationRef, sender Sender, text string) error {
	return s.insert(ref, Message{Sender: sender, Text: text})
}

// AppendTurn stores the user message and the answer together.
func (s *MemoryStore) AppendTurn(_ context.Context, ref ConversationRef, question, answer string) error {
	return s.insert(ref,
		Message{Sender: SenderUser, Text: question},
		Message{Sender: SenderAI, Text: answer},
	)
}

func (s *MemoryStore) insert(ref ConversationRef, msgs ...Message) error {
	for _, m := range msgs {
		if !m.Sender.Valid() {
			return fmt.Errorf("unknown sender %q", m.Sender)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.owned(ref)
	if !ok {
		return fmt.Errorf("append to %s: %w", ref, ErrConversationNotFound)
	}
	now := time.Now().UTC()
	for _, m := range msgs {
		m.CreatedAt = now
		conv.messages = append(conv.messages, m)
	}
	return nil
}

// DeleteConversation removes the conversation and its messages.
func (s *MemoryStore) DeleteConversation(_ context.Context, ref ConversationRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.owned(ref); !ok {
		return fmt.Errorf("delete %s: %w", ref, ErrConversationNotFound)
	}
	delete(s.conversations, ref.ConversationID)
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

// Verify MemoryStore implements ConversationStore
var _ ConversationStore = (*MemoryStore)(nil)
