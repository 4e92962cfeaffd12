// ABOUTME: Store interface and data types for the development backend's persistence
// ABOUTME: Defines owned conversations, message history and the Store interface

package store

import (
	"context"
	"errors"

	"github.com/2389/chatline/internal/chat"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateConversation is returned when creating a conversation whose id exists
var ErrDuplicateConversation = errors.New("conversation already exists")

// Conversation is a conversation summary together with its owner
type Conversation struct {
	chat.Conversation
	Owner string
}

// ConversationPatch holds the fields of a partial update. Nil fields are left alone.
type ConversationPatch struct {
	Title  *string
	Pinned *bool
}

// Store defines the persistence operations the backend needs
type Store interface {
	CreateConversation(ctx context.Context, conv Conversation) error
	GetConversation(ctx context.Context, id string) (Conversation, error)
	// ListConversations returns owner's conversations, pinned first, then by
	// most recent activity.
	ListConversations(ctx context.Context, owner string) ([]Conversation, error)
	UpdateConversation(ctx context.Context, id string, patch ConversationPatch) (Conversation, error)
	// DeleteConversation removes the conversation and its messages.
	DeleteConversation(ctx context.Context, id string) error

	// SaveMessage inserts msg, or replaces the content and extra of the
	// message with the same id in the same conversation, keeping its position.
	SaveMessage(ctx context.Context, msg chat.Message) error
	// Messages returns a conversation's messages in arrival order. A positive
	// limit keeps only the most recent ones.
	Messages(ctx context.Context, conversationID string, limit int) ([]chat.Message, error)
	SetFeedback(ctx context.Context, conversationID, messageID string, fb chat.Feedback) error

	Close() error
}
