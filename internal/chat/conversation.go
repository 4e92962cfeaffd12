// ABOUTME: Conversation summary record owned by the registry reducer
// ABOUTME: Includes the untitled sentinel and the detail shape returned by the server

package chat

import "time"

// UntitledTitle is the title a conversation carries until one is derived.
const UntitledTitle = "New Chat"

// Conversation is a conversation summary.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Pinned    bool      `json:"pinned,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Active is client state; the server never sets it.
	Active bool `json:"-"`
}

// Untitled reports whether c still carries the untitled sentinel.
func (c Conversation) Untitled() bool {
	return c.Title == "" || c.Title == UntitledTitle
}

// ConversationDetail is a conversation together with its persisted messages.
type ConversationDetail struct {
	Conversation
	Messages []Message `json:"messages"`
}
