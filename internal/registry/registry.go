// ABOUTME: Conversation registry reducer over an ordered list of conversation summaries
// ABOUTME: Enforces the single-active invariant for added/selected actions

package registry

import (
	"log/slog"
	"time"

	"github.com/2389/chatline/internal/chat"
)

// Action is a registry action record.
type Action interface {
	ActionName() string
}

// Added inserts Conversation at position 0 and activates it.
type Added struct {
	Conversation chat.Conversation
}

// Deleted removes the conversation with ID.
type Deleted struct {
	ID string
}

// Patch holds the fields of a partial conversation update. Nil fields are left alone.
type Patch struct {
	ID        string
	Title     *string
	Pinned    *bool
	UpdatedAt *time.Time
}

// Updated shallow-merges Patch into the conversation with Patch.ID.
type Updated struct {
	Patch Patch
}

// Selected replaces the matching conversation with Conversation and activates it.
type Selected struct {
	Conversation chat.Conversation
}

// MoveToFirst moves the conversation with ID to position 0.
type MoveToFirst struct {
	ID string
}

// ReplaceAll replaces the list wholesale.
type ReplaceAll struct {
	Conversations []chat.Conversation
}

func (Added) ActionName() string       { return "added" }
func (Deleted) ActionName() string     { return "deleted" }
func (Updated) ActionName() string     { return "updated" }
func (Selected) ActionName() string    { return "selected" }
func (MoveToFirst) ActionName() string { return "moveToFirst" }
func (ReplaceAll) ActionName() string  { return "replaceAll" }

// Title returns a Patch that renames conversation id.
func Title(id, title string) Patch {
	return Patch{ID: id, Title: &title}
}

// Pin returns a Patch that sets the pinned flag of conversation id.
func Pin(id string, pinned bool) Patch {
	return Patch{ID: id, Pinned: &pinned}
}

func logger() *slog.Logger {
	return slog.Default().With("component", "registry")
}

// Reduce applies action to convs and returns the next conversation list.
func Reduce(convs []chat.Conversation, action Action) []chat.Conversation {
	switch a := action.(type) {
	case Added:
		out := make([]chat.Conversation, 0, len(convs)+1)
		added := a.Conversation
		added.Active = true
		out = append(out, added)
		for _, c := range convs {
			c.Active = false
			out = append(out, c)
		}
		return out

	case Deleted:
		out := make([]chat.Conversation, 0, len(convs))
		for _, c := range convs {
			if c.ID != a.ID {
				out = append(out, c)
			}
		}
		return out

	case Updated:
		i := chat.IndexConversation(convs, a.Patch.ID)
		if i < 0 {
			return convs
		}
		out := clone(convs)
		out[i] = a.Patch.apply(out[i])
		return out

	case Selected:
		if chat.IndexConversation(convs, a.Conversation.ID) < 0 {
			// Activating nothing would leave the list without an active entry.
			logger().Warn("selected conversation not in registry", "conversation_id", a.Conversation.ID)
			return convs
		}
		out := make([]chat.Conversation, len(convs))
		for i, c := range convs {
			if c.ID == a.Conversation.ID {
				c = a.Conversation
				c.Active = true
			} else {
				c.Active = false
			}
			out[i] = c
		}
		return out

	case MoveToFirst:
		i := chat.IndexConversation(convs, a.ID)
		if i < 0 {
			logger().Warn("moveToFirst target not in registry", "conversation_id", a.ID)
			return convs
		}
		out := make([]chat.Conversation, 0, len(convs))
		out = append(out, convs[i])
		out = append(out, convs[:i]...)
		out = append(out, convs[i+1:]...)
		return out

	case ReplaceAll:
		return clone(a.Conversations)

	default:
		logger().Error("unknown registry action", "action", describe(action))
		return convs
	}
}

// Active returns the active conversation, if any.
func Active(convs []chat.Conversation) (chat.Conversation, bool) {
	for _, c := range convs {
		if c.Active {
			return c, true
		}
	}
	return chat.Conversation{}, false
}

func (p Patch) apply(c chat.Conversation) chat.Conversation {
	if p.Title != nil {
		c.Title = *p.Title
	}
	if p.Pinned != nil {
		c.Pinned = *p.Pinned
	}
	if p.UpdatedAt != nil {
		c.UpdatedAt = *p.UpdatedAt
	}
	return c
}

func clone(convs []chat.Conversation) []chat.Conversation {
	out := make([]chat.Conversation, len(convs))
	copy(out, convs)
	return out
}

func describe(action Action) string {
	if action == nil {
		return "<nil>"
	}
	return action.ActionName()
}
