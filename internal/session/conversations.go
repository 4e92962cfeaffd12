// ABOUTME: Conversation operations: create, select, rename, pin, delete, summarize
// ABOUTME: Mirrors remote calls into registry actions after they succeed

package session

import (
	"context"
	"fmt"

	"github.com/2389/chatline/internal/api"
	"github.com/2389/chatline/internal/chat"
	"github.com/2389/chatline/internal/reconciler"
	"github.com/2389/chatline/internal/registry"
)

// NewConversation creates an untitled conversation and makes it active. The
// conversation is added locally before the create request and removed again
// if the request fails.
func (s *Session) NewConversation(ctx context.Context) (chat.Conversation, error) {
	conv := chat.Conversation{ID: s.opts.NewID(), Title: s.opts.UntitledTitle}

	s.mu.Lock()
	prevID, prevMessages := s.activeID, s.messages
	s.convs = registry.Reduce(s.convs, registry.Added{Conversation: conv})
	s.activeID = conv.ID
	s.messages = reconciler.Sequence{}
	s.mu.Unlock()
	s.publish(ChangeConversations, conv.ID)
	s.publish(ChangeMessages, conv.ID)

	created, err := s.backend.CreateConversation(ctx, conv.ID, conv.Title)
	if err != nil {
		s.mu.Lock()
		s.undoAddLocked(conv.ID, prevID, prevMessages)
		s.mu.Unlock()
		s.publish(ChangeConversations, "")
		s.publish(ChangeMessages, prevID)
		return chat.Conversation{}, err
	}

	s.mu.Lock()
	if s.activeID == conv.ID {
		s.convs = registry.Reduce(s.convs, registry.Selected{Conversation: created})
	}
	s.mu.Unlock()
	s.publish(ChangeConversations, conv.ID)

	s.logger.Info("conversation created", "conversation_id", conv.ID)
	created.Active = true
	return created, nil
}

// undoAddLocked removes a locally added conversation and, if it is still
// active, reactivates prevID with its messages. Reductions applied to other
// conversations in the meantime are kept. mu must be held.
func (s *Session) undoAddLocked(id, prevID string, prevMessages reconciler.Sequence) {
	s.convs = registry.Reduce(s.convs, registry.Deleted{ID: id})
	if s.activeID != id {
		return
	}
	s.activeID = ""
	s.messages = reconciler.Sequence{}
	if i := chat.IndexConversation(s.convs, prevID); i >= 0 {
		s.convs = registry.Reduce(s.convs, registry.Selected{Conversation: s.convs[i]})
		s.activeID = prevID
		s.messages = prevMessages
	}
}

// Select makes the conversation with id active and loads its history. A
// pending initial message for it is sent once the history is in place.
func (s *Session) Select(ctx context.Context, id string) error {
	s.mu.Lock()
	known := chat.IndexConversation(s.convs, id) >= 0
	s.mu.Unlock()
	if !known {
		return fmt.Errorf("%w: %s", ErrUnknownConversation, id)
	}

	detail, err := s.backend.GetConversation(ctx, id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.convs = registry.Reduce(s.convs, registry.Selected{Conversation: detail.Conversation})
	s.activeID = id
	s.messages = reconciler.Reduce(s.messages, reconciler.ReplaceAll{Messages: detail.Messages})
	initial, replay := s.pending[id]
	delete(s.pending, id)
	s.mu.Unlock()

	s.publish(ChangeConversations, id)
	s.publish(ChangeMessages, id)

	if replay {
		s.logger.Debug("replaying initial message", "conversation_id", id)
		return s.Send(ctx, initial)
	}
	return nil
}

// StartConversation creates a conversation and sends text as its first
// message after the new conversation's history has loaded.
func (s *Session) StartConversation(ctx context.Context, text string) (chat.Conversation, error) {
	conv, err := s.NewConversation(ctx)
	if err != nil {
		return chat.Conversation{}, err
	}

	s.mu.Lock()
	s.pending[conv.ID] = text
	s.mu.Unlock()

	if err := s.Select(ctx, conv.ID); err != nil {
		s.mu.Lock()
		delete(s.pending, conv.ID)
		s.mu.Unlock()
		return conv, err
	}
	return conv, nil
}

// Rename sets a conversation's title.
func (s *Session) Rename(ctx context.Context, id, title string) error {
	if _, err := s.backend.UpdateConversation(ctx, id, api.UpdateRequest{Title: &title}); err != nil {
		return err
	}
	s.apply(registry.Updated{Patch: registry.Title(id, title)}, id)
	return nil
}

// SetPinned pins or unpins a conversation.
func (s *Session) SetPinned(ctx context.Context, id string, pinned bool) error {
	if _, err := s.backend.UpdateConversation(ctx, id, api.UpdateRequest{Pinned: &pinned}); err != nil {
		return err
	}
	s.apply(registry.Updated{Patch: registry.Pin(id, pinned)}, id)
	return nil
}

// Summarize asks the server for a title for the active conversation.
func (s *Session) Summarize(ctx context.Context) (string, error) {
	s.mu.Lock()
	conv, _, err := s.activeLocked()
	s.mu.Unlock()
	if err != nil {
		return "", err
	}

	title, err := s.backend.Summarize(ctx, conv.ID)
	if err != nil {
		return "", err
	}
	s.apply(registry.Updated{Patch: registry.Title(conv.ID, title)}, conv.ID)
	return title, nil
}

// Delete deletes a conversation. If the list becomes empty a replacement
// conversation is created; if the active conversation was deleted the new
// first conversation is selected.
func (s *Session) Delete(ctx context.Context, id string) error {
	if err := s.backend.DeleteConversation(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	s.convs = registry.Reduce(s.convs, registry.Deleted{ID: id})
	wasActive := s.activeID == id
	if wasActive {
		s.activeID = ""
		s.messages = reconciler.Sequence{}
	}
	delete(s.pending, id)
	remaining := len(s.convs)
	var next string
	if wasActive && remaining > 0 {
		// Activate the new first entry now; its history follows below.
		next = s.convs[0].ID
		s.convs = registry.Reduce(s.convs, registry.Selected{Conversation: s.convs[0]})
		s.activeID = next
	}
	s.mu.Unlock()

	s.seen.Forget(id)
	s.publish(ChangeConversations, id)
	s.logger.Info("conversation deleted", "conversation_id", id)

	switch {
	case remaining == 0:
		conv, err := s.backend.CreateConversation(ctx, s.opts.NewID(), s.opts.UntitledTitle)
		if err != nil {
			return fmt.Errorf("creating replacement conversation: %w", err)
		}
		s.mu.Lock()
		s.convs = registry.Reduce(s.convs, registry.Added{Conversation: conv})
		s.activeID = conv.ID
		s.messages = reconciler.Sequence{}
		s.mu.Unlock()
		s.publish(ChangeConversations, conv.ID)
		s.publish(ChangeMessages, conv.ID)
		return nil
	case wasActive:
		s.publish(ChangeMessages, next)
		if err := s.Select(ctx, next); err != nil {
			s.logger.Warn("loading history after delete", "error", err, "conversation_id", next)
			return fmt.Errorf("loading conversation %s: %w", next, err)
		}
	}
	return nil
}

// apply reduces one registry action and publishes the change.
func (s *Session) apply(action registry.Action, id string) {
	s.mu.Lock()
	s.convs = registry.Reduce(s.convs, action)
	s.mu.Unlock()
	s.publish(ChangeConversations, id)
}
