// ABOUTME: Outgoing message operations: send text, upload files, rate messages
// ABOUTME: Implements the send-then-add-then-moveToFirst protocol without partial commits

package session

import (
	"context"
	"fmt"

	"github.com/2389/chatline/internal/api"
	"github.com/2389/chatline/internal/chat"
	"github.com/2389/chatline/internal/reconciler"
	"github.com/2389/chatline/internal/registry"
)

// Send sends text as a user message in the active conversation.
func (s *Session) Send(ctx context.Context, text string) error {
	return s.sendMessage(ctx, func(conv chat.Conversation) chat.Message {
		msg := chat.Message{
			ID:           s.opts.NewID(),
			Conversation: conv.ID,
			From:         s.opts.User,
			Kind:         chat.KindText,
			Content:      chat.TextContent(text),
		}
		if s.needsTitleLocked(conv) {
			msg = msg.WithExtra(chat.ExtraRequireSummarization, true)
		}
		return msg
	})
}

// needsTitleLocked reports whether a message sent now would be the first user
// text of a still-untitled conversation. mu must be held.
func (s *Session) needsTitleLocked(conv chat.Conversation) bool {
	if conv.Title != s.opts.UntitledTitle && !conv.Untitled() {
		return false
	}
	for _, m := range s.messages.Messages() {
		if m.Kind == chat.KindText && m.From == s.opts.User {
			return false
		}
	}
	return true
}

// sendMessage waits for the channel, then sends and adds the message built by
// build under one lock, so replies cannot overtake it. A failed send leaves
// the state untouched.
func (s *Session) sendMessage(ctx context.Context, build func(chat.Conversation) chat.Message) error {
	readyCtx, cancel := context.WithTimeout(ctx, s.opts.ReadyTimeout)
	err := s.transport.WaitReady(readyCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("waiting for chat channel: %w", err)
	}

	s.mu.Lock()
	conv, pos, err := s.activeLocked()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	msg := build(conv)
	frame, err := chat.FrameFromMessage(msg)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.opts.SendTimeout)
	err = s.transport.Send(sendCtx, frame)
	cancel()
	if err != nil {
		s.mu.Unlock()
		return err
	}

	s.messages = reconciler.Reduce(s.messages, reconciler.Add{Message: msg})
	moved := pos != 0
	if moved {
		s.convs = registry.Reduce(s.convs, registry.MoveToFirst{ID: conv.ID})
	}
	s.mu.Unlock()

	s.publish(ChangeMessages, conv.ID)
	if moved {
		s.publish(ChangeConversations, conv.ID)
	}
	return nil
}

// UploadFiles uploads files to the active conversation and sends one file
// message per stored file.
func (s *Session) UploadFiles(ctx context.Context, files []api.File) ([]chat.FileRef, error) {
	s.mu.Lock()
	conv, _, err := s.activeLocked()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	refs, err := s.backend.UploadFiles(ctx, conv.ID, files)
	if err != nil {
		return nil, err
	}

	for i, ref := range refs {
		err := s.sendMessage(ctx, func(active chat.Conversation) chat.Message {
			return chat.Message{
				ID:           s.opts.NewID(),
				Conversation: active.ID,
				From:         s.opts.User,
				Kind:         chat.KindFile,
				Content:      chat.FileContent(ref),
			}
		})
		if err != nil {
			return refs[:i], fmt.Errorf("announcing %s: %w", ref.Filename, err)
		}
	}
	return refs, nil
}

// Feedback rates the message at index in the active conversation.
func (s *Session) Feedback(ctx context.Context, index int, fb chat.Feedback) error {
	s.mu.Lock()
	conv, _, err := s.activeLocked()
	n := s.messages.Len()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if index < 0 || index >= n {
		return fmt.Errorf("no message at index %d", index)
	}

	if err := s.backend.SetFeedback(ctx, conv.ID, index, fb); err != nil {
		return err
	}

	s.mu.Lock()
	if s.activeID == conv.ID {
		s.messages = reconciler.Reduce(s.messages, reconciler.Feedback{Index: index, Value: fb})
	}
	s.mu.Unlock()
	s.publish(ChangeMessages, conv.ID)
	return nil
}
