// ABOUTME: Inbound frame router feeding transport frames into the reducers
// ABOUTME: First delivery adds, later deliveries append, observations correlate, info updates titles

package session

import (
	"context"

	"github.com/2389/chatline/internal/chat"
	"github.com/2389/chatline/internal/dedupe"
	"github.com/2389/chatline/internal/reconciler"
	"github.com/2389/chatline/internal/registry"
)

// Run routes frames from the transport until its frame stream closes or ctx
// is done.
func (s *Session) Run(ctx context.Context) error {
	frames := s.transport.Frames()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			s.HandleFrame(f)
		}
	}
}

// HandleFrame applies one inbound frame.
func (s *Session) HandleFrame(f chat.Frame) {
	if f.Type == chat.FrameInfo {
		s.handleInfo(f)
		return
	}

	msg, err := f.Message()
	if err != nil {
		s.logger.Warn("dropping undecodable frame", "error", err, "frame_id", f.ID)
		return
	}

	s.mu.Lock()
	if msg.Conversation != s.activeID {
		s.mu.Unlock()
		s.logger.Debug("frame for inactive conversation ignored",
			"conversation_id", msg.Conversation,
			"message_id", msg.ID)
		return
	}

	var ev reconciler.Event
	switch {
	case msg.Kind == chat.KindObservation:
		ev = reconciler.ObservationReceived{Observation: msg}
	case s.seen.Deliver(msg.Conversation, msg.ID) == dedupe.First:
		ev = reconciler.Add{Message: msg}
	case msg.Content.Tag == chat.ContentText && msg.Content.Text != "":
		ev = reconciler.Append{ID: msg.ID, Chunk: msg.Content.Text}
	default:
		s.mu.Unlock()
		return
	}
	s.messages = reconciler.Reduce(s.messages, ev)
	s.mu.Unlock()

	s.publish(ChangeMessages, msg.Conversation)
}

func (s *Session) handleInfo(f chat.Frame) {
	info, err := f.Info()
	if err != nil {
		s.logger.Warn("dropping undecodable info frame", "error", err)
		return
	}

	switch info.Type {
	case chat.InfoTitleGenerated:
		s.apply(registry.Updated{Patch: registry.Title(f.Conversation, info.Payload)}, f.Conversation)
	default:
		s.logger.Debug("ignoring info frame", "type", info.Type, "conversation_id", f.Conversation)
	}
}
