// ABOUTME: Websocket chat endpoint of the development server
// ABOUTME: Persists user frames and answers with action/observation pairs and a streamed reply

package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/2389/chatline/internal/chat"
	"github.com/2389/chatline/internal/store"
)

// session is one websocket connection. All writes happen on the reading
// goroutine, so frames go out in the order they are produced.
type session struct {
	srv    *Server
	conn   *websocket.Conn
	user   string
	logger *slog.Logger
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, user string) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	sess := &session{
		srv:    s,
		conn:   conn,
		user:   user,
		logger: s.logger.With("user", user),
	}
	sess.logger.Info("chat connected")

	err = sess.serve(r.Context())
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		sess.logger.Info("chat disconnected")
	default:
		if !errors.Is(err, context.Canceled) {
			sess.logger.Warn("chat connection ended", "error", err)
		}
	}
}

func (sess *session) serve(ctx context.Context) error {
	for {
		var f chat.Frame
		if err := wsjson.Read(ctx, sess.conn, &f); err != nil {
			return err
		}
		if err := sess.handleFrame(ctx, f); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			sess.logger.Warn("frame not handled", "error", err, "frame_id", f.ID)
		}
	}
}

func (sess *session) handleFrame(ctx context.Context, f chat.Frame) error {
	msg, err := f.Message()
	if err != nil {
		return err
	}
	if msg.Kind != chat.KindText && msg.Kind != chat.KindFile {
		return fmt.Errorf("clients may not send %s frames", msg.Kind)
	}
	if msg.ID == "" {
		return errors.New("frame without id")
	}

	conv, err := sess.srv.store.GetConversation(ctx, msg.Conversation)
	if err != nil {
		return fmt.Errorf("loading conversation %s: %w", msg.Conversation, err)
	}
	if conv.Owner != sess.user {
		return fmt.Errorf("conversation %s belongs to another user", conv.ID)
	}

	msg.From = sess.user
	if err := sess.srv.store.SaveMessage(ctx, msg); err != nil {
		return fmt.Errorf("saving user message: %w", err)
	}

	if msg.RequiresSummarization() && msg.Kind == chat.KindText {
		if err := sess.summarize(ctx, conv, msg.Content.Text); err != nil {
			return err
		}
	}

	if msg.Kind == chat.KindFile {
		return sess.replyToFile(ctx, msg)
	}
	return sess.replyToText(ctx, msg)
}

func (sess *session) summarize(ctx context.Context, conv store.Conversation, text string) error {
	title := deriveTitle(text)
	if title == "" {
		return nil
	}
	if _, err := sess.srv.store.UpdateConversation(ctx, conv.ID, store.ConversationPatch{Title: &title}); err != nil {
		return fmt.Errorf("saving title: %w", err)
	}
	f, err := chat.InfoFrame(conv.ID, chat.Info{Type: chat.InfoTitleGenerated, Payload: title})
	if err != nil {
		return err
	}
	return sess.write(ctx, f)
}

// replyToText sends an action, the reply's chunks and the action's
// observation, then persists action, observation and reply in that order.
func (sess *session) replyToText(ctx context.Context, user chat.Message) error {
	name := sess.srv.opts.AssistantName
	action := chat.Message{
		ID:           uuid.NewString(),
		Conversation: user.Conversation,
		ParentID:     user.ID,
		From:         name,
		Kind:         chat.KindAction,
		Content:      chat.TextContent(fmt.Sprintf("count_chars(%q)", user.Content.Text)),
	}
	observation := chat.Message{
		ID:           uuid.NewString(),
		Conversation: user.Conversation,
		ParentID:     action.ID,
		From:         "tool",
		Kind:         chat.KindObservation,
		Content:      chat.TextContent(strconv.Itoa(utf8.RuneCountInString(user.Content.Text))),
	}
	reply := chat.Message{
		ID:           uuid.NewString(),
		Conversation: user.Conversation,
		From:         name,
		Kind:         chat.KindText,
		Content:      chat.TextContent("You said: " + user.Content.Text),
	}

	chunks := splitRunes(reply.Content.Text, sess.srv.opts.ChunkRunes)
	half := (len(chunks) + 1) / 2

	if sess.srv.opts.ObservationFirst {
		if err := sess.send(ctx, observation); err != nil {
			return err
		}
	}
	if err := sess.send(ctx, action); err != nil {
		return err
	}
	if err := sess.stream(ctx, reply, chunks[:half]); err != nil {
		return err
	}
	if !sess.srv.opts.ObservationFirst {
		if err := sess.send(ctx, observation); err != nil {
			return err
		}
	}
	if err := sess.stream(ctx, reply, chunks[half:]); err != nil {
		return err
	}

	for _, m := range []chat.Message{action, observation, reply} {
		if err := sess.srv.store.SaveMessage(ctx, m); err != nil {
			return fmt.Errorf("saving %s: %w", m.Kind, err)
		}
	}
	return nil
}

func (sess *session) replyToFile(ctx context.Context, file chat.Message) error {
	reply := chat.Message{
		ID:           uuid.NewString(),
		Conversation: file.Conversation,
		From:         sess.srv.opts.AssistantName,
		Kind:         chat.KindText,
		Content:      chat.TextContent(fmt.Sprintf("Received %s (%d bytes)", file.Content.File.Filename, file.Content.File.Size)),
	}
	if err := sess.send(ctx, reply); err != nil {
		return err
	}
	return sess.srv.store.SaveMessage(ctx, reply)
}

// stream sends chunks as frames that all carry msg's id.
func (sess *session) stream(ctx context.Context, msg chat.Message, chunks []string) error {
	for _, chunk := range chunks {
		if d := sess.srv.opts.ChunkDelay; d > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
			}
		}
		part := msg
		part.Content = chat.TextContent(chunk)
		if err := sess.send(ctx, part); err != nil {
			return err
		}
	}
	return nil
}

func (sess *session) send(ctx context.Context, m chat.Message) error {
	f, err := chat.FrameFromMessage(m)
	if err != nil {
		return err
	}
	return sess.write(ctx, f)
}

func (sess *session) write(ctx context.Context, f chat.Frame) error {
	if err := wsjson.Write(ctx, sess.conn, f); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// splitRunes cuts s into pieces of at most n runes. It always returns at
// least one piece.
func splitRunes(s string, n int) []string {
	runes := []rune(s)
	if len(runes) == 0 {
		return []string{""}
	}
	var out []string
	for len(runes) > 0 {
		k := min(n, len(runes))
		out = append(out, string(runes[:k]))
		runes = runes[k:]
	}
	return out
}
