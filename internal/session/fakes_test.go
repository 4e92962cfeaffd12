// ABOUTME: In-memory Backend and Transport doubles for session tests
// ABOUTME: Record calls and allow injecting failures per operation

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/2389/chatline/internal/api"
	"github.com/2389/chatline/internal/chat"
)

var errBoom = errors.New("boom")

type fakeBackend struct {
	mu       sync.Mutex
	convs    []chat.Conversation
	messages map[string][]chat.Message
	feedback []string

	failCreate   error
	failGet      error
	failUpdate   error
	failDelete   error
	failFeedback error

	// onCreate runs inside CreateConversation before any failure is returned.
	onCreate func()
}

func newFakeBackend(convs ...chat.Conversation) *fakeBackend {
	return &fakeBackend{convs: convs, messages: make(map[string][]chat.Message)}
}

func (b *fakeBackend) ListConversations(context.Context) ([]chat.Conversation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]chat.Conversation(nil), b.convs...), nil
}

func (b *fakeBackend) CreateConversation(_ context.Context, id, title string) (chat.Conversation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.onCreate != nil {
		b.onCreate()
	}
	if b.failCreate != nil {
		return chat.Conversation{}, b.failCreate
	}
	conv := chat.Conversation{ID: id, Title: title}
	b.convs = append([]chat.Conversation{conv}, b.convs...)
	return conv, nil
}

func (b *fakeBackend) find(id string) int {
	return chat.IndexConversation(b.convs, id)
}

func (b *fakeBackend) GetConversation(_ context.Context, id string) (chat.ConversationDetail, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failGet != nil {
		return chat.ConversationDetail{}, b.failGet
	}
	i := b.find(id)
	if i < 0 {
		return chat.ConversationDetail{}, &api.StatusError{Code: 404}
	}
	return chat.ConversationDetail{Conversation: b.convs[i], Messages: b.messages[id]}, nil
}

func (b *fakeBackend) UpdateConversation(_ context.Context, id string, req api.UpdateRequest) (chat.Conversation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failUpdate != nil {
		return chat.Conversation{}, b.failUpdate
	}
	i := b.find(id)
	if i < 0 {
		return chat.Conversation{}, &api.StatusError{Code: 404}
	}
	if req.Title != nil {
		b.convs[i].Title = *req.Title
	}
	if req.Pinned != nil {
		b.convs[i].Pinned = *req.Pinned
	}
	return b.convs[i], nil
}

func (b *fakeBackend) DeleteConversation(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failDelete != nil {
		return b.failDelete
	}
	i := b.find(id)
	if i < 0 {
		return &api.StatusError{Code: 404}
	}
	b.convs = append(b.convs[:i:i], b.convs[i+1:]...)
	return nil
}

func (b *fakeBackend) Summarize(_ context.Context, id string) (string, error) {
	return "Summary of " + id, nil
}

func (b *fakeBackend) SetFeedback(_ context.Context, id string, index int, fb chat.Feedback) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failFeedback != nil {
		return b.failFeedback
	}
	b.feedback = append(b.feedback, fmt.Sprintf("%s/%d/%s", id, index, fb))
	return nil
}

func (b *fakeBackend) UploadFiles(_ context.Context, _ string, files []api.File) ([]chat.FileRef, error) {
	refs := make([]chat.FileRef, len(files))
	for i, f := range files {
		refs[i] = chat.FileRef{Filename: f.Name, Size: int64(10 * (i + 1))}
	}
	return refs, nil
}

type fakeTransport struct {
	mu       sync.Mutex
	sent     []chat.Frame
	sendErr  error
	notReady bool
	frames   chan chat.Frame
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{frames: make(chan chat.Frame, 16)}
}

func (t *fakeTransport) WaitReady(ctx context.Context) error {
	t.mu.Lock()
	notReady := t.notReady
	t.mu.Unlock()
	if notReady {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (t *fakeTransport) Send(_ context.Context, f chat.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, f)
	return nil
}

func (t *fakeTransport) Frames() <-chan chat.Frame { return t.frames }

func (t *fakeTransport) Sent() []chat.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]chat.Frame(nil), t.sent...)
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newTestSession(t *testing.T, b *fakeBackend, tr *fakeTransport) *Session {
	t.Helper()
	s := New(b, tr, Options{User: "alice", NewID: sequentialIDs()})
	t.Cleanup(s.Close)
	require.NoError(t, s.Init(context.Background()))
	return s
}

func frameOf(t *testing.T, m chat.Message) chat.Frame {
	t.Helper()
	f, err := chat.FrameFromMessage(m)
	require.NoError(t, err)
	return f
}

func convIDs(convs []chat.Conversation) []string {
	out := make([]string, len(convs))
	for i, c := range convs {
		out[i] = c.ID
	}
	return out
}
