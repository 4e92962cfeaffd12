// ABOUTME: Tests for the development chat server
// ABOUTME: Drives REST endpoints through the api client and the chat endpoint over a real websocket

package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chatline/internal/api"
	"github.com/2389/chatline/internal/chat"
	"github.com/2389/chatline/internal/reconciler"
	"github.com/2389/chatline/internal/store"
)

type fixture struct {
	srv   *httptest.Server
	store *store.SQLiteStore
	alice *api.Client
	bob   *api.Client
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "backend.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	srv := httptest.NewServer(New(st, opts).Handler())
	t.Cleanup(srv.Close)

	return &fixture{
		srv:   srv,
		store: st,
		alice: api.New(srv.URL, "alice", opts.Token),
		bob:   api.New(srv.URL, "bob", opts.Token),
	}
}

func (f *fixture) dial(t *testing.T, user string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(f.srv.URL, "http")+"/api/chat", &websocket.DialOptions{
		HTTPHeader: http.Header{api.UserHeader: []string{user}},
	})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readFrames(t *testing.T, conn *websocket.Conn, n int) []chat.Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	frames := make([]chat.Frame, 0, n)
	for len(frames) < n {
		var f chat.Frame
		require.NoError(t, wsjson.Read(ctx, conn, &f))
		frames = append(frames, f)
	}
	return frames
}

func userFrame(t *testing.T, conv, id, text string, summarize bool) chat.Frame {
	t.Helper()
	m := chat.Message{ID: id, Conversation: conv, From: "alice", Kind: chat.KindText, Content: chat.TextContent(text)}
	if summarize {
		m = m.WithExtra(chat.ExtraRequireSummarization, true)
	}
	f, err := chat.FrameFromMessage(m)
	require.NoError(t, err)
	return f
}

// reduceFrames applies frames the way a client routes them.
func reduceFrames(t *testing.T, seq reconciler.Sequence, frames []chat.Frame) reconciler.Sequence {
	t.Helper()
	seen := map[string]bool{}
	for _, f := range frames {
		if f.Type == chat.FrameInfo {
			continue
		}
		m, err := f.Message()
		require.NoError(t, err)
		switch {
		case m.Kind == chat.KindObservation:
			seq = reconciler.Reduce(seq, reconciler.ObservationReceived{Observation: m})
		case seen[m.ID]:
			seq = reconciler.Reduce(seq, reconciler.Append{ID: m.ID, Chunk: m.Content.Text})
		default:
			seq = reconciler.Reduce(seq, reconciler.Add{Message: m})
		}
		seen[m.ID] = true
	}
	return seq
}

func frameTypes(frames []chat.Frame) []chat.Kind {
	out := make([]chat.Kind, len(frames))
	for i, f := range frames {
		out[i] = f.Type
	}
	return out
}

func TestREST_ConversationLifecycle(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	conv, err := f.alice.CreateConversation(ctx, "c1", "")
	require.NoError(t, err)
	assert.Equal(t, chat.UntitledTitle, conv.Title)

	convs, err := f.alice.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 1)

	detail, err := f.alice.GetConversation(ctx, "c1")
	require.NoError(t, err)
	assert.NotNil(t, detail.Messages)
	assert.Empty(t, detail.Messages)

	title, pinned := "Renamed", true
	updated, err := f.alice.UpdateConversation(ctx, "c1", api.UpdateRequest{Title: &title, Pinned: &pinned})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
	assert.True(t, updated.Pinned)

	require.NoError(t, f.alice.DeleteConversation(ctx, "c1"))
	_, err = f.alice.GetConversation(ctx, "c1")
	assert.ErrorIs(t, err, api.ErrNotFound)
}

func TestREST_CreateDuplicateConflicts(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	_, err := f.alice.CreateConversation(ctx, "c1", "a")
	require.NoError(t, err)

	_, err = f.alice.CreateConversation(ctx, "c1", "a")
	var statusErr *api.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusConflict, statusErr.Code)
}

func TestREST_OwnerIsolation(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	_, err := f.alice.CreateConversation(ctx, "c1", "private")
	require.NoError(t, err)

	convs, err := f.bob.ListConversations(ctx)
	require.NoError(t, err)
	assert.Empty(t, convs)

	_, err = f.bob.GetConversation(ctx, "c1")
	assert.ErrorIs(t, err, api.ErrForbidden)
	assert.ErrorIs(t, f.bob.DeleteConversation(ctx, "c1"), api.ErrForbidden)
}

func TestREST_RequiresUserAndToken(t *testing.T) {
	f := newFixture(t, Options{Token: "s3cret"})

	resp, err := http.Get(f.srv.URL + "/api/conversations")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, err = api.New(f.srv.URL, "alice", "wrong").ListConversations(context.Background())
	var statusErr *api.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.Code)

	_, err = f.alice.ListConversations(context.Background())
	assert.NoError(t, err)
}

func TestChat_ReplyShapeAndPersistence(t *testing.T) {
	f := newFixture(t, Options{ChunkRunes: 8})
	ctx := context.Background()
	_, err := f.alice.CreateConversation(ctx, "c1", "")
	require.NoError(t, err)
	conn := f.dial(t, "alice")

	require.NoError(t, wsjson.Write(ctx, conn, userFrame(t, "c1", "u1", "hello world", true)))

	// "You said: hello world" is 21 runes: three chunks of at most 8.
	frames := readFrames(t, conn, 6)
	assert.Equal(t, []chat.Kind{
		chat.FrameInfo, chat.KindAction, chat.KindText, chat.KindText, chat.KindObservation, chat.KindText,
	}, frameTypes(frames))

	info, err := frames[0].Info()
	require.NoError(t, err)
	assert.Equal(t, chat.Info{Type: chat.InfoTitleGenerated, Payload: "hello world"}, info)
	assert.Equal(t, "u1", frames[1].ParentID)
	assert.Equal(t, frames[1].ID, frames[4].ParentID)

	user, err := userFrame(t, "c1", "u1", "hello world", false).Message()
	require.NoError(t, err)
	live := reduceFrames(t, reconciler.NewSequence(user), frames)
	require.Equal(t, 3, live.Len())
	obs, ok := live.At(1).Observation()
	require.True(t, ok)
	assert.Equal(t, "11", obs)
	assert.Equal(t, "You said: hello world", live.At(2).Content.Text)

	var detail chat.ConversationDetail
	require.Eventually(t, func() bool {
		detail, err = f.alice.GetConversation(ctx, "c1")
		return err == nil && len(detail.Messages) == 4
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "hello world", detail.Title)

	bulk := reconciler.Reduce(reconciler.Sequence{}, reconciler.ReplaceAll{Messages: detail.Messages})
	require.Equal(t, live.Len(), bulk.Len())
	for i := 0; i < live.Len(); i++ {
		assert.Equal(t, live.At(i).ID, bulk.At(i).ID)
		assert.Equal(t, live.At(i).Content, bulk.At(i).Content)
		assert.Equal(t, live.At(i).Extra[chat.ExtraObservation], bulk.At(i).Extra[chat.ExtraObservation])
	}
}

func TestChat_ObservationFirst(t *testing.T) {
	f := newFixture(t, Options{ChunkRunes: 100, ObservationFirst: true})
	ctx := context.Background()
	_, err := f.alice.CreateConversation(ctx, "c1", "")
	require.NoError(t, err)
	conn := f.dial(t, "alice")

	require.NoError(t, wsjson.Write(ctx, conn, userFrame(t, "c1", "u1", "hi", false)))

	frames := readFrames(t, conn, 3)
	assert.Equal(t, []chat.Kind{chat.KindObservation, chat.KindAction, chat.KindText}, frameTypes(frames))

	live := reduceFrames(t, reconciler.Sequence{}, frames)
	require.Equal(t, 2, live.Len())
	assert.Equal(t, chat.KindAction, live.At(0).Kind)
	obs, _ := live.At(0).Observation()
	assert.Equal(t, "2", obs)
}

func TestChat_FileFrameAcknowledged(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	_, err := f.alice.CreateConversation(ctx, "c1", "")
	require.NoError(t, err)
	conn := f.dial(t, "alice")

	frame, err := chat.FrameFromMessage(chat.Message{
		ID: "f1", Conversation: "c1", Kind: chat.KindFile,
		Content: chat.FileContent(chat.FileRef{Filename: "data.csv", Size: 42}),
	})
	require.NoError(t, err)
	require.NoError(t, wsjson.Write(ctx, conn, frame))

	reply := readFrames(t, conn, 1)[0]
	assert.Equal(t, chat.KindText, reply.Type)
	assert.JSONEq(t, `"Received data.csv (42 bytes)"`, string(reply.Content))
}

func TestChat_IgnoresForeignConversation(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	_, err := f.alice.CreateConversation(ctx, "c1", "")
	require.NoError(t, err)
	_, err = f.bob.CreateConversation(ctx, "b1", "")
	require.NoError(t, err)
	conn := f.dial(t, "bob")

	require.NoError(t, wsjson.Write(ctx, conn, userFrame(t, "c1", "x1", "sneaky", false)))
	require.NoError(t, wsjson.Write(ctx, conn, userFrame(t, "b1", "b-u1", "mine", false)))

	// The first reply belongs to bob's own conversation.
	first := readFrames(t, conn, 1)[0]
	assert.Equal(t, "b1", first.Conversation)

	msgs, err := f.store.Messages(ctx, "c1", 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestREST_FeedbackByMergedIndex(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	_, err := f.alice.CreateConversation(ctx, "c1", "")
	require.NoError(t, err)
	conn := f.dial(t, "alice")
	require.NoError(t, wsjson.Write(ctx, conn, userFrame(t, "c1", "u1", "rate me", false)))
	// action, three reply chunks, observation
	readFrames(t, conn, 5)

	require.Eventually(t, func() bool {
		msgs, err := f.store.Messages(ctx, "c1", 0)
		return err == nil && len(msgs) == 4
	}, 5*time.Second, 20*time.Millisecond)

	// Merged view: [u1, action+observation, reply].
	require.NoError(t, f.alice.SetFeedback(ctx, "c1", 2, chat.FeedbackThumbUp))
	msgs, err := f.store.Messages(ctx, "c1", 0)
	require.NoError(t, err)
	assert.Equal(t, chat.KindText, msgs[3].Kind)
	assert.Equal(t, chat.FeedbackThumbUp, msgs[3].Feedback)

	assert.ErrorIs(t, f.alice.SetFeedback(ctx, "c1", 9, chat.FeedbackThumbDown), api.ErrNotFound)
}

func TestREST_Summarize(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	_, err := f.alice.CreateConversation(ctx, "c1", "")
	require.NoError(t, err)

	_, err = f.alice.Summarize(ctx, "c1")
	var statusErr *api.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.Code)

	require.NoError(t, f.store.SaveMessage(ctx, chat.Message{
		ID: "u1", Conversation: "c1", From: "alice", Kind: chat.KindText,
		Content: chat.TextContent("## Plot the **sales** data"),
	}))
	title, err := f.alice.Summarize(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Plot the sales data", title)

	conv, err := f.store.GetConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Plot the sales data", conv.Title)
}

func TestREST_UploadFiles(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	_, err := f.alice.CreateConversation(ctx, "c1", "")
	require.NoError(t, err)

	refs, err := f.alice.UploadFiles(ctx, "c1", []api.File{{Name: "notes.md", Body: strings.NewReader("# hi\n")}})
	require.NoError(t, err)
	assert.Equal(t, []chat.FileRef{{Filename: "notes.md", Size: 5}}, refs)
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hello", "hello"},
		{"# Hello *world*\n\nSome `code` here", "Hello world Some code here"},
		{"[link text](http://example.com) and more", "link text and more"},
		{"Please help me write a function that parses dates", "Please help me write a function that par"},
		{"```\nonly code\n```", "``` only code ```"},
		{"   ", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, deriveTitle(tt.in), "input %q", tt.in)
	}
}

func TestSplitRunes(t *testing.T) {
	assert.Equal(t, []string{""}, splitRunes("", 4))
	assert.Equal(t, []string{"abcd", "ef"}, splitRunes("abcdef", 4))
	assert.Equal(t, []string{"héll", "ø"}, splitRunes("héllø", 4))
}
