// ABOUTME: Command tests against the development backend on an httptest server
// ABOUTME: Drives one-shot subcommands and an interactive chat through a pipe

package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chatline/internal/api"
	"github.com/2389/chatline/internal/backend"
	"github.com/2389/chatline/internal/chat"
	"github.com/2389/chatline/internal/session"
	"github.com/2389/chatline/internal/store"
)

// syncBuffer is a bytes.Buffer safe for concurrent writers and readers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type testServer struct {
	url   string
	store *store.SQLiteStore
	alice *api.Client
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	disableColor(t)
	t.Setenv("CHATLINE_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "chatline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	srv := httptest.NewServer(backend.New(st, backend.Options{}).Handler())
	t.Cleanup(srv.Close)

	return &testServer{url: srv.URL, store: st, alice: api.New(srv.URL, "alice", "")}
}

func (s *testServer) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append(args, "--server", s.url, "--user", "alice"))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommands(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	_, err := srv.alice.CreateConversation(ctx, "conv-aaaa1111", "First")
	require.NoError(t, err)
	_, err = srv.alice.CreateConversation(ctx, "conv-bbbb2222", "Second")
	require.NoError(t, err)

	out, err := srv.run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "First")
	assert.Contains(t, out, "conv-bbbb2222")

	out, err = srv.run(t, "rename", "conv-aaaa", "Renamed")
	require.NoError(t, err)
	assert.Equal(t, "renamed conv-aaaa1111 to \"Renamed\"\n", out)

	out, err = srv.run(t, "pin", "conv-bbbb")
	require.NoError(t, err)
	assert.Equal(t, "pinned conv-bbbb2222\n", out)

	out, err = srv.run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Renamed")
	assert.Contains(t, out, "Second [pinned]")

	out, err = srv.run(t, "pin", "--unpin", "conv-bbbb2222")
	require.NoError(t, err)
	assert.Equal(t, "unpinned conv-bbbb2222\n", out)

	out, err = srv.run(t, "delete", "conv-aaaa1111")
	require.NoError(t, err)
	assert.Equal(t, "deleted conv-aaaa1111\n", out)

	_, err = srv.run(t, "history", "conv-aaaa1111")
	require.ErrorIs(t, err, session.ErrUnknownConversation)
}

func TestHistoryCommand(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	_, err := srv.alice.CreateConversation(ctx, "conv-cccc3333", "Lookup")
	require.NoError(t, err)
	for _, m := range []chat.Message{
		{ID: "u1", From: "alice", Kind: chat.KindText, Content: chat.TextContent("question")},
		{ID: "a1", ParentID: "u1", From: "assistant", Kind: chat.KindAction, Content: chat.TextContent("lookup")},
		{ID: "o1", ParentID: "a1", From: "tool", Kind: chat.KindObservation, Content: chat.TextContent("42")},
		{ID: "r1", From: "assistant", Kind: chat.KindText, Content: chat.TextContent("answer")},
	} {
		m.Conversation = "conv-cccc3333"
		require.NoError(t, srv.store.SaveMessage(ctx, m))
	}

	out, err := srv.run(t, "history", "1")
	require.NoError(t, err)
	assert.Equal(t,
		"Lookup\n"+
			"[0] alice: question\n"+
			"[1] assistant: lookup -> 42\n"+
			"[2] assistant: answer\n",
		out)

	out, err = srv.run(t, "history", "conv-cccc", "--limit", "1")
	require.NoError(t, err)
	assert.Equal(t, "Lookup\n[2] assistant: answer\n", out)
}

func TestChatInteractive(t *testing.T) {
	srv := newTestServer(t)

	in, input := io.Pipe()
	t.Cleanup(func() { input.Close() })
	out := &syncBuffer{}

	root := newRootCmd()
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"chat", "--server", srv.url, "--user", "alice"})

	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(context.Background()) }()

	send := func(line string) {
		t.Helper()
		_, err := fmt.Fprintln(input, line)
		require.NoError(t, err)
	}
	waitFor := func(text string) {
		t.Helper()
		require.Eventually(t, func() bool {
			return strings.Contains(out.String(), text)
		}, 5*time.Second, 10*time.Millisecond, "waiting for %q in:\n%s", text, out.String())
	}

	waitFor("== " + chat.UntitledTitle + " ==")

	send("hello there")
	waitFor("You said: hello there")
	waitFor("== hello there ==")
	waitFor("-> 11")

	send("/rename Greetings")
	waitFor("== Greetings ==")

	send("/bogus")
	waitFor("! unknown command /bogus")

	send("/quit")
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("chat did not exit on /quit")
	}

	convs, err := srv.alice.ListConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "Greetings", convs[0].Title)
}
