// ABOUTME: Tests for terminal rendering of messages and the incremental transcript
// ABOUTME: Covers streamed continuation, reprints on change and command splitting

package main

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/2389/chatline/internal/chat"
)

func disableColor(t *testing.T) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })
}

func msg(id, from, text string) chat.Message {
	return chat.Message{ID: id, From: from, Kind: chat.KindText, Content: chat.TextContent(text)}
}

func TestBody(t *testing.T) {
	action := chat.Message{ID: "a1", Kind: chat.KindAction, Content: chat.TextContent("count_chars(\"hi\")")}
	assert.Equal(t, `count_chars("hi")`, body(action))
	assert.Equal(t, `count_chars("hi") -> 2`, body(action.WithExtra(chat.ExtraObservation, "2")))

	file := chat.Message{Kind: chat.KindFile, Content: chat.FileContent(chat.FileRef{Filename: "a.csv", Size: 12})}
	assert.Equal(t, "[file] a.csv (12 bytes)", body(file))

	obs := chat.Message{Kind: chat.KindObservation, Content: chat.TextContent("7")}
	assert.Equal(t, "(result) 7", body(obs))

	rated := msg("m1", "assistant", "ok")
	rated.Feedback = chat.FeedbackThumbDown
	assert.Equal(t, "ok (-1)", body(rated))
}

func TestTranscript_StreamsInPlace(t *testing.T) {
	disableColor(t)
	var buf bytes.Buffer
	tr := newTranscript(&buf, "alice")

	u := msg("u1", "alice", "hi")
	tr.update([]chat.Message{u})
	tr.update([]chat.Message{u, msg("r1", "assistant", "You ")})
	tr.update([]chat.Message{u, msg("r1", "assistant", "You said")})
	tr.update([]chat.Message{u, msg("r1", "assistant", "You said")})

	assert.Equal(t, "[0] alice: hi\n[1] assistant: You said", buf.String())
}

func TestTranscript_ReprintsOutOfPlaceChanges(t *testing.T) {
	disableColor(t)
	var buf bytes.Buffer
	tr := newTranscript(&buf, "alice")

	r := msg("r1", "assistant", "partial")
	a := chat.Message{ID: "a1", From: "assistant", Kind: chat.KindAction, Content: chat.TextContent("run")}

	tr.update([]chat.Message{r, a})
	tr.update([]chat.Message{r, a.WithExtra(chat.ExtraObservation, "42")})
	tr.update([]chat.Message{msg("r1", "assistant", "partial done"), a.WithExtra(chat.ExtraObservation, "42")})
	tr.closeLine()

	assert.Equal(t,
		"[0] assistant: partial\n"+
			"[1] assistant: run -> 42\n"+
			"[0] assistant: partial done\n",
		buf.String())
}

func TestTranscript_Reset(t *testing.T) {
	disableColor(t)
	var buf bytes.Buffer
	tr := newTranscript(&buf, "alice")

	tr.update([]chat.Message{msg("u1", "alice", "hi")})
	tr.reset()
	tr.update([]chat.Message{msg("u1", "alice", "hi")})

	assert.Equal(t, "[0] alice: hi\n[0] alice: hi", buf.String())
}

func TestPrintConversations(t *testing.T) {
	disableColor(t)
	var buf bytes.Buffer

	printConversations(&buf, []chat.Conversation{
		{ID: "c1", Title: "Weather", Pinned: true, Active: true},
		{ID: "c2", Title: chat.UntitledTitle},
	})

	assert.Equal(t, "  1 * Weather [pinned]  c1\n  2   New Chat  c2\n", buf.String())
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		line, name, rest string
	}{
		{"/quit", "quit", ""},
		{"/rename  Trip plans ", "rename", "Trip plans"},
		{"/UP 3", "up", "3"},
		{"/upload a.csv b.txt", "upload", "a.csv b.txt"},
	}
	for _, tt := range tests {
		name, rest := splitCommand(tt.line)
		assert.Equal(t, tt.name, name, tt.line)
		assert.Equal(t, tt.rest, rest, tt.line)
	}
}
