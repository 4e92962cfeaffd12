// ABOUTME: Terminal rendering of conversations and message sequences
// ABOUTME: The transcript prints only what changed, continuing streamed text in place

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/2389/chatline/internal/chat"
)

var (
	userColor   = color.New(color.FgWhite)
	replyColor  = color.New(color.FgCyan)
	actionColor = color.New(color.FgHiYellow)
	fileColor   = color.New(color.FgRed)
	titleColor  = color.New(color.FgMagenta, color.Bold)
	infoColor   = color.New(color.FgHiBlack)
	errorColor  = color.New(color.FgRed, color.Bold)
	pinnedColor = color.New(color.FgYellow)
	activeColor = color.New(color.FgGreen)
)

// body is the rendered content of m without its prefix.
func body(m chat.Message) string {
	var b strings.Builder
	switch m.Kind {
	case chat.KindAction:
		b.WriteString(m.Content.String())
		if obs, ok := m.Observation(); ok {
			b.WriteString(" -> ")
			b.WriteString(obs)
		}
	case chat.KindObservation:
		b.WriteString("(result) ")
		b.WriteString(m.Content.String())
	case chat.KindFile:
		fmt.Fprintf(&b, "[file] %s (%d bytes)", m.Content.File.Filename, m.Content.File.Size)
	default:
		b.WriteString(m.Content.String())
	}
	switch m.Feedback {
	case chat.FeedbackThumbUp:
		b.WriteString(" (+1)")
	case chat.FeedbackThumbDown:
		b.WriteString(" (-1)")
	}
	return b.String()
}

func colorFor(m chat.Message, user string) *color.Color {
	switch {
	case m.Kind == chat.KindAction || m.Kind == chat.KindObservation:
		return actionColor
	case m.Kind == chat.KindFile:
		return fileColor
	case m.From == user:
		return userColor
	default:
		return replyColor
	}
}

func prefix(i int, m chat.Message) string {
	return fmt.Sprintf("[%d] %s: ", i, m.From)
}

// printMessages writes msgs one line each.
func printMessages(w io.Writer, msgs []chat.Message, user string, offset int) {
	for i, m := range msgs {
		colorFor(m, user).Fprintln(w, prefix(offset+i, m)+body(m))
	}
}

// printConversations writes the conversation list with 1-based positions.
func printConversations(w io.Writer, convs []chat.Conversation) {
	for i, c := range convs {
		marker := " "
		if c.Active {
			marker = activeColor.Sprint("*")
		}
		fmt.Fprintf(w, "%3d %s %s", i+1, marker, c.Title)
		if c.Pinned {
			pinnedColor.Fprint(w, " [pinned]")
		}
		infoColor.Fprintf(w, "  %s\n", c.ID)
	}
}

// transcript prints a message sequence incrementally. A message seen for the
// first time is printed on a new line; a message whose text grew while its
// line is still the last one printed is continued in place; any other change
// prints the message again.
type transcript struct {
	out   io.Writer
	user  string
	shown map[string]string // message id -> body last printed
	open  string            // id of the message whose line is unterminated
}

func newTranscript(out io.Writer, user string) *transcript {
	return &transcript{out: out, user: user, shown: make(map[string]string)}
}

func (t *transcript) reset() {
	t.closeLine()
	t.shown = make(map[string]string)
}

func (t *transcript) closeLine() {
	if t.open != "" {
		fmt.Fprintln(t.out)
		t.open = ""
	}
}

func (t *transcript) update(msgs []chat.Message) {
	for i, m := range msgs {
		text := body(m)
		prev, seen := t.shown[m.ID]
		c := colorFor(m, t.user)

		switch {
		case seen && prev == text:
			continue
		case seen && t.open == m.ID && strings.HasPrefix(text, prev):
			c.Fprint(t.out, text[len(prev):])
		default:
			t.closeLine()
			c.Fprint(t.out, prefix(i, m)+text)
			t.open = m.ID
		}
		t.shown[m.ID] = text
	}
}
