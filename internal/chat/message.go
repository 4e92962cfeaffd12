// ABOUTME: Message entry types for a conversation's message sequence
// ABOUTME: Kind enum, tagged text/file content, feedback and extra-field helpers

package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
)

// Kind classifies a message entry.
type Kind string

const (
	KindText        Kind = "text"
	KindFile        Kind = "file"
	KindAction      Kind = "action"
	KindObservation Kind = "observation"
)

// Valid reports whether k is one of the message kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindFile, KindAction, KindObservation:
		return true
	}
	return false
}

// Feedback is the user's rating of a message.
type Feedback string

const (
	FeedbackNone      Feedback = ""
	FeedbackThumbUp   Feedback = "thumbup"
	FeedbackThumbDown Feedback = "thumbdown"
)

// Well-known keys in Message.Extra.
const (
	// ExtraObservation holds an absorbed observation's content on an action entry.
	ExtraObservation = "observation"
	// ExtraRequireSummarization asks the backend to derive a conversation title.
	ExtraRequireSummarization = "requireSummarization"
)

// ContentTag discriminates the Content variant.
type ContentTag int

const (
	ContentText ContentTag = iota
	ContentFile
)

// FileRef describes an uploaded file.
type FileRef struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// Content is either a text payload or a file descriptor.
// The zero value is empty text.
type Content struct {
	Tag  ContentTag
	Text string
	File FileRef
}

// TextContent returns text content.
func TextContent(s string) Content {
	return Content{Tag: ContentText, Text: s}
}

// FileContent returns file content.
func FileContent(f FileRef) Content {
	return Content{Tag: ContentFile, File: f}
}

// String returns the text payload, or the filename for file content.
func (c Content) String() string {
	if c.Tag == ContentFile {
		return c.File.Filename
	}
	return c.Text
}

// MarshalJSON encodes text as a JSON string and files as an object.
func (c Content) MarshalJSON() ([]byte, error) {
	switch c.Tag {
	case ContentText:
		return json.Marshal(c.Text)
	case ContentFile:
		return json.Marshal(c.File)
	default:
		return nil, fmt.Errorf("unknown content tag %d", c.Tag)
	}
}

// UnmarshalJSON accepts a string (text), an object (file) or null (empty text).
func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*c = TextContent("")
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decoding text content: %w", err)
		}
		*c = TextContent(s)
		return nil
	case data[0] == '{':
		var f FileRef
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("decoding file content: %w", err)
		}
		*c = FileContent(f)
		return nil
	default:
		return fmt.Errorf("unsupported content %s", data)
	}
}

// Message is one entry of a conversation's message sequence.
type Message struct {
	ID           string         `json:"id"`
	Conversation string         `json:"conversation,omitempty"`
	ParentID     string         `json:"parentId,omitempty"`
	From         string         `json:"from"`
	Content      Content        `json:"content"`
	Kind         Kind           `json:"type"`
	Extra        map[string]any `json:"extra,omitempty"`
	Feedback     Feedback       `json:"feedback,omitempty"`
}

// Clone returns a copy of m that shares no mutable state with it.
func (m Message) Clone() Message {
	m.Extra = maps.Clone(m.Extra)
	return m
}

// WithExtra returns a copy of m with key set to value in Extra.
func (m Message) WithExtra(key string, value any) Message {
	out := m.Clone()
	if out.Extra == nil {
		out.Extra = make(map[string]any, 1)
	}
	out.Extra[key] = value
	return out
}

// WithObservation returns a copy of the action m with the observation content
// stored under Extra["observation"]. A previous observation is replaced.
func (m Message) WithObservation(obs Message) Message {
	return m.WithExtra(ExtraObservation, obs.Content.String())
}

// Observation returns the absorbed observation content, if any.
func (m Message) Observation() (string, bool) {
	v, ok := m.Extra[ExtraObservation]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// RequiresSummarization reports whether m asks the backend for a title.
func (m Message) RequiresSummarization() bool {
	v, _ := m.Extra[ExtraRequireSummarization].(bool)
	return v
}
