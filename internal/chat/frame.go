// ABOUTME: Transport frame shape exchanged with the server over the chat channel
// ABOUTME: Converts frames to messages and decodes info notifications

package chat

import (
	"encoding/json"
	"errors"
	"fmt"
)

// FrameInfo is the frame type for server notifications.
const FrameInfo Kind = "info"

// InfoTitleGenerated is the info type sent after the backend derived a title.
const InfoTitleGenerated = "title-generated"

// ErrNotInfo is returned when decoding a non-info frame as Info.
var ErrNotInfo = errors.New("frame is not an info frame")

// Frame is a transport frame. Content stays raw until the type is known.
type Frame struct {
	ID           string          `json:"id,omitempty"`
	Conversation string          `json:"conversation"`
	ParentID     string          `json:"parentId,omitempty"`
	From         string          `json:"from,omitempty"`
	Content      json.RawMessage `json:"content,omitempty"`
	Type         Kind            `json:"type"`
	Extra        map[string]any  `json:"extra,omitempty"`
}

// Info is the payload of an info frame.
type Info struct {
	Type    string `json:"type"`
	Payload string `json:"payload"`
}

// FrameFromMessage builds the outbound frame for m.
func FrameFromMessage(m Message) (Frame, error) {
	content, err := json.Marshal(m.Content)
	if err != nil {
		return Frame{}, fmt.Errorf("encoding content: %w", err)
	}
	return Frame{
		ID:           m.ID,
		Conversation: m.Conversation,
		ParentID:     m.ParentID,
		From:         m.From,
		Content:      content,
		Type:         m.Kind,
		Extra:        m.Extra,
	}, nil
}

// InfoFrame builds an info frame for a conversation.
func InfoFrame(conversation string, info Info) (Frame, error) {
	content, err := json.Marshal(info)
	if err != nil {
		return Frame{}, fmt.Errorf("encoding info: %w", err)
	}
	return Frame{
		Conversation: conversation,
		From:         "system",
		Content:      content,
		Type:         FrameInfo,
	}, nil
}

// Message converts f into a message entry.
func (f Frame) Message() (Message, error) {
	if !f.Type.Valid() {
		return Message{}, fmt.Errorf("frame type %q is not a message kind", f.Type)
	}
	var content Content
	if len(f.Content) > 0 {
		if err := json.Unmarshal(f.Content, &content); err != nil {
			return Message{}, fmt.Errorf("decoding frame %s: %w", f.ID, err)
		}
	}
	return Message{
		ID:           f.ID,
		Conversation: f.Conversation,
		ParentID:     f.ParentID,
		From:         f.From,
		Content:      content,
		Kind:         f.Type,
		Extra:        f.Extra,
	}, nil
}

// Info decodes the payload of an info frame.
func (f Frame) Info() (Info, error) {
	if f.Type != FrameInfo {
		return Info{}, ErrNotInfo
	}
	var info Info
	if err := json.Unmarshal(f.Content, &info); err != nil {
		return Info{}, fmt.Errorf("decoding info: %w", err)
	}
	return info, nil
}
