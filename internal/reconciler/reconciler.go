// ABOUTME: Message reconciler reducer: add, append, observation correlation, feedback, bulk load
// ABOUTME: Absorbs duplicate delivery and out-of-order action/observation pairs

package reconciler

import (
	"log/slog"

	"github.com/2389/chatline/internal/chat"
)

// Event is a reconciler event record.
type Event interface {
	EventName() string
}

// Add appends Message unless an entry with the same id exists.
type Add struct {
	Message chat.Message
}

// Append grows the text content of the entry with ID by Chunk.
type Append struct {
	ID    string
	Chunk string
}

// ObservationReceived folds Observation into the action named by its ParentID.
type ObservationReceived struct {
	Observation chat.Message
}

// Feedback sets the feedback of the entry at Index.
type Feedback struct {
	Index int
	Value chat.Feedback
}

// ReplaceAll rebuilds the sequence from a chronologically ordered history.
type ReplaceAll struct {
	Messages []chat.Message
}

func (Add) EventName() string                 { return "add" }
func (Append) EventName() string              { return "append" }
func (ObservationReceived) EventName() string { return "observationReceived" }
func (Feedback) EventName() string            { return "feedback" }
func (ReplaceAll) EventName() string          { return "replaceAll" }

func logger() *slog.Logger {
	return slog.Default().With("component", "reconciler")
}

// Reduce applies ev to seq and returns the next sequence.
func Reduce(seq Sequence, ev Event) Sequence {
	switch e := ev.(type) {
	case Add:
		return add(seq, e.Message)
	case Append:
		return appendChunk(seq, e)
	case ObservationReceived:
		return observe(seq, e.Observation)
	case Feedback:
		return feedback(seq, e)
	case ReplaceAll:
		return NewSequence(Merge(e.Messages)...)
	default:
		name := "<nil>"
		if ev != nil {
			name = ev.EventName()
		}
		logger().Error("unknown reconciler event", "event", name)
		return seq
	}
}

func add(seq Sequence, msg chat.Message) Sequence {
	if seq.Has(msg.ID) {
		logger().Debug("duplicate message ignored", "message_id", msg.ID)
		return seq
	}
	if msg.Kind == chat.KindAction {
		if i, ok := seq.orphans[msg.ID]; ok && seq.entries[i].Kind == chat.KindObservation {
			logger().Debug("action absorbed earlier observation",
				"message_id", msg.ID,
				"observation_id", seq.entries[i].ID)
			return seq.adopted(i, msg.Clone())
		}
	}
	return seq.appended(msg.Clone())
}

func appendChunk(seq Sequence, e Append) Sequence {
	i, ok := seq.Index(e.ID)
	if !ok {
		// Happens after the user navigated away from the conversation and back.
		logger().Debug("append for untracked message ignored", "message_id", e.ID)
		return seq
	}
	cur := seq.entries[i]
	if cur.Content.Tag != chat.ContentText {
		logger().Warn("append to non-text message ignored", "message_id", e.ID, "kind", cur.Kind)
		return seq
	}
	next := cur.Clone()
	next.Content = chat.TextContent(cur.Content.Text + e.Chunk)
	return seq.replaced(i, next)
}

func observe(seq Sequence, obs chat.Message) Sequence {
	if obs.ParentID != "" {
		if i := seq.findAction(obs.ParentID); i >= 0 {
			return seq.replaced(i, seq.entries[i].WithObservation(obs))
		}
	}
	if seq.Has(obs.ID) {
		logger().Debug("duplicate observation ignored", "message_id", obs.ID)
		return seq
	}
	logger().Debug("observation without action kept standalone",
		"message_id", obs.ID,
		"parent_id", obs.ParentID)
	return seq.appended(obs.Clone())
}

func feedback(seq Sequence, e Feedback) Sequence {
	if e.Index < 0 || e.Index >= seq.Len() {
		logger().Warn("feedback index out of range", "index", e.Index, "len", seq.Len())
		return seq
	}
	next := seq.entries[e.Index].Clone()
	next.Feedback = e.Value
	return seq.replaced(e.Index, next)
}

// Merge folds observations into their actions in one forward pass over a
// persisted history. Text and file entries pass through. Each action is held
// until its observation arrives, then emitted with the observation absorbed at
// the observation's position. Observations without a held action are emitted
// standalone. Actions never answered are emitted at the end in their original
// order. The input is not modified.
func Merge(msgs []chat.Message) []chat.Message {
	out := make([]chat.Message, 0, len(msgs))
	pending := make(map[string]chat.Message)
	var order []string

	for _, m := range msgs {
		switch m.Kind {
		case chat.KindAction:
			if _, held := pending[m.ID]; !held {
				order = append(order, m.ID)
			}
			pending[m.ID] = m.Clone()
		case chat.KindObservation:
			action, ok := pending[m.ParentID]
			if !ok || m.ParentID == "" {
				out = append(out, m.Clone())
				continue
			}
			out = append(out, action.WithObservation(m))
			delete(pending, m.ParentID)
		default:
			out = append(out, m.Clone())
		}
	}

	for _, id := range order {
		if action, ok := pending[id]; ok {
			out = append(out, action)
			delete(pending, id)
		}
	}
	return out
}
