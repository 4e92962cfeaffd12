// ABOUTME: Immutable ordered message sequence with an id-to-position index
// ABOUTME: Tracks standalone observations by parentId so a late action can absorb them

package reconciler

import (
	"maps"

	"github.com/2389/chatline/internal/chat"
)

// Sequence is the ordered message list of one conversation.
// The zero value is an empty sequence. A Sequence is never modified after
// construction; Reduce returns a new one.
type Sequence struct {
	entries []chat.Message
	byID    map[string]int // message id -> last position
	orphans map[string]int // parentId -> position of a standalone observation
}

// NewSequence builds a sequence from msgs as given, without correlation.
func NewSequence(msgs ...chat.Message) Sequence {
	entries := make([]chat.Message, len(msgs))
	for i, m := range msgs {
		entries[i] = m.Clone()
	}
	s := Sequence{
		entries: entries,
		byID:    chat.PositionIndex(entries),
		orphans: make(map[string]int),
	}
	for i, m := range entries {
		if m.Kind == chat.KindObservation && m.ParentID != "" {
			s.orphans[m.ParentID] = i
		}
	}
	return s
}

// Len returns the number of entries.
func (s Sequence) Len() int { return len(s.entries) }

// At returns a copy of the entry at position i.
func (s Sequence) At(i int) chat.Message { return s.entries[i].Clone() }

// Messages returns a copy of all entries in order.
func (s Sequence) Messages() []chat.Message {
	out := make([]chat.Message, len(s.entries))
	for i, m := range s.entries {
		out[i] = m.Clone()
	}
	return out
}

// Index returns the position of the entry with id.
func (s Sequence) Index(id string) (int, bool) {
	i, ok := s.byID[id]
	return i, ok
}

// Has reports whether an entry with id exists.
func (s Sequence) Has(id string) bool {
	_, ok := s.byID[id]
	return ok
}

// findAction returns the position of the most recent action with id.
func (s Sequence) findAction(id string) int {
	if i, ok := s.byID[id]; ok && s.entries[i].Kind == chat.KindAction {
		return i
	}
	// The indexed entry is not an action; fall back to a tail scan.
	return chat.LastIndexFunc(s.entries, func(m chat.Message) bool {
		return m.ID == id && m.Kind == chat.KindAction
	})
}

// replaced returns a copy of s with entry i set to m. Indexes are shared
// because positions do not move.
func (s Sequence) replaced(i int, m chat.Message) Sequence {
	entries := make([]chat.Message, len(s.entries))
	copy(entries, s.entries)
	entries[i] = m
	return Sequence{entries: entries, byID: s.byID, orphans: s.orphans}
}

// appended returns a copy of s with m added at the end.
func (s Sequence) appended(m chat.Message) Sequence {
	entries := make([]chat.Message, len(s.entries), len(s.entries)+1)
	copy(entries, s.entries)
	entries = append(entries, m)

	byID := maps.Clone(s.byID)
	if byID == nil {
		byID = make(map[string]int, 1)
	}
	byID[m.ID] = len(entries) - 1

	orphans := s.orphans
	if m.Kind == chat.KindObservation && m.ParentID != "" {
		orphans = maps.Clone(s.orphans)
		if orphans == nil {
			orphans = make(map[string]int, 1)
		}
		orphans[m.ParentID] = len(entries) - 1
	}
	return Sequence{entries: entries, byID: byID, orphans: orphans}
}

// adopted returns a copy of s where the standalone observation at position i
// is replaced by action, which absorbs it.
func (s Sequence) adopted(i int, action chat.Message) Sequence {
	obs := s.entries[i]
	entries := make([]chat.Message, len(s.entries))
	copy(entries, s.entries)
	entries[i] = action.WithObservation(obs)

	byID := maps.Clone(s.byID)
	if byID[obs.ID] == i {
		delete(byID, obs.ID)
	}
	byID[action.ID] = i

	orphans := maps.Clone(s.orphans)
	delete(orphans, action.ID)
	return Sequence{entries: entries, byID: byID, orphans: orphans}
}
