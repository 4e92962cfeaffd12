// ABOUTME: Identity helpers shared by the registry and reconciler reducers
// ABOUTME: Tail-first lookups and id-to-position indexes over ordered slices

package chat

// LastIndexFunc returns the index of the last element satisfying fn, or -1.
func LastIndexFunc[T any](items []T, fn func(T) bool) int {
	for i := len(items) - 1; i >= 0; i-- {
		if fn(items[i]) {
			return i
		}
	}
	return -1
}

// IndexConversation returns the position of the conversation with id, or -1.
func IndexConversation(convs []Conversation, id string) int {
	for i, c := range convs {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// PositionIndex maps each message id to its last position in msgs.
func PositionIndex(msgs []Message) map[string]int {
	idx := make(map[string]int, len(msgs))
	for i, m := range msgs {
		idx[m.ID] = i
	}
	return idx
}
