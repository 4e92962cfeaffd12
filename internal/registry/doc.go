// Package registry implements the conversation registry reducer.
//
// Reduce maps (conversations, action) to a new conversation list. It is
// pure: it reads nothing but its inputs and never mutates an element of the
// input slice.
//
// Actions:
//
//   - Added: prepend a new conversation and make it the only active one
//   - Deleted: remove a conversation by id
//   - Updated: shallow-merge a Patch into the matching conversation
//   - Selected: replace the matching conversation wholesale and activate it
//   - MoveToFirst: move a conversation to position 0, flags untouched
//   - ReplaceAll: replace the whole list (initial load)
//
// Unknown actions are logged and leave the list unchanged.
//
// Recency ordering is caller policy, not a reducer side effect: after the
// user sends a message in a conversation that is not at position 0, the
// caller issues MoveToFirst itself.
package registry
