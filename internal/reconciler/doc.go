// Package reconciler merges asynchronous message events into one ordered,
// stable message sequence for a conversation.
//
// # Overview
//
// Reduce maps (Sequence, Event) to a new Sequence. It is pure and runs to
// completion; the input Sequence is never modified. Events:
//
//   - Add: append a message unless its id is already present (idempotent)
//   - Append: grow the text of the entry with the given id by a chunk
//   - ObservationReceived: fold an observation into the action it answers
//   - Feedback: set the feedback of the entry at an index
//   - ReplaceAll: rebuild the sequence from a persisted history
//
// # Correlation
//
// The backend emits a tool call as an action (id = A) and, later, an
// observation (parentId = A). They are shown as one entry: the action, with
// the observation content stored in Extra["observation"]. A later
// observation for the same action replaces that field.
//
// When the observation arrives first it is kept as a standalone entry and
// remembered by its parentId. If the action is then added, it takes over the
// standalone entry's position and absorbs the observation, so the live path
// ends up with the same single entry as a history reload.
//
// # Indexing
//
// A Sequence keeps a map from message id to position next to the entries, so
// lookups by id do not scan the sequence.
package reconciler
