// Package session is the glue between the server and the two reducers.
//
// A Session owns the conversation list (reduced by package registry), the
// id of the active conversation and that conversation's message sequence
// (reduced by package reconciler). It:
//
//   - routes inbound transport frames: the first frame of a message id
//     becomes an Add, later frames with the same id become Appends,
//     observations become ObservationReceived, and info frames update the
//     conversation list
//   - mirrors remote conversation calls into registry actions only after
//     they succeed; the one optimistic change is the Added of a locally
//     created conversation, which is rolled back if the create fails
//   - runs the two-step send protocol: the message is sent, then added,
//     then its conversation is moved to the front if it was not already
//   - recreates a placeholder conversation when a delete empties the list
//   - replays an initial message once the new conversation's history has
//     loaded
//
// Every state change is published as a Change to subscribers, who read the
// new state through the snapshot accessors.
package session
