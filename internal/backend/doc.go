// Package backend is a development chat server: the REST endpoints the api
// package calls plus the /api/chat websocket, backed by a store.Store.
//
// It stands in for the real assistant. Each user text frame is persisted and
// answered with a tool call made of an action and its observation, plus a
// short echo reply streamed as several text frames that share one id. The
// observation normally arrives after the reply's first chunks, and with
// Options.ObservationFirst it arrives before its action, so clients see the
// orderings a real agent produces.
//
// Replies are persisted as action, observation, then text, so a history
// reload merges to the same shape as the live stream.
package backend
