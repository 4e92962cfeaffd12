// Package dedupe tracks which transport frames have already been delivered.
//
// The session router uses a Tracker to tell the first delivery of a message
// id (which becomes an add) from later frames carrying the same id (which are
// streamed chunks and become appends). Keys are scoped per conversation so a
// deleted conversation can be forgotten in one call.
//
// Entries expire after a TTL and the tracker holds at most maxSize keys; the
// oldest key is evicted first. A background goroutine prunes expired keys
// until Close is called.
package dedupe
