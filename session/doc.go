// Package session persists the controller's session cache: the serialized
// user and active view, and the bearer token, over a [storage.Store].
//
// # Binary encoding
//
// Records are stored in a compact versioned binary format (format version byte,
// uint16 length-prefixed strings, one flags byte, role codes, big-endian
// timestamp), wrapped in unpadded base64url so any string-valued store can hold
// them. Unknown versions and truncated payloads fail to decode.
//
// # Architecture boundaries
//
// This package owns the [Record] model, its codec, and the [Store] key layout.
// It does NOT decide whether a stored view is compatible with a permission or
// when to persist; those decisions belong to the controller.
//
// # What this package must NOT do
//
//   - Import quizdom (no upward imports).
//   - Treat a persisted record as authoritative after boot.
package session
