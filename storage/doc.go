// Package storage defines the key/value persistence port the session controller
// writes through, together with the change-notification port used for cross-tab
// broadcast.
//
// # Semantics
//
// Values are whole strings; writes overwrite and the last write wins. A
// [Watcher] observes writes made by other store instances sharing the same
// backing storage and never observes its own writes, matching how browser
// storage events behave.
//
// # Adapters
//
//   - [MemoryBackend] / [MemoryStore]: in-process shared map, one store per tab.
//   - [RedisStore]: Redis keys plus a pub/sub channel carrying change events.
//
// # What this package must NOT do
//
//   - Interpret values (records, tokens and markers are opaque here).
//   - Import the root package or any session logic.
package storage
