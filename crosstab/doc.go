// Package crosstab propagates session-ending events between browser tabs (or
// any hosts) sharing the same persisted storage.
//
// The tab that deletes an account writes a marker key holding a fresh
// millisecond timestamp. Every other tab observes the write through a
// [storage.Watcher] and tears its own session down. The writing tab never
// sees its own marker.
//
// # What this package must NOT do
//
//   - Touch session state directly; teardown is delegated to handlers.
//   - React to marker removals or to writes from its own origin.
package crosstab
