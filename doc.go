// Package quizdom provides the session and role-authorization controller for
// the quizdom client: it establishes, validates, monitors and tears down the
// authenticated session and arbitrates between the player and admin views of a
// single identity.
//
// The [Controller] is built once per running client through [Builder.Build] and
// handed to the view layer by reference. Views read state through
// [Controller.Snapshot] or [Controller.Subscribe] and mutate it only through the
// controller's operations.
//
// # Architecture boundaries
//
// quizdom is the public surface. It exposes [Controller], [Builder], [Config],
// the [CredentialGateway] and [Navigator] ports, and value types (User,
// Snapshot, MetricsSnapshot, etc.). Persistence lives behind the storage port,
// periodic revalidation in package monitor, cross-tab propagation in package
// crosstab, and the record codec in package session.
//
// # What this package must NOT do
//
//   - Render anything or depend on a UI framework.
//   - Read persisted state after boot (storage is a cache, the controller is
//     the source of truth).
//   - Surface background revalidation failures to callers; those tear the
//     session down and redirect instead.
//   - Retry failed gateway calls.
package quizdom
