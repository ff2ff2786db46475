// Package monitor revalidates an established session in the background.
//
// A [Monitor] ticks on a fixed interval and asks its [Policy] whether the
// session should be revalidated, based on how long ago the user last
// interacted with the application.
//
// # Dual-threshold policy
//
// A tick revalidates when the user has been idle for longer than the idle
// threshold, so a returning user does not keep acting on a dead session. It
// also revalidates when the user was active within the active threshold, so
// revocation is noticed while the user is working. Between the two thresholds
// the tick is skipped.
//
// # Architecture boundaries
//
// The monitor does not know what revalidation means. It calls the injected
// revalidation function and logs failures; teardown and navigation belong to
// the session controller.
//
// # What this package must NOT do
//
//   - Record activity kinds outside the tracked set.
//   - Act on a tick that fires after Stop.
package monitor
