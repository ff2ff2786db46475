// Package otel binds session controller metrics to OpenTelemetry
// instruments.
//
// [NewExporter] registers an Int64ObservableCounter per session counter and,
// for the gateway latency histogram, one Int64ObservableGauge per cumulative
// bucket plus count and sum gauges. When the source is a controller it also
// reports whether a user is signed in, whether the admin view is active and
// whether the session monitor runs. A single callback reads everything on each
// collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate controller state.
package otel
