// Package prometheus exposes session controller metrics through
// client_golang.
//
// [Exporter] is a [prometheus.Collector] that reads
// [quizdom.Controller.MetricsSnapshot] on every scrape. Counter names are
// prefixed quizdom_*_total; the single histogram is
// quizdom_gateway_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry. [Exporter.Handler]
//     serves a private registry; callers wanting the default one register the
//     collector themselves.
//   - Mutate controller state.
package prometheus
