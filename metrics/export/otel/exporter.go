package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	quizdom "github.com/paifgx/quizdom-sub000"
	"github.com/paifgx/quizdom-sub000/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() quizdom.MetricsSnapshot
	AuditDropped() uint64
}

// sessionSource is implemented by *quizdom.Controller. Sources that also
// satisfy it get the session state gauges.
type sessionSource interface {
	Snapshot() quizdom.Snapshot
	MonitorRunning() bool
}

type latencyInstruments struct {
	id      quizdom.MetricID
	buckets [quizdom.HistogramBucketCount]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
	sum     metric.Float64ObservableGauge
}

type sessionInstruments struct {
	source        sessionSource
	authenticated metric.Int64ObservableGauge
	adminView     metric.Int64ObservableGauge
	monitoring    metric.Int64ObservableGauge
}

// Exporter keeps the callback registration alive until Close.
type Exporter struct {
	source       metricsSource
	registration metric.Registration

	counters     map[quizdom.MetricID]metric.Int64ObservableCounter
	latency      []latencyInstruments
	auditDropped metric.Int64ObservableCounter
	session      *sessionInstruments
}

// NewExporter registers instruments on meter that observe c.
func NewExporter(meter metric.Meter, c *quizdom.Controller) (*Exporter, error) {
	if c == nil {
		return nil, ErrNilSource
	}
	return NewExporterFromSource(meter, c)
}

// NewExporterFromSource registers instruments on meter that observe source.
func NewExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{
		source:   source,
		counters: make(map[quizdom.MetricID]metric.Int64ObservableCounter, len(internaldefs.CounterDefs)),
	}

	var observables []metric.Observable
	steps := []func(metric.Meter) ([]metric.Observable, error){
		e.registerCounters,
		e.registerLatency,
		e.registerAudit,
	}
	if ss, ok := source.(sessionSource); ok {
		e.session = &sessionInstruments{source: ss}
		steps = append(steps, e.registerSession)
	}
	for _, step := range steps {
		obs, err := step(meter)
		if err != nil {
			return nil, err
		}
		observables = append(observables, obs...)
	}

	reg, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = reg
	return e, nil
}

func (e *Exporter) registerCounters(meter metric.Meter) ([]metric.Observable, error) {
	out := make([]metric.Observable, 0, len(internaldefs.CounterDefs))
	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", def.Name, err)
		}
		e.counters[def.ID] = ins
		out = append(out, ins)
	}
	return out, nil
}

// registerLatency exposes each histogram as cumulative bucket gauges plus
// count and sum, mirroring the Prometheus histogram layout.
func (e *Exporter) registerLatency(meter metric.Meter) ([]metric.Observable, error) {
	var out []metric.Observable
	for _, def := range internaldefs.HistogramDefs {
		li := latencyInstruments{id: def.ID}
		for i, suffix := range internaldefs.HistogramBoundSuffix {
			name := def.Name + "_bucket_le_" + suffix
			ins, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative gateway call count per latency bucket."))
			if err != nil {
				return nil, fmt.Errorf("create bucket gauge %s: %w", name, err)
			}
			li.buckets[i] = ins
			out = append(out, ins)
		}

		count, err := meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription("Gateway calls observed."))
		if err != nil {
			return nil, fmt.Errorf("create count gauge %s: %w", def.Name, err)
		}
		sum, err := meter.Float64ObservableGauge(def.Name+"_sum",
			metric.WithDescription("Total gateway call time."),
			metric.WithUnit("s"),
		)
		if err != nil {
			return nil, fmt.Errorf("create sum gauge %s: %w", def.Name, err)
		}
		li.count, li.sum = count, sum
		out = append(out, count, sum)
		e.latency = append(e.latency, li)
	}
	return out, nil
}

func (e *Exporter) registerAudit(meter metric.Meter) ([]metric.Observable, error) {
	ins, err := meter.Int64ObservableCounter(
		"quizdom_audit_dropped_total",
		metric.WithDescription("Audit events dropped under dispatcher backpressure."),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	e.auditDropped = ins
	return []metric.Observable{ins}, nil
}

func (e *Exporter) registerSession(meter metric.Meter) ([]metric.Observable, error) {
	gauges := []struct {
		name string
		help string
		dst  *metric.Int64ObservableGauge
	}{
		{"quizdom_session_authenticated", "1 while a user is signed in.", &e.session.authenticated},
		{"quizdom_session_admin_view", "1 while the admin view is active.", &e.session.adminView},
		{"quizdom_session_monitor_running", "1 while background revalidation runs.", &e.session.monitoring},
	}
	out := make([]metric.Observable, 0, len(gauges))
	for _, g := range gauges {
		ins, err := meter.Int64ObservableGauge(g.name, metric.WithDescription(g.help))
		if err != nil {
			return nil, fmt.Errorf("create session gauge %s: %w", g.name, err)
		}
		*g.dst = ins
		out = append(out, ins)
	}
	return out, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for id, ins := range e.counters {
		o.ObserveInt64(ins, int64(snap.Counters[id]))
	}
	for _, li := range e.latency {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[li.id]))
		for i, v := range cumulative {
			o.ObserveInt64(li.buckets[i], int64(v))
		}
		o.ObserveInt64(li.count, int64(cumulative[len(cumulative)-1]))
		o.ObserveFloat64(li.sum, snap.HistogramSums[li.id].Seconds())
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))

	if s := e.session; s != nil {
		state := s.source.Snapshot()
		o.ObserveInt64(s.authenticated, boolGauge(state.IsAuthenticated()))
		o.ObserveInt64(s.adminView, boolGauge(state.IsViewingAsAdmin()))
		o.ObserveInt64(s.monitoring, boolGauge(s.source.MonitorRunning()))
	}
	return nil
}

func boolGauge(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// Close unregisters the callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
