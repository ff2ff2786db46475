package otel

import (
	"context"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	quizdom "github.com/paifgx/quizdom-sub000"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot quizdom.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() quizdom.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := quizdom.MetricsSnapshot{
		Counters:      make(map[quizdom.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms:    make(map[quizdom.MetricID][]uint64, len(f.snapshot.Histograms)),
		HistogramSums: make(map[quizdom.MetricID]time.Duration, len(f.snapshot.HistogramSums)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		next := make([]uint64, len(buckets))
		copy(next, buckets)
		out.Histograms[k] = next
	}
	for k, v := range f.snapshot.HistogramSums {
		out.HistogramSums[k] = v
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newReader() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func findInt64(rm metricdata.ResourceMetrics, name string) (int64, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				if len(data.DataPoints) > 0 {
					return data.DataPoints[0].Value, true
				}
			case metricdata.Gauge[int64]:
				if len(data.DataPoints) > 0 {
					return data.DataPoints[0].Value, true
				}
			}
		}
	}
	return 0, false
}

func findFloat64(rm metricdata.ResourceMetrics, name string) (float64, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if data, ok := m.Data.(metricdata.Gauge[float64]); ok && len(data.DataPoints) > 0 {
				return data.DataPoints[0].Value, true
			}
		}
	}
	return 0, false
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader, provider := newReader()
	meter := provider.Meter("quizdom-test")

	src := &fakeSource{
		snapshot: quizdom.MetricsSnapshot{
			Counters: map[quizdom.MetricID]uint64{
				quizdom.MetricLoginSuccess: 3,
			},
			Histograms: map[quizdom.MetricID][]uint64{
				quizdom.MetricGatewayLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
			HistogramSums: map[quizdom.MetricID]time.Duration{
				quizdom.MetricGatewayLatency: 2 * time.Second,
			},
		},
		dropped: 1,
	}

	exp, err := NewExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if v, ok := findInt64(rm, "quizdom_login_success_total"); !ok || v != 3 {
		t.Fatalf("expected login success 3, got %d (found=%v)", v, ok)
	}
	if v, ok := findInt64(rm, "quizdom_gateway_latency_seconds_bucket_le_0_1"); !ok || v != 3 {
		t.Fatalf("expected cumulative bucket 3, got %d (found=%v)", v, ok)
	}
	if v, ok := findInt64(rm, "quizdom_gateway_latency_seconds_count"); !ok || v != 8 {
		t.Fatalf("expected count 8, got %d (found=%v)", v, ok)
	}
	if v, ok := findFloat64(rm, "quizdom_gateway_latency_seconds_sum"); !ok || v != 2 {
		t.Fatalf("expected sum 2, got %v (found=%v)", v, ok)
	}
	if v, ok := findInt64(rm, "quizdom_audit_dropped_total"); !ok || v != 1 {
		t.Fatalf("expected audit dropped 1, got %d (found=%v)", v, ok)
	}
}

func TestExporterRejectsNilArguments(t *testing.T) {
	_, provider := newReader()
	meter := provider.Meter("quizdom-test")

	if _, err := NewExporterFromSource(meter, nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewExporterFromSource(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
	if _, err := NewExporter(meter, nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newReader()
	meter := provider.Meter("quizdom-test")

	src := &fakeSource{
		snapshot: quizdom.MetricsSnapshot{
			Counters: map[quizdom.MetricID]uint64{
				quizdom.MetricLoginSuccess: 1,
			},
			Histograms: map[quizdom.MetricID][]uint64{
				quizdom.MetricGatewayLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[quizdom.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}

type sessionFake struct {
	fakeSource
	snap    quizdom.Snapshot
	running bool
}

func (s *sessionFake) Snapshot() quizdom.Snapshot { return s.snap }
func (s *sessionFake) MonitorRunning() bool       { return s.running }

func TestExporterSessionGauges(t *testing.T) {
	tests := []struct {
		name      string
		snap      quizdom.Snapshot
		running   bool
		wantAuth  int64
		wantAdmin int64
		wantMon   int64
	}{
		{name: "signed out", snap: quizdom.Snapshot{ActiveRole: quizdom.RolePlayer}},
		{
			name:     "player",
			snap:     quizdom.Snapshot{User: &quizdom.User{ID: "u-1", Permission: quizdom.RolePlayer}, ActiveRole: quizdom.RolePlayer},
			running:  true,
			wantAuth: 1, wantMon: 1,
		},
		{
			name:     "admin viewing console",
			snap:     quizdom.Snapshot{User: &quizdom.User{ID: "u-2", Permission: quizdom.RoleAdmin}, ActiveRole: quizdom.RoleAdmin},
			running:  true,
			wantAuth: 1, wantAdmin: 1, wantMon: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader, provider := newReader()
			src := &sessionFake{snap: tt.snap, running: tt.running}
			exp, err := NewExporterFromSource(provider.Meter("quizdom-test"), src)
			if err != nil {
				t.Fatalf("NewExporterFromSource failed: %v", err)
			}
			defer exp.Close()

			var rm metricdata.ResourceMetrics
			if err := reader.Collect(context.Background(), &rm); err != nil {
				t.Fatalf("Collect failed: %v", err)
			}
			for name, want := range map[string]int64{
				"quizdom_session_authenticated":   tt.wantAuth,
				"quizdom_session_admin_view":      tt.wantAdmin,
				"quizdom_session_monitor_running": tt.wantMon,
			} {
				if v, ok := findInt64(rm, name); !ok || v != want {
					t.Fatalf("%s: expected %d, got %d (found=%v)", name, want, v, ok)
				}
			}
		})
	}
}

func TestExporterWithoutSessionSourceSkipsGauges(t *testing.T) {
	reader, provider := newReader()
	exp, err := NewExporterFromSource(provider.Meter("quizdom-test"), &fakeSource{})
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	defer exp.Close()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if _, ok := findInt64(rm, "quizdom_session_authenticated"); ok {
		t.Fatal("expected no session gauges for a plain metrics source")
	}
}
