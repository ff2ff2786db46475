package quizdom

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a controller counter or histogram.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricRegisterSuccess
	MetricRegisterFailure
	MetricLogout
	MetricSessionRestored
	MetricSessionRestoreFailure
	MetricRecordCorrupt
	MetricRevalidateSuccess
	MetricRevalidateFailure
	MetricMonitorTickSkipped
	MetricProfileUpdateSuccess
	MetricProfileUpdateFailure
	MetricAccountDeleted
	MetricAccountDeleteFailure
	MetricCrossTabTeardown
	MetricViewSwitch
	MetricViewSwitchDenied
	MetricStorageFailure
	// MetricGatewayLatency is the only histogram; it times every gateway call.
	MetricGatewayLatency
	metricIDCount
)

var metricNames = [metricIDCount]string{
	MetricLoginSuccess:          "login_success",
	MetricLoginFailure:          "login_failure",
	MetricRegisterSuccess:       "register_success",
	MetricRegisterFailure:       "register_failure",
	MetricLogout:                "logout",
	MetricSessionRestored:       "session_restored",
	MetricSessionRestoreFailure: "session_restore_failure",
	MetricRecordCorrupt:         "record_corrupt",
	MetricRevalidateSuccess:     "revalidate_success",
	MetricRevalidateFailure:     "revalidate_failure",
	MetricMonitorTickSkipped:    "monitor_tick_skipped",
	MetricProfileUpdateSuccess:  "profile_update_success",
	MetricProfileUpdateFailure:  "profile_update_failure",
	MetricAccountDeleted:        "account_deleted",
	MetricAccountDeleteFailure:  "account_delete_failure",
	MetricCrossTabTeardown:      "cross_tab_teardown",
	MetricViewSwitch:            "view_switch",
	MetricViewSwitchDenied:      "view_switch_denied",
	MetricStorageFailure:        "storage_failure",
	MetricGatewayLatency:        "gateway_latency",
}

// String returns the snake_case metric name.
func (id MetricID) String() string {
	if id >= metricIDCount {
		return "unknown"
	}
	return metricNames[id]
}

const (
	// HistogramBucketCount is the number of latency buckets, the last being +Inf.
	HistogramBucketCount = 8
	cacheLineSize        = 64
)

type metricHistogram struct {
	buckets  [HistogramBucketCount]uint64
	sumNanos uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free in-process counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all metrics. Histogram buckets
// are non-cumulative.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
	// HistogramSums holds the total observed duration per histogram.
	HistogramSums map[MetricID]time.Duration
}

// NewMetrics creates a metrics set honouring cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in histogram id.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricGatewayLatency {
		return
	}
	if d < 0 {
		d = 0
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
	atomic.AddUint64(&m.histograms[id].sumNanos, uint64(d))
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every metric. Disabled metrics yield empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:      map[MetricID]uint64{},
		Histograms:    map[MetricID][]uint64{},
		HistogramSums: map[MetricID]time.Duration{},
	}
	if m == nil || !m.enabled {
		return s
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricGatewayLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		h := &m.histograms[MetricGatewayLatency]
		buckets := make([]uint64, HistogramBucketCount)
		for i := range buckets {
			buckets[i] = atomic.LoadUint64(&h.buckets[i])
		}
		s.Histograms[MetricGatewayLatency] = buckets
		s.HistogramSums[MetricGatewayLatency] = time.Duration(atomic.LoadUint64(&h.sumNanos))
	}

	return s
}

// HistogramUpperBounds returns the bucket upper bounds in seconds, excluding
// the final +Inf bucket.
func HistogramUpperBounds() []float64 {
	return []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 25:
		return 0
	case ms <= 50:
		return 1
	case ms <= 100:
		return 2
	case ms <= 250:
		return 3
	case ms <= 500:
		return 4
	case ms <= 1000:
		return 5
	case ms <= 2500:
		return 6
	default:
		return 7
	}
}
