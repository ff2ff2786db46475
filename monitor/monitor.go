package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// RevalidateFunc confirms the session with the identity service. A returned
// error is logged; the function itself owns teardown on failure.
type RevalidateFunc func(ctx context.Context) error

// Config tunes the tick loop.
type Config struct {
	Interval time.Duration
	Policy   Policy
}

// DefaultConfig returns a five minute interval with [DefaultPolicy].
func DefaultConfig() Config {
	return Config{
		Interval: 5 * time.Minute,
		Policy:   DefaultPolicy(),
	}
}

// Deps are the collaborators of a [Monitor]. Revalidate is required.
type Deps struct {
	Clock      clock.Clock
	Logger     *zap.Logger
	Source     ActivitySource
	Revalidate RevalidateFunc
	// OnDecision, when set, observes every tick decision.
	OnDecision func(Decision)
}

type run struct {
	stop       chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	ticker     *clock.Ticker
	stopListen func()
}

// Monitor drives periodic session revalidation.
type Monitor struct {
	cfg        Config
	clock      clock.Clock
	logger     *zap.Logger
	source     ActivitySource
	revalidate RevalidateFunc
	onDecision func(Decision)

	lastActivity atomic.Int64

	mu  sync.Mutex
	cur *run
}

// New creates a stopped monitor.
func New(cfg Config, deps Deps) (*Monitor, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("monitor interval must be > 0")
	}
	if cfg.Policy.IdleThreshold <= 0 || cfg.Policy.ActiveThreshold <= 0 {
		return nil, errors.New("monitor thresholds must be > 0")
	}
	if deps.Revalidate == nil {
		return nil, errors.New("monitor requires a revalidate function")
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	m := &Monitor{
		cfg:        cfg,
		clock:      deps.Clock,
		logger:     deps.Logger.Named("monitor"),
		source:     deps.Source,
		revalidate: deps.Revalidate,
		onDecision: deps.OnDecision,
	}
	m.lastActivity.Store(m.clock.Now().UnixNano())
	return m, nil
}

// Start begins ticking. The activity timestamp is reset to now, so the first
// tick after a fresh login counts as active use. Calling Start on a running
// monitor does nothing.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cur != nil {
		return
	}

	m.lastActivity.Store(m.clock.Now().UnixNano())

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		stop:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		ticker: m.clock.Ticker(m.cfg.Interval),
	}
	if m.source != nil {
		r.stopListen = m.source.Listen(func(kind ActivityKind) {
			m.RecordActivity(kind)
		})
	}
	m.cur = r

	go m.loop(r)

	m.logger.Debug("monitor started", zap.Duration("interval", m.cfg.Interval))
}

// Stop halts ticking, detaches the activity listener and cancels any
// in-flight revalidation. It does not wait for the loop goroutine, so it is
// safe to call from inside a revalidation. Calling Stop twice does nothing.
func (m *Monitor) Stop() {
	m.mu.Lock()
	r := m.cur
	m.cur = nil
	m.mu.Unlock()

	if r == nil {
		return
	}

	close(r.stop)
	r.cancel()
	r.ticker.Stop()
	if r.stopListen != nil {
		r.stopListen()
	}

	m.logger.Debug("monitor stopped")
}

// Running reports whether the monitor is ticking.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur != nil
}

// RecordActivity moves the activity timestamp to now when kind is tracked.
// It reports whether the timestamp changed.
func (m *Monitor) RecordActivity(kind ActivityKind) bool {
	if !kind.Tracked() {
		return false
	}
	m.lastActivity.Store(m.clock.Now().UnixNano())
	return true
}

// LastActivity returns the time of the last tracked interaction.
func (m *Monitor) LastActivity() time.Time {
	return time.Unix(0, m.lastActivity.Load())
}

// Idle returns the time elapsed since the last tracked interaction.
func (m *Monitor) Idle() time.Duration {
	return m.clock.Now().Sub(m.LastActivity())
}

// Tick evaluates one tick synchronously and returns the decision. When the
// decision revalidates, the revalidation function runs with ctx before Tick
// returns.
func (m *Monitor) Tick(ctx context.Context) Decision {
	elapsed := m.Idle()
	d := m.cfg.Policy.Decide(elapsed)
	if m.onDecision != nil {
		m.onDecision(d)
	}

	if !d.Revalidates() {
		m.logger.Debug("monitor tick skipped", zap.Duration("idle", elapsed))
		return d
	}

	m.logger.Debug("monitor revalidating",
		zap.Stringer("decision", d),
		zap.Duration("idle", elapsed),
	)
	if err := m.revalidate(ctx); err != nil {
		if ctx.Err() != nil {
			return d
		}
		m.logger.Info("background revalidation failed",
			zap.Stringer("decision", d),
			zap.Error(err),
		)
	}
	return d
}

func (m *Monitor) loop(r *run) {
	for {
		select {
		case <-r.stop:
			return
		case <-r.ticker.C:
			if !m.current(r) {
				return
			}
			m.Tick(r.ctx)
		}
	}
}

func (m *Monitor) current(r *run) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur == r && r.ctx.Err() == nil
}
