package audit

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Config controls relay buffering.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull discards events when the buffer is full instead of blocking
	// the emitting goroutine.
	DropIfFull bool
}

// Dispatcher relays events to a sink on its own goroutine. A nil *Dispatcher
// is valid and drops everything.
type Dispatcher struct {
	sink       Sink
	logger     *zap.Logger
	dropIfFull bool

	// mu guards queue against sends after close; emitters hold it shared.
	mu     sync.RWMutex
	closed bool
	queue  chan Event

	relayDone chan struct{}
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// NewDispatcher starts the relay goroutine. It returns nil when auditing is
// disabled.
func NewDispatcher(cfg Config, sink Sink, logger *zap.Logger) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Dispatcher{
		sink:       sink,
		logger:     logger.Named("audit"),
		dropIfFull: cfg.DropIfFull,
		queue:      make(chan Event, cfg.BufferSize),
		relayDone:  make(chan struct{}),
	}
	go d.relay()
	return d
}

func (d *Dispatcher) relay() {
	defer close(d.relayDone)
	for ev := range d.queue {
		d.deliver(ev)
	}
}

// deliver isolates the relay from a misbehaving sink.
func (d *Dispatcher) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.failed.Add(1)
			d.logger.Error("audit sink panicked",
				zap.String("event_type", ev.EventType),
				zap.Any("panic", r),
			)
		}
	}()
	d.sink.Emit(context.Background(), ev)
}

// Emit queues ev for delivery. With DropIfFull a full buffer drops the event;
// otherwise Emit waits for room or for ctx to end. A cancelled ctx only drops
// the event when the buffer is full.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if d.dropIfFull {
		select {
		case d.queue <- ev:
		default:
			if d.dropped.Add(1) == 1 {
				d.logger.Warn("audit buffer full, dropping events",
					zap.String("event_type", ev.EventType),
				)
			}
		}
		return
	}

	select {
	case d.queue <- ev:
		return
	default:
	}
	select {
	case d.queue <- ev:
	case <-ctx.Done():
		d.dropped.Add(1)
	}
}

// Close stops accepting events and waits until every queued event has reached
// the sink. Safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.relayDone

	if n := d.dropped.Load(); n > 0 {
		d.logger.Info("audit relay closed with drops", zap.Uint64("dropped", n))
	}
}

// Dropped returns the number of events discarded because the buffer was full
// or the emitter gave up.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// SinkFailures returns the number of events whose delivery panicked.
func (d *Dispatcher) SinkFailures() uint64 {
	if d == nil {
		return 0
	}
	return d.failed.Load()
}
