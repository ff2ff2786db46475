package monitor

import "sync"

// ActivityKind names a user interaction event.
type ActivityKind string

const (
	ActivityPointerDown ActivityKind = "pointerdown"
	ActivityPointerMove ActivityKind = "pointermove"
	ActivityKeyPress    ActivityKind = "keypress"
	ActivityScroll      ActivityKind = "scroll"
	ActivityTouchStart  ActivityKind = "touchstart"
)

// TrackedKinds returns the interaction kinds that count as activity.
func TrackedKinds() []ActivityKind {
	return []ActivityKind{
		ActivityPointerDown,
		ActivityPointerMove,
		ActivityKeyPress,
		ActivityScroll,
		ActivityTouchStart,
	}
}

// Tracked reports whether k updates the activity timestamp.
func (k ActivityKind) Tracked() bool {
	switch k {
	case ActivityPointerDown, ActivityPointerMove, ActivityKeyPress, ActivityScroll, ActivityTouchStart:
		return true
	}
	return false
}

// ActivitySource delivers user interaction events. The returned stop function
// detaches fn and is safe to call more than once.
type ActivitySource interface {
	Listen(fn func(ActivityKind)) (stop func())
}

// ActivityFeed is an in-memory [ActivitySource] fed by [ActivityFeed.Emit].
// Hosts without a DOM push their own input events through it.
type ActivityFeed struct {
	mu        sync.RWMutex
	listeners map[uint64]func(ActivityKind)
	nextID    uint64
}

// NewActivityFeed returns a feed with no listeners.
func NewActivityFeed() *ActivityFeed {
	return &ActivityFeed{
		listeners: make(map[uint64]func(ActivityKind)),
	}
}

// Listen registers fn for every emitted event.
func (f *ActivityFeed) Listen(fn func(ActivityKind)) func() {
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.listeners[id] = fn
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.listeners, id)
			f.mu.Unlock()
		})
	}
}

// Emit delivers kind to every listener. Untracked kinds are delivered too;
// filtering is the listener's job.
func (f *ActivityFeed) Emit(kind ActivityKind) {
	f.mu.RLock()
	targets := make([]func(ActivityKind), 0, len(f.listeners))
	for _, fn := range f.listeners {
		targets = append(targets, fn)
	}
	f.mu.RUnlock()

	for _, fn := range targets {
		fn(kind)
	}
}

// Listeners returns the number of attached listeners.
func (f *ActivityFeed) Listeners() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.listeners)
}
