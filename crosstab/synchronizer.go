package crosstab

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/paifgx/quizdom-sub000/storage"
)

// Config names the marker keys and this tab's origin.
type Config struct {
	DeletedMarkerKey string
	LogoutMarkerKey  string
	// Origin, when set, is used to drop own-origin events that a backend
	// might still deliver.
	Origin string
}

// Handlers are invoked on the watcher's goroutine. Either may be nil.
type Handlers struct {
	OnAccountDeleted func(ev storage.ChangeEvent)
	OnLoggedOut      func(ev storage.ChangeEvent)
}

// Synchronizer translates marker writes into handler calls.
type Synchronizer struct {
	watcher  storage.Watcher
	cfg      Config
	handlers Handlers
	logger   *zap.Logger

	mu   sync.Mutex
	stop func()
}

// New creates a stopped synchronizer.
func New(w storage.Watcher, cfg Config, h Handlers, logger *zap.Logger) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{
		watcher:  w,
		cfg:      cfg,
		handlers: h,
		logger:   logger.Named("crosstab"),
	}
}

// Start subscribes to storage changes. Starting twice does nothing.
func (s *Synchronizer) Start(ctx context.Context) error {
	if s.watcher == nil {
		return errors.New("crosstab: no watcher configured")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return nil
	}

	stop, err := s.watcher.Watch(ctx, s.handle)
	if err != nil {
		return err
	}
	s.stop = stop
	s.logger.Debug("crosstab listening",
		zap.String("deleted_marker", s.cfg.DeletedMarkerKey),
		zap.String("logout_marker", s.cfg.LogoutMarkerKey),
	)
	return nil
}

// Stop unsubscribes. It is safe to call on a stopped synchronizer.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	stop := s.stop
	s.stop = nil
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// Running reports whether the synchronizer is subscribed.
func (s *Synchronizer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil
}

func (s *Synchronizer) handle(ev storage.ChangeEvent) {
	if ev.Removed() {
		return
	}
	if s.cfg.Origin != "" && ev.Origin == s.cfg.Origin {
		return
	}

	switch ev.Key {
	case "":
		return
	case s.cfg.DeletedMarkerKey:
		s.logger.Info("account deleted in another tab", zap.String("origin", ev.Origin))
		if s.handlers.OnAccountDeleted != nil {
			s.handlers.OnAccountDeleted(ev)
		}
	case s.cfg.LogoutMarkerKey:
		s.logger.Info("logged out in another tab", zap.String("origin", ev.Origin))
		if s.handlers.OnLoggedOut != nil {
			s.handlers.OnLoggedOut(ev)
		}
	}
}

// Stamp formats t as a marker value. Millisecond resolution keeps repeated
// broadcasts distinct so every one produces a change event.
func Stamp(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
