package quizdom

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/paifgx/quizdom-sub000/crosstab"
	internalaudit "github.com/paifgx/quizdom-sub000/internal/audit"
	"github.com/paifgx/quizdom-sub000/monitor"
	"github.com/paifgx/quizdom-sub000/session"
	"github.com/paifgx/quizdom-sub000/storage"
)

// Controller is the single authority over the client session. It owns the
// signed-in user and the active view, persists both through the session
// store, and drives the background monitor and cross-tab synchronizer.
//
// Controller is safe for concurrent use. Mutations are applied in the order
// their gateway calls resolve; concurrent logins never leave a torn state,
// the last one to resolve wins.
type Controller struct {
	cfg       Config
	gateway   CredentialGateway
	shared    storage.SharedStore
	store     *session.Store
	navigator Navigator
	clock     clock.Clock
	logger    *zap.Logger
	audit     *internalaudit.Dispatcher
	metrics   *Metrics
	monitor   *monitor.Monitor
	sync      *crosstab.Synchronizer

	mu          sync.RWMutex
	user        *User
	token       string
	activeRole  Role
	loading     bool
	epoch       uint64 // bumped when a session is established or torn down
	version     uint64 // bumped on every state change
	initialized bool
	closed      bool

	// syncMu orders synchronizer start against Close.
	syncMu sync.Mutex

	// persistMu orders storage writes so the newest state is the one left behind.
	persistMu sync.Mutex

	subMu   sync.Mutex
	subs    map[uint64]func(Snapshot)
	nextSub uint64
}

/*
====================================
READ SIDE
====================================
*/

// Snapshot returns a copy of the current session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		User:       c.user.clone(),
		ActiveRole: c.activeRole,
		Loading:    c.loading,
	}
}

// User returns a copy of the signed-in user, or nil.
func (c *Controller) User() *User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user.clone()
}

// IsAuthenticated reports whether a user is signed in.
func (c *Controller) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user != nil
}

// IsAdmin reports whether the signed-in user holds admin permission.
func (c *Controller) IsAdmin() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user.IsAdmin()
}

// ActiveRole returns the view currently rendered.
func (c *Controller) ActiveRole() Role {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.activeRole
}

// IsViewingAsAdmin reports whether the admin view is active.
func (c *Controller) IsViewingAsAdmin() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.activeRole == RoleAdmin
}

// Loading reports whether boot restoration is still running.
func (c *Controller) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

// Origin identifies this controller's tab in shared storage.
func (c *Controller) Origin() string {
	return c.shared.Origin()
}

/*
====================================
OBSERVERS
====================================
*/

// Subscribe registers fn to receive a snapshot after every state change.
// fn runs on the goroutine that caused the change and must not block. The
// returned function unsubscribes and may be called more than once.
func (c *Controller) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	c.subMu.Lock()
	c.nextSub++
	id := c.nextSub
	c.subs[id] = fn
	c.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, id)
			c.subMu.Unlock()
		})
	}
}

func (c *Controller) publish(s Snapshot) {
	c.subMu.Lock()
	targets := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		targets = append(targets, fn)
	}
	c.subMu.Unlock()

	for _, fn := range targets {
		fn(s)
	}
}

/*
====================================
LIFECYCLE
====================================
*/

// Initialize runs the boot protocol once: it restores a stored session by
// asking the gateway who the stored token belongs to. A token the gateway
// rejects is torn down without navigation. Loading stays true until
// Initialize returns.
func (c *Controller) Initialize(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrControllerClosed
	case c.initialized:
		c.mu.Unlock()
		return ErrAlreadyInitialized
	}
	c.initialized = true
	epoch := c.epoch
	c.mu.Unlock()

	defer c.finishLoading()

	c.startSync()

	record, err := c.store.LoadRecord(ctx)
	if err != nil {
		c.storageFailed("load record", err)
		record = nil
	}

	token, err := c.store.Token(ctx)
	if err != nil {
		c.storageFailed("load token", err)
		token = ""
	}
	if token == "" {
		if record != nil {
			c.persist(ctx, c.currentVersion())
		}
		c.logger.Debug("no stored session")
		return nil
	}

	user, err := c.callCurrentUser(ctx, token)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.metricInc(MetricSessionRestoreFailure)
		c.logger.Info("stored session rejected", zap.Error(err))
		c.emitAudit(ctx, auditEventSessionRestore, false, "", err, nil)
		c.teardownEpoch(ctx, epoch, "")
		return nil
	}

	var stored Role
	if record != nil && record.UserID == user.ID {
		stored = Role(record.ActiveRole)
	}
	role := RestoreView(user.Permission, stored)

	if !c.establishIfEpoch(ctx, epoch, user, token, role) {
		c.logger.Debug("session replaced during restore")
		return nil
	}
	c.metricInc(MetricSessionRestored)
	c.emitAudit(ctx, auditEventSessionRestore, true, user.ID, nil, func() map[string]string {
		return map[string]string{"active_role": string(role)}
	})
	c.logger.Info("session restored",
		zap.String("user_id", user.ID),
		zap.String("active_role", string(role)),
	)
	return nil
}

func (c *Controller) finishLoading() {
	c.mu.Lock()
	if !c.loading {
		c.mu.Unlock()
		return
	}
	c.loading = false
	c.version++
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)
}

// Close stops the monitor and the cross-tab synchronizer and flushes pending
// audit events. Persisted state is left in place so the next boot restores it.
func (c *Controller) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.monitor != nil {
		c.monitor.Stop()
	}
	c.mu.Unlock()

	if c.sync != nil {
		c.syncMu.Lock()
		c.sync.Stop()
		c.syncMu.Unlock()
	}
	c.audit.Close()
}

// MetricsSnapshot returns the current metric values.
func (c *Controller) MetricsSnapshot() MetricsSnapshot {
	if c == nil || c.metrics == nil {
		return MetricsSnapshot{
			Counters:      map[MetricID]uint64{},
			Histograms:    map[MetricID][]uint64{},
			HistogramSums: map[MetricID]time.Duration{},
		}
	}
	return c.metrics.Snapshot()
}

// AuditDropped returns the number of audit events dropped under backpressure.
func (c *Controller) AuditDropped() uint64 {
	if c == nil {
		return 0
	}
	return c.audit.Dropped()
}

// MonitorRunning reports whether background revalidation is active.
func (c *Controller) MonitorRunning() bool {
	return c.monitor != nil && c.monitor.Running()
}

// RecordActivity forwards a user interaction to the monitor. Hosts without an
// activity source call it directly.
func (c *Controller) RecordActivity(kind monitor.ActivityKind) bool {
	if c.monitor == nil {
		return false
	}
	return c.monitor.RecordActivity(kind)
}

/*
====================================
STATE TRANSITIONS
====================================
*/

func (c *Controller) ready() error {
	if c == nil || c.gateway == nil || c.store == nil {
		return ErrControllerNotReady
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrControllerClosed
	}
	return nil
}

// current returns the token and session epoch, or ok=false when signed out.
func (c *Controller) current() (token string, epoch uint64, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return "", c.epoch, false
	}
	return c.token, c.epoch, true
}

func (c *Controller) currentVersion() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// establish installs a new session unconditionally. Concurrent logins
// resolve in completion order and the last one wins.
func (c *Controller) establish(ctx context.Context, user *User, token string, role Role) {
	c.install(ctx, false, 0, user, token, role)
}

// establishIfEpoch installs a new session only if no session change happened
// since epoch was read.
func (c *Controller) establishIfEpoch(ctx context.Context, epoch uint64, user *User, token string, role Role) bool {
	return c.install(ctx, true, epoch, user, token, role)
}

func (c *Controller) install(ctx context.Context, guarded bool, epoch uint64, user *User, token string, role Role) bool {
	c.mu.Lock()
	if guarded && c.epoch != epoch {
		c.mu.Unlock()
		return false
	}
	c.user = user.clone()
	c.token = token
	c.activeRole = role
	c.epoch++
	c.version++
	version := c.version
	// Monitor start and stop happen under mu so its running state always
	// matches the session a concurrent teardown observes.
	if c.monitor != nil && !c.closed {
		c.monitor.Start()
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.persist(ctx, version)
	c.publish(snap)
	return true
}

// startSync subscribes to sibling tab broadcasts. It runs at boot and again
// on every sign-in, so hosts that skip Initialize still hear siblings.
func (c *Controller) startSync() {
	if c.sync == nil {
		return
	}
	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return
	}
	if err := c.sync.Start(context.Background()); err != nil {
		c.logger.Warn("cross-tab sync unavailable", zap.Error(err))
	}
}

// teardownEpoch clears the session if it still belongs to epoch. It reports
// whether anything was torn down.
func (c *Controller) teardownEpoch(ctx context.Context, epoch uint64, navigateTo string) bool {
	_, done := c.clearSession(ctx, true, epoch, navigateTo)
	return done
}

// teardown unconditionally clears the in-memory and persisted session, stops
// the monitor and optionally navigates. It returns the token that was held.
func (c *Controller) teardown(ctx context.Context, navigateTo string) string {
	token, _ := c.clearSession(ctx, false, 0, navigateTo)
	return token
}

func (c *Controller) clearSession(ctx context.Context, guarded bool, epoch uint64, navigateTo string) (string, bool) {
	c.mu.Lock()
	if guarded && c.epoch != epoch {
		c.mu.Unlock()
		return "", false
	}
	token := c.token
	c.user = nil
	c.token = ""
	c.activeRole = RolePlayer
	c.epoch++
	c.version++
	version := c.version
	if c.monitor != nil {
		c.monitor.Stop()
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.persist(ctx, version)
	c.publish(snap)

	if navigateTo != "" {
		c.navigator.Navigate(navigateTo)
	}
	return token, true
}

// persist writes the state at version to storage. A newer version already
// written, or about to be written, makes this call a no-op.
func (c *Controller) persist(ctx context.Context, version uint64) {
	ctx = context.WithoutCancel(ctx)

	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	c.mu.RLock()
	if c.version != version {
		c.mu.RUnlock()
		return
	}
	user := c.user.clone()
	token := c.token
	role := c.activeRole
	c.mu.RUnlock()

	if user == nil {
		if err := c.store.Clear(ctx); err != nil {
			c.storageFailed("clear session", err)
		}
		return
	}

	if err := c.store.SaveToken(ctx, token); err != nil {
		c.storageFailed("save token", err)
	}
	if err := c.store.SaveRecord(ctx, toRecord(user, role, c.clock.Now())); err != nil {
		c.storageFailed("save record", err)
	}
}

func (c *Controller) storageFailed(op string, err error) {
	c.metricInc(MetricStorageFailure)
	if errors.Is(err, session.ErrRecordCorrupt) {
		c.metricInc(MetricRecordCorrupt)
		c.logger.Warn("persisted session record corrupt, cleared", zap.Error(err))
		return
	}
	c.logger.Warn("session storage failure", zap.String("op", op), zap.Error(err))
}

func toRecord(u *User, role Role, now time.Time) *session.Record {
	return &session.Record{
		UserID:        u.ID,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		DisplayName:   u.DisplayName,
		AvatarURL:     u.AvatarURL,
		Permission:    string(u.Permission),
		ActiveRole:    string(role),
		SavedAt:       now.UnixMilli(),
	}
}

/*
====================================
GATEWAY PLUMBING
====================================
*/

func (c *Controller) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.Gateway.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return c.clock.WithTimeout(ctx, c.cfg.Gateway.CallTimeout)
}

func (c *Controller) observeGateway(start time.Time) {
	if c.metrics.LatencyEnabled() {
		c.metrics.Observe(MetricGatewayLatency, c.clock.Since(start))
	}
}

func (c *Controller) callCurrentUser(ctx context.Context, token string) (*User, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	start := c.clock.Now()
	user, err := c.gateway.CurrentUser(callCtx, token)
	c.observeGateway(start)
	if err != nil {
		return nil, err
	}
	if user == nil || user.ID == "" {
		return nil, &GatewayError{Op: "current_user", Err: ErrGatewayUnavailable, Reason: "empty user"}
	}
	return sanitizeUser(user), nil
}

func sanitizeUser(u *User) *User {
	out := u.clone()
	if !out.Permission.Valid() {
		out.Permission = RolePlayer
	}
	return out
}

func (c *Controller) metricInc(id MetricID) {
	c.metrics.Inc(id)
}

func (c *Controller) observeTick(d monitor.Decision) {
	if !d.Revalidates() {
		c.metricInc(MetricMonitorTickSkipped)
	}
}
