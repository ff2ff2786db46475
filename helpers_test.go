package quizdom

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap/zaptest"

	"github.com/paifgx/quizdom-sub000/session"
	"github.com/paifgx/quizdom-sub000/storage"
)

/*
====================================
FAKE GATEWAY
====================================
*/

type fakeAccount struct {
	user     User
	password string
}

type fakeGateway struct {
	mu       sync.Mutex
	accounts map[string]*fakeAccount // by email
	tokens   map[string]string       // token -> user id
	next     int

	loginErr   error
	currentErr error
	updateErr  error
	deleteErr  error
	logoutErr  error

	// currentHook runs before CurrentUser resolves; a non-nil error is returned as is.
	currentHook func(ctx context.Context, token string) error

	calls map[string]int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		accounts: make(map[string]*fakeAccount),
		tokens:   make(map[string]string),
		calls:    make(map[string]int),
	}
}

func (g *fakeGateway) addUser(email, password string, permission Role) User {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	acc := &fakeAccount{
		user: User{
			ID:            fmt.Sprintf("user-%d", g.next),
			Email:         email,
			EmailVerified: true,
			DisplayName:   "Quizzer " + email,
			Permission:    permission,
		},
		password: password,
	}
	g.accounts[email] = acc
	return acc.user
}

func (g *fakeGateway) issueLocked(id string) string {
	g.next++
	token := fmt.Sprintf("token-%d", g.next)
	g.tokens[token] = id
	return token
}

func (g *fakeGateway) accountByIDLocked(id string) *fakeAccount {
	for _, acc := range g.accounts {
		if acc.user.ID == id {
			return acc
		}
	}
	return nil
}

func (g *fakeGateway) revoke(token string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.tokens, token)
}

func (g *fakeGateway) revokeAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tokens = make(map[string]string)
}

func (g *fakeGateway) setPermission(id string, permission Role) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if acc := g.accountByIDLocked(id); acc != nil {
		acc.user.Permission = permission
	}
}

func (g *fakeGateway) setCurrentHook(fn func(ctx context.Context, token string) error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.currentHook = fn
}

func (g *fakeGateway) count(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

func (g *fakeGateway) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["login"]++
	if g.loginErr != nil {
		return nil, g.loginErr
	}
	acc, ok := g.accounts[email]
	if !ok || acc.password != password {
		return nil, &GatewayError{Op: "login", Status: 401, Reason: "invalid email or password", Err: ErrInvalidCredentials}
	}
	u := acc.user
	return &AuthResult{User: &u, Token: g.issueLocked(u.ID)}, nil
}

func (g *fakeGateway) Register(ctx context.Context, email, password string) (*AuthResult, error) {
	g.mu.Lock()
	g.calls["register"]++
	_, exists := g.accounts[email]
	g.mu.Unlock()
	if exists {
		return nil, &GatewayError{Op: "register", Status: 409, Reason: "email already registered", Err: ErrAccountExists}
	}
	if len(password) < 8 {
		return nil, &GatewayError{Op: "register", Status: 422, Reason: "password too short", Err: ErrRegistrationInvalid}
	}

	g.addUser(email, password, RolePlayer)

	g.mu.Lock()
	defer g.mu.Unlock()
	u := g.accounts[email].user
	return &AuthResult{User: &u, Token: g.issueLocked(u.ID)}, nil
}

func (g *fakeGateway) CurrentUser(ctx context.Context, token string) (*User, error) {
	g.mu.Lock()
	g.calls["current"]++
	hook := g.currentHook
	g.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, token); err != nil {
			return nil, err
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.currentErr != nil {
		return nil, g.currentErr
	}
	id, ok := g.tokens[token]
	if !ok {
		return nil, &GatewayError{Op: "current_user", Status: 401, Reason: "token revoked", Err: ErrUnauthorized}
	}
	acc := g.accountByIDLocked(id)
	if acc == nil {
		return nil, &GatewayError{Op: "current_user", Status: 404, Err: ErrUnauthorized}
	}
	u := acc.user
	return &u, nil
}

func (g *fakeGateway) UpdateProfile(ctx context.Context, token string, patch ProfilePatch) (*ProfileFields, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["update"]++
	if g.updateErr != nil {
		return nil, g.updateErr
	}
	acc := g.accountByIDLocked(g.tokens[token])
	if acc == nil {
		return nil, &GatewayError{Op: "update_profile", Status: 401, Err: ErrUnauthorized}
	}

	out := &ProfileFields{}
	if patch.DisplayName != nil {
		acc.user.DisplayName = *patch.DisplayName
		out.DisplayName = patch.DisplayName
	}
	if patch.AvatarURL != nil {
		acc.user.AvatarURL = *patch.AvatarURL
		out.AvatarURL = patch.AvatarURL
	}
	if patch.Email != nil {
		acc.user.Email = *patch.Email
		acc.user.EmailVerified = false
		verified := false
		out.Email = patch.Email
		out.EmailVerified = &verified
	}
	perm := acc.user.Permission
	out.Permission = &perm
	return out, nil
}

func (g *fakeGateway) DeleteAccount(ctx context.Context, token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["delete"]++
	if g.deleteErr != nil {
		return g.deleteErr
	}
	id, ok := g.tokens[token]
	if !ok {
		return &GatewayError{Op: "delete_account", Status: 401, Err: ErrUnauthorized}
	}
	for email, acc := range g.accounts {
		if acc.user.ID == id {
			delete(g.accounts, email)
		}
	}
	for t, owner := range g.tokens {
		if owner == id {
			delete(g.tokens, t)
		}
	}
	return nil
}

func (g *fakeGateway) Logout(ctx context.Context, token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["logout"]++
	delete(g.tokens, token)
	return g.logoutErr
}

/*
====================================
NAVIGATOR
====================================
*/

type recordingNavigator struct {
	mu    sync.Mutex
	paths []string
}

func (n *recordingNavigator) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, path)
}

func (n *recordingNavigator) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.paths...)
}

func (n *recordingNavigator) count(path string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, p := range n.paths {
		if p == path {
			total++
		}
	}
	return total
}

/*
====================================
HARNESS
====================================
*/

type testEnv struct {
	backend *storage.MemoryBackend
	gw      *fakeGateway
	clock   *clock.Mock
	cfg     Config
}

func newTestEnv() *testEnv {
	cfg := DefaultConfig()
	// Keep the background ticker out of the way; tests drive ticks directly.
	cfg.Monitor.Interval = 24 * time.Hour
	cfg.Metrics.Enabled = true

	mock := clock.NewMock()
	mock.Set(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	return &testEnv{
		backend: storage.NewMemoryBackend(),
		gw:      newFakeGateway(),
		clock:   mock,
		cfg:     cfg,
	}
}

type tab struct {
	c     *Controller
	nav   *recordingNavigator
	store *storage.MemoryStore
}

// openTab builds a controller on a fresh tab of the shared backend and runs
// Initialize.
func (e *testEnv) openTab(t *testing.T) *tab {
	t.Helper()
	tb := e.buildTab(t, nil)
	if err := tb.c.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return tb
}

func (e *testEnv) buildTab(t *testing.T, mutate func(*Builder)) *tab {
	t.Helper()
	nav := &recordingNavigator{}
	store := e.backend.Tab()

	b := New().
		WithConfig(e.cfg).
		WithGateway(e.gw).
		WithStorage(store).
		WithNavigator(nav).
		WithClock(e.clock).
		WithLogger(zaptest.NewLogger(t))
	if mutate != nil {
		mutate(b)
	}

	c, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(c.Close)
	return &tab{c: c, nav: nav, store: store}
}

func (tb *tab) record(t *testing.T) *session.Record {
	t.Helper()
	cfg := tb.c.cfg.Storage
	rec, err := session.NewStore(tb.store, session.Keys{Record: cfg.RecordKey, Token: cfg.TokenKey}).LoadRecord(context.Background())
	if err != nil {
		t.Fatalf("load record: %v", err)
	}
	return rec
}

func (tb *tab) storedToken(t *testing.T) string {
	t.Helper()
	v, _, err := tb.store.Get(context.Background(), tb.c.cfg.Storage.TokenKey)
	if err != nil {
		t.Fatalf("get token: %v", err)
	}
	return v
}

// gatedStore parks the first write to key until release is closed.
type gatedStore struct {
	*storage.MemoryStore
	key     string
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedStore(inner *storage.MemoryStore, key string) *gatedStore {
	return &gatedStore{
		MemoryStore: inner,
		key:         key,
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func (s *gatedStore) Set(ctx context.Context, key, value string) error {
	if key == s.key {
		s.once.Do(func() {
			close(s.entered)
			<-s.release
		})
	}
	return s.MemoryStore.Set(ctx, key, value)
}

func mustLogin(t *testing.T, c *Controller, email, password string) {
	t.Helper()
	if err := c.Login(context.Background(), email, password); err != nil {
		t.Fatalf("login %s: %v", email, err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func strPtr(s string) *string { return &s }
