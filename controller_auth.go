package quizdom

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/paifgx/quizdom-sub000/crosstab"
	"github.com/paifgx/quizdom-sub000/storage"
)

// Login authenticates with email and password. On success the previous
// session, if any, is replaced, the default view for the user's permission is
// adopted, and the monitor starts. On failure the session is untouched and
// the gateway error is returned; use [Reason] for the inline message.
func (c *Controller) Login(ctx context.Context, email, password string) error {
	return c.authenticate(ctx, authLogin, email, password)
}

// Register creates an account and signs it in with the same post-conditions
// as [Controller.Login].
func (c *Controller) Register(ctx context.Context, email, password string) error {
	return c.authenticate(ctx, authRegister, email, password)
}

type authKind struct {
	op            string
	auditEvent    string
	successMetric MetricID
	failureMetric MetricID
}

var (
	authLogin = authKind{
		op:            "login",
		auditEvent:    auditEventLogin,
		successMetric: MetricLoginSuccess,
		failureMetric: MetricLoginFailure,
	}
	authRegister = authKind{
		op:            "register",
		auditEvent:    auditEventRegister,
		successMetric: MetricRegisterSuccess,
		failureMetric: MetricRegisterFailure,
	}
)

func (c *Controller) authenticate(ctx context.Context, kind authKind, email, password string) error {
	if err := c.ready(); err != nil {
		return err
	}

	call := c.gateway.Login
	if kind.op == authRegister.op {
		call = c.gateway.Register
	}

	callCtx, cancel := c.callContext(ctx)
	start := c.clock.Now()
	res, err := call(callCtx, email, password)
	c.observeGateway(start)
	cancel()

	if err == nil && (res == nil || res.User == nil || res.User.ID == "" || res.Token == "") {
		err = &GatewayError{Op: kind.op, Err: ErrGatewayUnavailable, Reason: "incomplete response"}
	}
	if err != nil {
		c.metricInc(kind.failureMetric)
		c.logger.Info(kind.op+" failed",
			zap.String("email", maskEmail(email)),
			zap.Error(err),
		)
		c.emitAudit(ctx, kind.auditEvent, false, "", err, func() map[string]string {
			return map[string]string{"email": maskEmail(email)}
		})
		return fmt.Errorf("%s: %w", kind.op, err)
	}

	user := sanitizeUser(res.User)
	role := DefaultView(user.Permission)
	c.establish(ctx, user, res.Token, role)
	c.startSync()

	c.metricInc(kind.successMetric)
	c.logger.Info(kind.op+" succeeded",
		zap.String("user_id", user.ID),
		zap.String("permission", string(user.Permission)),
	)
	c.emitAudit(ctx, kind.auditEvent, true, user.ID, nil, func() map[string]string {
		return map[string]string{"active_role": string(role)}
	})
	return nil
}

// Logout ends the session unconditionally: the user and persisted state are
// cleared, the monitor stops, the gateway is told on a best-effort basis and
// the host navigates to the login path. Calling Logout while signed out only
// repeats the navigation.
func (c *Controller) Logout(ctx context.Context) {
	token := c.teardown(ctx, "")

	if token != "" {
		c.metricInc(MetricLogout)
		if c.gateway != nil {
			callCtx, cancel := c.callContext(context.WithoutCancel(ctx))
			start := c.clock.Now()
			if err := c.gateway.Logout(callCtx, token); err != nil {
				c.logger.Debug("gateway logout failed", zap.Error(err))
			}
			c.observeGateway(start)
			cancel()
		}
		if c.cfg.CrossTab.BroadcastLogout {
			c.broadcast(ctx, c.cfg.Storage.LogoutMarkerKey)
		}
		c.emitAudit(ctx, auditEventLogout, true, "", nil, nil)
		c.logger.Info("logged out")
	}

	c.navigator.Navigate(c.cfg.Routes.LoginPath)
}

// DeleteAccount deletes the signed-in account. On success the session is torn
// down, sibling tabs are signalled through the account-deleted marker and the
// host navigates to the farewell path. On failure nothing changes.
func (c *Controller) DeleteAccount(ctx context.Context) error {
	if err := c.ready(); err != nil {
		return err
	}
	token, _, ok := c.current()
	if !ok {
		return ErrNotAuthenticated
	}
	userID := c.userID()

	callCtx, cancel := c.callContext(ctx)
	start := c.clock.Now()
	err := c.gateway.DeleteAccount(callCtx, token)
	c.observeGateway(start)
	cancel()

	if err != nil {
		c.metricInc(MetricAccountDeleteFailure)
		c.logger.Warn("account deletion failed", zap.String("user_id", userID), zap.Error(err))
		c.emitAudit(ctx, auditEventAccountDelete, false, userID, err, nil)
		return fmt.Errorf("delete account: %w", err)
	}

	c.teardown(ctx, "")
	c.broadcast(ctx, c.cfg.Storage.DeletedMarkerKey)

	c.metricInc(MetricAccountDeleted)
	c.logger.Info("account deleted", zap.String("user_id", userID))
	c.emitAudit(ctx, auditEventAccountDelete, true, userID, nil, nil)

	c.navigator.Navigate(c.cfg.Routes.FarewellPath)
	return nil
}

// ValidateSession asks the gateway whether the current token is still good.
// Without a session it returns false and makes no call. A rejection tears the
// session down and navigates to the login path.
func (c *Controller) ValidateSession(ctx context.Context) bool {
	if c.ready() != nil {
		return false
	}
	if err := c.revalidate(ctx); err != nil {
		return false
	}
	return true
}

var errNoSession = errors.New("no session to revalidate")

// revalidate is shared by ValidateSession and the monitor. A failure tears
// down only the session it was started for, so a stale result never signs out
// a newer login.
func (c *Controller) revalidate(ctx context.Context) error {
	token, epoch, ok := c.current()
	if !ok {
		return errNoSession
	}

	_, err := c.callCurrentUser(ctx, token)
	if err == nil {
		c.metricInc(MetricRevalidateSuccess)
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	c.metricInc(MetricRevalidateFailure)
	if c.teardownEpoch(ctx, epoch, c.cfg.Routes.LoginPath) {
		c.logger.Info("session invalidated", zap.Error(err))
		c.emitAudit(ctx, auditEventSessionInvalidated, true, "", err, nil)
	}
	return err
}

func (c *Controller) userID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return ""
	}
	return c.user.ID
}

/*
====================================
CROSS-TAB
====================================
*/

// broadcast writes a fresh marker value under key. The value only has to
// differ from the previous one, so a clock that has not advanced still
// produces a new value.
func (c *Controller) broadcast(ctx context.Context, key string) {
	ctx = context.WithoutCancel(ctx)
	stamp := crosstab.Stamp(c.clock.Now())

	if prev, ok, err := c.shared.Get(ctx, key); err == nil && ok {
		if p, perr := strconv.ParseInt(prev, 10, 64); perr == nil {
			if n, _ := strconv.ParseInt(stamp, 10, 64); n <= p {
				stamp = strconv.FormatInt(p+1, 10)
			}
		}
	}

	if err := c.store.Broadcast(ctx, key, stamp); err != nil {
		c.storageFailed("broadcast "+key, err)
	}
}

func (c *Controller) onSiblingAccountDeleted(ev storage.ChangeEvent) {
	ctx := context.Background()
	c.teardown(ctx, "")
	c.metricInc(MetricCrossTabTeardown)
	c.emitAudit(ctx, auditEventCrossTabTeardown, true, "", nil, func() map[string]string {
		return map[string]string{"marker": ev.Key, "source": ev.Origin}
	})
	c.navigator.Navigate(c.cfg.Routes.FarewellPath)
}

func (c *Controller) onSiblingLoggedOut(ev storage.ChangeEvent) {
	ctx := context.Background()
	c.teardown(ctx, "")
	c.metricInc(MetricCrossTabTeardown)
	c.emitAudit(ctx, auditEventCrossTabTeardown, true, "", nil, func() map[string]string {
		return map[string]string{"marker": ev.Key, "source": ev.Origin}
	})
	c.navigator.Navigate(c.cfg.Routes.LoginPath)
}
