package quizdom

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// UpdateProfile sends patch to the gateway and replaces only the fields the
// gateway returned. When the returned permission no longer allows the admin
// view, the active view falls back to player. On failure the user is left
// untouched. The updated user is returned.
func (c *Controller) UpdateProfile(ctx context.Context, patch ProfilePatch) (*User, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	token, epoch, ok := c.current()
	if !ok {
		return nil, ErrNotAuthenticated
	}
	if patch.Empty() {
		return c.User(), nil
	}

	callCtx, cancel := c.callContext(ctx)
	start := c.clock.Now()
	fields, err := c.gateway.UpdateProfile(callCtx, token, patch)
	c.observeGateway(start)
	cancel()

	if err == nil && fields == nil {
		fields = &ProfileFields{}
	}
	if err != nil {
		c.metricInc(MetricProfileUpdateFailure)
		c.logger.Info("profile update failed", zap.Error(err))
		c.emitAudit(ctx, auditEventProfileUpdate, false, c.userID(), err, nil)
		return nil, fmt.Errorf("update profile: %w", err)
	}

	c.mu.Lock()
	if c.epoch != epoch || c.user == nil {
		c.mu.Unlock()
		return nil, ErrNotAuthenticated
	}
	c.user = fields.applyTo(c.user)
	if c.activeRole == RoleAdmin && !c.user.IsAdmin() {
		c.activeRole = RolePlayer
	}
	c.version++
	version := c.version
	updated := c.user.clone()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.persist(ctx, version)
	c.publish(snap)

	c.metricInc(MetricProfileUpdateSuccess)
	c.emitAudit(ctx, auditEventProfileUpdate, true, updated.ID, nil, func() map[string]string {
		return changedFields(fields)
	})
	return updated, nil
}

func changedFields(f *ProfileFields) map[string]string {
	out := make(map[string]string, 4)
	if f.Email != nil {
		out["email"] = "changed"
	}
	if f.DisplayName != nil {
		out["display_name"] = "changed"
	}
	if f.AvatarURL != nil {
		out["avatar_url"] = "changed"
	}
	if f.Permission != nil {
		out["permission"] = string(*f.Permission)
	}
	return out
}
