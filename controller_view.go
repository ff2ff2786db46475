package quizdom

import (
	"context"

	"go.uber.org/zap"
)

// SwitchToAdminView selects the admin view for an admin identity. When nav is
// non-nil and currentPath lies outside the admin section, nav is sent to the
// admin landing path. For any other identity the call is ignored and returns
// false.
func (c *Controller) SwitchToAdminView(ctx context.Context, nav Navigator, currentPath string) bool {
	return c.switchView(ctx, RoleAdmin, nav, currentPath)
}

// SwitchToPlayerView selects the player view for an admin identity. When nav
// is non-nil and currentPath lies inside the admin section, nav is sent to the
// root path. For any other identity the call is ignored and returns false.
func (c *Controller) SwitchToPlayerView(ctx context.Context, nav Navigator, currentPath string) bool {
	return c.switchView(ctx, RolePlayer, nav, currentPath)
}

func (c *Controller) switchView(ctx context.Context, target Role, nav Navigator, currentPath string) bool {
	c.mu.Lock()
	permission := RolePlayer
	if c.user != nil {
		permission = c.user.Permission
	}
	decision := ArbitrateViewSwitch(permission, target, currentPath, c.cfg.Routes)
	if !decision.Allowed {
		c.mu.Unlock()
		c.metricInc(MetricViewSwitchDenied)
		c.logger.Debug("view switch ignored", zap.String("target", string(target)))
		return false
	}

	changed := c.activeRole != decision.Target
	c.activeRole = decision.Target
	var (
		version uint64
		snap    Snapshot
	)
	if changed {
		c.version++
		version = c.version
		snap = c.snapshotLocked()
	}
	c.mu.Unlock()

	if changed {
		c.persist(ctx, version)
		c.publish(snap)
		c.metricInc(MetricViewSwitch)
		c.emitAudit(ctx, auditEventViewSwitch, true, c.userID(), nil, func() map[string]string {
			return map[string]string{"active_role": string(decision.Target)}
		})
	}

	if nav != nil && decision.NavigateTo != "" {
		nav.Navigate(decision.NavigateTo)
	}
	return true
}
