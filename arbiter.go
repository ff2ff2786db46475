package quizdom

import "strings"

// ViewSwitch is the outcome of a requested view change.
type ViewSwitch struct {
	// Allowed is false when the identity may not hold the target view.
	Allowed bool
	// Target is the view to adopt when Allowed.
	Target Role
	// NavigateTo is the path to move to, or "" to stay in place.
	NavigateTo string
}

// DefaultView returns the view a freshly authenticated identity starts in:
// admins land in the admin view, everybody else in the player view.
func DefaultView(permission Role) Role {
	if permission == RoleAdmin {
		return RoleAdmin
	}
	return RolePlayer
}

// RestoreView picks the view after a reload. A stored view is honoured only
// when the permission allows it; otherwise the default view applies.
func RestoreView(permission Role, stored Role) Role {
	switch stored {
	case RoleAdmin:
		if permission == RoleAdmin {
			return RoleAdmin
		}
	case RolePlayer:
		return RolePlayer
	}
	return DefaultView(permission)
}

// ArbitrateViewSwitch decides a transition to target for an identity holding
// permission while the host is at currentPath.
//
// Only admin identities may switch. Entering the admin view redirects to the
// admin landing path unless the host is already inside the admin section;
// leaving it redirects to the root path only when the host is inside the admin
// section. An empty currentPath never redirects.
func ArbitrateViewSwitch(permission Role, target Role, currentPath string, routes RoutesConfig) ViewSwitch {
	if permission != RoleAdmin || !target.Valid() {
		return ViewSwitch{}
	}

	out := ViewSwitch{Allowed: true, Target: target}
	if currentPath == "" {
		return out
	}

	inAdmin := UnderSection(currentPath, routes.AdminPrefix)
	switch target {
	case RoleAdmin:
		if !inAdmin {
			out.NavigateTo = routes.AdminLandingPath
		}
	case RolePlayer:
		if inAdmin {
			out.NavigateTo = routes.RootPath
		}
	}
	return out
}

// UnderSection reports whether path equals prefix or lies below it on a
// segment boundary ("/admin/users" is under "/admin", "/administrator" is not).
func UnderSection(path, prefix string) bool {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return false
	}
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+"/") ||
		strings.HasPrefix(path, prefix+"?") ||
		strings.HasPrefix(path, prefix+"#")
}
