package quizdom

import (
	"context"
	"io"

	internalaudit "github.com/paifgx/quizdom-sub000/internal/audit"
)

// Role is both a user's permission level and the view the client renders.
type Role string

const (
	// RolePlayer is the ordinary quiz player view; every identity may use it.
	RolePlayer Role = "player"
	// RoleAdmin is the administrative console view, reserved for admin permission.
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RolePlayer || r == RoleAdmin
}

// User is the identity record returned by the credential gateway.
type User struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	DisplayName   string `json:"display_name,omitempty"`
	AvatarURL     string `json:"avatar_url,omitempty"`
	Permission    Role   `json:"permission"`
}

// IsAdmin reports whether the user holds administrative permission.
func (u *User) IsAdmin() bool {
	return u != nil && u.Permission == RoleAdmin
}

func (u *User) clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	return &out
}

// ProfilePatch is a partial profile update. Nil fields are left unchanged.
type ProfilePatch struct {
	DisplayName *string `json:"display_name,omitempty"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
	Email       *string `json:"email,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p ProfilePatch) Empty() bool {
	return p.DisplayName == nil && p.AvatarURL == nil && p.Email == nil
}

// ProfileFields are the user fields returned by a profile update. Only non-nil
// fields replace the corresponding fields of the current user.
type ProfileFields struct {
	Email         *string `json:"email,omitempty"`
	EmailVerified *bool   `json:"email_verified,omitempty"`
	DisplayName   *string `json:"display_name,omitempty"`
	AvatarURL     *string `json:"avatar_url,omitempty"`
	Permission    *Role   `json:"permission,omitempty"`
}

// applyTo returns a copy of u with the returned fields replaced.
func (f ProfileFields) applyTo(u *User) *User {
	out := u.clone()
	if out == nil {
		return nil
	}
	if f.Email != nil {
		out.Email = *f.Email
	}
	if f.EmailVerified != nil {
		out.EmailVerified = *f.EmailVerified
	}
	if f.DisplayName != nil {
		out.DisplayName = *f.DisplayName
	}
	if f.AvatarURL != nil {
		out.AvatarURL = *f.AvatarURL
	}
	if f.Permission != nil && f.Permission.Valid() {
		out.Permission = *f.Permission
	}
	return out
}

// AuthResult is returned by a successful login or registration.
type AuthResult struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}

// CredentialGateway is the remote identity service. Every call crosses a
// network boundary and may fail.
type CredentialGateway interface {
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	Register(ctx context.Context, email, password string) (*AuthResult, error)
	// CurrentUser answers "is this token still good" by resolving it to a user.
	CurrentUser(ctx context.Context, token string) (*User, error)
	UpdateProfile(ctx context.Context, token string, patch ProfilePatch) (*ProfileFields, error)
	DeleteAccount(ctx context.Context, token string) error
	// Logout is best effort; callers ignore its error beyond logging.
	Logout(ctx context.Context, token string) error
}

// Navigator moves the host application to another surface.
type Navigator interface {
	Navigate(path string)
}

// NavigateFunc adapts a function to [Navigator].
type NavigateFunc func(path string)

// Navigate calls f(path).
func (f NavigateFunc) Navigate(path string) {
	if f != nil {
		f(path)
	}
}

type noopNavigator struct{}

func (noopNavigator) Navigate(string) {}

// Snapshot is an immutable view of the session handed to readers and subscribers.
type Snapshot struct {
	User       *User
	ActiveRole Role
	Loading    bool
}

// IsAuthenticated reports whether a user is signed in.
func (s Snapshot) IsAuthenticated() bool {
	return s.User != nil
}

// IsAdmin reports whether the signed-in user holds admin permission.
func (s Snapshot) IsAdmin() bool {
	return s.User.IsAdmin()
}

// IsViewingAsAdmin reports whether the admin view is active.
func (s Snapshot) IsViewingAsAdmin() bool {
	return s.ActiveRole == RoleAdmin
}

// AuditEvent is the structured audit record emitted for session lifecycle events.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events.
type AuditSink = internalaudit.Sink

// NoOpSink drops audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink writes audit events into a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON audit object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
