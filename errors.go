package quizdom

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is returned when the gateway rejects an email/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountExists is returned when registration collides with an existing account.
	ErrAccountExists = errors.New("account already exists")
	// ErrRegistrationInvalid is returned when the gateway rejects registration input.
	ErrRegistrationInvalid = errors.New("invalid registration request")
	// ErrProfileInvalid is returned when the gateway rejects a profile update.
	ErrProfileInvalid = errors.New("invalid profile update")
	// ErrUnauthorized is returned when the bearer token is missing, expired or revoked.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrGatewayUnavailable wraps transport failures and server errors of the credential gateway.
	ErrGatewayUnavailable = errors.New("credential gateway unavailable")
	// ErrNotAuthenticated is returned by operations that require a session when there is none.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrAlreadyInitialized is returned when Initialize runs more than once.
	ErrAlreadyInitialized = errors.New("controller already initialized")
	// ErrControllerClosed is returned by operations invoked after Close.
	ErrControllerClosed = errors.New("controller closed")
	// ErrControllerNotReady is returned when a zero or partially built controller is used.
	ErrControllerNotReady = errors.New("controller not initialized")
)

// GatewayError is a classified credential gateway failure. Reason is the
// human-readable message reported by the identity service, suitable for an
// inline form error.
type GatewayError struct {
	Op     string
	Status int
	Reason string
	Err    error
}

func (e *GatewayError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %v: %s", e.Op, e.Err, e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Reason extracts the human-readable reason from err, falling back to the
// error text. It returns "" for a nil error.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var gwErr *GatewayError
	if errors.As(err, &gwErr) && gwErr.Reason != "" {
		return gwErr.Reason
	}
	return err.Error()
}
