package quizdom

import (
	"context"
	"errors"
	"strings"

	"github.com/paifgx/quizdom-sub000/session"
	"github.com/paifgx/quizdom-sub000/storage"
)

const (
	auditEventLogin              = "login"
	auditEventRegister           = "register"
	auditEventLogout             = "logout"
	auditEventSessionRestore     = "session_restore"
	auditEventSessionInvalidated = "session_invalidated"
	auditEventProfileUpdate      = "profile_update"
	auditEventAccountDelete      = "account_delete"
	auditEventCrossTabTeardown   = "cross_tab_teardown"
	auditEventViewSwitch         = "view_switch"
)

// AuditErrorCode is the stable error classification carried in audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountExists      AuditErrorCode = "account_exists"
	auditErrInvalidInput       AuditErrorCode = "invalid_input"
	auditErrUnauthorized       AuditErrorCode = "unauthorized"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrStorage            AuditErrorCode = "storage_failure"
	auditErrTimeout            AuditErrorCode = "timeout"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (c *Controller) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if c == nil || c.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: c.clock.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		Origin:    c.shared.Origin(),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	// Events report what already happened; a cancelled caller must not lose them.
	c.audit.Emit(context.WithoutCancel(ctx), event)
}

func auditErrorCode(err error) AuditErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountExists):
		return auditErrAccountExists
	case errors.Is(err, ErrRegistrationInvalid), errors.Is(err, ErrProfileInvalid):
		return auditErrInvalidInput
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, context.DeadlineExceeded):
		return auditErrTimeout
	case errors.Is(err, ErrGatewayUnavailable):
		return auditErrUnavailable
	case errors.Is(err, storage.ErrStorageUnavailable), errors.Is(err, session.ErrRecordCorrupt):
		return auditErrStorage
	default:
		return auditErrInternal
	}
}

// maskEmail keeps the first character of the local part and the domain.
func maskEmail(email string) string {
	local, domain, ok := strings.Cut(strings.TrimSpace(email), "@")
	if !ok || local == "" {
		return "***"
	}
	return local[:1] + "***@" + domain
}
