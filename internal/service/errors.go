package service

import "fmt"

// RejectReason enumerates the expected, user-visible redemption
// failures. They are surfaced verbatim to the caller.
type RejectReason string

const (
	ReasonSessionNotFound         RejectReason = "SESSION_NOT_FOUND"
	ReasonSessionExpired          RejectReason = "SESSION_EXPIRED"
	ReasonSessionRevokedOrExpired RejectReason = "SESSION_REVOKED_OR_EXPIRED"
	ReasonTenantMismatch          RejectReason = "TENANT_MISMATCH"
	ReasonDuplicateRedemption     RejectReason = "DUPLICATE_REDEMPTION"
)

// ValidationError reports a missing or malformed issuance field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}
