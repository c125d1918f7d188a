package domain

import "time"

type SessionState string

const (
	SessionActive  SessionState = "ACTIVE"
	SessionExpired SessionState = "EXPIRED"
	SessionRevoked SessionState = "REVOKED"
)

// Session is one open attendance window. The token is the only
// credential a student needs to redeem it, so it is generated from a
// cryptographically strong source and never reused.
type Session struct {
	ID            uint         `gorm:"primaryKey" json:"id"`
	Token         string       `gorm:"size:64;uniqueIndex;not null" json:"-"`
	TenantID      string       `gorm:"size:64;index:idx_sessions_slot;not null" json:"tenant_id"`
	IssuerID      string       `gorm:"size:64;index:idx_sessions_slot;not null" json:"issuer_id"`
	Subject       string       `gorm:"size:128;index:idx_sessions_slot;not null" json:"subject"`
	ClassLabel    string       `gorm:"size:128;index:idx_sessions_slot;not null" json:"class_label"`
	Period        int          `gorm:"index:idx_sessions_slot;not null" json:"period"`
	State         SessionState `gorm:"size:16;index;not null" json:"state"`
	ExpiresAt     time.Time    `gorm:"index;not null" json:"expires_at"`
	LateThreshold time.Time    `gorm:"not null" json:"late_threshold"`
	RevokedAt     *time.Time   `gorm:"index" json:"revoked_at,omitempty"`
	RevokedReason *string      `gorm:"size:64" json:"revoked_reason,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// ActiveAt reports whether the session can still accept redemptions at
// the given instant. Expiry is lazy: a stored state of ACTIVE past
// ExpiresAt is treated as expired without waiting for a sweep.
func (s *Session) ActiveAt(now time.Time) bool {
	return s.State == SessionActive && !now.After(s.ExpiresAt)
}
