package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/qr-attendance-session-service/internal/domain"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/observability"

	"gorm.io/gorm"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionRepository is the durable token store. All state changes go
// through compare-and-swap style conditional updates so concurrent
// expiry marking and revocation stay race free across processes.
type SessionRepository interface {
	Create(ctx context.Context, s *domain.Session) error
	FindByToken(ctx context.Context, token string) (*domain.Session, error)
	// Transition moves the session identified by token from one state
	// to another. It returns false when the session was not in the
	// expected state, which makes both expiry marking and revocation
	// idempotent.
	Transition(ctx context.Context, token string, from, to domain.SessionState, reason string) (bool, error)
	// ReplaceActive atomically revokes any ACTIVE session for the new
	// session's (tenant, issuer, subject, class, period) slot and
	// inserts the new one.
	ReplaceActive(ctx context.Context, s *domain.Session) error
	CleanupExpired(ctx context.Context, olderThan time.Time) (int64, error)
}

type GormSessionRepository struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository { return &GormSessionRepository{db: db} }

func (r *GormSessionRepository) Create(ctx context.Context, s *domain.Session) error {
	err := r.db.WithContext(ctx).Create(s).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "session", "create", "success")
	return nil
}

func (r *GormSessionRepository) FindByToken(ctx context.Context, token string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.WithContext(ctx).Where("token = ?", token).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "session", "find_by_token", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(ctx, "session", "find_by_token", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "find_by_token", "success")
	return &s, nil
}

func (r *GormSessionRepository) Transition(ctx context.Context, token string, from, to domain.SessionState, reason string) (bool, error) {
	updates := map[string]any{"state": to}
	if to == domain.SessionRevoked {
		now := time.Now().UTC()
		updates["revoked_at"] = now
		updates["revoked_reason"] = reason
	}
	res := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("token = ? AND state = ?", token, from).
		Updates(updates)
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session", "transition", "error")
		return false, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "session", "transition", "success")
	return res.RowsAffected > 0, nil
}

func (r *GormSessionRepository) ReplaceActive(ctx context.Context, s *domain.Session) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The state guard makes the revocation a compare-and-swap: a
		// concurrent ReplaceActive for the same slot revokes either
		// zero or all prior ACTIVE rows, never a partial set.
		now := time.Now().UTC()
		if err := tx.Model(&domain.Session{}).
			Where("tenant_id = ? AND issuer_id = ? AND subject = ? AND class_label = ? AND period = ? AND state = ?",
				s.TenantID, s.IssuerID, s.Subject, s.ClassLabel, s.Period, domain.SessionActive).
			Updates(map[string]any{
				"state":          domain.SessionRevoked,
				"revoked_at":     now,
				"revoked_reason": "replaced",
			}).Error; err != nil {
			return err
		}
		return tx.Create(s).Error
	})
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "replace_active", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "session", "replace_active", "success")
	return nil
}

// CleanupExpired deletes sessions whose window closed before olderThan.
// Correctness never depends on this sweep; it is storage hygiene only.
func (r *GormSessionRepository) CleanupExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at <= ?", olderThan).
		Delete(&domain.Session{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session", "cleanup_expired", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "session", "cleanup_expired", "success")
	return res.RowsAffected, nil
}
