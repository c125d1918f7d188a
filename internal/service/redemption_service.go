package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sandeepkv93/qr-attendance-session-service/internal/clock"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/domain"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/observability"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/repository"
)

// RedemptionOutcome is returned to the caller and never persisted.
type RedemptionOutcome struct {
	Accepted bool
	Status   domain.RedemptionStatus
	Reason   RejectReason
}

// RedemptionService validates a scanned token and commits the
// attendance mark. The acceptance decision rests entirely on the
// ledger's unique constraints: state and tenant checks order strictly
// before the insert, a rejection never writes, and concurrent attempts
// for the same (token, student) pair collapse to one accepted row.
//
// A redemption that commits just before a racing re-issuance revokes
// its session stays valid: revocation opens a new window, it does not
// retract marks already made.
type RedemptionService struct {
	sessions   repository.SessionRepository
	ledger     repository.RedemptionRepository
	deadTokens DeadTokenCache
	clk        clock.Clock
	loc        *time.Location
	deadTTL    time.Duration
}

func NewRedemptionService(
	sessions repository.SessionRepository,
	ledger repository.RedemptionRepository,
	deadTokens DeadTokenCache,
	clk clock.Clock,
	loc *time.Location,
	deadTTL time.Duration,
) *RedemptionService {
	if deadTokens == nil {
		deadTokens = NewNoopDeadTokenCache()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &RedemptionService{
		sessions:   sessions,
		ledger:     ledger,
		deadTokens: deadTokens,
		clk:        clk,
		loc:        loc,
		deadTTL:    deadTTL,
	}
}

func (s *RedemptionService) Redeem(ctx context.Context, token, studentID, studentTenantID string) (RedemptionOutcome, error) {
	if reason, ok := s.cachedRejection(ctx, token); ok {
		observability.RecordRedemption(ctx, "rejected", string(reason))
		return RedemptionOutcome{Reason: reason}, nil
	}

	session, err := s.sessions.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			s.markDead(ctx, token, ReasonSessionNotFound)
			observability.RecordRedemption(ctx, "rejected", string(ReasonSessionNotFound))
			return RedemptionOutcome{Reason: ReasonSessionNotFound}, nil
		}
		observability.RecordRedemption(ctx, "error", "store")
		return RedemptionOutcome{}, err
	}

	if session.State != domain.SessionActive {
		s.markDead(ctx, token, ReasonSessionRevokedOrExpired)
		observability.RecordRedemption(ctx, "rejected", string(ReasonSessionRevokedOrExpired))
		return RedemptionOutcome{Reason: ReasonSessionRevokedOrExpired}, nil
	}

	now := s.clk.Now()
	if now.After(session.ExpiresAt) {
		// Opportunistic hygiene; the reject stands even if another
		// process already flipped the state.
		if _, err := s.sessions.Transition(ctx, token, domain.SessionActive, domain.SessionExpired, ""); err != nil {
			slog.WarnContext(ctx, "mark session expired", "error", err)
		}
		s.markDead(ctx, token, ReasonSessionExpired)
		observability.RecordRedemption(ctx, "rejected", string(ReasonSessionExpired))
		return RedemptionOutcome{Reason: ReasonSessionExpired}, nil
	}

	if studentTenantID != session.TenantID {
		// Cross-tenant scans never invalidate the token for its own
		// tenant, so this outcome is not cached.
		observability.RecordRedemption(ctx, "rejected", string(ReasonTenantMismatch))
		return RedemptionOutcome{Reason: ReasonTenantMismatch}, nil
	}

	status := domain.StatusLate
	if !now.After(session.LateThreshold) {
		status = domain.StatusPresent
	}

	inserted, err := s.ledger.TryInsert(ctx, &domain.RedemptionRecord{
		SessionToken: session.Token,
		StudentID:    studentID,
		TenantID:     session.TenantID,
		Subject:      session.Subject,
		ClassLabel:   session.ClassLabel,
		Period:       session.Period,
		Date:         domain.CalendarDate(now, s.loc),
		ScanTime:     now.UTC(),
		Status:       status,
	})
	if err != nil {
		observability.RecordRedemption(ctx, "error", "store")
		return RedemptionOutcome{}, err
	}
	if !inserted {
		observability.RecordRedemption(ctx, "rejected", string(ReasonDuplicateRedemption))
		return RedemptionOutcome{Reason: ReasonDuplicateRedemption}, nil
	}

	observability.RecordRedemption(ctx, "accepted", "")
	return RedemptionOutcome{Accepted: true, Status: status}, nil
}

// cachedRejection short-circuits scans of tokens already known to be
// dead. The cache is an optimization only: a miss always falls through
// to the store, and nothing is ever accepted from cache.
func (s *RedemptionService) cachedRejection(ctx context.Context, token string) (RejectReason, bool) {
	reason, ok, err := s.deadTokens.Get(ctx, token)
	if err != nil {
		slog.WarnContext(ctx, "dead token cache get", "error", err)
		observability.RecordDeadTokenCacheEvent(ctx, "error")
		return "", false
	}
	if !ok {
		observability.RecordDeadTokenCacheEvent(ctx, "miss")
		return "", false
	}
	observability.RecordDeadTokenCacheEvent(ctx, "hit")
	return reason, true
}

func (s *RedemptionService) markDead(ctx context.Context, token string, reason RejectReason) {
	if err := s.deadTokens.Set(ctx, token, reason, s.deadTTL); err != nil {
		slog.WarnContext(ctx, "dead token cache set", "error", err)
		observability.RecordDeadTokenCacheEvent(ctx, "error")
	}
}
