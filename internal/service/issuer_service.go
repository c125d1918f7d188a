package service

import (
	"context"
	"strings"
	"time"

	"github.com/sandeepkv93/qr-attendance-session-service/internal/clock"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/domain"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/observability"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/repository"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/security"
)

// IssuerService opens attendance windows. Issuing a session for a slot
// that already has an ACTIVE session revokes the prior one in the same
// transaction, so at most one window is ever open per
// (tenant, issuer, subject, class, period).
type IssuerService struct {
	sessions   repository.SessionRepository
	clk        clock.Clock
	ttl        time.Duration
	lateWindow time.Duration
}

func NewIssuerService(sessions repository.SessionRepository, clk clock.Clock, ttl, lateWindow time.Duration) *IssuerService {
	return &IssuerService{
		sessions:   sessions,
		clk:        clk,
		ttl:        ttl,
		lateWindow: lateWindow,
	}
}

func (s *IssuerService) IssueSession(ctx context.Context, tenantID, issuerID, subject, classLabel string, period int) (*domain.Session, error) {
	if err := validateIssueInput(tenantID, issuerID, subject, classLabel, period); err != nil {
		observability.RecordSessionIssue(ctx, "invalid")
		return nil, err
	}

	token, err := security.GenerateSessionToken()
	if err != nil {
		observability.RecordSessionIssue(ctx, "error")
		return nil, err
	}

	now := s.clk.Now().UTC()
	session := &domain.Session{
		Token:         token,
		TenantID:      tenantID,
		IssuerID:      issuerID,
		Subject:       subject,
		ClassLabel:    classLabel,
		Period:        period,
		State:         domain.SessionActive,
		ExpiresAt:     now.Add(s.ttl),
		LateThreshold: now.Add(s.lateWindow),
		CreatedAt:     now,
	}
	if err := s.sessions.ReplaceActive(ctx, session); err != nil {
		observability.RecordSessionIssue(ctx, "error")
		return nil, err
	}
	observability.RecordSessionIssue(ctx, "issued")
	return session, nil
}

func validateIssueInput(tenantID, issuerID, subject, classLabel string, period int) error {
	switch {
	case strings.TrimSpace(tenantID) == "":
		return &ValidationError{Field: "tenantId", Message: "must not be empty"}
	case strings.TrimSpace(issuerID) == "":
		return &ValidationError{Field: "issuerId", Message: "must not be empty"}
	case strings.TrimSpace(subject) == "":
		return &ValidationError{Field: "subject", Message: "must not be empty"}
	case strings.TrimSpace(classLabel) == "":
		return &ValidationError{Field: "classLabel", Message: "must not be empty"}
	case period < 1:
		return &ValidationError{Field: "period", Message: "must be a positive integer"}
	}
	return nil
}
