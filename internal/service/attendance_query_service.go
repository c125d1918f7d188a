package service

import (
	"context"
	"time"

	"github.com/sandeepkv93/qr-attendance-session-service/internal/domain"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/repository"
)

// AttendanceView is the read model handed to the transport layer.
type AttendanceView struct {
	StudentID  string                  `json:"student_id"`
	Subject    string                  `json:"subject"`
	ClassLabel string                  `json:"class_label"`
	Period     int                     `json:"period"`
	Date       string                  `json:"date"`
	ScanTime   time.Time               `json:"scan_time"`
	Status     domain.RedemptionStatus `json:"status"`
}

// AttendanceQueryService exposes read-only views over the ledger.
// Absence is deliberately not materialized here: a student with no
// record for a slot simply has no row, and any "absent" reporting is a
// derived view owned by downstream reporting, never a ledger write.
type AttendanceQueryService struct {
	ledger repository.RedemptionRepository
}

func NewAttendanceQueryService(ledger repository.RedemptionRepository) *AttendanceQueryService {
	return &AttendanceQueryService{ledger: ledger}
}

func (s *AttendanceQueryService) StudentAttendance(ctx context.Context, tenantID, studentID string, page repository.PageRequest) ([]AttendanceView, repository.PageResult, error) {
	records, pageRes, err := s.ledger.ListByStudent(ctx, tenantID, studentID, page)
	if err != nil {
		return nil, repository.PageResult{}, err
	}
	return toViews(records), pageRes, nil
}

func (s *AttendanceQueryService) TenantReport(ctx context.Context, tenantID string, page repository.PageRequest) ([]AttendanceView, repository.PageResult, error) {
	records, pageRes, err := s.ledger.ListByTenant(ctx, tenantID, page)
	if err != nil {
		return nil, repository.PageResult{}, err
	}
	return toViews(records), pageRes, nil
}

func (s *AttendanceQueryService) IssuerReport(ctx context.Context, tenantID, issuerID string, page repository.PageRequest) ([]AttendanceView, repository.PageResult, error) {
	records, pageRes, err := s.ledger.ListByIssuer(ctx, tenantID, issuerID, page)
	if err != nil {
		return nil, repository.PageResult{}, err
	}
	return toViews(records), pageRes, nil
}

func toViews(records []domain.RedemptionRecord) []AttendanceView {
	views := make([]AttendanceView, 0, len(records))
	for _, r := range records {
		views = append(views, AttendanceView{
			StudentID:  r.StudentID,
			Subject:    r.Subject,
			ClassLabel: r.ClassLabel,
			Period:     r.Period,
			Date:       r.Date,
			ScanTime:   r.ScanTime,
			Status:     r.Status,
		})
	}
	return views
}
