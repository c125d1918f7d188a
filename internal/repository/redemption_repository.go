package repository

import (
	"context"

	"github.com/sandeepkv93/qr-attendance-session-service/internal/domain"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RedemptionRepository is the append-only attendance ledger. TryInsert
// is the single write path; both compound unique indexes on
// domain.RedemptionRecord are enforced by the database in one
// statement, so concurrent duplicate scans resolve to exactly one
// accepted row regardless of how many server processes race.
type RedemptionRepository interface {
	// TryInsert returns false with no side effects when either
	// uniqueness constraint would be violated.
	TryInsert(ctx context.Context, rec *domain.RedemptionRecord) (bool, error)
	ListByStudent(ctx context.Context, tenantID, studentID string, page PageRequest) ([]domain.RedemptionRecord, PageResult, error)
	ListByTenant(ctx context.Context, tenantID string, page PageRequest) ([]domain.RedemptionRecord, PageResult, error)
	ListByIssuer(ctx context.Context, tenantID, issuerID string, page PageRequest) ([]domain.RedemptionRecord, PageResult, error)
}

type GormRedemptionRepository struct{ db *gorm.DB }

func NewRedemptionRepository(db *gorm.DB) RedemptionRepository {
	return &GormRedemptionRepository{db: db}
}

func (r *GormRedemptionRepository) TryInsert(ctx context.Context, rec *domain.RedemptionRecord) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rec)
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "redemption", "try_insert", "error")
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(ctx, "redemption", "try_insert", "conflict")
		return false, nil
	}
	observability.RecordRepositoryOperation(ctx, "redemption", "try_insert", "success")
	return true, nil
}

func (r *GormRedemptionRepository) ListByStudent(ctx context.Context, tenantID, studentID string, page PageRequest) ([]domain.RedemptionRecord, PageResult, error) {
	return r.list(ctx, "list_by_student", page, "tenant_id = ? AND student_id = ?", tenantID, studentID)
}

func (r *GormRedemptionRepository) ListByTenant(ctx context.Context, tenantID string, page PageRequest) ([]domain.RedemptionRecord, PageResult, error) {
	return r.list(ctx, "list_by_tenant", page, "tenant_id = ?", tenantID)
}

func (r *GormRedemptionRepository) ListByIssuer(ctx context.Context, tenantID, issuerID string, page PageRequest) ([]domain.RedemptionRecord, PageResult, error) {
	return r.list(ctx, "list_by_issuer", page,
		"tenant_id = ? AND session_token IN (?)", tenantID,
		r.db.Model(&domain.Session{}).Select("token").Where("tenant_id = ? AND issuer_id = ?", tenantID, issuerID))
}

func (r *GormRedemptionRepository) list(ctx context.Context, op string, page PageRequest, query any, args ...any) ([]domain.RedemptionRecord, PageResult, error) {
	page = normalizePageRequest(page)
	base := r.db.WithContext(ctx).Model(&domain.RedemptionRecord{}).Where(query, args...)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "redemption", op, "error")
		return nil, PageResult{}, err
	}

	var records []domain.RedemptionRecord
	err := base.
		Order("scan_time DESC").
		Offset((page.Page - 1) * page.PageSize).
		Limit(page.PageSize).
		Find(&records).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "redemption", op, "error")
		return nil, PageResult{}, err
	}
	observability.RecordRepositoryOperation(ctx, "redemption", op, "success")
	return records, PageResult{Page: page.Page, PageSize: page.PageSize, Total: total, TotalPages: calcTotalPages(total, page.PageSize)}, nil
}
