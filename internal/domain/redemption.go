package domain

import "time"

type RedemptionStatus string

const (
	StatusPresent RedemptionStatus = "present"
	StatusLate    RedemptionStatus = "late"
)

// RedemptionRecord is one accepted attendance mark. Records are append
// only; nothing mutates them after insertion.
//
// Two compound unique indexes back the ledger's guarantees: a student
// is recorded at most once per session token, and at most once per
// (tenant, subject, class, period) slot per calendar day even across
// re-issued sessions. Date carries the calendar day as YYYY-MM-DD so
// the daily constraint stays a plain column comparison.
type RedemptionRecord struct {
	ID           uint             `gorm:"primaryKey" json:"id"`
	SessionToken string           `gorm:"size:64;uniqueIndex:idx_redemptions_session_student;not null" json:"-"`
	StudentID    string           `gorm:"size:64;uniqueIndex:idx_redemptions_session_student;uniqueIndex:idx_redemptions_daily_slot;not null" json:"student_id"`
	TenantID     string           `gorm:"size:64;uniqueIndex:idx_redemptions_daily_slot;index;not null" json:"tenant_id"`
	Subject      string           `gorm:"size:128;uniqueIndex:idx_redemptions_daily_slot;not null" json:"subject"`
	ClassLabel   string           `gorm:"size:128;uniqueIndex:idx_redemptions_daily_slot;not null" json:"class_label"`
	Period       int              `gorm:"uniqueIndex:idx_redemptions_daily_slot;not null" json:"period"`
	Date         string           `gorm:"size:10;uniqueIndex:idx_redemptions_daily_slot;not null" json:"date"`
	ScanTime     time.Time        `gorm:"not null" json:"scan_time"`
	Status       RedemptionStatus `gorm:"size:16;not null" json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
}

// CalendarDate renders the daily-uniqueness key for a scan instant in
// the given location.
func CalendarDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02")
}
