package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sandeepkv93/qr-attendance-session-service/internal/domain"
)

func newRedemptionRepoForTest(t *testing.T) RedemptionRepository {
	t.Helper()
	return NewRedemptionRepository(newTestDB(t))
}

func testRecord(token, student string) *domain.RedemptionRecord {
	return &domain.RedemptionRecord{
		SessionToken: token,
		StudentID:    student,
		TenantID:     "tenant-1",
		Subject:      "Physics",
		ClassLabel:   "10A",
		Period:       3,
		Date:         "2026-08-28",
		ScanTime:     time.Now().UTC(),
		Status:       domain.StatusPresent,
	}
}

func TestRedemptionRepositoryTryInsertOnce(t *testing.T) {
	ctx := context.Background()
	repo := newRedemptionRepoForTest(t)

	ok, err := repo.TryInsert(ctx, testRecord("tok-1", "stu-1"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !ok {
		t.Fatal("expected first insert to succeed")
	}

	ok, err = repo.TryInsert(ctx, testRecord("tok-1", "stu-1"))
	if err != nil {
		t.Fatalf("duplicate insert: %v", err)
	}
	if ok {
		t.Fatal("expected duplicate (session, student) insert to be rejected")
	}
}

func TestRedemptionRepositoryDailySlotUnique(t *testing.T) {
	ctx := context.Background()
	repo := newRedemptionRepoForTest(t)

	if ok, err := repo.TryInsert(ctx, testRecord("tok-1", "stu-1")); err != nil || !ok {
		t.Fatalf("first insert: ok=%v err=%v", ok, err)
	}

	// Same student, same class-period slot on the same day, but a
	// fresh session token: still a duplicate.
	ok, err := repo.TryInsert(ctx, testRecord("tok-2", "stu-1"))
	if err != nil {
		t.Fatalf("reissued insert: %v", err)
	}
	if ok {
		t.Fatal("expected same-day slot insert to be rejected across sessions")
	}

	// Next day is a fresh slot.
	nextDay := testRecord("tok-3", "stu-1")
	nextDay.Date = "2026-08-29"
	if ok, err := repo.TryInsert(ctx, nextDay); err != nil || !ok {
		t.Fatalf("next-day insert: ok=%v err=%v", ok, err)
	}

	// A different period the same day is also a fresh slot.
	otherPeriod := testRecord("tok-4", "stu-1")
	otherPeriod.Period = 4
	if ok, err := repo.TryInsert(ctx, otherPeriod); err != nil || !ok {
		t.Fatalf("other-period insert: ok=%v err=%v", ok, err)
	}
}

func TestRedemptionRepositoryDifferentStudentsIndependent(t *testing.T) {
	ctx := context.Background()
	repo := newRedemptionRepoForTest(t)

	if ok, err := repo.TryInsert(ctx, testRecord("tok-1", "stu-1")); err != nil || !ok {
		t.Fatalf("student one: ok=%v err=%v", ok, err)
	}
	if ok, err := repo.TryInsert(ctx, testRecord("tok-1", "stu-2")); err != nil || !ok {
		t.Fatalf("student two: ok=%v err=%v", ok, err)
	}
}

func TestRedemptionRepositoryConcurrentInsertSingleWinner(t *testing.T) {
	ctx := context.Background()
	repo := newRedemptionRepoForTest(t)

	const attempts = 8
	var wg sync.WaitGroup
	accepted := make(chan bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.TryInsert(ctx, testRecord("tok-race", "stu-race"))
			if err != nil {
				t.Errorf("insert: %v", err)
				return
			}
			accepted <- ok
		}()
	}
	wg.Wait()
	close(accepted)

	wins := 0
	for ok := range accepted {
		if ok {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one accepted insert, got %d", wins)
	}
}

func TestRedemptionRepositoryListViews(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewRedemptionRepository(db)
	sessions := NewSessionRepository(db)

	s := testSession("tok-view")
	if err := sessions.Create(ctx, s); err != nil {
		t.Fatalf("create session: %v", err)
	}

	for i, student := range []string{"stu-1", "stu-2", "stu-3"} {
		rec := testRecord("tok-view", student)
		rec.ScanTime = rec.ScanTime.Add(time.Duration(i) * time.Second)
		if ok, err := repo.TryInsert(ctx, rec); err != nil || !ok {
			t.Fatalf("seed %s: ok=%v err=%v", student, ok, err)
		}
	}
	foreign := testRecord("tok-foreign", "stu-9")
	foreign.TenantID = "tenant-2"
	if ok, err := repo.TryInsert(ctx, foreign); err != nil || !ok {
		t.Fatalf("seed foreign tenant: ok=%v err=%v", ok, err)
	}

	mine, page, err := repo.ListByStudent(ctx, "tenant-1", "stu-1", PageRequest{})
	if err != nil {
		t.Fatalf("list by student: %v", err)
	}
	if len(mine) != 1 || page.Total != 1 {
		t.Fatalf("expected one record for stu-1, got %d (total %d)", len(mine), page.Total)
	}

	all, page, err := repo.ListByTenant(ctx, "tenant-1", PageRequest{PageSize: 2})
	if err != nil {
		t.Fatalf("list by tenant: %v", err)
	}
	if len(all) != 2 || page.Total != 3 || page.TotalPages != 2 {
		t.Fatalf("unexpected tenant page: len=%d total=%d pages=%d", len(all), page.Total, page.TotalPages)
	}
	if !all[0].ScanTime.After(all[1].ScanTime) {
		t.Fatal("expected newest-first ordering")
	}

	issued, page, err := repo.ListByIssuer(ctx, "tenant-1", "teacher-1", PageRequest{})
	if err != nil {
		t.Fatalf("list by issuer: %v", err)
	}
	if len(issued) != 3 || page.Total != 3 {
		t.Fatalf("expected issuer to see 3 records, got %d (total %d)", len(issued), page.Total)
	}
}
