package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sandeepkv93/qr-attendance-session-service/internal/domain"
)

func TestRedeemUnknownTokenRejected(t *testing.T) {
	ctx := context.Background()
	f := newCoreFixture(t)

	out, err := f.redeemer.Redeem(ctx, "no-such-token", "stu-1", "tenant-1")
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if out.Accepted || out.Reason != ReasonSessionNotFound {
		t.Fatalf("expected SESSION_NOT_FOUND, got %+v", out)
	}
}

func TestRedeemPresentThenDuplicateThenLate(t *testing.T) {
	ctx := context.Background()
	f := newCoreFixture(t)

	session, err := f.issuer.IssueSession(ctx, "tenant-1", "teacher-1", "Physics", "10A", 3)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// t=30: student A is present.
	f.clk.Advance(30 * time.Second)
	out, err := f.redeemer.Redeem(ctx, session.Token, "stu-a", "tenant-1")
	if err != nil {
		t.Fatalf("redeem A: %v", err)
	}
	if !out.Accepted || out.Status != domain.StatusPresent {
		t.Fatalf("expected accepted present, got %+v", out)
	}

	// t=40: student A again is a duplicate.
	f.clk.Advance(10 * time.Second)
	out, err = f.redeemer.Redeem(ctx, session.Token, "stu-a", "tenant-1")
	if err != nil {
		t.Fatalf("redeem A again: %v", err)
	}
	if out.Accepted || out.Reason != ReasonDuplicateRedemption {
		t.Fatalf("expected DUPLICATE_REDEMPTION, got %+v", out)
	}

	// t=90: student B is late.
	f.clk.Advance(50 * time.Second)
	out, err = f.redeemer.Redeem(ctx, session.Token, "stu-b", "tenant-1")
	if err != nil {
		t.Fatalf("redeem B: %v", err)
	}
	if !out.Accepted || out.Status != domain.StatusLate {
		t.Fatalf("expected accepted late, got %+v", out)
	}

	// t=301: the window is closed.
	f.clk.Advance(211 * time.Second)
	out, err = f.redeemer.Redeem(ctx, session.Token, "stu-c", "tenant-1")
	if err != nil {
		t.Fatalf("redeem C: %v", err)
	}
	if out.Accepted || out.Reason != ReasonSessionExpired {
		t.Fatalf("expected SESSION_EXPIRED, got %+v", out)
	}
}

func TestRedeemLateThresholdBoundary(t *testing.T) {
	ctx := context.Background()

	t.Run("exactly at threshold is present", func(t *testing.T) {
		f := newCoreFixture(t)
		session, err := f.issuer.IssueSession(ctx, "tenant-1", "teacher-1", "Physics", "10A", 3)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		f.clk.Advance(60 * time.Second)
		out, err := f.redeemer.Redeem(ctx, session.Token, "stu-1", "tenant-1")
		if err != nil {
			t.Fatalf("redeem: %v", err)
		}
		if !out.Accepted || out.Status != domain.StatusPresent {
			t.Fatalf("expected present at boundary, got %+v", out)
		}
	})

	t.Run("one second past threshold is late", func(t *testing.T) {
		f := newCoreFixture(t)
		session, err := f.issuer.IssueSession(ctx, "tenant-1", "teacher-1", "Physics", "10A", 3)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		f.clk.Advance(61 * time.Second)
		out, err := f.redeemer.Redeem(ctx, session.Token, "stu-1", "tenant-1")
		if err != nil {
			t.Fatalf("redeem: %v", err)
		}
		if !out.Accepted || out.Status != domain.StatusLate {
			t.Fatalf("expected late past boundary, got %+v", out)
		}
	})
}

func TestRedeemExpiryBoundary(t *testing.T) {
	ctx := context.Background()

	t.Run("exactly at expiry still accepted", func(t *testing.T) {
		f := newCoreFixture(t)
		session, err := f.issuer.IssueSession(ctx, "tenant-1", "teacher-1", "Physics", "10A", 3)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		f.clk.Advance(300 * time.Second)
		out, err := f.redeemer.Redeem(ctx, session.Token, "stu-1", "tenant-1")
		if err != nil {
			t.Fatalf("redeem: %v", err)
		}
		if !out.Accepted {
			t.Fatalf("expected acceptance at expiry instant, got %+v", out)
		}
	})

	t.Run("past expiry rejected and session marked", func(t *testing.T) {
		f := newCoreFixture(t)
		session, err := f.issuer.IssueSession(ctx, "tenant-1", "teacher-1", "Physics", "10A", 3)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		f.clk.Advance(301 * time.Second)
		out, err := f.redeemer.Redeem(ctx, session.Token, "stu-1", "tenant-1")
		if err != nil {
			t.Fatalf("redeem: %v", err)
		}
		if out.Accepted || out.Reason != ReasonSessionExpired {
			t.Fatalf("expected SESSION_EXPIRED, got %+v", out)
		}

		stored, err := f.sessions.FindByToken(ctx, session.Token)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if stored.State != domain.SessionExpired {
			t.Fatalf("expected stored state EXPIRED, got %s", stored.State)
		}
	})
}

func TestRedeemCrossTenantAlwaysRejected(t *testing.T) {
	ctx := context.Background()
	f := newCoreFixture(t)

	session, err := f.issuer.IssueSession(ctx, "tenant-1", "teacher-1", "Physics", "10A", 3)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	out, err := f.redeemer.Redeem(ctx, session.Token, "stu-1", "tenant-2")
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if out.Accepted || out.Reason != ReasonTenantMismatch {
		t.Fatalf("expected TENANT_MISMATCH, got %+v", out)
	}

	// The token stays perfectly valid for its own tenant.
	out, err = f.redeemer.Redeem(ctx, session.Token, "stu-1", "tenant-1")
	if err != nil {
		t.Fatalf("redeem own tenant: %v", err)
	}
	if !out.Accepted {
		t.Fatalf("expected own-tenant acceptance after foreign attempt, got %+v", out)
	}
}

func TestRedeemAgainstReplacedSessionRejected(t *testing.T) {
	ctx := context.Background()
	f := newCoreFixture(t)

	first, err := f.issuer.IssueSession(ctx, "tenant-1", "teacher-1", "Physics", "10A", 3)
	if err != nil {
		t.Fatalf("issue first: %v", err)
	}
	second, err := f.issuer.IssueSession(ctx, "tenant-1", "teacher-1", "Physics", "10A", 3)
	if err != nil {
		t.Fatalf("issue second: %v", err)
	}

	out, err := f.redeemer.Redeem(ctx, first.Token, "stu-1", "tenant-1")
	if err != nil {
		t.Fatalf("redeem old: %v", err)
	}
	if out.Accepted || out.Reason != ReasonSessionRevokedOrExpired {
		t.Fatalf("expected SESSION_REVOKED_OR_EXPIRED against old token, got %+v", out)
	}

	out, err = f.redeemer.Redeem(ctx, second.Token, "stu-1", "tenant-1")
	if err != nil {
		t.Fatalf("redeem new: %v", err)
	}
	if !out.Accepted {
		t.Fatalf("expected acceptance against replacement token, got %+v", out)
	}
}

func TestRedeemMarkAcceptedBeforeReplacementStands(t *testing.T) {
	ctx := context.Background()
	f := newCoreFixture(t)

	first, err := f.issuer.IssueSession(ctx, "tenant-1", "teacher-1", "Physics", "10A", 3)
	if err != nil {
		t.Fatalf("issue first: %v", err)
	}
	out, err := f.redeemer.Redeem(ctx, first.Token, "stu-1", "tenant-1")
	if err != nil || !out.Accepted {
		t.Fatalf("redeem before replacement: out=%+v err=%v", out, err)
	}

	if _, err := f.issuer.IssueSession(ctx, "tenant-1", "teacher-1", "Physics", "10A", 3); err != nil {
		t.Fatalf("issue replacement: %v", err)
	}

	// First-committed-wins: the earlier mark survives the revocation,
	// and it also blocks a second mark for the same daily slot.
	records, page, err := f.ledger.ListByStudent(ctx, "tenant-1", "stu-1", pageAll())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 1 || records[0].SessionToken != first.Token {
		t.Fatalf("expected the pre-revocation record to stand, got %+v", records)
	}
}

func TestRedeemSameDaySlotAcrossSessionsRejected(t *testing.T) {
	ctx := context.Background()
	f := newCoreFixture(t)

	first, err := f.issuer.IssueSession(ctx, "tenant-1", "teacher-1", "Physics", "10A", 3)
	if err != nil {
		t.Fatalf("issue first: %v", err)
	}
	if out, err := f.redeemer.Redeem(ctx, first.Token, "stu-1", "tenant-1"); err != nil || !out.Accepted {
		t.Fatalf("first redemption: out=%+v err=%v", out, err)
	}

	second, err := f.issuer.IssueSession(ctx, "tenant-1", "teacher-1", "Physics", "10A", 3)
	if err != nil {
		t.Fatalf("issue second: %v", err)
	}
	out, err := f.redeemer.Redeem(ctx, second.Token, "stu-1", "tenant-1")
	if err != nil {
		t.Fatalf("second redemption: %v", err)
	}
	if out.Accepted || out.Reason != ReasonDuplicateRedemption {
		t.Fatalf("expected DUPLICATE_REDEMPTION across re-issued sessions, got %+v", out)
	}
}

func TestRedeemConcurrentSameStudentSingleAcceptance(t *testing.T) {
	ctx := context.Background()
	f := newCoreFixture(t)

	session, err := f.issuer.IssueSession(ctx, "tenant-1", "teacher-1", "Physics", "10A", 3)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	const attempts = 10
	var wg sync.WaitGroup
	outcomes := make(chan RedemptionOutcome, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.redeemer.Redeem(ctx, session.Token, "stu-race", "tenant-1")
			if err != nil {
				t.Errorf("redeem: %v", err)
				return
			}
			outcomes <- out
		}()
	}
	wg.Wait()
	close(outcomes)

	accepted, duplicates := 0, 0
	for out := range outcomes {
		if out.Accepted {
			accepted++
		} else if out.Reason == ReasonDuplicateRedemption {
			duplicates++
		} else {
			t.Fatalf("unexpected outcome %+v", out)
		}
	}
	if accepted != 1 {
		t.Fatalf("expected exactly one acceptance, got %d", accepted)
	}
	if duplicates != attempts-1 {
		t.Fatalf("expected %d duplicates, got %d", attempts-1, duplicates)
	}
}

func TestRedeemConcurrentDifferentStudentsAllAccepted(t *testing.T) {
	ctx := context.Background()
	f := newCoreFixture(t)

	session, err := f.issuer.IssueSession(ctx, "tenant-1", "teacher-1", "Physics", "10A", 3)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	students := []string{"stu-1", "stu-2", "stu-3", "stu-4", "stu-5"}
	var wg sync.WaitGroup
	accepted := make(chan string, len(students))
	for _, student := range students {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			out, err := f.redeemer.Redeem(ctx, session.Token, id, "tenant-1")
			if err != nil {
				t.Errorf("redeem %s: %v", id, err)
				return
			}
			if out.Accepted {
				accepted <- id
			}
		}(student)
	}
	wg.Wait()
	close(accepted)

	if got := len(accepted); got != len(students) {
		t.Fatalf("expected all %d students accepted, got %d", len(students), got)
	}
}

func TestRedeemDeadTokenCacheShortCircuits(t *testing.T) {
	ctx := context.Background()
	f := newCoreFixture(t)

	out, err := f.redeemer.Redeem(ctx, "gone-token", "stu-1", "tenant-1")
	if err != nil || out.Reason != ReasonSessionNotFound {
		t.Fatalf("first lookup: out=%+v err=%v", out, err)
	}

	// Second scan of the same dead token resolves from cache with the
	// same reason.
	out, err = f.redeemer.Redeem(ctx, "gone-token", "stu-1", "tenant-1")
	if err != nil {
		t.Fatalf("cached lookup: %v", err)
	}
	if out.Accepted || out.Reason != ReasonSessionNotFound {
		t.Fatalf("expected cached SESSION_NOT_FOUND, got %+v", out)
	}
}
