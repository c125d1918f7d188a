package security

import (
	"testing"
	"time"
)

func newManagerForTest() *JWTManager {
	return NewJWTManager("iss", "aud", "abcdefghijklmnopqrstuvwxyz123456")
}

func TestAccessTokenRoundTrip(t *testing.T) {
	mgr := newManagerForTest()
	token, err := mgr.SignAccessToken("teacher-1", RoleTeacher, "tenant-1", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	claims, err := mgr.ParseAccessToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "teacher-1" {
		t.Fatalf("expected subject teacher-1, got %q", claims.Subject)
	}
	if claims.Role != RoleTeacher {
		t.Fatalf("expected role teacher, got %q", claims.Role)
	}
	if claims.TenantID != "tenant-1" {
		t.Fatalf("expected tenant-1, got %q", claims.TenantID)
	}
}

func TestAccessTokenExpiredRejected(t *testing.T) {
	mgr := newManagerForTest()
	token, err := mgr.SignAccessToken("student-1", RoleStudent, "tenant-1", -time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := mgr.ParseAccessToken(token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestAccessTokenWrongAudienceRejected(t *testing.T) {
	other := NewJWTManager("iss", "other-aud", "abcdefghijklmnopqrstuvwxyz123456")
	token, err := other.SignAccessToken("student-1", RoleStudent, "tenant-1", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := newManagerForTest().ParseAccessToken(token); err == nil {
		t.Fatal("expected audience mismatch to be rejected")
	}
}

func TestAccessTokenWrongSecretRejected(t *testing.T) {
	other := NewJWTManager("iss", "aud", "zyxwvutsrqponmlkjihgfedcba654321")
	token, err := other.SignAccessToken("student-1", RoleStudent, "tenant-1", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := newManagerForTest().ParseAccessToken(token); err == nil {
		t.Fatal("expected signature mismatch to be rejected")
	}
}
