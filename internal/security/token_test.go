package security

import (
	"encoding/base64"
	"testing"
)

func TestGenerateSessionTokenShape(t *testing.T) {
	token, err := GenerateSessionToken()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		t.Fatalf("token is not base64url: %v", err)
	}
	if len(raw) != 32 {
		t.Fatalf("expected 32 random bytes, got %d", len(raw))
	}
}

func TestGenerateSessionTokenIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := GenerateSessionToken()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if seen[token] {
			t.Fatalf("token repeated after %d generations", i)
		}
		seen[token] = true
	}
}

func TestHashTokenStableAndDistinct(t *testing.T) {
	a := HashToken("token-a")
	if a != HashToken("token-a") {
		t.Fatal("hash is not deterministic")
	}
	if a == HashToken("token-b") {
		t.Fatal("distinct tokens should not collide")
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
}

func FuzzHashTokenNeverEchoesInput(f *testing.F) {
	f.Add("token")
	f.Add("")
	f.Fuzz(func(t *testing.T, token string) {
		digest := HashToken(token)
		if len(digest) != 64 {
			t.Fatalf("expected 64 hex chars, got %d", len(digest))
		}
		if len(token) > 8 && digest == token {
			t.Fatal("digest must not echo the token")
		}
	})
}
