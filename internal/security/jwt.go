package security

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// Claims is the verified identity the upstream auth service encodes
// into the bearer token. TenantID scopes every operation; Subject is
// the teacher or student id within that tenant.
type Claims struct {
	TokenType string `json:"token_type"`
	Role      string `json:"role"`
	TenantID  string `json:"tenant_id"`
	jwt.RegisteredClaims
}

type JWTManager struct {
	issuer       string
	audience     string
	accessSecret []byte
}

func NewJWTManager(issuer, audience, accessSecret string) *JWTManager {
	return &JWTManager{
		issuer:       issuer,
		audience:     audience,
		accessSecret: []byte(accessSecret),
	}
}

func (m *JWTManager) SignAccessToken(subject, role, tenantID string, ttl time.Duration) (string, error) {
	claims := Claims{
		TokenType: "access",
		Role:      role,
		TenantID:  tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   subject,
			Audience:  []string{m.audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.accessSecret)
}

func (m *JWTManager) ParseAccessToken(raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing algorithm")
		}
		return m.accessSecret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithAudience(m.audience))
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.TokenType != "access" {
		return nil, fmt.Errorf("unexpected token type: %s", claims.TokenType)
	}
	if claims.TenantID == "" {
		return nil, errors.New("token missing tenant id")
	}
	return claims, nil
}

func GetCookie(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
