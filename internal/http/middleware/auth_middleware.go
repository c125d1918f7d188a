package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sandeepkv93/qr-attendance-session-service/internal/http/response"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/security"
)

type contextKey string

const ClaimsContextKey contextKey = "claims"

// AuthMiddleware extracts the verified identity minted by the upstream
// auth service. Everything downstream trusts claims.TenantID and
// claims.Subject; nothing in this service exchanges credentials.
func AuthMiddleware(jwtMgr *security.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := security.GetCookie(r, "access_token")
			if raw == "" {
				auth := r.Header.Get("Authorization")
				if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
					raw = strings.TrimSpace(auth[7:])
				}
			}
			if raw == "" {
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
				return
			}
			claims, err := jwtMgr.ParseAccessToken(raw)
			if err != nil {
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid access token", nil)
				return
			}
			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ClaimsFromContext(ctx context.Context) (*security.Claims, bool) {
	c, ok := ctx.Value(ClaimsContextKey).(*security.Claims)
	return c, ok
}

// RequireRole gates a route on the caller's role claim.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
				return
			}
			if !allowed[claims.Role] {
				response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "insufficient role", map[string]any{"required": roles})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
