package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sandeepkv93/qr-attendance-session-service/internal/http/response"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/observability"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/security"
)

type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Remaining  int
	ResetAt    time.Time
}

type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

type RateLimiter struct {
	limiter Limiter
	limit   int
	window  time.Duration
	scope   string
	keyFunc func(r *http.Request) string
}

func NewRateLimiter(limit int, window time.Duration, scope string) *RateLimiter {
	return NewRateLimiterWithKey(limit, window, scope, nil)
}

func NewRateLimiterWithKey(limit int, window time.Duration, scope string, keyFunc func(r *http.Request) string) *RateLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	if scope == "" {
		scope = "api"
	}
	if keyFunc == nil {
		keyFunc = clientIPKey
	}
	return &RateLimiter{
		limiter: newLocalFixedWindowLimiter(),
		limit:   limit,
		window:  window,
		scope:   scope,
		keyFunc: keyFunc,
	}
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rl.keyFunc(r)
			if key == "" {
				key = clientIPKey(r)
			}
			decision, err := rl.limiter.Allow(r.Context(), key, rl.limit, rl.window)
			if err != nil {
				// The local limiter cannot fail; treat an error as deny
				// so a broken limiter never becomes an open gate.
				observability.RecordRateLimitDecision(r.Context(), rl.scope, "backend_error")
				w.Header().Set("Retry-After", "1")
				response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
				return
			}
			writeRateLimitHeaders(w.Header(), rl.limit, decision)
			if !decision.Allowed {
				observability.RecordRateLimitDecision(r.Context(), rl.scope, "deny")
				w.Header().Set("Retry-After", retryAfterHeader(decision.RetryAfter))
				response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
				return
			}
			observability.RecordRateLimitDecision(r.Context(), rl.scope, "allow")
			next.ServeHTTP(w, r)
		})
	}
}

// SubjectOrIPKeyFunc keys the limiter by the caller's subject claim
// when a valid token is present, falling back to the remote IP.
func SubjectOrIPKeyFunc(jwtMgr *security.JWTManager) func(r *http.Request) string {
	return func(r *http.Request) string {
		raw := security.GetCookie(r, "access_token")
		if raw == "" {
			auth := r.Header.Get("Authorization")
			if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
				raw = strings.TrimSpace(auth[7:])
			}
		}
		if raw == "" || jwtMgr == nil {
			return clientIPKey(r)
		}
		claims, err := jwtMgr.ParseAccessToken(raw)
		if err != nil || claims.Subject == "" {
			return clientIPKey(r)
		}
		return "sub:" + claims.TenantID + ":" + claims.Subject
	}
}

type localFixedWindowLimiter struct {
	mu      sync.Mutex
	store   map[string]*windowState
	cleanup time.Time
}

type windowState struct {
	windowStart time.Time
	count       int
}

func newLocalFixedWindowLimiter() *localFixedWindowLimiter {
	return &localFixedWindowLimiter{
		store:   make(map[string]*windowState),
		cleanup: time.Now().Add(time.Minute),
	}
}

func (l *localFixedWindowLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (Decision, error) {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.After(l.cleanup) {
		for k, st := range l.store {
			if now.Sub(st.windowStart) > 2*window {
				delete(l.store, k)
			}
		}
		l.cleanup = now.Add(window)
	}

	st, ok := l.store[key]
	if !ok || now.Sub(st.windowStart) >= window {
		st = &windowState{windowStart: now}
		l.store[key] = st
	}

	resetAt := st.windowStart.Add(window)
	if st.count >= limit {
		return Decision{
			Allowed:    false,
			RetryAfter: resetAt.Sub(now),
			Remaining:  0,
			ResetAt:    resetAt,
		}, nil
	}
	st.count++
	return Decision{
		Allowed:   true,
		Remaining: limit - st.count,
		ResetAt:   resetAt,
	}, nil
}

func clientIPKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func retryAfterHeader(d time.Duration) string {
	seconds := int(d.Round(time.Second).Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return fmt.Sprintf("%d", seconds)
}

func writeRateLimitHeaders(h http.Header, limit int, d Decision) {
	h.Set("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
	h.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", d.Remaining))
	if !d.ResetAt.IsZero() {
		h.Set("X-RateLimit-Reset", fmt.Sprintf("%d", d.ResetAt.Unix()))
	}
}
