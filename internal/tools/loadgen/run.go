package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sandeepkv93/qr-attendance-session-service/internal/security"
)

// Config drives one scan-storm run against a live instance: a teacher
// token opens a session, then Students workers race redemptions at it.
type Config struct {
	BaseURL      string
	Profile      string
	TenantID     string
	Subject      string
	Class        string
	Period       int
	Students     int
	ScansPerUser int
	JWTIssuer    string
	JWTAudience  string
	JWTSecret    string
	Timeout      time.Duration
}

type Result struct {
	TotalRequests int
	Accepted      int
	Late          int
	Duplicates    int
	Rejected      int
	Failures      int
	StatusClasses map[string]int
	Elapsed       time.Duration
}

func normalizeProfile(profile string) string {
	p := strings.ToLower(strings.TrimSpace(profile))
	if p == "" {
		return "burst"
	}
	return p
}

func classifyStatusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500 && status < 600:
		return "5xx"
	default:
		return "other"
	}
}

// Run opens one attendance session and storms it. In the burst profile
// every scan fires at once, which is the worst case for the ledger's
// uniqueness guarantees; steady paces workers out over a second.
func Run(ctx context.Context, cfg Config) (Result, error) {
	cfg = withDefaults(cfg)
	jwtMgr := security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTSecret)
	client := &http.Client{Timeout: cfg.Timeout}

	teacherToken, err := jwtMgr.SignAccessToken("loadgen-teacher-"+uuid.NewString()[:8], security.RoleTeacher, cfg.TenantID, time.Hour)
	if err != nil {
		return Result{}, fmt.Errorf("sign teacher token: %w", err)
	}
	qrToken, err := openSession(ctx, client, cfg, teacherToken)
	if err != nil {
		return Result{}, err
	}

	var (
		mu  sync.Mutex
		res = Result{StatusClasses: make(map[string]int)}
	)
	record := func(status int, outcome string, failed bool) {
		mu.Lock()
		defer mu.Unlock()
		res.TotalRequests++
		res.StatusClasses[classifyStatusClass(status)]++
		switch {
		case failed:
			res.Failures++
		case outcome == "present":
			res.Accepted++
		case outcome == "late":
			res.Accepted++
			res.Late++
		case outcome == "DUPLICATE_REDEMPTION":
			res.Duplicates++
		default:
			res.Rejected++
		}
	}

	profile := normalizeProfile(cfg.Profile)
	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Students; i++ {
		studentID := fmt.Sprintf("loadgen-student-%s", uuid.NewString()[:8])
		studentToken, err := jwtMgr.SignAccessToken(studentID, security.RoleStudent, cfg.TenantID, time.Hour)
		if err != nil {
			return Result{}, fmt.Errorf("sign student token: %w", err)
		}
		worker := i
		g.Go(func() error {
			if profile == "steady" {
				select {
				case <-time.After(time.Duration(worker) * 10 * time.Millisecond):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			for j := 0; j < cfg.ScansPerUser; j++ {
				status, outcome, err := markAttendance(ctx, client, cfg, studentToken, qrToken)
				record(status, outcome, err != nil)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

func withDefaults(cfg Config) Config {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	if cfg.TenantID == "" {
		cfg.TenantID = "loadgen-tenant"
	}
	if cfg.Subject == "" {
		cfg.Subject = "Loadgen"
	}
	if cfg.Class == "" {
		cfg.Class = "General"
	}
	if cfg.Period <= 0 {
		cfg.Period = 1
	}
	if cfg.Students <= 0 {
		cfg.Students = 20
	}
	if cfg.ScansPerUser <= 0 {
		cfg.ScansPerUser = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return cfg
}

func openSession(ctx context.Context, client *http.Client, cfg Config, teacherToken string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"subject": cfg.Subject,
		"class":   cfg.Class,
		"period":  cfg.Period,
	})
	if err != nil {
		return "", err
	}
	payload, status, err := do(ctx, client, http.MethodPost, cfg.BaseURL+"/api/v1/qr/generate", teacherToken, body)
	if err != nil {
		return "", fmt.Errorf("open session: %w", err)
	}
	if status != http.StatusCreated {
		return "", fmt.Errorf("open session: unexpected status %d", status)
	}
	data, _ := payload["data"].(map[string]any)
	qrToken, _ := data["qrToken"].(string)
	if qrToken == "" {
		return "", fmt.Errorf("open session: response missing qrToken")
	}
	return qrToken, nil
}

func markAttendance(ctx context.Context, client *http.Client, cfg Config, studentToken, qrToken string) (int, string, error) {
	body, err := json.Marshal(map[string]string{"qrToken": qrToken})
	if err != nil {
		return 0, "", err
	}
	payload, status, err := do(ctx, client, http.MethodPost, cfg.BaseURL+"/api/v1/attendance/mark", studentToken, body)
	if err != nil {
		return 0, "", err
	}
	if data, ok := payload["data"].(map[string]any); ok {
		if s, ok := data["status"].(string); ok {
			return status, s, nil
		}
	}
	if errObj, ok := payload["error"].(map[string]any); ok {
		if code, ok := errObj["code"].(string); ok {
			return status, code, nil
		}
	}
	return status, "", nil
}

func do(ctx context.Context, client *http.Client, method, target, token string, body []byte) (map[string]any, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, resp.StatusCode, nil
	}
	return payload, resp.StatusCode, nil
}
