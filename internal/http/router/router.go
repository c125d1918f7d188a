package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sandeepkv93/qr-attendance-session-service/internal/health"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/http/handler"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/http/middleware"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/http/response"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/security"
)

type Dependencies struct {
	QRHandler          *handler.QRHandler
	AttendanceHandler  *handler.AttendanceHandler
	JWTManager         *security.JWTManager
	CORSOrigins        []string
	APIRateLimitRPM    int
	IssueRateLimitRPM  int
	RedeemRateLimitRPM int
	GlobalRateLimiter  GlobalRateLimiterFunc
	IssueRateLimiter   IssueRateLimiterFunc
	RedeemRateLimiter  RedeemRateLimiterFunc
	Readiness          *health.ProbeRunner
	EnableOTelHTTP     bool
}

type GlobalRateLimiterFunc func(http.Handler) http.Handler
type IssueRateLimiterFunc func(http.Handler) http.Handler
type RedeemRateLimiterFunc func(http.Handler) http.Handler

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(1 << 20))
	if dep.GlobalRateLimiter != nil {
		r.Use(dep.GlobalRateLimiter)
	} else {
		r.Use(middleware.NewRateLimiter(dep.APIRateLimitRPM, time.Minute, "api").Middleware())
	}

	issueLimiter := dep.IssueRateLimiter
	if issueLimiter == nil {
		issueLimiter = middleware.NewRateLimiterWithKey(dep.IssueRateLimitRPM, time.Minute, "issue",
			middleware.SubjectOrIPKeyFunc(dep.JWTManager)).Middleware()
	}
	redeemLimiter := dep.RedeemRateLimiter
	if redeemLimiter == nil {
		redeemLimiter = middleware.NewRateLimiterWithKey(dep.RedeemRateLimitRPM, time.Minute, "redeem",
			middleware.SubjectOrIPKeyFunc(dep.JWTManager)).Middleware()
	}

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/qr", func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(dep.JWTManager))
			r.Use(middleware.RequireRole(security.RoleTeacher, security.RoleAdmin))
			r.With(issueLimiter).Post("/generate", dep.QRHandler.Generate)
		})

		r.Route("/attendance", func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(dep.JWTManager))
			r.With(middleware.RequireRole(security.RoleStudent), redeemLimiter).Post("/mark", dep.AttendanceHandler.Mark)
			r.With(middleware.RequireRole(security.RoleStudent)).Get("/my-attendance", dep.AttendanceHandler.MyAttendance)
			r.With(middleware.RequireRole(security.RoleTeacher, security.RoleAdmin)).Get("/report", dep.AttendanceHandler.Report)
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
