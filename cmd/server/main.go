package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/sandeepkv93/qr-attendance-session-service/internal/app"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/clock"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/config"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/domain"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/health"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/http/handler"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/http/router"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/observability"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/repository"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/security"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/service"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/tools/common"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/tools/scanstorm"
)

func main() {
	root := &cobra.Command{
		Use:   "qr-attendance-session-service",
		Short: "Session token issuance and attendance redemption service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	})
	root.AddCommand(scanstorm.NewCommand())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(ctx context.Context) error {
	if err := common.LoadEnvFile(".env"); err != nil {
		return err
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, loggerProvider, err := observability.InitLogging(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	runtime, err := observability.InitRuntime(ctx, cfg, logger, loggerProvider)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&domain.Session{}, &domain.RedemptionRecord{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	var redisClient redis.UniversalClient
	deadTokens := service.DeadTokenCache(service.NewInMemoryDeadTokenCache())
	if cfg.RedisEnabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		deadTokens = service.NewRedisDeadTokenCache(redisClient, "dead_tokens")
	}

	sessions := repository.NewSessionRepository(db)
	ledger := repository.NewRedemptionRepository(db)
	clk := clock.System()

	issuer := service.NewIssuerService(sessions, clk, cfg.SessionTTL, cfg.SessionLateWindow)
	redeemer := service.NewRedemptionService(sessions, ledger, deadTokens, clk, cfg.Location(), cfg.DeadTokenTTL)
	queries := service.NewAttendanceQueryService(ledger)
	jwtMgr := security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTAccessSecret)

	readiness := health.NewProbeRunner(2 * time.Second)
	readiness.Register("db", health.GormChecker(db))
	if redisClient != nil {
		readiness.Register("redis", health.RedisChecker(redisClient))
	}

	mux := router.NewRouter(router.Dependencies{
		QRHandler:          handler.NewQRHandler(issuer),
		AttendanceHandler:  handler.NewAttendanceHandler(redeemer, queries),
		JWTManager:         jwtMgr,
		CORSOrigins:        cfg.CORSOrigins,
		APIRateLimitRPM:    cfg.APIRateLimitRPM,
		IssueRateLimitRPM:  cfg.IssueRateLimitRPM,
		RedeemRateLimitRPM: cfg.RedeemRateLimitRPM,
		Readiness:          readiness,
		EnableOTelHTTP:     cfg.OTELTracingEnabled,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	stopSweep := startExpirySweep(logger, sessions, clk)
	a := app.New(cfg, logger, server, db, redisClient, runtime, readiness, stopSweep)
	return a.Run(ctx)
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)}
	if cfg.DatabaseURL != "" {
		return gorm.Open(postgres.Open(cfg.DatabaseURL), gormCfg)
	}
	return gorm.Open(sqlite.Open(cfg.SQLitePath), gormCfg)
}

// startExpirySweep deletes sessions whose window closed over a day
// ago. Redemption never depends on it; expiry is checked lazily on
// every scan, the sweep is storage hygiene only. Recently expired rows
// are kept so scans still get SESSION_EXPIRED rather than a not-found.
func startExpirySweep(logger *slog.Logger, sessions repository.SessionRepository, clk clock.Clock) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := sessions.CleanupExpired(ctx, clk.Now().Add(-24*time.Hour))
				if err != nil {
					logger.Warn("expiry sweep", "error", err)
					continue
				}
				if n > 0 {
					logger.Info("expiry sweep", "expired", n)
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
