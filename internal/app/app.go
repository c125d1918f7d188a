package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/sandeepkv93/qr-attendance-session-service/internal/config"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/health"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/observability"
)

// App owns the process lifecycle: the HTTP listener, background
// sweeps, and the ordered shutdown of everything behind them.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	DB            *gorm.DB
	Redis         redis.UniversalClient
	Observability *observability.Runtime
	Readiness     *health.ProbeRunner

	ShutdownTimeout              time.Duration
	ShutdownHTTPDrainTimeout     time.Duration
	ShutdownObservabilityTimeout time.Duration

	stopBackground func()
}

func New(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	db *gorm.DB,
	redisClient redis.UniversalClient,
	runtime *observability.Runtime,
	readiness *health.ProbeRunner,
	stopBackground func(),
) *App {
	return &App{
		Config:                       cfg,
		Logger:                       logger,
		Server:                       server,
		DB:                           db,
		Redis:                        redisClient,
		Observability:                runtime,
		Readiness:                    readiness,
		ShutdownTimeout:              cfg.ShutdownTimeout,
		ShutdownHTTPDrainTimeout:     cfg.ShutdownHTTPDrainTimeout,
		ShutdownObservabilityTimeout: cfg.ShutdownObservabilityTimeout,
		stopBackground:               stopBackground,
	}
}

func (a *App) StopBackgroundTasks() {
	if a.stopBackground != nil {
		a.stopBackground()
	}
}

// Run serves until ctx is cancelled, then drains in order: HTTP first,
// background tasks, stores, observability last so shutdown itself is
// still instrumented.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", "addr", a.Server.Addr)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.Logger.Info("shutting down", "timeout", a.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.ShutdownTimeout)
	defer cancel()

	drainCtx, drainCancel := context.WithTimeout(shutdownCtx, a.ShutdownHTTPDrainTimeout)
	defer drainCancel()
	if err := a.Server.Shutdown(drainCtx); err != nil {
		a.Logger.Warn("http drain incomplete", "error", err)
	}
	<-errCh

	a.StopBackgroundTasks()

	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("close redis", "error", err)
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				a.Logger.Warn("close db", "error", err)
			}
		}
	}

	if a.Observability != nil {
		obsCtx, obsCancel := context.WithTimeout(context.Background(), a.ShutdownObservabilityTimeout)
		defer obsCancel()
		if err := a.Observability.Shutdown(obsCtx); err != nil {
			a.Logger.Warn("observability shutdown", "error", err)
		}
	}

	a.Logger.Info("shutdown complete")
	return nil
}
