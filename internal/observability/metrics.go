package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sandeepkv93/qr-attendance-session-service/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

type AppMetrics struct {
	issueCounter      metric.Int64Counter
	redeemCounter     metric.Int64Counter
	repositoryCounter metric.Int64Counter
	rateLimitCounter  metric.Int64Counter
	cacheCounter      metric.Int64Counter
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.OTELServiceName),
			attribute.String("deployment.environment", cfg.OTELEnvironment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	meter := mp.Meter("qr-attendance-session-service")
	issueCounter, err := meter.Int64Counter("attendance.session.issue.attempts")
	if err != nil {
		return nil, err
	}
	redeemCounter, err := meter.Int64Counter("attendance.redemption.attempts")
	if err != nil {
		return nil, err
	}
	repositoryCounter, err := meter.Int64Counter("repository.operations")
	if err != nil {
		return nil, err
	}
	rateLimitCounter, err := meter.Int64Counter("http.rate_limit.decisions")
	if err != nil {
		return nil, err
	}
	cacheCounter, err := meter.Int64Counter("attendance.dead_token_cache.events")
	if err != nil {
		return nil, err
	}

	metricsMu.Lock()
	appMetrics = &AppMetrics{
		issueCounter:      issueCounter,
		redeemCounter:     redeemCounter,
		repositoryCounter: repositoryCounter,
		rateLimitCounter:  rateLimitCounter,
		cacheCounter:      cacheCounter,
	}
	metricsMu.Unlock()

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func current() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

func RecordSessionIssue(ctx context.Context, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.issueCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func RecordRedemption(ctx context.Context, outcome, reason string) {
	m := current()
	if m == nil {
		return
	}
	if reason == "" {
		reason = "none"
	}
	m.redeemCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("reason", reason),
	))
}

func RecordRepositoryOperation(ctx context.Context, entity, op, result string) {
	m := current()
	if m == nil {
		return
	}
	m.repositoryCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("operation", op),
		attribute.String("result", result),
	))
}

func RecordRateLimitDecision(ctx context.Context, scope, decision string) {
	m := current()
	if m == nil {
		return
	}
	m.rateLimitCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("decision", decision),
	))
}

func RecordDeadTokenCacheEvent(ctx context.Context, event string) {
	m := current()
	if m == nil {
		return
	}
	m.cacheCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}
