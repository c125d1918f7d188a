package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/sandeepkv93/qr-attendance-session-service/internal/config"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
)

// InitLogging builds the process logger. With OTLP logs disabled this
// is a plain JSON slog handler on stdout; enabled, records also flow to
// the collector through the otelslog bridge.
func InitLogging(ctx context.Context, cfg *config.Config) (*slog.Logger, *sdklog.LoggerProvider, error) {
	stdout := slog.NewJSONHandler(os.Stdout, nil)

	if !cfg.OTELLogsEnabled {
		logger := slog.New(stdout)
		slog.SetDefault(logger)
		return logger, nil, nil
	}

	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	exporter, err := otlploggrpc.New(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create otlp log exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.OTELServiceName),
			attribute.String("deployment.environment", cfg.OTELEnvironment),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create log resource: %w", err)
	}

	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
		sdklog.WithResource(res),
	)

	bridge := otelslog.NewHandler("qr-attendance-session-service", otelslog.WithLoggerProvider(lp))
	logger := slog.New(fanoutHandler{handlers: []slog.Handler{stdout, bridge}})
	slog.SetDefault(logger)
	return logger, lp, nil
}

type fanoutHandler struct {
	handlers []slog.Handler
}

func (h fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, hd := range h.handlers {
		if hd.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h fanoutHandler) Handle(ctx context.Context, rec slog.Record) error {
	var firstErr error
	for _, hd := range h.handlers {
		if !hd.Enabled(ctx, rec.Level) {
			continue
		}
		if err := hd.Handle(ctx, rec.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, hd := range h.handlers {
		next[i] = hd.WithAttrs(attrs)
	}
	return fanoutHandler{handlers: next}
}

func (h fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, hd := range h.handlers {
		next[i] = hd.WithGroup(name)
	}
	return fanoutHandler{handlers: next}
}
