package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/talentview/sessionkit/internal/config"
)

type sdkMetrics struct {
	refreshCounter   metric.Int64Counter
	retryCounter     metric.Int64Counter
	readinessCounter metric.Int64Counter
}

var (
	metricsOnce sync.Once
	metrics     *sdkMetrics
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
	return mp, nil
}

func instruments() *sdkMetrics {
	metricsOnce.Do(func() {
		meter := otel.Meter("sessionkit")
		m := &sdkMetrics{}
		var err error
		if m.refreshCounter, err = meter.Int64Counter("auth.refresh.attempts"); err != nil {
			return
		}
		if m.retryCounter, err = meter.Int64Counter("auth.request.retries"); err != nil {
			return
		}
		if m.readinessCounter, err = meter.Int64Counter("readiness.check.outcomes"); err != nil {
			return
		}
		metrics = m
	})
	return metrics
}

// RecordTokenRefresh counts a settled refresh. shared marks callers that
// attached to an in-flight operation instead of starting one.
func RecordTokenRefresh(ctx context.Context, outcome string, shared bool) {
	m := instruments()
	if m == nil {
		return
	}
	m.refreshCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.Bool("shared", shared),
	))
}

// RecordRequestRetry counts a 401-triggered replay of a request.
func RecordRequestRetry(ctx context.Context, outcome string) {
	m := instruments()
	if m == nil {
		return
	}
	m.retryCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordReadinessCheck counts one check reaching a terminal status.
func RecordReadinessCheck(ctx context.Context, check, status string) {
	m := instruments()
	if m == nil {
		return
	}
	m.readinessCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("check", check),
		attribute.String("status", status),
	))
}
