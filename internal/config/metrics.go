package config

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	loadMetricsOnce sync.Once
	loadCounter     metric.Int64Counter
)

// recordConfigLoad counts Load outcomes, so a CLI that keeps crashing on
// a broken environment shows up in metrics and not only in exit codes.
func recordConfigLoad(ctx context.Context, cfg *Config, err error) {
	loadMetricsOnce.Do(func() {
		counter, cerr := otel.Meter("sessionkit").Int64Counter("config.load.outcomes")
		if cerr == nil {
			loadCounter = counter
		}
	})
	if loadCounter == nil {
		return
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	attrs := []attribute.KeyValue{
		attribute.String("outcome", outcome),
		attribute.String("error_class", classifyConfigLoadError(err)),
	}
	if cfg != nil {
		attrs = append(attrs,
			attribute.String("environment", cfg.Environment),
			attribute.String("credentials_driver", cfg.CredentialsDriver),
		)
	}
	loadCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// classifyConfigLoadError buckets Load errors by where they originate:
// a variable that would not parse, a value that failed validation, or
// anything else.
func classifyConfigLoadError(err error) string {
	if err == nil {
		return "none"
	}
	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "validate config:"):
		return "validation"
	case strings.HasPrefix(msg, "parse SESSIONKIT_") || strings.HasPrefix(msg, "parse OTEL_"):
		return "parse"
	default:
		return "other"
	}
}
