package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/BaSui01/charis/internal/telemetry"

// Recorder 把提供者尝试与回退记录为 OTel 指标
type Recorder struct {
	attempts  metric.Int64Counter
	duration  metric.Float64Histogram
	fallbacks metric.Int64Counter
}

// NewRecorder 基于 meter 创建 Recorder，meter 为 nil 时使用全局 MeterProvider
func NewRecorder(meter metric.Meter) (*Recorder, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}

	attempts, err := meter.Int64Counter("charis.provider.attempts",
		metric.WithDescription("Provider attempts made by the fallback executor"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("charis.provider.attempt.duration",
		metric.WithDescription("Provider attempt duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	fallbacks, err := meter.Int64Counter("charis.provider.fallbacks",
		metric.WithDescription("Operations satisfied by a provider other than the first"))
	if err != nil {
		return nil, err
	}

	return &Recorder{attempts: attempts, duration: duration, fallbacks: fallbacks}, nil
}

// ObserveAttempt 记录一次尝试
func (r *Recorder) ObserveAttempt(provider, operation, outcome string, d time.Duration) {
	ctx := context.Background()
	p := attribute.String("provider", provider)
	op := attribute.String("operation", operation)
	r.attempts.Add(ctx, 1, metric.WithAttributes(p, op, attribute.String("outcome", outcome)))
	r.duration.Record(ctx, d.Seconds(), metric.WithAttributes(p, op))
}

// ObserveFallback 记录一次回退
func (r *Recorder) ObserveFallback(provider, operation string) {
	r.fallbacks.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("operation", operation),
	))
}
