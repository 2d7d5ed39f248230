package image

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/charis/internal/ctxkeys"
	"github.com/BaSui01/charis/types"
)

const instrumentationName = "github.com/BaSui01/charis/llm/image"

// Attempt outcomes reported to a Recorder.
const (
	OutcomeSuccess = "success"
	OutcomeEmpty   = "empty"
	OutcomeError   = "error"
)

// Recorder 接收每次尝试与回退的观测数据
type Recorder interface {
	ObserveAttempt(provider, operation, outcome string, d time.Duration)
	ObserveFallback(provider, operation string)
}

// Recorders fans observations out to several recorders.
type Recorders []Recorder

func (rs Recorders) ObserveAttempt(provider, operation, outcome string, d time.Duration) {
	for _, r := range rs {
		if r != nil {
			r.ObserveAttempt(provider, operation, outcome, d)
		}
	}
}

func (rs Recorders) ObserveFallback(provider, operation string) {
	for _, r := range rs {
		if r != nil {
			r.ObserveFallback(provider, operation)
		}
	}
}

// Result 是第一个有效结果以及产生它的 Provider
type Result[T any] struct {
	Value    T
	Provider Provider
	Index    int
	// FellBack is true when the winning provider is not the first in the chain.
	FellBack bool
}

// TryOption 配置 TryProviders
type TryOption func(*tryOptions)

type tryOptions struct {
	logger   *zap.Logger
	recorder Recorder
	tracer   trace.Tracer
}

// WithLogger sets the diagnostics sink.
func WithLogger(logger *zap.Logger) TryOption {
	return func(o *tryOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics reports attempts and fallbacks to r.
func WithMetrics(r Recorder) TryOption {
	return func(o *tryOptions) { o.recorder = r }
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) TryOption {
	return func(o *tryOptions) {
		if t != nil {
			o.tracer = t
		}
	}
}

// TryProviders walks chain in order and returns the first result accepted by
// validate. A provider that errors or returns an unacceptable result is
// logged and the next one is tried; each provider gets exactly one attempt.
// When the chain is exhausted the most recent failure is returned.
func TryProviders[T any](
	ctx context.Context,
	chain Chain,
	op func(ctx context.Context, p Provider) (T, error),
	validate func(T) bool,
	operation string,
	opts ...TryOption,
) (*Result[T], error) {
	o := tryOptions{
		logger: zap.NewNop(),
		tracer: otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With(zap.String("component", "fallback"), zap.String("operation", operation))

	var lastErr error = types.Errorf(types.ErrNoProvider, "no provider completed %s", operation).
		WithOperation(operation)

	for i, p := range chain {
		if p == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name := p.Name()
		value, d, err := attempt(ctx, o.tracer, p, i, operation, op)

		if err != nil {
			o.observe(name, operation, OutcomeError, d)
			logger.Warn("provider failed",
				zap.String("provider", name),
				zap.Int("index", i),
				zap.Duration("duration", d),
				zap.Error(err))
			lastErr = err
			continue
		}

		if validate != nil && !validate(value) {
			o.observe(name, operation, OutcomeEmpty, d)
			lastErr = types.Errorf(types.ErrEmptyResult, "%s returned an empty result for %s", name, operation).
				WithProvider(name).
				WithOperation(operation)
			logger.Warn(name+" returned an empty result for "+operation,
				zap.String("provider", name),
				zap.Int("index", i))
			continue
		}

		o.observe(name, operation, OutcomeSuccess, d)
		if i > 0 {
			if o.recorder != nil {
				o.recorder.ObserveFallback(name, operation)
			}
			logger.Warn("fell back to "+name+" for "+operation,
				zap.String("provider", name),
				zap.Int("index", i))
		}
		return &Result[T]{Value: value, Provider: p, Index: i, FellBack: i > 0}, nil
	}

	return nil, lastErr
}

// attempt runs op inside a span and converts panics into errors.
func attempt[T any](
	ctx context.Context,
	tracer trace.Tracer,
	p Provider,
	index int,
	operation string,
	op func(ctx context.Context, p Provider) (T, error),
) (value T, d time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("image.provider", p.Name()),
		attribute.String("image.model", p.Model()),
		attribute.Int("image.chain_index", index),
	}
	if id, ok := ctxkeys.RunID(ctx); ok {
		attrs = append(attrs, attribute.String("charis.run_id", id))
	}
	ctx, span := tracer.Start(ctx, "image."+operation, trace.WithAttributes(attrs...))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = types.Errorf(types.ErrUpstreamError, "provider panicked: %v", r).
				WithProvider(p.Name()).
				WithOperation(operation)
		}
		d = time.Since(start)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	value, err = op(ctx, p)
	return value, d, err
}

func (o *tryOptions) observe(provider, operation, outcome string, d time.Duration) {
	if o.recorder != nil {
		o.recorder.ObserveAttempt(provider, operation, outcome, d)
	}
}

// =============================================================================
// ✅ 校验谓词
// =============================================================================

// AtLeast accepts image sets with at least n non-empty buffers.
func AtLeast(n int) func([][]byte) bool {
	return func(images [][]byte) bool {
		return countNonEmpty(images) >= max(n, 1)
	}
}

// Exactly accepts image sets with exactly n non-empty buffers.
func Exactly(n int) func([][]byte) bool {
	return func(images [][]byte) bool {
		return len(images) == n && countNonEmpty(images) == n
	}
}

// NonEmptyBuffer accepts a single non-empty buffer.
func NonEmptyBuffer(b []byte) bool {
	return len(b) > 0
}

// NonEmptyText accepts text that is not blank after trimming.
func NonEmptyText(s string) bool {
	return strings.TrimSpace(s) != ""
}

func countNonEmpty(images [][]byte) int {
	n := 0
	for _, img := range images {
		if len(img) > 0 {
			n++
		}
	}
	return n
}
