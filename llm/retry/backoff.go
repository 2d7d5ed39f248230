package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy 定义重试策略配置
// 延迟公式：BaseDelay * 2^attempt + [0, MaxJitter) 随机抖动
type RetryPolicy struct {
	MaxAttempts int                                               // 总尝试次数（含第一次），默认 3
	BaseDelay   time.Duration                                     // 基础延迟
	MaxJitter   time.Duration                                     // 抖动上限（0 表示不抖动）
	MaxDelay    time.Duration                                     // 延迟上限（0 表示不限制）
	Retryable   func(err error) bool                              // 可重试判定（为空则重试所有错误）
	OnRetry     func(attempt int, err error, delay time.Duration) // 重试回调
	Sleep       func(ctx context.Context, d time.Duration) error  // 等待实现（为空则使用定时器）
}

// DefaultRetryPolicy 返回默认的重试策略
// 3 次尝试，500ms 基础延迟，200ms 抖动
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxJitter:   200 * time.Millisecond,
	}
}

// Retryer 重试器接口
type Retryer interface {
	// Do 执行函数，失败时根据策略重试
	Do(ctx context.Context, fn func() error) error

	// DoWithResult 执行函数并返回结果，失败时根据策略重试
	DoWithResult(ctx context.Context, fn func() (any, error)) (any, error)
}

// backoffRetryer 基于指数退避的重试器实现
type backoffRetryer struct {
	policy *RetryPolicy
	logger *zap.Logger
}

// NewBackoffRetryer 创建指数退避重试器
func NewBackoffRetryer(policy *RetryPolicy, logger *zap.Logger) Retryer {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := *policy
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.MaxJitter < 0 {
		p.MaxJitter = 0
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}

	return &backoffRetryer{
		policy: &p,
		logger: logger.With(zap.String("component", "retry")),
	}
}

// Do 实现 Retryer.Do
func (r *backoffRetryer) Do(ctx context.Context, fn func() error) error {
	_, err := r.DoWithResult(ctx, func() (any, error) {
		return nil, fn()
	})
	return err
}

// DoWithResult 实现 Retryer.DoWithResult
// 耗尽所有尝试后原样返回最后一次的错误
func (r *backoffRetryer) DoWithResult(ctx context.Context, fn func() (any, error)) (any, error) {
	var lastErr error

	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			if attempt > 0 {
				r.logger.Debug("retry succeeded", zap.Int("attempt", attempt+1))
			}
			return result, nil
		}
		lastErr = err

		if !r.isRetryable(err) {
			r.logger.Debug("error is not retryable", zap.Error(err))
			return nil, err
		}

		// 最后一次失败后不再等待
		if attempt == r.policy.MaxAttempts-1 {
			break
		}

		delay := r.CalculateDelay(attempt)
		r.logger.Debug("retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", r.policy.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if r.policy.OnRetry != nil {
			r.policy.OnRetry(attempt+1, err, delay)
		}

		if err := r.policy.Sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("retry canceled: %w", err)
		}
	}

	r.logger.Warn("retry attempts exhausted",
		zap.Int("attempts", r.policy.MaxAttempts),
		zap.Error(lastErr),
	)
	return nil, lastErr
}

// CalculateDelay 计算第 attempt 次失败（从 0 开始）之后的等待时间
func (r *backoffRetryer) CalculateDelay(attempt int) time.Duration {
	return calculateDelay(r.policy, attempt, rand.Int63n)
}

func calculateDelay(p *RetryPolicy, attempt int, randN func(int64) int64) time.Duration {
	delay := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	d := time.Duration(delay)
	if p.MaxJitter > 0 {
		d += time.Duration(randN(int64(p.MaxJitter)))
	}
	return d
}

// isRetryable 检查错误是否可重试
func (r *backoffRetryer) isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if r.policy.Retryable == nil {
		return true
	}
	return r.policy.Retryable(err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
