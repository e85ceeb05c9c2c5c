package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy 定义重试策略配置
type RetryPolicy struct {
	MaxRetries   int                                               // 最大重试次数（0 表示不重试）
	InitialDelay time.Duration                                     // 初始延迟时间
	MaxDelay     time.Duration                                     // 最大延迟时间
	Multiplier   float64                                           // 延迟时间倍增因子（指数退避）
	Jitter       bool                                              // 是否添加 ±25% 随机抖动
	ShouldRetry  func(err error) bool                              // 判断错误是否可重试（nil 表示全部重试）
	OnRetry      func(attempt int, err error, delay time.Duration) // 重试回调
}

// DefaultRetryPolicy 返回默认的重试策略，适用于补全端点的瞬时失败
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:   2,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Retryer 按策略重复执行一个操作
type Retryer struct {
	policy RetryPolicy
	logger *zap.Logger
}

// NewBackoffRetryer 创建指数退避重试器
func NewBackoffRetryer(policy *RetryPolicy, logger *zap.Logger) *Retryer {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := *policy
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 500 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 10 * time.Second
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = 2.0
	}

	return &Retryer{
		policy: p,
		logger: logger.With(zap.String("component", "retry")),
	}
}

// Do 执行函数，失败时根据策略重试
func (r *Retryer) Do(ctx context.Context, fn func() error) error {
	_, err := Do(ctx, r, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Do 执行 fn 并返回结果。不可重试的错误原样返回，便于调用方用 errors.As 判断；
// 重试耗尽时返回包装了最后一次错误的 error。
func Do[T any](ctx context.Context, r *Retryer, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.calculateDelay(attempt)

			r.logger.Debug("重试中",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", r.policy.MaxRetries),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)

			if r.policy.OnRetry != nil {
				r.policy.OnRetry(attempt, lastErr, delay)
			}

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, fmt.Errorf("重试被取消: %w", ctx.Err())
			case <-timer.C:
			}
		}

		result, err := fn()
		if err == nil {
			if attempt > 0 {
				r.logger.Info("重试成功", zap.Int("attempt", attempt))
			}
			return result, nil
		}
		lastErr = err

		if !r.isRetryable(err) {
			return zero, err
		}
		if ctx.Err() != nil {
			return zero, err
		}
	}

	r.logger.Warn("重试次数耗尽",
		zap.Int("attempts", r.policy.MaxRetries+1),
		zap.Error(lastErr),
	)

	if r.policy.MaxRetries == 0 {
		return zero, lastErr
	}
	return zero, fmt.Errorf("重试 %d 次后仍失败: %w", r.policy.MaxRetries, lastErr)
}

// calculateDelay 计算延迟时间：initial * multiplier^(attempt-1)，上限 MaxDelay
func (r *Retryer) calculateDelay(attempt int) time.Duration {
	delay := float64(r.policy.InitialDelay) * math.Pow(r.policy.Multiplier, float64(attempt-1))

	if delay > float64(r.policy.MaxDelay) {
		delay = float64(r.policy.MaxDelay)
	}

	if r.policy.Jitter {
		jitter := delay * 0.25
		delay = delay + (rand.Float64()*2-1)*jitter
	}

	if delay < float64(r.policy.InitialDelay) {
		delay = float64(r.policy.InitialDelay)
	}

	return time.Duration(delay)
}

func (r *Retryer) isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if r.policy.ShouldRetry == nil {
		return true
	}
	return r.policy.ShouldRetry(err)
}
