package providers

import (
	"context"
	"time"

	"github.com/BaSui01/twinchat/llm"
	"github.com/BaSui01/twinchat/llm/retry"
	"go.uber.org/zap"
)

// RetryConfig holds retry configuration for a provider wrapper.
type RetryConfig struct {
	MaxRetries    int           `json:"max_retries"`    // Maximum retry attempts
	InitialDelay  time.Duration `json:"initial_delay"`  // Initial backoff delay
	MaxDelay      time.Duration `json:"max_delay"`      // Maximum backoff delay
	BackoffFactor float64       `json:"backoff_factor"` // Exponential backoff factor
}

// DefaultRetryConfig returns sensible retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    2,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
	}
}

// RetryableProvider wraps an llm.Provider and retries transient failures
// (errors marked Retryable). Rejections such as HTTP 400 pass through on the
// first attempt so callers can react to them.
type RetryableProvider struct {
	inner   llm.Provider
	retryer *retry.Retryer
	logger  *zap.Logger
}

// NewRetryableProvider creates a retrying wrapper around the given provider.
func NewRetryableProvider(inner llm.Provider, cfg RetryConfig, logger *zap.Logger) *RetryableProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "retry_provider"), zap.String("provider", inner.Name()))
	return &RetryableProvider{
		inner: inner,
		retryer: retry.NewBackoffRetryer(&retry.RetryPolicy{
			MaxRetries:   cfg.MaxRetries,
			InitialDelay: cfg.InitialDelay,
			MaxDelay:     cfg.MaxDelay,
			Multiplier:   cfg.BackoffFactor,
			Jitter:       true,
			ShouldRetry:  llm.IsRetryable,
			OnRetry: func(attempt int, err error, delay time.Duration) {
				logger.Warn("provider call failed, will retry",
					zap.Int("attempt", attempt),
					zap.Duration("delay", delay),
					zap.Error(err))
			},
		}, logger),
		logger: logger,
	}
}

// Compile-time interface check.
var _ llm.Provider = (*RetryableProvider)(nil)

func (p *RetryableProvider) Name() string                        { return p.inner.Name() }
func (p *RetryableProvider) SupportsNativeFunctionCalling() bool { return p.inner.SupportsNativeFunctionCalling() }
func (p *RetryableProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return p.inner.HealthCheck(ctx)
}

// Completion performs a chat completion with retry on transient errors.
func (p *RetryableProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	return retry.Do(ctx, p.retryer, func() (*llm.ChatResponse, error) {
		return p.inner.Completion(ctx, req)
	})
}

// Stream retries only the connection-establishment phase; mid-stream errors
// are delivered on the channel and never retried.
func (p *RetryableProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	return retry.Do(ctx, p.retryer, func() (<-chan llm.StreamChunk, error) {
		return p.inner.Stream(ctx, req)
	})
}
