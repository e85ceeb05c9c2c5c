package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastPolicy(maxRetries int) *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetryer_SuccessFirstTry(t *testing.T) {
	r := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryer_RetryThenSuccess(t *testing.T) {
	r := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	calls := 0
	got, err := Do(context.Background(), r, func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("temporary")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestRetryer_Exhausted(t *testing.T) {
	r := NewBackoffRetryer(fastPolicy(2), zap.NewNop())
	base := errors.New("always")

	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return base
	})

	require.ErrorIs(t, err, base)
	assert.Equal(t, 3, calls)
}

func TestRetryer_NonRetryableReturnedUnwrapped(t *testing.T) {
	fatal := errors.New("bad request")
	policy := fastPolicy(5)
	policy.ShouldRetry = func(err error) bool { return !errors.Is(err, fatal) }
	r := NewBackoffRetryer(policy, nil)

	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return fatal
	})

	assert.Same(t, fatal, err)
	assert.Equal(t, 1, calls)
}

func TestRetryer_ZeroRetriesReturnsOriginal(t *testing.T) {
	r := NewBackoffRetryer(fastPolicy(0), nil)
	base := errors.New("once")

	err := r.Do(context.Background(), func() error { return base })
	assert.Same(t, base, err)
}

func TestRetryer_ContextCancelledDuringBackoff(t *testing.T) {
	policy := fastPolicy(3)
	policy.InitialDelay = time.Second
	policy.MaxDelay = time.Second
	r := NewBackoffRetryer(policy, nil)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := r.Do(ctx, func() error {
		calls++
		cancel()
		return errors.New("fail")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryer_OnRetryCallback(t *testing.T) {
	policy := fastPolicy(2)
	var attempts []int
	policy.OnRetry = func(attempt int, _ error, _ time.Duration) {
		attempts = append(attempts, attempt)
	}
	r := NewBackoffRetryer(policy, nil)

	_ = r.Do(context.Background(), func() error { return errors.New("x") })
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestRetryer_CalculateDelay(t *testing.T) {
	r := NewBackoffRetryer(&RetryPolicy{
		MaxRetries:   5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     300 * time.Millisecond,
		Multiplier:   2.0,
	}, nil)

	assert.Equal(t, 100*time.Millisecond, r.calculateDelay(1))
	assert.Equal(t, 200*time.Millisecond, r.calculateDelay(2))
	assert.Equal(t, 300*time.Millisecond, r.calculateDelay(3))
	assert.Equal(t, 300*time.Millisecond, r.calculateDelay(10))
}

func TestRetryer_CalculateDelayJitterBounds(t *testing.T) {
	r := NewBackoffRetryer(&RetryPolicy{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}, nil)

	for i := 0; i < 50; i++ {
		d := r.calculateDelay(2)
		assert.GreaterOrEqual(t, d, 150*time.Millisecond)
		assert.LessOrEqual(t, d, 250*time.Millisecond)
	}
}

func TestNewBackoffRetryer_NormalizesPolicy(t *testing.T) {
	r := NewBackoffRetryer(&RetryPolicy{MaxRetries: -1, Multiplier: 0.5}, nil)
	assert.Equal(t, 0, r.policy.MaxRetries)
	assert.Equal(t, 2.0, r.policy.Multiplier)
	assert.Positive(t, r.policy.InitialDelay)

	def := NewBackoffRetryer(nil, nil)
	assert.Equal(t, DefaultRetryPolicy().MaxRetries, def.policy.MaxRetries)
}
