package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stakevine/stakevine_core/pkg/retry"
)

func fastPolicy(maxRetries int) retry.Policy {
	return retry.Policy{
		MaxRetries:     maxRetries,
		InitialBackoff: time.Millisecond,
		Multiplier:     2,
		MaxBackoff:     10 * time.Millisecond,
	}
}

func TestRetrier_SucceedsAfterTransientFailures(t *testing.T) {
	var attempts int
	err := retry.Do(context.Background(), fastPolicy(3), zap.NewNop(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetrier_ExhaustsRetries(t *testing.T) {
	var attempts int
	err := retry.Do(context.Background(), fastPolicy(2), zap.NewNop(), func() error {
		attempts++
		return errors.New("always failing")
	})

	assert.ErrorIs(t, err, retry.ErrMaxRetriesExceeded)
	assert.Equal(t, 3, attempts)
}

func TestRetrier_StopsOnNonRetryableError(t *testing.T) {
	sentinel := errors.New("validation failed")
	policy := fastPolicy(5)
	policy.RetryableFunc = func(err error) bool { return !errors.Is(err, sentinel) }

	var attempts int
	err := retry.Do(context.Background(), policy, zap.NewNop(), func() error {
		attempts++
		return sentinel
	})

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, attempts)
}

func TestRetrier_HonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var attempts int
	err := retry.Do(ctx, fastPolicy(10), zap.NewNop(), func() error {
		attempts++
		cancel()
		return errors.New("failing")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestBackoff_GrowsAndCaps(t *testing.T) {
	b := retry.NewBackoff(retry.Policy{
		InitialBackoff: time.Second,
		Multiplier:     2,
		MaxBackoff:     5 * time.Second,
	})

	assert.Equal(t, time.Second, b.Calculate(1))
	assert.Equal(t, 2*time.Second, b.Calculate(2))
	assert.Equal(t, 4*time.Second, b.Calculate(3))
	assert.Equal(t, 5*time.Second, b.Calculate(4))
}

func TestPolicy_Validate(t *testing.T) {
	assert.Error(t, retry.Policy{MaxRetries: -1, InitialBackoff: time.Second, Multiplier: 2}.Validate())
	assert.Error(t, retry.Policy{MaxRetries: 1, InitialBackoff: 0, Multiplier: 2}.Validate())
	assert.Error(t, retry.Policy{MaxRetries: 1, InitialBackoff: time.Second, Multiplier: 0.5}.Validate())
	assert.NoError(t, retry.Policy{MaxRetries: 1, InitialBackoff: time.Second, Multiplier: 2}.Validate())
}
