package retry

import (
	"errors"
	"fmt"
	"time"
)

// ErrMaxRetriesExceeded is returned when an operation fails on every attempt
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// Policy describes how an operation should be retried
type Policy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	Multiplier     float64
	MaxBackoff     time.Duration

	// RetryableFunc overrides the default "retry everything" classification
	RetryableFunc func(error) bool
}

// Validate checks the policy for usable values
func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0, got %d", p.MaxRetries)
	}
	if p.InitialBackoff <= 0 {
		return fmt.Errorf("initial backoff must be positive, got %s", p.InitialBackoff)
	}
	if p.Multiplier < 1 {
		return fmt.Errorf("multiplier must be >= 1, got %f", p.Multiplier)
	}
	return nil
}

// Backoff computes exponential backoff durations from a policy
type Backoff struct {
	policy Policy
}

// NewBackoff creates a backoff calculator for the given policy
func NewBackoff(policy Policy) *Backoff {
	return &Backoff{policy: policy}
}

// Calculate returns the backoff duration before the given attempt (1-based)
func (b *Backoff) Calculate(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := float64(b.policy.InitialBackoff)
	for i := 1; i < attempt; i++ {
		d *= b.policy.Multiplier
	}

	result := time.Duration(d)
	if b.policy.MaxBackoff > 0 && result > b.policy.MaxBackoff {
		result = b.policy.MaxBackoff
	}
	return result
}
