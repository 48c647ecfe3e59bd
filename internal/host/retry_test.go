package host

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  1 * time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
	}
}

func TestRetryWithBackoff_Success(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), testPolicy(), func() error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("throttled")
		}
		return nil
	}, func(err error) bool {
		return true
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_NonRetryable(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), testPolicy(), func() error {
		attempts++
		return fmt.Errorf("invalid argument")
	}, IsTransientError)

	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryWithBackoff_MaxRetriesExceeded(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), testPolicy(), func() error {
		attempts++
		return fmt.Errorf("connection refused")
	}, IsTransientError)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max retries")
	assert.Equal(t, 4, attempts)
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RetryWithBackoff(ctx, testPolicy(), func() error {
		return fmt.Errorf("timeout")
	}, IsTransientError)

	assert.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryWithBackoff_NilPolicyUsesDefault(t *testing.T) {
	err := RetryWithBackoff(context.Background(), nil, func() error {
		return nil
	}, IsTransientError)
	assert.NoError(t, err)
}

func TestIsTransientError(t *testing.T) {
	assert.False(t, IsTransientError(nil))
	assert.True(t, IsTransientError(fmt.Errorf("RequestLimitExceeded: Throttling")))
	assert.True(t, IsTransientError(fmt.Errorf("dial tcp: i/o timeout")))
	assert.True(t, IsTransientError(fmt.Errorf("503 Service Unavailable")))
	assert.False(t, IsTransientError(fmt.Errorf("access denied")))
	assert.False(t, IsTransientError(fmt.Errorf("no template with this version")))
}

func TestCalculateBackoff_Capped(t *testing.T) {
	for attempt := 0; attempt < 10; attempt++ {
		d := calculateBackoff(attempt, 1*time.Second, 5*time.Second)
		assert.LessOrEqual(t, d, 5*time.Second)
		assert.GreaterOrEqual(t, d, time.Duration(0))
	}
}
