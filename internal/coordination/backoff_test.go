package coordination

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffPolicy_Delay(t *testing.T) {
	p := &BackoffPolicy{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     1 * time.Second,
		BackoffFactor:  2.0,
		JitterFactor:   0,
	}

	assert.Equal(t, 100*time.Millisecond, p.Delay(0))
	assert.Equal(t, 200*time.Millisecond, p.Delay(1))
	assert.Equal(t, 400*time.Millisecond, p.Delay(2))
}

func TestBackoffPolicy_Delay_CapsAtMax(t *testing.T) {
	p := &BackoffPolicy{
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     2 * time.Second,
		BackoffFactor:  10.0,
		JitterFactor:   0,
	}

	assert.Equal(t, 2*time.Second, p.Delay(5))
}

func TestRetry_SucceedsEventually(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), &BackoffPolicy{
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		BackoffFactor:  1,
	}, 5, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), &BackoffPolicy{
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		BackoffFactor:  1,
	}, 3, func() error {
		attempts++
		return errors.New("still failing")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, &BackoffPolicy{
		InitialBackoff: time.Second,
		MaxBackoff:     time.Second,
		BackoffFactor:  1,
	}, 0, func() error {
		return errors.New("fails")
	})

	assert.ErrorIs(t, err, context.Canceled)
}
