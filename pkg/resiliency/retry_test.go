package resiliency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryGetBoundedSucceedsAfterFailures(t *testing.T) {
	attempts := 0
	v, err := RetryGetBounded(context.Background(), 3, time.Millisecond, func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, attempts)
}

func TestRetryGetBoundedGivesUp(t *testing.T) {
	attempts := 0
	boom := errors.New("boom")
	_, err := RetryGetBounded(context.Background(), 3, time.Millisecond, func() (int, error) {
		attempts++
		return 0, boom
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, attempts)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	attempts := 0
	fatal := errors.New("fatal")
	err := Retry(context.Background(), neverBackoff{}, func() error {
		attempts++
		return Permanent(fatal)
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, attempts)
}

func TestRetryReportsLastAttemptErrorOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	transient := errors.New("still failing")

	err := Retry(ctx, neverBackoff{}, func() error {
		cancel()
		return transient
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, transient)
}

// neverBackoff retries immediately and never gives up on its own.
type neverBackoff struct{}

func (neverBackoff) NextBackOff() time.Duration { return 0 }
func (neverBackoff) Reset()                     {}
