package ai

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTransientError(t *testing.T) {
	cases := []struct {
		err       error
		transient bool
	}{
		{nil, false},
		{errors.New("request timeout"), true},
		{errors.New("context deadline exceeded"), true},
		{errors.New("read tcp: connection reset by peer"), true},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("unexpected EOF"), true},
		{errors.New("write: broken pipe"), true},
		{errors.New("provider returned status 429"), true},
		{errors.New("error, status code: 503, message: overloaded"), true},
		{errors.New("provider returned status 500"), true},
		{errors.New("status 401 unauthorized"), false},
		{errors.New("invalid api key"), false},
		{errors.New("model not found"), false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.transient, isTransientError(tc.err), "err=%v", tc.err)
	}
}

func TestWithRetryNonTransientAbortsImmediately(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), "test op", func(ctx context.Context) error {
		calls++
		return errors.New("invalid api key")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Contains(t, err.Error(), "test op failed")
}

func TestWithRetryRecoversFromTransientError(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), "test op", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("provider returned status 503")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestWithRetryInvalidResponseRetried(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), "test op", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return fmt.Errorf("%w: got 3 scenes, want 2", ErrInvalidResponse)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), "test op", func(ctx context.Context) error {
		calls++
		return errors.New("request timeout")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestWithRetryCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	start := time.Now()
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := withRetry(ctx, "test op", func(ctx context.Context) error {
		calls++
		return errors.New("request timeout")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), 900*time.Millisecond)
}
