package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyRetryableTypes(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantType  ErrorType
		retryable bool
	}{
		{"timeout", errors.New("request timeout exceeded"), ErrorTypeTimeout, true},
		{"deadline", context.DeadlineExceeded, ErrorTypeTimeout, true},
		{"connection refused", errors.New("dial tcp: connection refused"), ErrorTypeNetwork, true},
		{"server error", errors.New("server error: 503 service unavailable"), ErrorTypeServerError, true},
		{"config", errors.New("invalid config value"), ErrorTypeConfig, false},
		{"unknown", errors.New("something odd"), ErrorTypeUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce := Classify(tt.err, "source", "fetch")
			require.NotNil(t, ce)
			assert.Equal(t, tt.wantType, ce.Type)
			assert.Equal(t, tt.retryable, ce.Retryable)
			assert.Equal(t, "source", ce.Component)
		})
	}
}

func TestClassifyPassesThroughClassifiedErrors(t *testing.T) {
	orig := NewSchemaError([]string{"date"})
	ce := Classify(orig, "other", "op")
	assert.Same(t, orig, ce)
}

func TestClassifyNilIsNil(t *testing.T) {
	assert.Nil(t, Classify(nil, "source", "fetch"))
}

func TestSchemaErrorIdentity(t *testing.T) {
	err := NewSchemaError([]string{"date", "location"})
	assert.True(t, IsSchemaError(err))
	assert.False(t, IsMetricUnavailable(err))
	assert.Contains(t, err.Error(), "date, location")

	wrapped := fmt.Errorf("pipeline aborted: %w", err)
	assert.True(t, IsSchemaError(wrapped))
}

func TestMetricUnavailableIdentity(t *testing.T) {
	err := NewMetricUnavailable("total_cases")
	assert.True(t, IsMetricUnavailable(err))
	assert.False(t, IsSchemaError(err))
	assert.Contains(t, err.Error(), "total_cases")
}

func TestClassifiedErrorUnwrap(t *testing.T) {
	inner := errors.New("disk full")
	err := NewCacheError("put", inner)
	assert.True(t, errors.Is(err, inner))
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	calls := 0
	err := Retry(context.Background(), nil, policy, "source", "fetch", func() error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	calls := 0
	err := Retry(context.Background(), nil, policy, "source", "fetch", func() error {
		calls++
		return errors.New("something odd")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	calls := 0
	err := Retry(context.Background(), nil, policy, "source", "fetch", func() error {
		calls++
		return errors.New("request timeout")
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 10, InitialDelay: time.Second, MaxDelay: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, nil, policy, "source", "fetch", func() error {
		return errors.New("connection reset")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
