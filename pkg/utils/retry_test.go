package utils_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rallywatch/rallywatch/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errTemporary = errors.New("temporary error")
	errPermanent = errors.New("permanent error")
)

func testRetryOptions() utils.RetryOptions {
	return utils.RetryOptions{
		MaxElapsedTime:  100 * time.Millisecond,
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     20 * time.Millisecond,
		MaxRetries:      3,
	}
}

func TestWithRetry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		operation     func() (string, error)
		expectedCalls int
		expectedErr   error
		expected      string
	}{
		{
			name: "succeeds first try",
			operation: func() (string, error) {
				return "ok", nil
			},
			expectedCalls: 1,
			expected:      "ok",
		},
		{
			name: "succeeds after retries",
			operation: func() func() (string, error) {
				count := 0
				return func() (string, error) {
					count++
					if count < 3 {
						return "", errTemporary
					}
					return "ok", nil
				}
			}(),
			expectedCalls: 3,
			expected:      "ok",
		},
		{
			name: "fails all retries",
			operation: func() (string, error) {
				return "", errTemporary
			},
			expectedCalls: 4, // Initial + 3 retries
			expectedErr:   errTemporary,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			calls := 0
			wrappedOp := func() (string, error) {
				calls++
				return tt.operation()
			}

			result, err := utils.WithRetry(t.Context(), wrappedOp, testRetryOptions())

			if tt.expectedErr != nil {
				require.Error(t, err)
				require.ErrorIs(t, err, tt.expectedErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			}

			assert.Equal(t, tt.expectedCalls, calls)
		})
	}
}

func TestWithRetryPermanent(t *testing.T) {
	t.Parallel()

	calls := 0

	_, err := utils.WithRetry(t.Context(), func() (struct{}, error) {
		calls++
		return struct{}{}, backoff.Permanent(errPermanent)
	}, testRetryOptions())

	require.ErrorIs(t, err, errPermanent)
	assert.Equal(t, 1, calls, "permanent errors must not be retried")
}

func TestWithRetryContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	calls := 0

	_, err := utils.WithRetry(ctx, func() (struct{}, error) {
		calls++
		return struct{}{}, errTemporary
	}, testRetryOptions())

	require.Error(t, err)
	assert.LessOrEqual(t, calls, 1)
}
