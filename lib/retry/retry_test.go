package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func TestRetrySucceedsAfterTransientErrors(t *testing.T) {
	calls := 0
	res, err := Retry(context.Background(), 5, time.Millisecond, func(err error) bool {
		return errors.Is(err, errTransient)
	}, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errTransient
		}
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, res)
	require.Equal(t, 3, calls)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	_, err := Retry(context.Background(), 5, time.Millisecond, func(err error) bool {
		return errors.Is(err, errTransient)
	}, func() (struct{}, error) {
		calls++
		return struct{}{}, permanent
	})
	require.ErrorIs(t, err, permanent)
	require.Equal(t, 1, calls)
}

func TestRetryGivesUp(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), 3, time.Millisecond, nil, func() (string, error) {
		calls++
		return "", errTransient
	})
	require.ErrorIs(t, err, errTransient)
	require.Equal(t, 3, calls)
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Retry(ctx, 3, time.Hour, nil, func() (string, error) {
		return "", errTransient
	})
	require.ErrorIs(t, err, context.Canceled)
}
