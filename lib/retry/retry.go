package retry

import (
	"context"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/jpillora/backoff"
)

var log = logging.Logger("retry")

// Retry calls f until it succeeds, returns an error that isRetryable rejects,
// the attempts are exhausted or ctx is done. The wait between attempts
// doubles from initial, capped at ten times initial.
func Retry[T any](ctx context.Context, attempts int, initial time.Duration, isRetryable func(error) bool, f func() (T, error)) (result T, err error) {
	b := &backoff.Backoff{
		Min:    initial,
		Max:    10 * initial,
		Factor: 2,
	}
	for i := 0; i < attempts; i++ {
		if i > 0 {
			wait := b.Duration()
			log.Infow("retrying after error", "attempt", i+1, "wait", wait, "error", err)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return result, ctx.Err()
			}
		}
		result, err = f()
		if err == nil {
			return result, nil
		}
		if isRetryable != nil && !isRetryable(err) {
			return result, err
		}
	}
	log.Errorf("Failed after %d attempts, last error: %s", attempts, err)
	return result, err
}
