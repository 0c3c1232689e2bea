package blobstore

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Retry backoff bounds for transient storage failures.
const (
	retryWaitMin = 500 * time.Millisecond
	retryWaitMax = 8 * time.Second
)

// Retry runs fn up to attempts times, backing off between tries, as long as
// the failure classes as transient (ErrUnavailable). Permanent rejections
// and token/session errors return immediately: retry policy differs by
// failure class and only the transient class is safe to retry blindly.
func Retry(ctx context.Context, attempts int, fn func() error) error {
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !errors.Is(err, ErrUnavailable) {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		wait := retryablehttp.DefaultBackoff(retryWaitMin, retryWaitMax, attempt, nil)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(wait):
		}
	}
	return err
}
