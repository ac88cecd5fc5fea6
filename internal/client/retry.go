package client

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rendis/flowcanvas/pkg/schema"
)

// RetryPolicy controls how idempotent reads are retried. Saves are never
// retried. The zero value makes a single attempt.
type RetryPolicy struct {
	Attempts int
	// Delay is the first backoff; each later one doubles, capped at MaxDelay.
	Delay    time.Duration
	MaxDelay time.Duration
}

func (p RetryPolicy) attempts() int {
	if p.Attempts < 1 {
		return 1
	}
	return p.Attempts
}

// backoff returns the wait before retry number attempt (0-based).
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.Delay
	for i := 0; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d > p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

// retryable reports whether a read should be tried again. Transport
// failures, 429 and 5xx answers are; a cancelled context is not.
func retryable(ctx context.Context, status int, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		return schema.IsCode(err, schema.ErrCodeNetwork) && !errors.Is(err, context.Canceled)
	}
	return status == http.StatusTooManyRequests || status >= 500
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// get performs a GET under the retry policy and returns the last answer.
func (c *Client) get(ctx context.Context, u string) (int, []byte, error) {
	var (
		status int
		body   []byte
		err    error
	)
	n := c.retry.attempts()
	for attempt := 0; attempt < n; attempt++ {
		status, body, err = c.do(ctx, http.MethodGet, u, nil)
		if attempt == n-1 || !retryable(ctx, status, err) {
			break
		}
		delay := c.retry.backoff(attempt)
		c.logger.WarnContext(ctx, "retrying request", "url", u, "attempt", attempt+1, "status", status, "delay", delay)
		if werr := wait(ctx, delay); werr != nil {
			break
		}
	}
	return status, body, err
}
