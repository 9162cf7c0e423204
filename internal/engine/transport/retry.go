package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"sync/atomic"
	"time"
)

// RateLimitError indicates the remote side is throttling us.
type RateLimitError struct {
	StatusCode int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited (status %d)", e.StatusCode)
}

// StatusError is a non-retryable unexpected HTTP status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Retryer executes requests with exponential backoff and jitter on rate
// limiting and 5xx responses.
type Retryer struct {
	Client       *http.Client
	MaxRetries   int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
	JitterFactor float64

	rateLimits atomic.Int64
}

func NewRetryer(client *http.Client) *Retryer {
	return &Retryer{
		Client:       client,
		MaxRetries:   3,
		BaseBackoff:  500 * time.Millisecond,
		MaxBackoff:   10 * time.Second,
		JitterFactor: 0.5,
	}
}

// Fetch builds a request with newReq for every attempt and returns the body
// of the first 200 response.
func (r *Retryer) Fetch(ctx context.Context, newReq func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	attempts := r.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := range attempts {
		req, err := newReq(ctx)
		if err != nil {
			return nil, fmt.Errorf("building request: %w", err)
		}
		body, err := r.do(req)
		if err == nil {
			r.rateLimits.Store(0)
			return body, nil
		}
		lastErr = err

		if !retryable(err) {
			return nil, err
		}

		var rl *RateLimitError
		if errors.As(err, &rl) {
			r.rateLimits.Add(1)
		}
		if attempt == attempts-1 {
			break
		}

		backoff := r.BaseBackoff * time.Duration(1<<uint(attempt))
		if backoff > r.MaxBackoff {
			backoff = r.MaxBackoff
		}
		jitter := time.Duration(float64(backoff) * r.JitterFactor * rand.Float64())
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff + jitter):
		}
	}

	return nil, lastErr
}

// ConsecutiveRateLimits returns how many rate limits occurred since the last success.
func (r *Retryer) ConsecutiveRateLimits() int64 {
	return r.rateLimits.Load()
}

func (r *Retryer) do(req *http.Request) ([]byte, error) {
	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		io.Copy(io.Discard, resp.Body)
		return nil, &RateLimitError{StatusCode: resp.StatusCode}
	case resp.StatusCode != http.StatusOK:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	return body, nil
}

func retryable(err error) bool {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	// Context cancellation is final; other transport errors are retried.
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
