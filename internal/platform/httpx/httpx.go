// Package httpx holds the retry policy shared by outbound HTTP clients.
package httpx

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type HTTPStatusCoder interface {
	HTTPStatusCode() int
}

// Retryabler lets an error override the status-based classification.
type Retryabler interface {
	Retryable() bool
}

// RetryAfterer reports a server-requested delay, zero when none was sent.
type RetryAfterer interface {
	RetryAfter() time.Duration
}

func IsRetryableHTTPStatus(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500 && code <= 599 && code != http.StatusNotImplemented
}

// IsRetryableError reports whether another attempt could succeed. Context
// cancellation and deadline expiry never are.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	var r Retryabler
	if errors.As(err, &r) {
		return r.Retryable()
	}
	var sc HTTPStatusCoder
	if errors.As(err, &sc) {
		return IsRetryableHTTPStatus(sc.HTTPStatusCode())
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// RetryAfterDuration parses a Retry-After header given in seconds or as an
// HTTP date. It returns 0 when the header is absent or unparseable.
func RetryAfterDuration(h http.Header, now time.Time) time.Duration {
	ra := strings.TrimSpace(h.Get("Retry-After"))
	if ra == "" {
		return 0
	}
	if secs, err := strconv.Atoi(ra); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(ra); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

func JitterSleep(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	j := 0.2
	delta := base.Seconds() * j
	low := base.Seconds() - delta
	high := base.Seconds() + delta
	if low < 0 {
		low = 0
	}
	v := low + rand.Float64()*(high-low)
	return time.Duration(v * float64(time.Second))
}

// Policy bounds retries of one logical request.
type Policy struct {
	// MaxRetries is the number of attempts after the first.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Delay is the wait before retry number attempt (1-based). A server hint
// replaces the exponential step but is still capped by MaxDelay.
func (p Policy) Delay(attempt int, err error) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			break
		}
	}
	var ra RetryAfterer
	if errors.As(err, &ra) && ra.RetryAfter() > 0 {
		d = ra.RetryAfter()
	} else {
		d = JitterSleep(d)
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Do calls fn until it succeeds, returns a non-retryable error, the retry
// budget is spent or ctx ends. onRetry, when set, is told about each retry
// before the wait.
func Do(ctx context.Context, p Policy, onRetry func(attempt int, err error, wait time.Duration), fn func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= p.MaxRetries || !IsRetryableError(err) || ctx.Err() != nil {
			return err
		}
		wait := p.Delay(attempt+1, err)
		if onRetry != nil {
			onRetry(attempt+1, err, wait)
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
}
