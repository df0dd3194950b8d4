// Package retry provides the per-action retry policy: an exponential
// backoff schedule with optional jitter and a transient-error classifier.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/flowmatic/conductor/common/config"
)

// Policy decides whether an action attempt is retried and how long to wait.
type Policy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	BackoffFactor float64
	UseJitter     bool
	MaxDelay      time.Duration

	// rand returns a uniform float64 in [0,1); swapped out in tests.
	rand func() float64
}

// Default returns the stock policy: 3 attempts, 200ms initial delay,
// factor 2.0, jitter on, 60s cap.
func Default() Policy {
	return FromConfig(config.RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  200 * time.Millisecond,
		BackoffFactor: 2.0,
		UseJitter:     true,
		MaxDelay:      60 * time.Second,
	})
}

// FromConfig builds a policy from service configuration.
func FromConfig(cfg config.RetryConfig) Policy {
	p := Policy{
		MaxAttempts:   cfg.MaxAttempts,
		InitialDelay:  cfg.InitialDelay,
		BackoffFactor: cfg.BackoffFactor,
		UseJitter:     cfg.UseJitter,
		MaxDelay:      cfg.MaxDelay,
		rand:          rand.Float64,
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BackoffFactor < 1.0 {
		p.BackoffFactor = 1.0
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 60 * time.Second
	}
	return p
}

// NextDelay returns the backoff before the retry following the given
// 1-based attempt. With jitter the delay is uniform in [0.5d, d].
func (p Policy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := float64(p.InitialDelay) * math.Pow(p.BackoffFactor, float64(attempt-1))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}

	if p.UseJitter {
		r := p.rand
		if r == nil {
			r = rand.Float64
		}
		d = d * (0.5 + 0.5*r())
	}

	return time.Duration(d)
}

// ShouldRetry reports whether another attempt is allowed after a
// retriable failure on the given 1-based attempt.
func (p Policy) ShouldRetry(attempt int, retriable bool) bool {
	return retriable && attempt < p.MaxAttempts
}

// IsRetryableError classifies an error as transient when the handler did
// not classify the failure itself: network timeouts, connection resets,
// DNS hiccups, and deadline expiry qualify; caller cancellation does not.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary()
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		// Connection reset / refused style faults
		return true
	}

	return false
}

// IsRetryableStatus classifies an HTTP response status as transient:
// 429 and every 5xx qualify.
func IsRetryableStatus(status int) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	return status >= 500 && status <= 599
}
