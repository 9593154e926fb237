// Package retry wraps I/O-bound operations with bounded exponential
// backoff and error classification.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"regexp"
	"strings"
	"time"
)

const (
	defaultRetries   = 2
	defaultBaseDelay = 300 * time.Millisecond
	defaultMaxDelay  = 3 * time.Second
	defaultFactor    = 2.0
	maxJitter        = 120 * time.Millisecond
)

// CancelledError marks a user-initiated cancellation. It is never retried
// and maps to a distinct error code at the HTTP layer.
type CancelledError struct {
	msg string
}

func (e *CancelledError) Error() string { return e.msg }

// NewCancelled builds a cancellation error with the default message.
func NewCancelled() error {
	return &CancelledError{msg: "ingestion cancelled by user"}
}

// Options tunes one retried operation. Zero values fall back to the
// defaults (2 retries, 300ms base, 3s cap, factor 2).
type Options struct {
	Retries     int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Factor      float64
	ShouldRetry func(err error, attempt int) bool
}

func (o Options) withDefaults() Options {
	if o.Retries == 0 {
		o.Retries = defaultRetries
	}
	if o.BaseDelay == 0 {
		o.BaseDelay = defaultBaseDelay
	}
	if o.MaxDelay == 0 {
		o.MaxDelay = defaultMaxDelay
	}
	if o.Factor == 0 {
		o.Factor = defaultFactor
	}
	return o
}

// Do executes task up to opts.Retries+1 times. The task receives the
// 1-based attempt number. Between failed attempts Do sleeps
// min(base*factor^(attempt-1), cap) plus up to 120ms of jitter, honoring
// ctx cancellation during the wait. Without a ShouldRetry classifier every
// error is retried.
func Do[T any](ctx context.Context, task func(attempt int) (T, error), opts Options) (T, error) {
	opts = opts.withDefaults()

	var zero T
	var lastErr error

	for attempt := 1; attempt <= opts.Retries+1; attempt++ {
		out, err := task(attempt)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if attempt > opts.Retries {
			break
		}
		if opts.ShouldRetry != nil && !opts.ShouldRetry(err, attempt) {
			break
		}

		backoff := opts.BaseDelay
		for i := 1; i < attempt; i++ {
			backoff = time.Duration(float64(backoff) * opts.Factor)
		}
		if backoff > opts.MaxDelay {
			backoff = opts.MaxDelay
		}
		backoff += time.Duration(rand.Int63n(int64(maxJitter)))

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}

	return zero, lastErr
}

var serverStatusPattern = regexp.MustCompile(`(^|\D)5\d\d(\D|$)`)

// IsCancellation reports whether err signals a user-initiated cancellation.
func IsCancellation(err error) bool {
	if err == nil {
		return false
	}
	var cancelled *CancelledError
	if errors.As(err, &cancelled) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "cancelled")
}

// IsRetryable reports whether err looks like a transient infrastructure
// failure: timeouts, network/socket errors, HTTP 429, or any 5xx status
// encoded in the message. Cancellations are never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsCancellation(err) {
		return false
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "timed out") ||
		strings.Contains(msg, "deadline exceeded") ||
		strings.Contains(msg, "network") ||
		strings.Contains(msg, "socket") ||
		strings.Contains(msg, "econn") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "429") ||
		serverStatusPattern.MatchString(msg)
}

// IsValidationMessage reports whether err describes a deterministic input
// problem that retrying cannot fix.
func IsValidationMessage(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "required") ||
		strings.Contains(msg, "unsupported") ||
		strings.Contains(msg, "valid url") ||
		strings.Contains(msg, "too short")
}
