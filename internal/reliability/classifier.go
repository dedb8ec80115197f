package reliability

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"
)

// IsRetryableHTTPStatus reports whether a failed upgrade or request with this
// status is worth another attempt.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsRetryableStreamError classifies error frames sent on the synthesis and
// transcription sockets.
func IsRetryableStreamError(messageType string) bool {
	switch messageType {
	case "rate_limited", "resource_exhausted", "queue_overflow", "input_timeout_exceeded":
		return true
	default:
		return false
	}
}

type retryable interface {
	Retryable() bool
}

type statusCoder interface {
	HTTPStatus() int
}

// Retryable decides whether a connect error should be retried. Errors that
// carry their own verdict win; cancellation never retries; everything else
// (timeouts, resets, refused connections) does.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// Code maps an error to a short metric label.
func Code(err error) string {
	if err == nil {
		return "ok"
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		return "http_" + strconv.Itoa(sc.HTTPStatus())
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return "timeout"
	}
	return "error"
}

// Backoff doubles base per attempt, capped at max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	return d
}
