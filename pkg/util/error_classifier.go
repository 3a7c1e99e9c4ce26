package util

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"

	"mailtriage/internal/provider"
)

// IsRetryableError determines whether a provider call error is worth
// retrying with backoff.
// Returns: (isRetryable, errorType)
func IsRetryableError(err error) (bool, string) {
	if err == nil {
		return false, ""
	}

	// Permanent credential failures - never retried, they abort the run.
	if provider.IsAuthError(err) {
		return false, "auth_error"
	}

	// Throttling - always retryable.
	if provider.IsRateLimitError(err) {
		return true, "rate_limited"
	}

	// Per-message defects - skipped, not retried.
	if provider.IsMessageError(err) {
		return false, "message_error"
	}

	// Context state: a deadline is retryable on the next attempt, an
	// explicit cancel is not.
	if errors.Is(err, context.DeadlineExceeded) {
		return true, "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return false, "context_canceled"
	}

	// Network errors - retryable.
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}

	errStr := err.Error()

	// HTTP status hints from adapters that only surface text.
	if strings.Contains(errStr, "429") || strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "quota") || strings.Contains(errStr, "throttl") {
		return true, "rate_limited"
	}
	if strings.Contains(errStr, "401") || strings.Contains(errStr, "403") ||
		strings.Contains(errStr, "unauthorized") || strings.Contains(errStr, "permission denied") {
		return false, "auth_error"
	}
	if strings.Contains(errStr, "500") || strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") || strings.Contains(errStr, "504") {
		return true, "server_error"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "timeout") {
		return true, "connection_error"
	}

	// Unknown errors are handled conservatively: no retry.
	return false, "unknown_error"
}

// ShouldRetry checks if an error should be retried based on the attempt
// count so far.
func ShouldRetry(attempt, maxAttempts int, isRetryable bool) bool {
	if !isRetryable {
		return false
	}
	return attempt < maxAttempts
}
