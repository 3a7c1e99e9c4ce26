package provider

import (
	"errors"
	"fmt"
)

// AuthError is a permanent credential failure. The runner aborts
// immediately on these instead of retrying.
type AuthError struct {
	Provider string
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Provider, e.Message)
}

// IsAuthError reports whether err (or anything in its chain) is an
// AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// RateLimitError is a transient throttling response. The runner retries
// these with backoff.
type RateLimitError struct {
	Provider string
	Message  string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited (%s): %s", e.Provider, e.Message)
}

// IsRateLimitError reports whether err is a RateLimitError.
func IsRateLimitError(err error) bool {
	var rlErr *RateLimitError
	return errors.As(err, &rlErr)
}

// MessageError marks a defect local to one message (malformed headers,
// missing fields). The runner skips and counts the message instead of
// aborting the batch.
type MessageError struct {
	MessageID string
	Err       error
}

func (e *MessageError) Error() string {
	return fmt.Sprintf("message %s: %v", e.MessageID, e.Err)
}

func (e *MessageError) Unwrap() error { return e.Err }

// IsMessageError reports whether err is a per-message defect.
func IsMessageError(err error) bool {
	var msgErr *MessageError
	return errors.As(err, &msgErr)
}
