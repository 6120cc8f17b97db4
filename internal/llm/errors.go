package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// LLMError wraps a provider failure that survived retry exhaustion. It is
// transient from the task runner's perspective in the sense that the turn
// that triggered it can be retried by the caller, but the client itself will
// not retry further once this is returned.
type LLMError struct {
	Provider string
	Attempts int
	Cause    error
}

func (e *LLMError) Error() string {
	return fmt.Sprintf("llm: %s: failed after %d attempt(s): %s", e.Provider, e.Attempts, e.Cause)
}

func (e *LLMError) Unwrap() error { return e.Cause }

// NewLLMError builds an LLMError from a provider name, attempt count, and
// the final underlying error.
func NewLLMError(provider string, attempts int, cause error) *LLMError {
	return &LLMError{Provider: provider, Attempts: attempts, Cause: cause}
}

// IsRetryable reports whether err looks like a transient provider failure
// worth retrying: network errors, request timeouts, rate limiting, and 5xx
// responses. Context cancellation and deadline errors are never retryable —
// the caller is giving up, not asking for another attempt. Anything else
// (bad request, auth failure, invalid model) is treated as permanent since
// retrying it would just reproduce the same error.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"timeout",
		"timed out",
		"connection reset",
		"connection refused",
		"eof",
		"rate limit",
		"too many requests",
		"overloaded",
		"429",
		"500",
		"502",
		"503",
		"504",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
