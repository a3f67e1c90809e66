package ai

import (
	"errors"
	"strings"
)

// ErrInvalidResponse marks a provider reply that parsed but failed
// validation (wrong scene count, empty narration, text instead of image).
// These are retried: model output is nondeterministic and the next
// attempt often succeeds.
var ErrInvalidResponse = errors.New("ai provider returned invalid response")

// isTransientError reports whether an error looks like a network hiccup
// or provider overload. Auth and bad-request errors are not transient.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "status 429") ||
		strings.Contains(errStr, "status code: 429") ||
		strings.Contains(errStr, "status 500") ||
		strings.Contains(errStr, "status code: 500") ||
		strings.Contains(errStr, "status 502") ||
		strings.Contains(errStr, "status code: 502") ||
		strings.Contains(errStr, "status 503") ||
		strings.Contains(errStr, "status code: 503")
}
