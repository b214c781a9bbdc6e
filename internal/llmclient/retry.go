package llmclient

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/nevindra/codexcore"
)

const (
	baseBackoff   = 500 * time.Millisecond
	maxBackoffCap = 30 * time.Second
)

// retryBackoff mirrors the provider's own backoff curve: exponential growth
// with up-to-50%-of-exponent jitter, keyed by a 1-based attempt number.
func retryBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	exp := baseBackoff << uint(attempt-1)
	if exp > maxBackoffCap {
		exp = maxBackoffCap
	}
	jitter := time.Duration(rand.Int63n(int64(exp)/2 + 1))
	return exp + jitter
}

// retryAfterOrBackoff prefers a Retry-After response header (whole seconds)
// over the computed backoff curve.
func retryAfterOrBackoff(h http.Header, attempt int) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return retryBackoff(attempt)
}

type rateLimitBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Type    string `json:"type"`
		Plan    string `json:"plan,omitempty"`
	} `json:"error"`
}

// classify429 interprets a 429 response body per the fatal/retryable
// distinction: usage_limit_reached and insufficient_quota/usage_not_included
// are fatal; anything else is a retryable HTTP error.
func classify429(body []byte, snapshot codexcore.RateLimitSnapshot) error {
	var parsed rateLimitBody
	_ = json.Unmarshal(body, &parsed)

	switch parsed.Error.Code {
	case "usage_limit_reached":
		return &codexcore.ErrUsageLimitReached{Plan: parsed.Error.Plan, Snapshot: snapshot}
	case "usage_not_included":
		return &codexcore.ErrUsageNotIncluded{}
	case "insufficient_quota":
		return &codexcore.ErrQuotaExceeded{Message: parsed.Error.Message}
	default:
		return nil // retryable
	}
}
