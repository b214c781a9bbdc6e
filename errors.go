package codexcore

import (
	"fmt"
	"time"
)

// Fixed rejection messages for apply_patch, shared verbatim between the
// Approval Gate (C4, Never policy) and the Apply-Patch Tool (C6, path
// confinement and empty-patch checks) so both paths produce byte-identical
// FunctionCallOutput text.
const (
	PatchRejectedOutsideWorkspace = "patch rejected: writing outside of the project; rejected by user approval settings"
	PatchRejectedEmpty            = "patch rejected: empty patch"
)

// ErrContextWindowExceeded is fatal: the model rejected the request because
// the accumulated input exceeds its context window.
type ErrContextWindowExceeded struct {
	Message string
}

func (e *ErrContextWindowExceeded) Error() string { return "context window exceeded: " + e.Message }

// ErrQuotaExceeded is fatal: the account has no remaining quota.
type ErrQuotaExceeded struct {
	Message string
}

func (e *ErrQuotaExceeded) Error() string { return "quota exceeded: " + e.Message }

// ErrUsageLimitReached is fatal: the plan's usage limit was hit.
type ErrUsageLimitReached struct {
	Plan     string
	ResetsAt *time.Time
	Snapshot RateLimitSnapshot
}

func (e *ErrUsageLimitReached) Error() string {
	return fmt.Sprintf("usage limit reached for plan %q", e.Plan)
}

// ErrUsageNotIncluded is fatal: the account's plan does not include API
// usage at all.
type ErrUsageNotIncluded struct{}

func (e *ErrUsageNotIncluded) Error() string { return "usage not included in current plan" }

// ErrRefreshTokenFailed is fatal: a 401 could not be resolved by refreshing
// credentials.
type ErrRefreshTokenFailed struct {
	Cause error
}

func (e *ErrRefreshTokenFailed) Error() string { return fmt.Sprintf("refresh token failed: %v", e.Cause) }
func (e *ErrRefreshTokenFailed) Unwrap() error { return e.Cause }

// ErrRetryLimitReached is surfaced after a retryable HTTP error exhausts all
// attempts, except a final 500 which maps to ErrInternalServer instead.
type ErrRetryLimitReached struct {
	Status    int
	RequestID string
}

func (e *ErrRetryLimitReached) Error() string {
	return fmt.Sprintf("retry limit reached: http %d (request %s)", e.Status, e.RequestID)
}

// ErrInternalServer is surfaced when the final retry attempt still returns
// an HTTP 500.
type ErrInternalServer struct {
	RequestID string
}

func (e *ErrInternalServer) Error() string { return "internal server error: request " + e.RequestID }

// ErrStream covers SSE idle timeout, premature close, and malformed frames.
// A non-nil RetryAfter, when present, came from a rate_limit_exceeded
// message parsed by the stream parser.
type ErrStream struct {
	Message    string
	RetryAfter *time.Duration
}

func (e *ErrStream) Error() string { return "stream error: " + e.Message }

// ErrHTTP wraps a non-2xx HTTP response that is not one of the named fatal
// conditions above.
type ErrHTTP struct {
	Status     int
	Body       string
	RetryAfter *time.Duration
}

func (e *ErrHTTP) Error() string { return fmt.Sprintf("http %d: %s", e.Status, e.Body) }

// ErrTransport covers DNS/connect/TLS/read failures that occur before any
// response body is received.
type ErrTransport struct {
	Cause error
}

func (e *ErrTransport) Error() string { return fmt.Sprintf("transport error: %v", e.Cause) }
func (e *ErrTransport) Unwrap() error { return e.Cause }
