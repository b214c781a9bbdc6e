// Package llmclient implements the Model Client (C2): Responses-API request
// construction, the per-attempt retry loop with 401/429/5xx handling, and
// rate-limit header parsing. Grounded on provider/openaicompat/provider.go's
// sendHTTP + ChatStream shape and retry.go's backoff composition, generalized
// from a single fixed-shape chat-completions body to the Responses-API
// envelope and attempt-loop semantics described for this runtime.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nevindra/codexcore"
	"github.com/nevindra/codexcore/internal/sse"
)

// Config holds the per-client, mostly-static request-building parameters.
type Config struct {
	BaseURL          string
	Model            string
	Family           ModelFamily
	MaxRetries       int
	ReasoningEffort  string
	ReasoningSummary string
	Verbosity        string
	SystemPrompt     string
	ChatGPTAccountID string
	Subagent         bool
}

// AuthProvider supplies a bearer token fresh on every retry attempt and can
// refresh credentials after a 401.
type AuthProvider interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// Client is the session engine's Model Client (C2).
type Client struct {
	cfg    Config
	http   *http.Client
	auth   AuthProvider
	logger *slog.Logger
}

// NewClient constructs a Client. httpClient may be nil to use
// http.DefaultClient.
func NewClient(cfg Config, httpClient *http.Client, auth AuthProvider, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, http: httpClient, auth: auth, logger: logger}
}

// Stream opens an SSE stream for one turn, per the retry loop in §4.2:
// fresh auth every attempt, 401 triggers a refresh-and-retry, 429/5xx retry
// with backoff, everything else is fatal or surfaces verbatim.
func (c *Client) Stream(ctx context.Context, conv codexcore.ConversationId, prompt codexcore.Prompt) (*ResponseStream, error) {
	maxAttempts := c.cfg.MaxRetries + 1
	var lastRequestID string

	for attempt := 0; attempt < maxAttempts; attempt++ {
		token, err := c.auth.Token(ctx)
		if err != nil {
			return nil, &codexcore.ErrRefreshTokenFailed{Cause: err}
		}

		resp, err := c.dispatch(ctx, conv, prompt, token, true)
		if err != nil {
			if attempt == maxAttempts-1 {
				return nil, &codexcore.ErrTransport{Cause: err}
			}
			if !sleep(ctx, retryBackoff(attempt+1)) {
				return nil, ctx.Err()
			}
			continue
		}

		lastRequestID = resp.Header.Get("x-request-id")

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			snapshot := ParseRateLimitHeaders(resp.Header)
			return c.beginPump(ctx, resp, snapshot), nil

		case resp.StatusCode == http.StatusUnauthorized:
			resp.Body.Close()
			if _, err := c.auth.Refresh(ctx); err != nil {
				return nil, &codexcore.ErrRefreshTokenFailed{Cause: err}
			}
			continue

		case resp.StatusCode == http.StatusTooManyRequests:
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			snapshot := ParseRateLimitHeaders(resp.Header)
			if fatal := classify429(body, snapshot); fatal != nil {
				return nil, fatal
			}
			if attempt == maxAttempts-1 {
				return nil, &codexcore.ErrRetryLimitReached{Status: resp.StatusCode, RequestID: lastRequestID}
			}
			if !sleep(ctx, retryAfterOrBackoff(resp.Header, attempt+1)) {
				return nil, ctx.Err()
			}
			continue

		case resp.StatusCode >= 500:
			resp.Body.Close()
			if attempt == maxAttempts-1 {
				if resp.StatusCode == http.StatusInternalServerError {
					return nil, &codexcore.ErrInternalServer{RequestID: lastRequestID}
				}
				return nil, &codexcore.ErrRetryLimitReached{Status: resp.StatusCode, RequestID: lastRequestID}
			}
			if !sleep(ctx, retryAfterOrBackoff(resp.Header, attempt+1)) {
				return nil, ctx.Err()
			}
			continue

		default:
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, &codexcore.ErrHTTP{Status: resp.StatusCode, Body: string(body)}
		}
	}
	return nil, fmt.Errorf("retry loop exhausted without resolving (attempts=%d)", maxAttempts)
}

// CompactConversationHistory calls the non-streaming summarization endpoint
// and returns the provider's output array, for the Compaction Engine (C9).
func (c *Client) CompactConversationHistory(ctx context.Context, conv codexcore.ConversationId, prompt codexcore.Prompt) ([]codexcore.ResponseItem, error) {
	token, err := c.auth.Token(ctx)
	if err != nil {
		return nil, &codexcore.ErrRefreshTokenFailed{Cause: err}
	}
	resp, err := c.dispatch(ctx, conv, prompt, token, false)
	if err != nil {
		return nil, &codexcore.ErrTransport{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, classifyNonStreamingFailure(resp.StatusCode, body)
	}

	var parsed struct {
		Output []codexcore.ResponseItem `json:"output"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode compaction response: %w", err)
	}
	return parsed.Output, nil
}

func classifyNonStreamingFailure(status int, body []byte) error {
	var parsed rateLimitBody
	_ = json.Unmarshal(body, &parsed)
	if parsed.Error.Code == "context_length_exceeded" {
		return &codexcore.ErrContextWindowExceeded{Message: parsed.Error.Message}
	}
	if status == http.StatusTooManyRequests {
		if fatal := classify429(body, codexcore.RateLimitSnapshot{}); fatal != nil {
			return fatal
		}
	}
	return &codexcore.ErrHTTP{Status: status, Body: string(body)}
}

func (c *Client) dispatch(ctx context.Context, conv codexcore.ConversationId, prompt codexcore.Prompt, token string, stream bool) (*http.Response, error) {
	body := buildRequestBody(c.cfg, c.cfg.Family, prompt, stream)
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("conversation_id", string(conv))
	req.Header.Set("session_id", string(conv))
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	if c.cfg.ChatGPTAccountID != "" {
		req.Header.Set("chatgpt-account-id", c.cfg.ChatGPTAccountID)
	}
	if c.cfg.Subagent {
		req.Header.Set("x-openai-subagent", "true")
	}

	return c.http.Do(req)
}

// beginPump pushes a RateLimits event, then starts the SSE pump in the
// background, returning a ResponseStream that cancels the pump's context
// when Close is called. The rate-limit snapshot is pushed as the first
// event, ahead of anything the pump itself decodes.
func (c *Client) beginPump(ctx context.Context, resp *http.Response, snapshot codexcore.RateLimitSnapshot) *ResponseStream {
	pumpCtx, cancel := context.WithCancel(ctx)
	events := make(chan codexcore.ResponseEvent, 64)
	done := make(chan error, 1)

	events <- codexcore.ResponseEvent{Kind: codexcore.RespRateLimits, RateLimits: &snapshot}

	go func() {
		err := sse.ParseStream(pumpCtx, resp.Body, events, 0)
		resp.Body.Close()
		done <- err
	}()

	return &ResponseStream{Events: events, RateLimits: &snapshot, cancel: cancel, done: done}
}

// sleep waits for d or returns false if ctx is cancelled first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
