// Package sse decodes a provider's Responses-API server-sent-event stream
// into typed codexcore.ResponseEvent values. Grounded on the line-scanning
// shape of provider/openaicompat's StreamSSE, generalized to the full event
// mapping, idle-timeout detection, and error classification the session
// engine's model client needs.
package sse

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nevindra/codexcore"
)

// DefaultIdleTimeout is used when ParseStream is called with a zero timeout.
const DefaultIdleTimeout = 60 * time.Second

var retryAfterRE = regexp.MustCompile(`(?i)try again in\s*(\d+(?:\.\d+)?)\s*(s|ms|seconds?)`)

type sseFrame struct {
	Type string `json:"type"`

	Item *rawItem `json:"item,omitempty"`

	Delta        string `json:"delta,omitempty"`
	SummaryIndex int    `json:"summary_index,omitempty"`
	ContentIndex int    `json:"content_index,omitempty"`

	Response *rawResponse `json:"response,omitempty"`

	Error *sseError `json:"error,omitempty"`
}

type sseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type rawItem struct {
	Type             string          `json:"type"`
	Role             string          `json:"role,omitempty"`
	Content          json.RawMessage `json:"content,omitempty"`
	ID               string          `json:"id,omitempty"`
	EncryptedContent string          `json:"encrypted_content,omitempty"`
	Summary          []string        `json:"summary,omitempty"`
	Name             string          `json:"name,omitempty"`
	Arguments        json.RawMessage `json:"arguments,omitempty"`
	CallID           string          `json:"call_id,omitempty"`
	Output           string          `json:"output,omitempty"`
}

type rawResponse struct {
	ID    string    `json:"id"`
	Usage *rawUsage `json:"usage,omitempty"`
}

type rawUsage struct {
	InputTokens         int `json:"input_tokens"`
	InputTokensDetails  struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"input_tokens_details"`
	OutputTokens        int `json:"output_tokens"`
	OutputTokensDetails struct {
		ReasoningTokens int `json:"reasoning_tokens"`
	} `json:"output_tokens_details"`
	TotalTokens int `json:"total_tokens"`
}

func (it *rawItem) toResponseItem() codexcore.ResponseItem {
	ri := codexcore.ResponseItem{
		Kind:             codexcore.ResponseItemKind(it.Type),
		Role:             it.Role,
		ID:               it.ID,
		EncryptedContent: it.EncryptedContent,
		Summary:          it.Summary,
		Name:             it.Name,
		Arguments:        it.Arguments,
		CallID:           it.CallID,
		Output:           it.Output,
	}
	if len(it.Content) > 0 {
		var parts []codexcore.ContentPart
		if err := json.Unmarshal(it.Content, &parts); err == nil {
			ri.Content = parts
		}
	}
	return ri
}

// ParseStream reads SSE frames from body and emits a codexcore.ResponseEvent
// per decoded frame on events. It owns events and closes it before
// returning, whether it returns successfully (after the one RespCompleted
// event) or with an error.
//
// A zero idleTimeout uses DefaultIdleTimeout. Passing a negative value
// disables the idle watchdog entirely (used in tests against fixtures that
// replay faster or slower than real time).
func ParseStream(ctx context.Context, body io.Reader, events chan<- codexcore.ResponseEvent, idleTimeout time.Duration) error {
	defer close(events)

	if idleTimeout == 0 {
		idleTimeout = DefaultIdleTimeout
	}

	lines := make(chan string)
	scanDone := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		scanDone <- scanner.Err()
		close(lines)
	}()

	completed := false
	var timer *time.Timer
	var timerC <-chan time.Time
	if idleTimeout > 0 {
		timer = time.NewTimer(idleTimeout)
		defer timer.Stop()
		timerC = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-timerC:
			return &codexcore.ErrStream{Message: "idle timeout"}

		case line, ok := <-lines:
			if timer != nil {
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(idleTimeout)
			}
			if !ok {
				if completed {
					return nil
				}
				if err := <-scanDone; err != nil {
					return &codexcore.ErrTransport{Cause: err}
				}
				return &codexcore.ErrStream{Message: "stream closed before response.completed"}
			}

			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				continue
			}

			var frame sseFrame
			if err := json.Unmarshal([]byte(data), &frame); err != nil {
				continue // malformed individual frame: ignored, not fatal
			}

			ev, done, err := translate(frame)
			if err != nil {
				return err
			}
			if ev != nil {
				select {
				case events <- *ev:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if done {
				completed = true
			}
		}
	}
}

// translate maps one decoded SSE frame to an optional ResponseEvent. done is
// true once response.completed has been observed. A non-nil error is
// terminal and fatal.
func translate(f sseFrame) (*codexcore.ResponseEvent, bool, error) {
	switch f.Type {
	case "response.created":
		return &codexcore.ResponseEvent{Kind: codexcore.RespCreated}, false, nil

	case "response.output_item.added":
		if f.Item == nil {
			return nil, false, nil
		}
		item := f.Item.toResponseItem()
		return &codexcore.ResponseEvent{Kind: codexcore.RespOutputItemAdded, Item: &item}, false, nil

	case "response.output_item.done":
		if f.Item == nil {
			return nil, false, nil
		}
		item := f.Item.toResponseItem()
		return &codexcore.ResponseEvent{Kind: codexcore.RespOutputItemDone, Item: &item}, false, nil

	case "response.output_text.delta":
		return &codexcore.ResponseEvent{Kind: codexcore.RespOutputTextDelta, Delta: f.Delta}, false, nil

	case "response.reasoning_summary_text.delta":
		return &codexcore.ResponseEvent{Kind: codexcore.RespReasoningSummaryDelta, Delta: f.Delta, SummaryIndex: f.SummaryIndex}, false, nil

	case "response.reasoning_text.delta":
		return &codexcore.ResponseEvent{Kind: codexcore.RespReasoningContentDelta, Delta: f.Delta, ContentIndex: f.ContentIndex}, false, nil

	case "response.reasoning_summary_part.added":
		return &codexcore.ResponseEvent{Kind: codexcore.RespReasoningSummaryPartAdded, SummaryIndex: f.SummaryIndex}, false, nil

	case "response.failed":
		return nil, false, classifyFailure(f.Error)

	case "response.completed":
		usage := TokenUsageFromRaw(f.Response)
		var respID string
		if f.Response != nil {
			respID = f.Response.ID
		}
		return &codexcore.ResponseEvent{Kind: codexcore.RespCompleted, ResponseID: respID, Usage: usage}, true, nil

	default:
		return nil, false, nil
	}
}

// TokenUsageFromRaw maps a parsed usage payload to TokenUsage, treating
// missing sub-fields as zero.
func TokenUsageFromRaw(r *rawResponse) codexcore.TokenUsage {
	if r == nil || r.Usage == nil {
		return codexcore.TokenUsage{}
	}
	u := r.Usage
	return codexcore.TokenUsage{
		Input:           u.InputTokens,
		CachedInput:     u.InputTokensDetails.CachedTokens,
		Output:          u.OutputTokens,
		ReasoningOutput: u.OutputTokensDetails.ReasoningTokens,
		Total:           u.TotalTokens,
	}
}

// classifyFailure maps a response.failed error payload to the fatal or
// retryable taxonomy described by the error classification table.
func classifyFailure(e *sseError) error {
	if e == nil {
		return &codexcore.ErrStream{Message: "response.failed"}
	}
	switch e.Code {
	case "context_length_exceeded":
		return &codexcore.ErrContextWindowExceeded{Message: e.Message}
	case "insufficient_quota":
		return &codexcore.ErrQuotaExceeded{Message: e.Message}
	case "rate_limit_exceeded":
		delay := parseRetryAfter(e.Message)
		return &codexcore.ErrStream{Message: e.Message, RetryAfter: delay}
	default:
		return &codexcore.ErrStream{Message: e.Message}
	}
}

// parseRetryAfter extracts a retry delay from messages like
// "Please try again in 1.898s" (OpenAI-style) or "Try again in 35 seconds"
// (Azure-style).
func parseRetryAfter(message string) *time.Duration {
	m := retryAfterRE.FindStringSubmatch(message)
	if m == nil {
		return nil
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	var d time.Duration
	if strings.HasPrefix(strings.ToLower(m[2]), "ms") {
		d = time.Duration(value * float64(time.Millisecond))
	} else {
		d = time.Duration(value * float64(time.Second))
	}
	return &d
}
