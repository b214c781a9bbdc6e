package sse

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nevindra/codexcore"
)

func TestParseStreamBasicSequence(t *testing.T) {
	body := strings.NewReader(strings.Join([]string{
		`data: {"type":"response.created"}`,
		``,
		`data: {"type":"response.output_text.delta","delta":"hel"}`,
		``,
		`data: {"type":"response.output_text.delta","delta":"lo"}`,
		``,
		`data: {"type":"response.completed","response":{"id":"resp_1","usage":{"input_tokens":10,"output_tokens":2,"total_tokens":12}}}`,
		``,
	}, "\n"))

	ch := make(chan codexcore.ResponseEvent, 8)
	err := ParseStream(context.Background(), body, ch, -1)
	if err != nil {
		t.Fatalf("ParseStream: %v", err)
	}

	var events []codexcore.ResponseEvent
	for ev := range ch {
		events = append(events, ev)
	}
	if len(events) != 4 {
		t.Fatalf("got %d events, want 4: %+v", len(events), events)
	}
	if events[0].Kind != codexcore.RespCreated {
		t.Errorf("events[0].Kind = %s, want created", events[0].Kind)
	}
	if events[1].Delta != "hel" || events[2].Delta != "lo" {
		t.Errorf("unexpected deltas: %q %q", events[1].Delta, events[2].Delta)
	}
	last := events[3]
	if last.Kind != codexcore.RespCompleted {
		t.Fatalf("last event kind = %s, want completed", last.Kind)
	}
	if last.Usage.Total != 12 || last.Usage.Input != 10 {
		t.Errorf("unexpected usage: %+v", last.Usage)
	}
}

func TestParseStreamContextLengthExceeded(t *testing.T) {
	body := strings.NewReader(`data: {"type":"response.failed","error":{"code":"context_length_exceeded","message":"too long"}}` + "\n")

	ch := make(chan codexcore.ResponseEvent, 8)
	err := ParseStream(context.Background(), body, ch, -1)
	var target *codexcore.ErrContextWindowExceeded
	if err == nil {
		t.Fatal("expected error")
	}
	if !asErrContextWindow(err, &target) {
		t.Fatalf("got %T, want *ErrContextWindowExceeded", err)
	}
}

func asErrContextWindow(err error, out **codexcore.ErrContextWindowExceeded) bool {
	e, ok := err.(*codexcore.ErrContextWindowExceeded)
	if ok {
		*out = e
	}
	return ok
}

func TestParseStreamRateLimitRetryAfter(t *testing.T) {
	body := strings.NewReader(`data: {"type":"response.failed","error":{"code":"rate_limit_exceeded","message":"Please try again in 1.5s"}}` + "\n")

	ch := make(chan codexcore.ResponseEvent, 8)
	err := ParseStream(context.Background(), body, ch, -1)
	se, ok := err.(*codexcore.ErrStream)
	if !ok {
		t.Fatalf("got %T, want *ErrStream", err)
	}
	if se.RetryAfter == nil {
		t.Fatal("expected RetryAfter to be parsed")
	}
	if *se.RetryAfter != 1500*time.Millisecond {
		t.Errorf("RetryAfter = %v, want 1.5s", *se.RetryAfter)
	}
}

func TestParseStreamClosedBeforeCompletion(t *testing.T) {
	body := strings.NewReader(`data: {"type":"response.created"}` + "\n")

	ch := make(chan codexcore.ResponseEvent, 8)
	err := ParseStream(context.Background(), body, ch, -1)
	se, ok := err.(*codexcore.ErrStream)
	if !ok {
		t.Fatalf("got %T, want *ErrStream", err)
	}
	if se.Message != "stream closed before response.completed" {
		t.Errorf("Message = %q", se.Message)
	}
}

func TestParseStreamIdleTimeout(t *testing.T) {
	r, w := newSlowPipe()
	defer w.Close()

	ch := make(chan codexcore.ResponseEvent, 4)
	err := ParseStream(context.Background(), r, ch, 20*time.Millisecond)
	se, ok := err.(*codexcore.ErrStream)
	if !ok {
		t.Fatalf("got %T (%v), want *ErrStream", err, err)
	}
	if se.Message != "idle timeout" {
		t.Errorf("Message = %q, want idle timeout", se.Message)
	}
}
