package llmclient

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nevindra/codexcore"
)

// fakeAuth hands out a fixed token and counts refreshes.
type fakeAuth struct {
	token     string
	refreshed int32
	refreshFn func(ctx context.Context) (string, error)
}

func (a *fakeAuth) Token(ctx context.Context) (string, error) { return a.token, nil }

func (a *fakeAuth) Refresh(ctx context.Context) (string, error) {
	atomic.AddInt32(&a.refreshed, 1)
	if a.refreshFn != nil {
		return a.refreshFn(ctx)
	}
	a.token = "refreshed-token"
	return a.token, nil
}

func testConfig(url string) Config {
	return Config{BaseURL: url, Model: "gpt-5-codex", MaxRetries: 2}
}

func TestStreamSuccessPushesRateLimitsFirst(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-codex-primary-used-percent", "12.5")
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		w.Write([]byte("event: response.completed\ndata: {\"type\":\"response.completed\",\"response\":{\"usage\":{}}}\n\n"))
		flusher.Flush()
	}))
	defer srv.Close()

	auth := &fakeAuth{token: "t"}
	c := NewClient(testConfig(srv.URL), nil, auth, nil)

	stream, err := c.Stream(context.Background(), codexcore.ConversationId("conv1"), codexcore.Prompt{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	first := <-stream.Events
	if first.Kind != codexcore.RespRateLimits {
		t.Fatalf("first event kind = %s, want rate_limits", first.Kind)
	}
	if first.RateLimits == nil || first.RateLimits.Primary == nil || first.RateLimits.Primary.UsedPercent != 12.5 {
		t.Errorf("unexpected rate limit snapshot: %+v", first.RateLimits)
	}
}

func TestStreamRefreshesOn401ThenSucceeds(t *testing.T) {
	var attempt int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempt, 1)
		if n == 1 {
			if r.Header.Get("Authorization") != "Bearer t" {
				t.Errorf("unexpected auth header on first attempt: %s", r.Header.Get("Authorization"))
			}
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get("Authorization") != "Bearer refreshed-token" {
			t.Errorf("unexpected auth header on retry: %s", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	auth := &fakeAuth{token: "t"}
	c := NewClient(testConfig(srv.URL), nil, auth, nil)

	stream, err := c.Stream(context.Background(), codexcore.ConversationId("conv1"), codexcore.Prompt{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	if got := atomic.LoadInt32(&auth.refreshed); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
	if got := atomic.LoadInt32(&attempt); got != 2 {
		t.Errorf("http attempts = %d, want 2", got)
	}
}

func TestStreamRetriesOn429UntilLimitReached(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":"rate_limited","message":"slow down"}}`))
	}))
	defer srv.Close()

	auth := &fakeAuth{token: "t"}
	cfg := testConfig(srv.URL)
	cfg.MaxRetries = 2
	c := NewClient(cfg, nil, auth, nil)

	_, err := c.Stream(context.Background(), codexcore.ConversationId("conv1"), codexcore.Prompt{})
	if err == nil {
		t.Fatal("expected an error once retries are exhausted")
	}
	limitErr, ok := err.(*codexcore.ErrRetryLimitReached)
	if !ok {
		t.Fatalf("err type = %T, want *codexcore.ErrRetryLimitReached", err)
	}
	if limitErr.Status != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", limitErr.Status)
	}

	wantAttempts := cfg.MaxRetries + 1
	if got := atomic.LoadInt32(&attempts); got != int32(wantAttempts) {
		t.Errorf("http attempts = %d, want %d (request_max_retries + 1)", got, wantAttempts)
	}
}

func TestStream429UsageLimitReachedIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":"usage_limit_reached","plan":"pro"}}`))
	}))
	defer srv.Close()

	auth := &fakeAuth{token: "t"}
	cfg := testConfig(srv.URL)
	cfg.MaxRetries = 3
	c := NewClient(cfg, nil, auth, nil)

	_, err := c.Stream(context.Background(), codexcore.ConversationId("conv1"), codexcore.Prompt{})
	if err == nil {
		t.Fatal("expected a fatal error")
	}
	usageErr, ok := err.(*codexcore.ErrUsageLimitReached)
	if !ok {
		t.Fatalf("err type = %T, want *codexcore.ErrUsageLimitReached", err)
	}
	if usageErr.Plan != "pro" {
		t.Errorf("plan = %q, want pro", usageErr.Plan)
	}
}

func TestStreamTransportErrorExhaustsRetries(t *testing.T) {
	auth := &fakeAuth{token: "t"}
	cfg := testConfig("http://127.0.0.1:1")
	cfg.MaxRetries = 1
	c := NewClient(cfg, &http.Client{Timeout: 200 * time.Millisecond}, auth, nil)

	start := time.Now()
	_, err := c.Stream(context.Background(), codexcore.ConversationId("conv1"), codexcore.Prompt{})
	if err == nil {
		t.Fatal("expected a transport error")
	}
	if _, ok := err.(*codexcore.ErrTransport); !ok {
		t.Fatalf("err type = %T, want *codexcore.ErrTransport", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("took %s, expected the short backoff between the %d attempts to dominate", elapsed, cfg.MaxRetries+1)
	}
}

func TestStreamRespectsContextCancellationDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":"rate_limited"}}`))
	}))
	defer srv.Close()

	auth := &fakeAuth{token: "t"}
	cfg := testConfig(srv.URL)
	cfg.MaxRetries = 5
	c := NewClient(cfg, nil, auth, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := c.Stream(ctx, codexcore.ConversationId("conv1"), codexcore.Prompt{})
	if err == nil {
		t.Fatal("expected an error from cancellation")
	}
}

func TestCompactConversationHistoryDecodesOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") == "text/event-stream" {
			t.Error("non-streaming call should not set Accept: text/event-stream")
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"output":[{"type":"message","role":"assistant","content":[{"type":"text","text":"summary"}]}]}`)
	}))
	defer srv.Close()

	auth := &fakeAuth{token: "t"}
	c := NewClient(testConfig(srv.URL), nil, auth, nil)

	items, err := c.CompactConversationHistory(context.Background(), codexcore.ConversationId("conv1"), codexcore.Prompt{})
	if err != nil {
		t.Fatalf("CompactConversationHistory: %v", err)
	}
	if len(items) != 1 || items[0].Role != "assistant" {
		t.Fatalf("items = %+v", items)
	}
}

func TestCompactConversationHistoryContextLengthExceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"code":"context_length_exceeded","message":"too much history"}}`)
	}))
	defer srv.Close()

	auth := &fakeAuth{token: "t"}
	c := NewClient(testConfig(srv.URL), nil, auth, nil)

	_, err := c.CompactConversationHistory(context.Background(), codexcore.ConversationId("conv1"), codexcore.Prompt{})
	if _, ok := err.(*codexcore.ErrContextWindowExceeded); !ok {
		t.Fatalf("err type = %T, want *codexcore.ErrContextWindowExceeded", err)
	}
}
