package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nevindra/codexcore"
	"github.com/nevindra/codexcore/internal/approval"
	"github.com/nevindra/codexcore/internal/eventbus"
	"github.com/nevindra/codexcore/internal/exectool"
	"github.com/nevindra/codexcore/internal/llmclient"
	"github.com/nevindra/codexcore/internal/patch"
)

type fakeAuth struct{}

func (fakeAuth) Token(ctx context.Context) (string, error)   { return "tok", nil }
func (fakeAuth) Refresh(ctx context.Context) (string, error) { return "tok", nil }

type autoApprove struct{}

func (autoApprove) RequestApproval(ctx context.Context, req codexcore.ApprovalRequest) (codexcore.ApprovalResponse, error) {
	return codexcore.ApprovalResponse{CallID: req.CallID, Decision: codexcore.ApprovalApproved}, nil
}

func newClient(t *testing.T, url string) *llmclient.Client {
	t.Helper()
	return llmclient.NewClient(llmclient.Config{BaseURL: url, Model: "test-model"}, nil, fakeAuth{}, nil)
}

func newOrchestrator(client *llmclient.Client, bus *eventbus.Bus, cfg Config) *Orchestrator {
	gate := approval.NewGate(autoApprove{})
	exec := exectool.New(bus)
	patches := patch.New(bus, nil)
	return New(client, bus, gate, exec, patches, nil, nil, cfg)
}

func sseBody(frames ...string) string {
	var out string
	for _, f := range frames {
		out += "data: " + f + "\n\n"
	}
	return out
}

func TestSubmitUserInputCompletesWithoutToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseBody(
			`{"type":"response.output_item.done","item":{"type":"message","role":"assistant","content":[{"type":"text","text":"hi there"}]}}`,
			`{"type":"response.completed","response":{"id":"r1","usage":{"total_tokens":50}}}`,
		))
	}))
	defer srv.Close()

	bus := eventbus.New(0)
	ch, _ := bus.Subscribe()
	o := newOrchestrator(newClient(t, srv.URL), bus, Config{})
	o.Start("conv-1", codexcore.TurnContext{ApprovalPolicy: codexcore.ApprovalOnRequest, Cwd: t.TempDir()}, nil)

	turn, err := o.SubmitUserInput(context.Background(), "conv-1", "hello")
	if err != nil {
		t.Fatalf("SubmitUserInput: %v", err)
	}
	if turn.Status != codexcore.TurnCompletedStatus {
		t.Fatalf("status = %v, want Completed", turn.Status)
	}

	var sawCompleted bool
	for {
		select {
		case ev := <-ch:
			if ev.Kind == codexcore.EvTurnCompleted {
				sawCompleted = true
			}
		default:
			goto done
		}
	}
done:
	if !sawCompleted {
		t.Fatal("expected EvTurnCompleted on bus")
	}
}

func TestSubmitUserInputDispatchesShellToolCall(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			fmt.Fprint(w, sseBody(
				`{"type":"response.output_item.done","item":{"type":"function_call","name":"shell","call_id":"call-1","arguments":{"command":["echo","hi"]}}}`,
				`{"type":"response.completed","response":{"id":"r1","usage":{"total_tokens":10}}}`,
			))
			return
		}
		fmt.Fprint(w, sseBody(
			`{"type":"response.output_item.done","item":{"type":"message","role":"assistant","content":[{"type":"text","text":"done"}]}}`,
			`{"type":"response.completed","response":{"id":"r2","usage":{"total_tokens":10}}}`,
		))
	}))
	defer srv.Close()

	bus := eventbus.New(0)
	o := newOrchestrator(newClient(t, srv.URL), bus, Config{})
	o.Start("conv-1", codexcore.TurnContext{ApprovalPolicy: codexcore.ApprovalOnRequest, Cwd: t.TempDir()}, nil)

	turn, err := o.SubmitUserInput(context.Background(), "conv-1", "run echo")
	if err != nil {
		t.Fatalf("SubmitUserInput: %v", err)
	}
	if turn.Status != codexcore.TurnCompletedStatus {
		t.Fatalf("status = %v, want Completed", turn.Status)
	}

	var sawOutput bool
	for _, item := range turn.Items {
		if item.Kind == codexcore.ItemFunctionCallOutput && item.CallID == "call-1" {
			sawOutput = true
			if item.Output == "" {
				t.Fatal("expected non-empty exec output")
			}
		}
	}
	if !sawOutput {
		t.Fatal("expected a function_call_output for call-1")
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("server calls = %d, want 2", calls)
	}
}

func TestInterruptAbortsInFlightTurn(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-block:
		}
	}))
	defer srv.Close()
	defer close(block)

	bus := eventbus.New(0)
	ch, _ := bus.Subscribe()
	o := newOrchestrator(newClient(t, srv.URL), bus, Config{})
	o.Start("conv-1", codexcore.TurnContext{ApprovalPolicy: codexcore.ApprovalOnRequest, Cwd: t.TempDir()}, nil)

	resultCh := make(chan codexcore.Turn, 1)
	go func() {
		turn, _ := o.SubmitUserInput(context.Background(), "conv-1", "hang")
		resultCh <- turn
	}()

	time.Sleep(100 * time.Millisecond)
	o.Interrupt("conv-1", "user requested stop")

	select {
	case turn := <-resultCh:
		if turn.Status != codexcore.TurnInterruptedStatus {
			t.Fatalf("status = %v, want Interrupted", turn.Status)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("SubmitUserInput did not return after Interrupt")
	}

	var sawAbort bool
	for {
		select {
		case ev := <-ch:
			if ev.Kind == codexcore.EvTurnAborted {
				sawAbort = true
			}
		default:
			goto done
		}
	}
done:
	if !sawAbort {
		t.Fatal("expected EvTurnAborted on bus")
	}
}
