package exectool

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/nevindra/codexcore"
	"github.com/nevindra/codexcore/internal/eventbus"
)

func drain(t *testing.T, ch <-chan codexcore.EventMsg) []codexcore.EventMsg {
	t.Helper()
	var events []codexcore.EventMsg
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			events = append(events, ev)
			if ev.Kind == codexcore.EvExecCommandEnd {
				return events
			}
		case <-timeout:
			t.Fatal("timed out waiting for ExecCommandEnd")
		}
	}
}

func TestExecRunsAndEmitsLifecycleEvents(t *testing.T) {
	bus := eventbus.New(0)
	ch, id := bus.Subscribe()
	defer bus.Unsubscribe(id)

	r := New(bus)
	res, err := r.Exec(context.Background(), Request{
		CallID:  "c1",
		Command: []string{"echo", "hello"},
	})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", res.ExitCode)
	}
	if res.Stdout != "hello\n" {
		t.Errorf("stdout = %q", res.Stdout)
	}

	events := drain(t, ch)
	if events[0].Kind != codexcore.EvExecCommandBegin {
		t.Errorf("first event = %s, want begin", events[0].Kind)
	}
	last := events[len(events)-1]
	if last.Kind != codexcore.EvExecCommandEnd {
		t.Errorf("last event = %s, want end", last.Kind)
	}
	if last.ExitCode == nil || *last.ExitCode != 0 {
		t.Errorf("end exit code = %v, want 0", last.ExitCode)
	}
}

func TestExecCapturesNonZeroExit(t *testing.T) {
	bus := eventbus.New(0)
	ch, id := bus.Subscribe()
	defer bus.Unsubscribe(id)

	r := New(bus)
	res, err := r.Exec(context.Background(), Request{
		CallID:  "c1",
		Command: []string{"sh", "-c", "exit 3"},
	})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", res.ExitCode)
	}
	drain(t, ch)
}

func TestExecTimesOut(t *testing.T) {
	bus := eventbus.New(0)
	ch, id := bus.Subscribe()
	defer bus.Unsubscribe(id)

	r := New(bus)
	res, err := r.Exec(context.Background(), Request{
		CallID:    "c1",
		Command:   []string{"sleep", "5"},
		TimeoutMs: 50,
	})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if !res.TimedOut {
		t.Error("expected TimedOut=true")
	}
	drain(t, ch)
}

func TestExecStreamsOutputDeltas(t *testing.T) {
	bus := eventbus.New(0)
	ch, id := bus.Subscribe()
	defer bus.Unsubscribe(id)

	r := New(bus)
	_, err := r.Exec(context.Background(), Request{
		CallID:  "c1",
		Command: []string{"echo", "delta"},
	})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}

	events := drain(t, ch)
	var sawDelta bool
	for _, ev := range events {
		if ev.Kind == codexcore.EvExecCommandOutputDelta && ev.Stream == codexcore.StreamStdout {
			sawDelta = true
		}
	}
	if !sawDelta {
		t.Error("expected at least one stdout ExecCommandOutputDelta event")
	}
}

func TestExecUsesSandboxDecision(t *testing.T) {
	bus := eventbus.New(0)
	ch, id := bus.Subscribe()
	defer bus.Unsubscribe(id)

	denying := sandboxFunc(func(ctx context.Context, cmd *exec.Cmd) (bool, error) {
		return true, context.DeadlineExceeded
	})
	r := New(bus, WithSandbox(denying))
	res, err := r.Exec(context.Background(), Request{
		CallID:    "c1",
		Command:   []string{"echo", "hi"},
		Sandboxed: true,
	})
	if err == nil {
		t.Fatal("expected sandbox denial error")
	}
	if !res.SandboxDenied {
		t.Error("expected SandboxDenied=true")
	}

	select {
	case ev := <-ch:
		if ev.Kind != codexcore.EvExecCommandBegin {
			t.Errorf("expected begin event, got %s", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("expected ExecCommandBegin to have been published")
	}
}

type sandboxFunc func(ctx context.Context, cmd *exec.Cmd) (bool, error)

func (f sandboxFunc) Run(ctx context.Context, cmd *exec.Cmd) (bool, error) { return f(ctx, cmd) }

var _ Sandbox = sandboxFunc(nil)
