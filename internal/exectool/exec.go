// Package exectool implements the Exec Tool (C5): one-shot command
// execution under a sandbox, with streamed output events, soft/hard-kill
// timeout handling, and head/tail output truncation.
package exectool

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/nevindra/codexcore"
	"github.com/nevindra/codexcore/internal/eventbus"
)

// HardKillGrace is how long the runner waits after a soft-kill signal
// before escalating to a hard kill.
const HardKillGrace = 2 * time.Second

// Runner executes one-shot commands against a Sandbox and publishes
// ExecCommandBegin/OutputDelta/End events to the bus as it goes.
type Runner struct {
	bus     *eventbus.Bus
	sandbox Sandbox
	logger  *slog.Logger
	maxLines int
}

// Option configures a Runner.
type Option func(*Runner)

// WithSandbox overrides the default passthrough sandbox.
func WithSandbox(s Sandbox) Option {
	return func(r *Runner) { r.sandbox = s }
}

// WithLogger overrides the runner's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithMaxOutputLines overrides DefaultMaxOutputLines.
func WithMaxOutputLines(n int) Option {
	return func(r *Runner) { r.maxLines = n }
}

// New constructs a Runner publishing events onto bus.
func New(bus *eventbus.Bus, opts ...Option) *Runner {
	r := &Runner{
		bus:      bus,
		sandbox:  passthroughSandbox{},
		logger:   slog.Default(),
		maxLines: DefaultMaxOutputLines,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Request is one exec tool invocation.
type Request struct {
	ConversationID codexcore.ConversationId
	CallID         string
	Command        []string
	Cwd            string
	Env            []string
	TimeoutMs      int
	Sandboxed      bool
}

// streamWriter fans bytes written to it out as ExecCommandOutputDelta
// events while also accumulating them for the final aggregated output.
type streamWriter struct {
	r      *Runner
	convID codexcore.ConversationId
	callID string
	stream codexcore.OutputStream
	mu     *sync.Mutex
	buf    *bytes.Buffer
}

func (w *streamWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	w.buf.Write(p)
	w.mu.Unlock()

	chunk := make([]byte, len(p))
	copy(chunk, p)
	w.r.bus.Publish(codexcore.EventMsg{
		Kind:           codexcore.EvExecCommandOutputDelta,
		ConversationID: w.convID,
		CallID:         w.callID,
		Stream:         w.stream,
		Chunk:          chunk,
	})
	return len(p), nil
}

// Exec runs req to completion, returning its ExecResult. It never returns a
// non-nil error for an ordinary non-zero exit; err is reserved for
// conditions that prevented the command from running or being observed at
// all (context cancellation, failure to start the process).
func (r *Runner) Exec(ctx context.Context, req Request) (codexcore.ExecResult, error) {
	parsed := ParseCommand(req.Command)
	r.bus.Publish(codexcore.EventMsg{
		Kind:           codexcore.EvExecCommandBegin,
		ConversationID: req.ConversationID,
		CallID:         req.CallID,
		Command:        req.Command,
		Cwd:            req.Cwd,
		Parsed:         parsed,
	})

	runCtx := ctx
	var cancel context.CancelFunc
	if req.TimeoutMs > 0 {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	if len(req.Command) == 0 {
		return codexcore.ExecResult{}, errors.New("exectool: empty command")
	}

	cmd := exec.CommandContext(runCtx, req.Command[0], req.Command[1:]...)
	cmd.Dir = req.Cwd
	cmd.Env = req.Env
	// Soft-kill with SIGTERM on context cancellation (timeout or caller
	// abort); WaitDelay gives the process HardKillGrace to exit cleanly
	// before the runtime escalates to SIGKILL.
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = HardKillGrace

	var mu sync.Mutex
	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &streamWriter{r: r, convID: req.ConversationID, callID: req.CallID, stream: codexcore.StreamStdout, mu: &mu, buf: &stdoutBuf}
	cmd.Stderr = &streamWriter{r: r, convID: req.ConversationID, callID: req.CallID, stream: codexcore.StreamStderr, mu: &mu, buf: &stderrBuf}

	start := time.Now()
	var sandboxDenied bool
	var runErr error
	if req.Sandboxed {
		sandboxDenied, runErr = r.sandbox.Run(runCtx, cmd)
	} else {
		runErr = cmd.Run()
	}
	duration := time.Since(start)

	timedOut := runCtx.Err() == context.DeadlineExceeded

	exitCode := 0
	if runErr != nil {
		var exitCoder interface{ ExitCode() int }
		if errors.As(runErr, &exitCoder) {
			exitCode = exitCoder.ExitCode()
			runErr = nil
		} else if sandboxDenied {
			r.logger.Warn("exec: sandbox denied command", "call_id", req.CallID, "err", runErr)
			return codexcore.ExecResult{SandboxDenied: sandboxDenied, TimedOut: timedOut}, runErr
		} else {
			return codexcore.ExecResult{SandboxDenied: sandboxDenied, TimedOut: timedOut}, runErr
		}
	}

	mu.Lock()
	stdout := stdoutBuf.String()
	stderr := stderrBuf.String()
	mu.Unlock()

	aggregated := stdout
	if stderr != "" {
		if aggregated != "" {
			aggregated += "\n"
		}
		aggregated += stderr
	}
	formatted := TruncateLines(aggregated, r.maxLines)

	result := codexcore.ExecResult{
		ExitCode:         exitCode,
		Duration:         duration,
		AggregatedOutput: formatted,
		Stdout:           stdout,
		Stderr:           stderr,
		FormattedOutput:  formatted,
		SandboxDenied:    sandboxDenied,
		TimedOut:         timedOut,
	}

	ec := exitCode
	r.bus.Publish(codexcore.EventMsg{
		Kind:             codexcore.EvExecCommandEnd,
		ConversationID:   req.ConversationID,
		CallID:           req.CallID,
		ExitCode:         &ec,
		Duration:         duration,
		AggregatedOutput: aggregated,
		Stdout:           stdout,
		Stderr:           stderr,
		FormattedOutput:  formatted,
	})

	return result, nil
}

var _ io.Writer = (*streamWriter)(nil)
