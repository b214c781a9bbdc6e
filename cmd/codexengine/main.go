// Command codexengine is a thin terminal front end for the session engine:
// it wires the Model Client, Approval Gate, the three tool surfaces, the
// Compaction Engine, and the Turn Orchestrator together, then runs a
// line-at-a-time REPL. It carries no business logic of its own — every
// decision lives in the internal packages it constructs.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/nevindra/codexcore"
	"github.com/nevindra/codexcore/internal/approval"
	"github.com/nevindra/codexcore/internal/compaction"
	"github.com/nevindra/codexcore/internal/config"
	"github.com/nevindra/codexcore/internal/eventbus"
	"github.com/nevindra/codexcore/internal/exectool"
	"github.com/nevindra/codexcore/internal/llmclient"
	"github.com/nevindra/codexcore/internal/orchestrator"
	"github.com/nevindra/codexcore/internal/patch"
	"github.com/nevindra/codexcore/internal/rollout"
	"github.com/nevindra/codexcore/internal/unifiedexec"
	"github.com/nevindra/codexcore/observer"
)

// staticTokenAuth implements llmclient.AuthProvider for a long-lived API key
// with no refresh flow.
type staticTokenAuth struct{ token string }

func (a staticTokenAuth) Token(ctx context.Context) (string, error)   { return a.token, nil }
func (a staticTokenAuth) Refresh(ctx context.Context) (string, error) { return a.token, nil }

// stdinApproval is a Requester that prompts the operator on stdin/stdout.
type stdinApproval struct {
	in  *bufio.Reader
	out *os.File
}

func (r stdinApproval) RequestApproval(ctx context.Context, req codexcore.ApprovalRequest) (codexcore.ApprovalResponse, error) {
	fmt.Fprintf(r.out, "\napproval requested for call %s: %v (cwd=%s)\nallow? [y/N] ", req.CallID, req.Command, req.Cwd)
	line, _ := r.in.ReadString('\n')
	decision := codexcore.ApprovalDenied
	if len(line) > 0 && (line[0] == 'y' || line[0] == 'Y') {
		decision = codexcore.ApprovalApproved
	}
	return codexcore.ApprovalResponse{CallID: req.CallID, Decision: decision}, nil
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg := config.Load(os.Getenv("CODEX_CONFIG"))
	if cfg.Model.APIKey == "" {
		logger.Error("CODEX_MODEL_API_KEY is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var tracer codexcore.Tracer = codexcore.NoopTracer{}
	var metrics *observer.Instruments
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
		inst, shutdown, err := observer.Init(ctx)
		if err != nil {
			logger.Warn("observer init failed, continuing without tracing", "err", err)
		} else {
			defer shutdown(context.Background())
			metrics = inst
			tracer = observer.NewTracer()
		}
	}

	bus := eventbus.New(0)
	client := llmclient.NewClient(llmclient.Config{
		BaseURL:    cfg.Model.BaseURL,
		Model:      cfg.Model.Model,
		MaxRetries: cfg.Model.MaxRetries,
	}, nil, staticTokenAuth{token: cfg.Model.APIKey}, logger)

	gate := approval.NewGate(stdinApproval{in: bufio.NewReader(os.Stdin), out: os.Stderr})
	execRunner := exectool.New(bus, exectool.WithLogger(logger))
	patches := patch.New(bus, cfg.Sandbox.WritableRoots)
	var unifiedOpts []unifiedexec.Option
	if metrics != nil {
		unifiedOpts = append(unifiedOpts, unifiedexec.WithMetrics(metrics))
	}
	unified := unifiedexec.New(bus, unifiedOpts...)
	compactor := compaction.New(client, bus)

	orch := orchestrator.New(client, bus, gate, execRunner, patches, unified, compactor, orchestrator.Config{
		AutoCompactLimit: cfg.Compaction.AutoCompactLimit,
		CompactionPrompt: cfg.Compaction.Prompt,
	}).WithTracer(tracer)
	if metrics != nil {
		orch = orch.WithMetrics(metrics)
	}

	conv := codexcore.NewConversationId()
	cwd, _ := os.Getwd()
	writer, err := rollout.Create(cfg.Rollout.Home, conv, cfg.Model.Provider, time.Now(), logger)
	if err != nil {
		logger.Error("failed to open rollout file", "err", err)
		os.Exit(1)
	}
	defer writer.Close()

	orch.Start(conv, codexcore.TurnContext{
		Model:          cfg.Model.Model,
		ApprovalPolicy: cfg.Approval.ApprovalPolicy(),
		SandboxPolicy:  cfg.Sandbox.SandboxPolicy(),
		Cwd:            cwd,
	}, writer)

	go printEvents(bus)

	fmt.Fprintln(os.Stderr, "ready. type a message and press enter; ctrl-c to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := scanner.Text()
		if text == "" {
			continue
		}
		turn, err := orch.SubmitUserInput(ctx, conv, text)
		if err != nil {
			fmt.Fprintf(os.Stderr, "turn failed: %v\n", err)
			continue
		}
		fmt.Fprintf(os.Stderr, "[turn %s status=%s]\n", turn.ID, turn.Status)
	}
}

func printEvents(bus *eventbus.Bus) {
	ch, _ := bus.Subscribe()
	for ev := range ch {
		switch ev.Kind {
		case codexcore.EvAgentMessageDelta:
			fmt.Print(ev.Delta)
		case codexcore.EvBackgroundEvent:
			fmt.Fprintf(os.Stderr, "\n[background] %s\n", ev.Message)
		case codexcore.EvError:
			fmt.Fprintf(os.Stderr, "\n[error] %s\n", ev.Message)
		}
	}
}
