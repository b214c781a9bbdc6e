// Package orchestrator implements the Turn Orchestrator (C8): the state
// machine that drives one turn from a user submission through SSE
// consumption, tool dispatch via C4-C7, auto-compaction, and the terminal
// lifecycle event. It lives outside the codexcore root
// package (which every other internal package imports for its shared
// types) to avoid an import cycle.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nevindra/codexcore"
	"github.com/nevindra/codexcore/internal/approval"
	"github.com/nevindra/codexcore/internal/compaction"
	"github.com/nevindra/codexcore/internal/eventbus"
	"github.com/nevindra/codexcore/internal/exectool"
	"github.com/nevindra/codexcore/internal/llmclient"
	"github.com/nevindra/codexcore/internal/patch"
	"github.com/nevindra/codexcore/internal/rollout"
	"github.com/nevindra/codexcore/internal/unifiedexec"
)

// Config tunes auto-compaction. AutoCompactLimit <= 0 disables it.
type Config struct {
	AutoCompactLimit int
	CompactionPrompt string
}

// Metrics receives turn and tool-dispatch counters; observer.Instruments
// satisfies this with OTEL-backed counters. A nil Metrics is a valid
// no-op — every call site guards on it.
type Metrics interface {
	TurnStarted(ctx context.Context)
	TurnCompleted(ctx context.Context, tokensTotal int)
	TurnAborted(ctx context.Context)
	TurnFailed(ctx context.Context)
	ToolDispatched(ctx context.Context, tool string, duration time.Duration)
}

// RemoteToolResult is the pass-through result of one mcp__<server>__<tool>
// call: Text becomes the FunctionCallOutput body, and each entry in Images
// is materialized as a trailing input_image item in the follow-up input.
type RemoteToolResult struct {
	Text   string
	Images []string
}

// RemoteToolCaller dispatches a remote (MCP) tool call. Arguments are
// passed through unchanged from the model's function_call item.
type RemoteToolCaller interface {
	CallTool(ctx context.Context, server, tool string, arguments json.RawMessage) (RemoteToolResult, error)
}

// Orchestrator owns the state machine for every active conversation,
// wiring the Model Client (C2) to the Approval Gate (C4) and the three
// tool surfaces (C5-C7), plus the Compaction Engine (C9) and Event Bus
// (C10).
type Orchestrator struct {
	client    *llmclient.Client
	bus       *eventbus.Bus
	gate      *approval.Gate
	exec      *exectool.Runner
	patches   *patch.Tool
	unified   *unifiedexec.Manager
	compactor *compaction.Engine
	tracer    codexcore.Tracer
	metrics   Metrics
	remote    RemoteToolCaller
	cfg       Config

	mu   sync.Mutex
	conv map[codexcore.ConversationId]*conversationState
}

// New constructs an Orchestrator. Any dependency may be nil only in tests
// that never exercise the path requiring it. A nil tracer falls back to
// codexcore.NoopTracer.
func New(client *llmclient.Client, bus *eventbus.Bus, gate *approval.Gate, exec *exectool.Runner, patches *patch.Tool, unified *unifiedexec.Manager, compactor *compaction.Engine, cfg Config) *Orchestrator {
	return &Orchestrator{
		client:    client,
		bus:       bus,
		gate:      gate,
		exec:      exec,
		patches:   patches,
		unified:   unified,
		compactor: compactor,
		tracer:    codexcore.NoopTracer{},
		cfg:       cfg,
		conv:      make(map[codexcore.ConversationId]*conversationState),
	}
}

// WithTracer installs a Tracer for turn and tool-dispatch spans, replacing
// the default no-op.
func (o *Orchestrator) WithTracer(t codexcore.Tracer) *Orchestrator {
	if t != nil {
		o.tracer = t
	}
	return o
}

// WithMetrics installs a Metrics sink for turn and tool-dispatch counters.
func (o *Orchestrator) WithMetrics(m Metrics) *Orchestrator {
	o.metrics = m
	return o
}

// WithRemoteTool installs the caller used to dispatch mcp__<server>__<tool>
// function calls. Without one, such calls return an error output rather
// than panicking.
func (o *Orchestrator) WithRemoteTool(r RemoteToolCaller) *Orchestrator {
	o.remote = r
	return o
}

// Start registers a conversation with its initial TurnContext and rollout
// writer. Calling it again for the same id installs a new TurnContext
// (e.g. after a model or sandbox-policy change) without losing history.
func (o *Orchestrator) Start(conv codexcore.ConversationId, turnCtx codexcore.TurnContext, w *rollout.Writer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.conv[conv]
	if !ok {
		st = &conversationState{}
		o.conv[conv] = st
	}
	st.mu.Lock()
	st.turnCtx = turnCtx
	if w != nil {
		st.writer = w
	}
	st.mu.Unlock()
	if w != nil {
		_ = w.AppendTurnContext(turnCtx)
	}
}

func (o *Orchestrator) state(conv codexcore.ConversationId) (*conversationState, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.conv[conv]
	return st, ok
}

// Interrupt cancels the in-flight turn for conv, if any. Persistent
// unified_exec sessions are untouched: only the streaming request and any
// outstanding one-shot exec child are torn down.
func (o *Orchestrator) Interrupt(conv codexcore.ConversationId, reason string) {
	st, ok := o.state(conv)
	if !ok {
		return
	}
	st.mu.Lock()
	cancel := st.cancel
	st.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// SubmitUserInput runs text as one user turn to completion: streaming the
// model's response, dispatching every function call it makes, and looping
// until the model completes with no further calls. It returns once the
// turn reaches a terminal state (Completed, Interrupted, or Failed).
func (o *Orchestrator) SubmitUserInput(ctx context.Context, conv codexcore.ConversationId, text string) (codexcore.Turn, error) {
	st, ok := o.state(conv)
	if !ok {
		return codexcore.Turn{}, fmt.Errorf("orchestrator: conversation %s not started", conv)
	}

	turnCtx, cancel := context.WithCancel(ctx)
	st.setCancel(cancel)
	defer cancel()

	turnID := codexcore.NewCallId()
	spanCtx, span := o.tracer.Start(turnCtx, "turn.execute", codexcore.StringAttr("conversation_id", string(conv)), codexcore.StringAttr("turn_id", turnID))
	turnCtx = spanCtx
	defer span.End()

	if o.metrics != nil {
		o.metrics.TurnStarted(turnCtx)
	}

	o.patches.ResetTurn(conv)

	st.appendItem(codexcore.ResponseItem{
		Kind:    codexcore.ItemMessage,
		Role:    "user",
		Content: []codexcore.ContentPart{{Type: "text", Text: text}},
	})

	var produced []codexcore.ResponseItem

	for {
		prompt := codexcore.Prompt{
			Input:             st.snapshotHistory(),
			Tools:             builtinTools,
			ParallelToolCalls: true,
		}

		stream, err := o.client.Stream(turnCtx, conv, prompt)
		if err != nil {
			return o.fail(conv, turnID, produced, err, span)
		}

		functionCalls, usage, aborted, drainErr := o.drain(turnCtx, conv, stream)
		if aborted {
			return o.abort(conv, turnID, produced, "interrupted", span)
		}
		if drainErr != nil {
			return o.fail(conv, turnID, produced, drainErr, span)
		}
		if waitErr := stream.Wait(); waitErr != nil {
			return o.fail(conv, turnID, produced, waitErr, span)
		}

		total := st.addUsage(usage)
		o.maybeAutoCompact(turnCtx, conv, st, total)

		if len(functionCalls) == 0 {
			turn := codexcore.Turn{ID: turnID, Items: produced, Status: codexcore.TurnCompletedStatus}
			span.SetAttr(codexcore.StringAttr("status", string(codexcore.TurnCompletedStatus)), codexcore.IntAttr("tokens_total", total))
			if o.metrics != nil {
				o.metrics.TurnCompleted(turnCtx, total)
			}
			if w := st.writerRef(); w != nil {
				if err := w.Flush(); err != nil {
					return o.fail(conv, turnID, produced, fmt.Errorf("orchestrator: flush rollout: %w", err), span)
				}
			}
			o.bus.Publish(codexcore.EventMsg{Kind: codexcore.EvTurnCompleted, ConversationID: conv, Turn: &turn})
			return turn, nil
		}

		for _, call := range functionCalls {
			dispatchStart := time.Now()
			items, dispatchErr := o.dispatch(turnCtx, conv, st, call)
			if o.metrics != nil {
				o.metrics.ToolDispatched(turnCtx, call.Name, time.Since(dispatchStart))
			}
			for _, item := range items {
				st.appendItem(item)
				produced = append(produced, item)
				o.bus.Publish(codexcore.EventMsg{Kind: codexcore.EvItemCompleted, ConversationID: conv, Item: &item})
			}
			if dispatchErr != nil {
				return o.abort(conv, turnID, produced, "approval aborted", span)
			}
		}
	}
}

// drain consumes one streaming round until Completed, recording every
// FunctionCall item it sees along the way. It returns aborted=true if ctx
// was cancelled mid-stream.
func (o *Orchestrator) drain(ctx context.Context, conv codexcore.ConversationId, stream *llmclient.ResponseStream) (calls []codexcore.ResponseItem, usage codexcore.TokenUsage, aborted bool, err error) {
	defer stream.Close()
	for {
		select {
		case ev, ok := <-stream.Events:
			if !ok {
				// The channel can close either because Completed already
				// returned above, or because the pump stopped early due to
				// context cancellation (interrupt) or a transport error —
				// distinguish the former from a genuine abort here so the
				// turn reports Interrupted rather than Failed.
				return calls, usage, ctx.Err() != nil, nil
			}
			switch ev.Kind {
			case codexcore.RespOutputItemDone:
				if ev.Item != nil {
					o.bus.Publish(codexcore.EventMsg{Kind: codexcore.EvItemCompleted, ConversationID: conv, Item: ev.Item})
					if ev.Item.Kind == codexcore.ItemFunctionCall {
						calls = append(calls, *ev.Item)
					}
				}
			case codexcore.RespOutputTextDelta:
				o.bus.Publish(codexcore.EventMsg{Kind: codexcore.EvAgentMessageDelta, ConversationID: conv, Delta: ev.Delta})
			case codexcore.RespReasoningSummaryDelta:
				o.bus.Publish(codexcore.EventMsg{Kind: codexcore.EvReasoningSummaryTextDelta, ConversationID: conv, Delta: ev.Delta, SummaryIndex: ev.SummaryIndex})
			case codexcore.RespReasoningContentDelta:
				o.bus.Publish(codexcore.EventMsg{Kind: codexcore.EvReasoningTextDelta, ConversationID: conv, Delta: ev.Delta, ContentIndex: ev.ContentIndex})
			case codexcore.RespReasoningSummaryPartAdded:
				o.bus.Publish(codexcore.EventMsg{Kind: codexcore.EvReasoningSummaryPartAdded, ConversationID: conv, SummaryIndex: ev.SummaryIndex})
			case codexcore.RespRateLimits:
				if ev.RateLimits != nil {
					o.bus.Publish(codexcore.EventMsg{Kind: codexcore.EvAccountRateLimitsUpdated, ConversationID: conv, RateLimits: ev.RateLimits})
				}
			case codexcore.RespCompleted:
				usage = ev.Usage
				return calls, usage, false, nil
			}
		case <-ctx.Done():
			return calls, usage, true, nil
		}
	}
}

func (o *Orchestrator) fail(conv codexcore.ConversationId, turnID string, produced []codexcore.ResponseItem, err error, span codexcore.Span) (codexcore.Turn, error) {
	turn := codexcore.Turn{ID: turnID, Items: produced, Status: codexcore.TurnFailedStatus, Error: err.Error()}
	span.Error(err)
	if o.metrics != nil {
		o.metrics.TurnFailed(context.Background())
	}
	o.bus.Publish(codexcore.EventMsg{Kind: codexcore.EvError, ConversationID: conv, Message: err.Error()})
	return turn, err
}

func (o *Orchestrator) abort(conv codexcore.ConversationId, turnID string, produced []codexcore.ResponseItem, reason string, span codexcore.Span) (codexcore.Turn, error) {
	turn := codexcore.Turn{ID: turnID, Items: produced, Status: codexcore.TurnInterruptedStatus}
	span.SetAttr(codexcore.StringAttr("status", string(codexcore.TurnInterruptedStatus)), codexcore.StringAttr("reason", reason))
	if o.metrics != nil {
		o.metrics.TurnAborted(context.Background())
	}
	o.bus.Publish(codexcore.EventMsg{Kind: codexcore.EvTurnAborted, ConversationID: conv, Reason: reason})
	return turn, nil
}

// maybeAutoCompact runs the Compaction Engine when accumulated usage has
// crossed the configured limit, single-flight per conversation. A
// compaction failure is surfaced as a background event
// rather than failing the turn outright.
func (o *Orchestrator) maybeAutoCompact(ctx context.Context, conv codexcore.ConversationId, st *conversationState, total int) {
	if o.compactor == nil || o.cfg.AutoCompactLimit <= 0 || total < o.cfg.AutoCompactLimit {
		return
	}
	if !st.tryBeginCompaction() {
		return
	}
	defer st.endCompaction()

	history := st.snapshotHistory()
	res, err := o.compactor.Compact(ctx, conv, st.writerRef(), history, userMessages(history), o.cfg.CompactionPrompt)
	if err != nil {
		o.bus.Publish(codexcore.EventMsg{Kind: codexcore.EvBackgroundEvent, ConversationID: conv, Message: fmt.Sprintf("auto-compaction failed: %v", err)})
		return
	}
	st.replaceHistory(res.History)
	st.resetUsage()
}

// userMessages returns the user-role message items of history, in order,
// so a compaction call can carry them forward as pending alongside the
// synthetic summary rather than losing them from live history.
func userMessages(history []codexcore.ResponseItem) []codexcore.ResponseItem {
	var out []codexcore.ResponseItem
	for _, item := range history {
		if item.Kind == codexcore.ItemMessage && item.Role == "user" {
			out = append(out, item)
		}
	}
	return out
}
