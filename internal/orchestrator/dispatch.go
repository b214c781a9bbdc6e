package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nevindra/codexcore"
	"github.com/nevindra/codexcore/internal/approval"
	"github.com/nevindra/codexcore/internal/exectool"
	"github.com/nevindra/codexcore/internal/patch"
	"github.com/nevindra/codexcore/internal/unifiedexec"
)

// mcpCallPrefix names a remote tool call surfaced by the model as
// mcp__<server>__<tool>.
const mcpCallPrefix = "mcp__"

// dispatch routes one FunctionCall item to the right tool and returns the
// items it produces: always the paired FunctionCallOutput, plus any
// input_image items a remote tool call materializes from image output.
// Every path returns non-error ResponseItems — tool failures are surfaced
// as Output text, never a Go error, except when the user aborted
// mid-approval, which propagates so the turn loop can stop.
func (o *Orchestrator) dispatch(ctx context.Context, conv codexcore.ConversationId, st *conversationState, call codexcore.ResponseItem) ([]codexcore.ResponseItem, error) {
	spanName, ok := spanNameFor(call.Name)
	if !ok {
		return []codexcore.ResponseItem{functionOutput(call.CallID, fmt.Sprintf("unsupported call: %s", call.Name))}, nil
	}
	ctx, span := o.tracer.Start(ctx, spanName, codexcore.StringAttr("call_id", call.CallID))
	defer span.End()

	var out []codexcore.ResponseItem
	var err error
	switch {
	case call.Name == "shell" || call.Name == "exec":
		var item codexcore.ResponseItem
		item, err = o.dispatchExec(ctx, conv, st, call)
		out = []codexcore.ResponseItem{item}
	case call.Name == "apply_patch":
		var item codexcore.ResponseItem
		item, err = o.dispatchPatch(ctx, conv, st, call)
		out = []codexcore.ResponseItem{item}
	case call.Name == "exec_command":
		var item codexcore.ResponseItem
		item, err = o.dispatchExecCommand(ctx, conv, call)
		out = []codexcore.ResponseItem{item}
	case call.Name == "write_stdin":
		var item codexcore.ResponseItem
		item, err = o.dispatchWriteStdin(call)
		out = []codexcore.ResponseItem{item}
	case strings.HasPrefix(call.Name, mcpCallPrefix):
		out, err = o.dispatchMCP(ctx, call)
	}
	if err != nil {
		span.Error(err)
	}
	return out, err
}

// toolSpanName maps a function-call name to its tool.* span name;
// exec_command and write_stdin share tool.unified_exec since both act on
// the same session table.
var toolSpanName = map[string]string{
	"shell":        "tool.exec",
	"exec":         "tool.exec",
	"apply_patch":  "tool.apply_patch",
	"exec_command": "tool.unified_exec",
	"write_stdin":  "tool.unified_exec",
}

// spanNameFor resolves name to its tool.* span name, falling back to
// tool.mcp for any mcp__<server>__<tool> remote call.
func spanNameFor(name string) (string, bool) {
	if strings.HasPrefix(name, mcpCallPrefix) {
		return "tool.mcp", true
	}
	spanName, ok := toolSpanName[name]
	return spanName, ok
}

func functionOutput(callID, output string) codexcore.ResponseItem {
	return codexcore.ResponseItem{Kind: codexcore.ItemFunctionCallOutput, CallID: callID, Output: output}
}

type execArgs struct {
	Command                   []string `json:"command"`
	Workdir                   string   `json:"workdir"`
	TimeoutMs                 int      `json:"timeout_ms"`
	WithEscalatedPermissions  bool     `json:"with_escalated_permissions"`
	Justification             string   `json:"justification"`
}

func (o *Orchestrator) dispatchExec(ctx context.Context, conv codexcore.ConversationId, st *conversationState, call codexcore.ResponseItem) (codexcore.ResponseItem, error) {
	var args execArgs
	if err := json.Unmarshal(call.Arguments, &args); err != nil || len(args.Command) == 0 {
		return functionOutput(call.CallID, "invalid shell call arguments"), nil
	}

	policy, _, cwd := st.policyAndPolicy()
	if args.Workdir != "" {
		cwd = args.Workdir
	}

	trusted := approval.IsTrusted(args.Command) || o.gate.IsApprovedForSession(args.Command)
	req := codexcore.ApprovalRequest{
		Kind:    codexcore.ApprovalRequestExec,
		CallID:  call.CallID,
		Command: args.Command,
		Cwd:     cwd,
		Reason:  args.Justification,
	}

	outcome, err := o.gate.ResolveExec(ctx, policy, req, trusted, args.WithEscalatedPermissions, approval.ExecApprovalV2)
	if err != nil {
		return functionOutput(call.CallID, "exec rejected: turn aborted"), err
	}
	if outcome == approval.OutcomeReject {
		return functionOutput(call.CallID, "exec rejected by approval policy"), nil
	}

	result, execErr := o.exec.Exec(ctx, exectool.Request{
		ConversationID: conv,
		CallID:         call.CallID,
		Command:        args.Command,
		Cwd:            cwd,
		TimeoutMs:      args.TimeoutMs,
		Sandboxed:      outcome == approval.OutcomeRunSandboxed,
	})
	if execErr != nil {
		return functionOutput(call.CallID, fmt.Sprintf("exec failed: %v", execErr)), nil
	}

	if result.SandboxDenied {
		decision := approval.DecideExecSandboxDenial(policy)
		if decision.Outcome == approval.OutcomeRequestApproval {
			resp := o.gate.RequestExec(ctx, codexcore.ApprovalRequest{
				Kind:    codexcore.ApprovalRequestExec,
				CallID:  call.CallID,
				Command: args.Command,
				Cwd:     cwd,
				Reason:  approval.SandboxFailureReason,
			}, approval.ExecApprovalV2)
			if resp.Decision == codexcore.ApprovalApproved || resp.Decision == codexcore.ApprovalApprovedForSession {
				result, execErr = o.exec.Exec(ctx, exectool.Request{
					ConversationID: conv,
					CallID:         call.CallID,
					Command:        args.Command,
					Cwd:            cwd,
					TimeoutMs:      args.TimeoutMs,
					Sandboxed:      false,
				})
				if execErr != nil {
					return functionOutput(call.CallID, fmt.Sprintf("exec failed: %v", execErr)), nil
				}
			} else {
				return functionOutput(call.CallID, "exec rejected by approval policy"), nil
			}
		} else {
			return functionOutput(call.CallID, "sandbox denied command"), nil
		}
	}

	return functionOutput(call.CallID, result.FormattedOutput), nil
}

func (o *Orchestrator) dispatchPatch(ctx context.Context, conv codexcore.ConversationId, st *conversationState, call codexcore.ResponseItem) (codexcore.ResponseItem, error) {
	var args struct {
		Input string `json:"input"`
	}
	if err := json.Unmarshal(call.Arguments, &args); err != nil || args.Input == "" {
		return functionOutput(call.CallID, codexcore.PatchRejectedEmpty), nil
	}

	policy, sandboxPolicy, cwd := st.policyAndPolicy()

	env, parseErr := patch.Parse(args.Input)
	if parseErr != nil {
		return functionOutput(call.CallID, fmt.Sprintf("apply_patch rejected: %v", parseErr)), nil
	}

	outsideWorkspace := patch.OutsideWorkspace(cwd, sandboxPolicy.WritableRoots, env)

	req := codexcore.ApprovalRequest{
		Kind:   codexcore.ApprovalRequestApplyPatch,
		CallID: call.CallID,
		Cwd:    cwd,
	}

	outcome, rejectReason, err := o.gate.ResolvePatch(ctx, policy, req, outsideWorkspace)
	if err != nil {
		return functionOutput(call.CallID, "apply_patch rejected: turn aborted"), err
	}
	if outcome == approval.OutcomeReject {
		return functionOutput(call.CallID, rejectReason), nil
	}

	summary, _, applyErr := o.patches.Apply(ctx, conv, cwd, args.Input)
	if applyErr != nil {
		return functionOutput(call.CallID, applyErr.Error()), nil
	}
	return functionOutput(call.CallID, summary), nil
}

type execCommandArgs struct {
	Cmd             string `json:"cmd"`
	YieldTimeMs     int    `json:"yield_time_ms"`
	MaxOutputTokens int    `json:"max_output_tokens"`
	Workdir         string `json:"workdir"`
}

func (o *Orchestrator) dispatchExecCommand(ctx context.Context, conv codexcore.ConversationId, call codexcore.ResponseItem) (codexcore.ResponseItem, error) {
	var args execCommandArgs
	if err := json.Unmarshal(call.Arguments, &args); err != nil || args.Cmd == "" {
		return functionOutput(call.CallID, "invalid exec_command arguments"), nil
	}

	chunk, err := o.unified.ExecCommand(unifiedexec.ExecCommandRequest{
		ConversationID: conv,
		CallID:         call.CallID,
		Command:        args.Cmd,
		Cwd:            args.Workdir,
		YieldTimeMs:    args.YieldTimeMs,
	})
	if err != nil {
		return functionOutput(call.CallID, fmt.Sprintf("exec_command failed: %v", err)), nil
	}
	return functionOutput(call.CallID, chunkToText(chunk)), nil
}

type writeStdinArgs struct {
	Chars       string `json:"chars"`
	SessionID   int    `json:"session_id"`
	YieldTimeMs int    `json:"yield_time_ms"`
}

func (o *Orchestrator) dispatchWriteStdin(call codexcore.ResponseItem) (codexcore.ResponseItem, error) {
	var args writeStdinArgs
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return functionOutput(call.CallID, "invalid write_stdin arguments"), nil
	}

	chunk, err := o.unified.WriteStdin(unifiedexec.WriteStdinRequest{
		SessionID:   args.SessionID,
		Chars:       args.Chars,
		YieldTimeMs: args.YieldTimeMs,
	})
	if err != nil {
		return functionOutput(call.CallID, fmt.Sprintf("write_stdin failed: %v", err)), nil
	}
	return functionOutput(call.CallID, chunkToText(chunk)), nil
}

// dispatchMCP routes call to the injected RemoteToolCaller, passing its
// arguments through unchanged and materializing any image output as a
// trailing input_image message item.
func (o *Orchestrator) dispatchMCP(ctx context.Context, call codexcore.ResponseItem) ([]codexcore.ResponseItem, error) {
	if o.remote == nil {
		return []codexcore.ResponseItem{functionOutput(call.CallID, fmt.Sprintf("no remote tool configured for %s", call.Name))}, nil
	}
	server, tool, ok := splitMCPName(call.Name)
	if !ok {
		return []codexcore.ResponseItem{functionOutput(call.CallID, fmt.Sprintf("malformed mcp call name: %s", call.Name))}, nil
	}

	result, err := o.remote.CallTool(ctx, server, tool, call.Arguments)
	if err != nil {
		return []codexcore.ResponseItem{functionOutput(call.CallID, fmt.Sprintf("mcp call failed: %v", err))}, nil
	}

	items := []codexcore.ResponseItem{functionOutput(call.CallID, result.Text)}
	if len(result.Images) > 0 {
		parts := make([]codexcore.ContentPart, len(result.Images))
		for i, url := range result.Images {
			parts[i] = codexcore.ContentPart{Type: "input_image", ImageURL: url}
		}
		items = append(items, codexcore.ResponseItem{
			Kind:    codexcore.ItemMessage,
			Role:    "user",
			Content: parts,
		})
	}
	return items, nil
}

// splitMCPName splits "mcp__<server>__<tool>" into its server and tool
// parts. The tool name itself may contain further "__" separators, so the
// split stops at the first one after the prefix.
func splitMCPName(name string) (server, tool string, ok bool) {
	rest := strings.TrimPrefix(name, mcpCallPrefix)
	parts := strings.SplitN(rest, "__", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// chunkToText renders an ExecChunk as the plain-text FunctionCallOutput the
// model sees; structured fields (exit_code, truncation) are folded in as a
// trailing annotation rather than raw JSON, matching how C5's formatted
// output already reads.
func chunkToText(c codexcore.ExecChunk) string {
	text := c.Output
	if c.TokensTruncated {
		text += fmt.Sprintf("\n[... output truncated, original_token_count=%d ...]", *c.OriginalTokenCount)
	}
	if c.ExitCode != nil {
		text += fmt.Sprintf("\n[exited with code %d]", *c.ExitCode)
	}
	return text
}
