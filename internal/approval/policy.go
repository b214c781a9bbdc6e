// Package approval implements the Approval Gate (C4): resolving every
// shell/patch action against a decision table keyed on (AskForApproval,
// SandboxPolicy), the built-in trusted-command allowlist, ApprovedForSession
// caching, and the default-deny behavior when a front end's approval
// response fails to deserialize.
package approval

import "github.com/nevindra/codexcore"

// Outcome is what the gate decided an action should do next.
type Outcome string

const (
	// OutcomeRun executes the action unsandboxed.
	OutcomeRun Outcome = "run"
	// OutcomeRunSandboxed executes the action under the active SandboxPolicy.
	OutcomeRunSandboxed Outcome = "run_sandboxed"
	// OutcomeRequestApproval means the caller must round-trip through the
	// front end via Gate.RequestExec or Gate.RequestPatch before proceeding.
	OutcomeRequestApproval Outcome = "request_approval"
	// OutcomeReject means the action is refused outright; RejectReason
	// carries the exact text to return as the tool's FunctionCallOutput.
	OutcomeReject Outcome = "reject"
)

// Decision is the gate's verdict for one action, before any front-end
// round trip.
type Decision struct {
	Outcome      Outcome
	RejectReason string
}

// DecideExec resolves a shell command against policy, per the
// "trusted command" / "untrusted command" columns of the decision table.
// trusted should be IsTrusted(command) OR'd with any session-cache hit the
// caller already resolved. escalationRequested reflects an explicit
// with_escalated_permissions flag on the tool call, which only matters under
// OnRequest.
func DecideExec(policy codexcore.ApprovalPolicy, trusted, escalationRequested bool) Decision {
	if policy == codexcore.ApprovalDangerFullAccess {
		return Decision{Outcome: OutcomeRun}
	}
	if trusted {
		return Decision{Outcome: OutcomeRun}
	}

	switch policy {
	case codexcore.ApprovalUnlessTrusted:
		return Decision{Outcome: OutcomeRequestApproval}

	case codexcore.ApprovalOnRequest:
		if escalationRequested {
			return Decision{Outcome: OutcomeRequestApproval}
		}
		return Decision{Outcome: OutcomeRunSandboxed}

	case codexcore.ApprovalOnFailure:
		return Decision{Outcome: OutcomeRunSandboxed}

	case codexcore.ApprovalNever:
		return Decision{Outcome: OutcomeRunSandboxed}

	default:
		return Decision{Outcome: OutcomeRequestApproval}
	}
}

// SandboxFailureReason is the fixed reason text attached to the exec
// approval request OnFailure issues after a sandboxed run is denied by the
// sandbox layer.
const SandboxFailureReason = "command failed; retry without sandbox?"

// DecideExecSandboxDenial resolves what happens after a sandboxed run comes
// back with ExecResult.SandboxDenied set. Only OnFailure escalates to a
// fresh approval request; Never surfaces the denial as a plain tool failure;
// every other policy either never reaches this path (they already ran
// unsandboxed or requested approval up front) or is handled identically to
// Never for this one edge.
func DecideExecSandboxDenial(policy codexcore.ApprovalPolicy) Decision {
	if policy == codexcore.ApprovalOnFailure {
		return Decision{Outcome: OutcomeRequestApproval}
	}
	return Decision{Outcome: OutcomeReject} // surfaced as a failed tool output, not retried
}

// DecidePatch resolves an apply_patch action against policy, per the
// "apply_patch outside workspace" / "apply_patch inside workspace" columns.
func DecidePatch(policy codexcore.ApprovalPolicy, outsideWorkspace bool) Decision {
	if policy == codexcore.ApprovalDangerFullAccess {
		return Decision{Outcome: OutcomeRun}
	}

	if outsideWorkspace {
		if policy == codexcore.ApprovalNever {
			return Decision{Outcome: OutcomeReject, RejectReason: codexcore.PatchRejectedOutsideWorkspace}
		}
		return Decision{Outcome: OutcomeRequestApproval}
	}

	if policy == codexcore.ApprovalUnlessTrusted {
		return Decision{Outcome: OutcomeRequestApproval}
	}
	return Decision{Outcome: OutcomeRun}
}
