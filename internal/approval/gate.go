package approval

import (
	"context"
	"fmt"
	"sync"

	"github.com/nevindra/codexcore"
)

// Requester sends an ApprovalRequest to the front end and waits for exactly
// one ApprovalResponse. A non-nil error means the round trip itself failed
// (transport failure, malformed response) and Gate substitutes the
// conservative default rather than propagating the error to the turn.
type Requester interface {
	RequestApproval(ctx context.Context, req codexcore.ApprovalRequest) (codexcore.ApprovalResponse, error)
}

// Gate is the session-scoped Approval Gate: it owns the ApprovedForSession
// cache (keyed by command prefix) and wraps a Requester with the
// default-deny behavior for malformed responses.
type Gate struct {
	requester Requester

	mu       sync.Mutex
	approved map[string]bool // SessionCacheKey -> approved for the rest of the session
}

// NewGate constructs a Gate bound to requester.
func NewGate(requester Requester) *Gate {
	return &Gate{requester: requester, approved: make(map[string]bool)}
}

// IsApprovedForSession reports whether command's prefix was previously
// approved with ApprovedForSession.
func (g *Gate) IsApprovedForSession(command []string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.approved[SessionCacheKey(command)]
}

// RequestExecKind distinguishes the v1 ExecCommandApproval protocol message
// (default-deny on malformed response) from the v2 CommandExecutionRequestApproval
// message (default-decline on malformed response). Both protocol versions
// are preserved rather than collapsed into one, since a front end may still
// speak either.
type RequestExecKind int

const (
	// ExecApprovalV1 is the original app-server protocol message.
	ExecApprovalV1 RequestExecKind = iota
	// ExecApprovalV2 is the CommandExecutionRequestApproval message.
	ExecApprovalV2
)

// RequestExec sends an exec ApprovalRequest and applies the default-deny
// (v1) or default-decline (v2) fallback on a malformed or failed response.
// ApprovedForSession responses are cached against the command's prefix for
// the remainder of the session.
func (g *Gate) RequestExec(ctx context.Context, req codexcore.ApprovalRequest, kind RequestExecKind) codexcore.ApprovalResponse {
	resp, err := g.requester.RequestApproval(ctx, req)
	if err != nil {
		return codexcore.ApprovalResponse{CallID: req.CallID, Decision: defaultDecision(kind)}
	}
	if resp.Decision == codexcore.ApprovalApprovedForSession {
		g.mu.Lock()
		g.approved[SessionCacheKey(req.Command)] = true
		g.mu.Unlock()
	}
	return resp
}

// RequestPatch sends an apply_patch ApprovalRequest and applies the
// default-deny fallback on a malformed or failed response. apply_patch has
// no v2 variant in the protocol, so it always defaults to Denied.
func (g *Gate) RequestPatch(ctx context.Context, req codexcore.ApprovalRequest) codexcore.ApprovalResponse {
	resp, err := g.requester.RequestApproval(ctx, req)
	if err != nil {
		return codexcore.ApprovalResponse{CallID: req.CallID, Decision: codexcore.ApprovalDenied}
	}
	return resp
}

func defaultDecision(kind RequestExecKind) codexcore.ApprovalDecision {
	if kind == ExecApprovalV2 {
		return codexcore.ApprovalDeclined
	}
	return codexcore.ApprovalDenied
}

// ResolveExec is the end-to-end entry point for C5: decide, and if the
// decision requires a front-end round trip, perform it and fold the
// response back into a final Outcome. trusted should already reflect both
// IsTrusted(command) and g.IsApprovedForSession(command).
func (g *Gate) ResolveExec(ctx context.Context, policy codexcore.ApprovalPolicy, req codexcore.ApprovalRequest, trusted, escalationRequested bool, kind RequestExecKind) (Outcome, error) {
	d := DecideExec(policy, trusted, escalationRequested)
	if d.Outcome != OutcomeRequestApproval {
		return d.Outcome, nil
	}

	resp := g.RequestExec(ctx, req, kind)
	switch resp.Decision {
	case codexcore.ApprovalApproved, codexcore.ApprovalApprovedForSession:
		return OutcomeRun, nil
	case codexcore.ApprovalAbort:
		return OutcomeReject, fmt.Errorf("turn aborted: exec approval for call %s", req.CallID)
	default:
		return OutcomeReject, nil
	}
}

// ResolvePatch is the end-to-end entry point for C6.
func (g *Gate) ResolvePatch(ctx context.Context, policy codexcore.ApprovalPolicy, req codexcore.ApprovalRequest, outsideWorkspace bool) (Outcome, string, error) {
	d := DecidePatch(policy, outsideWorkspace)
	if d.Outcome == OutcomeReject {
		return OutcomeReject, d.RejectReason, nil
	}
	if d.Outcome != OutcomeRequestApproval {
		return d.Outcome, "", nil
	}

	resp := g.RequestPatch(ctx, req)
	switch resp.Decision {
	case codexcore.ApprovalApproved, codexcore.ApprovalApprovedForSession:
		return OutcomeRun, "", nil
	case codexcore.ApprovalAbort:
		return OutcomeReject, "", fmt.Errorf("turn aborted: patch approval for call %s", req.CallID)
	default:
		if outsideWorkspace {
			return OutcomeReject, codexcore.PatchRejectedOutsideWorkspace, nil
		}
		return OutcomeReject, "patch rejected by user approval settings", nil
	}
}
