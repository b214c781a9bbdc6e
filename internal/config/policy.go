package config

import "github.com/nevindra/codexcore"

// ApprovalPolicy resolves the configured approval policy string to its
// typed codexcore.ApprovalPolicy, defaulting to OnRequest for an unknown or
// empty value.
func (c ApprovalConfig) ApprovalPolicy() codexcore.ApprovalPolicy {
	switch codexcore.ApprovalPolicy(c.Policy) {
	case codexcore.ApprovalUnlessTrusted, codexcore.ApprovalOnRequest, codexcore.ApprovalOnFailure, codexcore.ApprovalNever, codexcore.ApprovalDangerFullAccess:
		return codexcore.ApprovalPolicy(c.Policy)
	default:
		return codexcore.ApprovalOnRequest
	}
}

// SandboxPolicy resolves the configured sandbox policy string to its typed
// codexcore.SandboxPolicy, defaulting to WorkspaceWrite for an unknown or
// empty value.
func (c SandboxConfig) SandboxPolicy() codexcore.SandboxPolicy {
	kind := codexcore.SandboxPolicyKind(c.Policy)
	switch kind {
	case codexcore.SandboxReadOnly, codexcore.SandboxDangerFullAccess:
		return codexcore.SandboxPolicy{Kind: kind}
	case codexcore.SandboxWorkspaceWrite:
		return codexcore.SandboxPolicy{Kind: kind, WritableRoots: c.WritableRoots}
	default:
		return codexcore.SandboxPolicy{Kind: codexcore.SandboxWorkspaceWrite, WritableRoots: c.WritableRoots}
	}
}
