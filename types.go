package codexcore

import (
	"encoding/json"
	"time"
)

// TurnContext is immutable per turn: a new instance is created whenever any
// setting changes, and each instance is appended to the rollout before any
// ResponseItem produced under it.
type TurnContext struct {
	Model             string        `json:"model"`
	ModelFamily       string        `json:"model_family"`
	ReasoningEffort   string        `json:"reasoning_effort,omitempty"`
	ReasoningSummary  string        `json:"reasoning_summary,omitempty"`
	ApprovalPolicy    ApprovalPolicy `json:"approval_policy"`
	SandboxPolicy     SandboxPolicy  `json:"sandbox_policy"`
	Cwd               string        `json:"cwd"`
}

// ApprovalPolicy controls how the Approval Gate (C4) treats actions.
type ApprovalPolicy string

const (
	ApprovalUnlessTrusted   ApprovalPolicy = "unless-trusted"
	ApprovalOnRequest       ApprovalPolicy = "on-request"
	ApprovalOnFailure       ApprovalPolicy = "on-failure"
	ApprovalNever           ApprovalPolicy = "never"
	ApprovalDangerFullAccess ApprovalPolicy = "danger-full-access"
)

// SandboxPolicyKind identifies the shape of a SandboxPolicy.
type SandboxPolicyKind string

const (
	SandboxReadOnly        SandboxPolicyKind = "read-only"
	SandboxWorkspaceWrite  SandboxPolicyKind = "workspace-write"
	SandboxDangerFullAccess SandboxPolicyKind = "danger-full-access"
)

// SandboxPolicy is one of ReadOnly, WorkspaceWrite{writable_roots,
// network_access}, or DangerFullAccess.
type SandboxPolicy struct {
	Kind          SandboxPolicyKind `json:"kind"`
	WritableRoots []string          `json:"writable_roots,omitempty"`
	NetworkAccess bool              `json:"network_access,omitempty"`
}

// ResponseItemKind discriminates the ResponseItem tagged union.
type ResponseItemKind string

const (
	ItemMessage            ResponseItemKind = "message"
	ItemReasoning          ResponseItemKind = "reasoning"
	ItemFunctionCall       ResponseItemKind = "function_call"
	ItemFunctionCallOutput ResponseItemKind = "function_call_output"
	ItemCustomToolCall     ResponseItemKind = "custom_tool_call"
	ItemLocalShellCall     ResponseItemKind = "local_shell_call"
	ItemWebSearchCall      ResponseItemKind = "web_search_call"
)

// ContentPart is a single piece of message content (text, image, etc.). An
// "input_image" part carries ImageURL instead of Text — either a data URL
// or a remote URI, depending on what produced it.
type ContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// ResponseItem is the tagged union consumed and produced by the provider.
// The orchestrator accumulates items in insertion order; the identity of a
// call is its CallID.
type ResponseItem struct {
	Kind ResponseItemKind `json:"kind"`

	// Message fields.
	Role    string        `json:"role,omitempty"`
	Content []ContentPart `json:"content,omitempty"`

	// Reasoning fields.
	ID               string   `json:"id,omitempty"`
	EncryptedContent string   `json:"encrypted_content,omitempty"`
	Summary          []string `json:"summary,omitempty"`

	// FunctionCall / CustomToolCall / LocalShellCall / WebSearchCall fields.
	Name      string          `json:"name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	CallID    string          `json:"call_id,omitempty"`

	// FunctionCallOutput fields.
	Output string `json:"output,omitempty"`
}

// Prompt is constructed fresh per model request and never mutated after
// send.
type Prompt struct {
	Input             []ResponseItem   `json:"input"`
	Tools             []ToolSpec       `json:"tools"`
	OutputSchema      json.RawMessage  `json:"output_schema,omitempty"`
	ParallelToolCalls bool             `json:"parallel_tool_calls"`
}

// ToolSpec describes a tool the model may call.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// RolloutItemKind discriminates the payload carried by a RolloutLine.
type RolloutItemKind string

const (
	RolloutSessionMeta  RolloutItemKind = "session_meta"
	RolloutTurnContext  RolloutItemKind = "turn_context"
	RolloutResponseItem RolloutItemKind = "response_item"
	RolloutCompacted    RolloutItemKind = "compacted"
	RolloutEventMsg     RolloutItemKind = "event_msg"
)

// SessionMeta is the first line written to every rollout file.
type SessionMeta struct {
	ConversationID ConversationId `json:"conversation_id"`
	Provider       string         `json:"provider,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
}

// Compacted is emitted when compaction runs. On replay, the prior sequence
// up to the compaction marker is replaced by a single synthetic user message
// carrying Message.
type Compacted struct {
	Message string `json:"message"`
}

// RolloutLine is one JSON record per line in the append-only journal. Item
// holds exactly one of SessionMeta, *TurnContext, *ResponseItem, *Compacted,
// or an EventMsg, selected by Kind.
type RolloutLine struct {
	Timestamp time.Time       `json:"timestamp"`
	Kind      RolloutItemKind `json:"kind"`
	Item      json.RawMessage `json:"item"`
}

// Window is a provider-reported usage bucket.
type Window struct {
	UsedPercent    float64    `json:"used_percent"`
	WindowMinutes  *int       `json:"window_minutes,omitempty"`
	ResetsAt       *time.Time `json:"resets_at,omitempty"`
}

// Credits reports a provider's pay-as-you-go balance, when applicable.
type Credits struct {
	HasCredits bool     `json:"has_credits"`
	Unlimited  bool     `json:"unlimited"`
	Balance    *float64 `json:"balance,omitempty"`
}

// RateLimitSnapshot is derived from response headers on every successful
// model request.
type RateLimitSnapshot struct {
	Primary   *Window `json:"primary,omitempty"`
	Secondary *Window `json:"secondary,omitempty"`
	Credits   Credits `json:"credits"`
}

// TokenUsage is accumulated across a conversation and used to trigger
// compaction when Total >= the configured auto-compact limit.
type TokenUsage struct {
	Input           int `json:"input"`
	CachedInput     int `json:"cached_input"`
	Output          int `json:"output"`
	ReasoningOutput int `json:"reasoning_output"`
	Total           int `json:"total"`
}

// Add accumulates u into the receiver in place.
func (t *TokenUsage) Add(u TokenUsage) {
	t.Input += u.Input
	t.CachedInput += u.CachedInput
	t.Output += u.Output
	t.ReasoningOutput += u.ReasoningOutput
	t.Total += u.Total
}

// ParsedCommand is a structured interpretation of a shell command used only
// for display; it never changes execution semantics.
type ParsedCommand struct {
	Kind    string `json:"kind"` // "read", "search", "format", "other"
	Path    string `json:"path,omitempty"`
	Query   string `json:"query,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// ExecCall records one classical one-shot exec tool invocation.
type ExecCall struct {
	CallID           string         `json:"call_id"`
	Command          []string       `json:"command"`
	Cwd              string         `json:"cwd"`
	Parsed           *ParsedCommand `json:"parsed,omitempty"`
	Output           string         `json:"output,omitempty"`
	StartTime        time.Time      `json:"start_time"`
	Duration         *time.Duration `json:"duration,omitempty"`
	InteractionInput string         `json:"interaction_input,omitempty"`
}

// ExecResult is the outcome of one C5 exec tool call.
type ExecResult struct {
	ExitCode         int           `json:"exit_code"`
	Duration         time.Duration `json:"duration"`
	AggregatedOutput string        `json:"aggregated_output"`
	Stdout           string        `json:"stdout"`
	Stderr           string        `json:"stderr"`
	FormattedOutput  string        `json:"formatted_output"`
	SandboxDenied    bool          `json:"sandbox_denied"`
	TimedOut         bool          `json:"timed_out"`
}

// UnifiedExecSession is a persistent PTY-backed shell keyed by a small
// integer, reused across tool calls within a conversation. Created by the
// first exec_command call that yields within yield_time_ms; destroyed when
// its process exits.
type UnifiedExecSession struct {
	ID         int  `json:"id"`
	ExitStatus *int `json:"exit_status,omitempty"`
}

// ExecChunk is the response shape returned by both exec_command and
// write_stdin: a slice of output plus, once the underlying process has
// exited, its exit code. SessionID is present once a session has been
// created, omitted for a call that ran to completion within yield_time_ms
// without ever needing one.
type ExecChunk struct {
	ChunkID            string        `json:"chunk_id"`
	WallTime           time.Duration `json:"wall_time"`
	SessionID          *int          `json:"session_id,omitempty"`
	ExitCode           *int          `json:"exit_code,omitempty"`
	OriginalTokenCount *int          `json:"original_token_count,omitempty"`
	Output             string        `json:"output"`
	TokensTruncated    bool          `json:"tokens_truncated,omitempty"`
}

// ApprovalRequestKind discriminates the ApprovalRequest union.
type ApprovalRequestKind string

const (
	ApprovalRequestExec       ApprovalRequestKind = "exec"
	ApprovalRequestApplyPatch ApprovalRequestKind = "apply_patch"
)

// ApprovalRequest asks the front-end to approve or deny a mutating action.
// Exactly one response is expected.
type ApprovalRequest struct {
	Kind ApprovalRequestKind `json:"kind"`

	// Exec fields.
	CallID  string   `json:"call_id"`
	Command []string `json:"command,omitempty"`
	Cwd     string   `json:"cwd,omitempty"`
	Reason  string   `json:"reason,omitempty"`
	Risk    string   `json:"risk,omitempty"`

	// ApplyPatch fields.
	Changes   map[string]FileChange `json:"changes,omitempty"`
	GrantRoot string                `json:"grant_root,omitempty"`
}

// FileChangeKind discriminates the FileChange union.
type FileChangeKind string

const (
	FileChangeAdd    FileChangeKind = "add"
	FileChangeDelete FileChangeKind = "delete"
	FileChangeUpdate FileChangeKind = "update"
)

// FileChange is Add{content} | Delete{content} | Update{unified_diff,
// move_path?}. Paths are stored relative to the workspace cwd.
type FileChange struct {
	Kind        FileChangeKind `json:"kind"`
	Content     string         `json:"content,omitempty"`
	UnifiedDiff string         `json:"unified_diff,omitempty"`
	MovePath    string         `json:"move_path,omitempty"`
}

// ApprovalDecision is the front-end's response to an ApprovalRequest.
type ApprovalDecision string

const (
	ApprovalApproved           ApprovalDecision = "approved"
	ApprovalApprovedForSession ApprovalDecision = "approved_for_session"
	ApprovalDenied             ApprovalDecision = "denied"
	ApprovalAbort              ApprovalDecision = "abort"
	// ApprovalDeclined is the v2 app-server protocol's distinct default for
	// CommandExecutionRequestApproval when the front end's response fails to
	// deserialize — kept separate from ApprovalDenied (the v1 default for the
	// same failure) because the source leaves the asymmetry undocumented; see
	// DESIGN.md.
	ApprovalDeclined ApprovalDecision = "declined"
)

// ApprovalResponse pairs a decision with the request it answers.
type ApprovalResponse struct {
	CallID   string           `json:"call_id"`
	Decision ApprovalDecision `json:"decision"`
}
