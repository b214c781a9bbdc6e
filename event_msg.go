package codexcore

import "time"

// EventMsgKind discriminates the internal event union the orchestrator
// writes to the Event Bus (C10). External translators map these onto
// front-end-specific wire schemas (app-server v1/v2, exec line-JSON).
type EventMsgKind string

const (
	EvItemStarted               EventMsgKind = "item_started"
	EvItemUpdated               EventMsgKind = "item_updated"
	EvItemCompleted             EventMsgKind = "item_completed"
	EvAgentMessageDelta         EventMsgKind = "agent_message_delta"
	EvReasoningSummaryTextDelta EventMsgKind = "reasoning_summary_text_delta"
	EvReasoningTextDelta        EventMsgKind = "reasoning_text_delta"
	EvReasoningSummaryPartAdded EventMsgKind = "reasoning_summary_part_added"
	EvExecCommandBegin          EventMsgKind = "exec_command_begin"
	EvExecCommandOutputDelta    EventMsgKind = "exec_command_output_delta"
	EvExecCommandEnd            EventMsgKind = "exec_command_end"
	EvCommandExecutionOutputDelta EventMsgKind = "command_execution_output_delta"
	EvTurnDiff                  EventMsgKind = "turn_diff"
	EvAccountRateLimitsUpdated  EventMsgKind = "account_rate_limits_updated"
	EvBackgroundEvent           EventMsgKind = "background_event"
	EvTurnCompleted             EventMsgKind = "turn_completed"
	EvTurnAborted               EventMsgKind = "turn_aborted"
	EvError                     EventMsgKind = "error"
)

// OutputStream identifies which stream a chunk of exec output came from.
type OutputStream string

const (
	StreamStdout OutputStream = "stdout"
	StreamStderr OutputStream = "stderr"
)

// TurnStatus is the terminal status of a turn.
type TurnStatus string

const (
	TurnCompletedStatus  TurnStatus = "completed"
	TurnInterruptedStatus TurnStatus = "interrupted"
	TurnFailedStatus     TurnStatus = "failed"
)

// Turn summarizes a finished turn for the TurnCompleted notification.
type Turn struct {
	ID     string         `json:"id"`
	Items  []ResponseItem `json:"items"`
	Status TurnStatus     `json:"status"`
	Error  string         `json:"error,omitempty"`
}

// EventMsg is the tagged union every consumer of the Event Bus receives. A
// turn emits exactly one terminal event: TurnCompleted, TurnAborted, or
// Error.
type EventMsg struct {
	Kind           EventMsgKind   `json:"kind"`
	ConversationID ConversationId `json:"conversation_id"`
	Timestamp      time.Time      `json:"timestamp"`

	// Item lifecycle.
	Item *ResponseItem `json:"item,omitempty"`

	// Text deltas.
	Delta        string `json:"delta,omitempty"`
	SummaryIndex int    `json:"summary_index,omitempty"`
	ContentIndex int    `json:"content_index,omitempty"`

	// Exec lifecycle.
	CallID  string         `json:"call_id,omitempty"`
	Command []string       `json:"command,omitempty"`
	Cwd     string         `json:"cwd,omitempty"`
	Parsed  *ParsedCommand `json:"parsed,omitempty"`

	Stream OutputStream `json:"stream,omitempty"`
	Chunk  []byte       `json:"chunk,omitempty"`

	ExitCode         *int          `json:"exit_code,omitempty"`
	Duration         time.Duration `json:"duration,omitempty"`
	AggregatedOutput string        `json:"aggregated_output,omitempty"`
	Stdout           string        `json:"stdout,omitempty"`
	Stderr           string        `json:"stderr,omitempty"`
	FormattedOutput  string        `json:"formatted_output,omitempty"`

	// apply_patch.
	UnifiedDiff string `json:"unified_diff,omitempty"`

	// Rate limits / background text.
	RateLimits *RateLimitSnapshot `json:"rate_limits,omitempty"`
	Message    string             `json:"message,omitempty"`

	// Turn terminal events.
	Turn   *Turn  `json:"turn,omitempty"`
	Reason string `json:"reason,omitempty"`
}
