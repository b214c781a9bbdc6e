package codexcore

import (
	"github.com/google/uuid"
)

// ConversationId is an opaque 128-bit identifier, stable for the lifetime of
// one conversation and persisted in the rollout file.
type ConversationId string

// NewConversationId mints a time-ordered conversation identifier.
func NewConversationId() ConversationId {
	return ConversationId(uuid.Must(uuid.NewV7()).String())
}

// NewCallId mints a server-synthesized call_id for tool invocations the
// provider itself did not tag (e.g. internally retried or orchestrator
// originated calls). Model-issued call_ids are used verbatim when present.
func NewCallId() string {
	return uuid.Must(uuid.NewV7()).String()
}
