package orchestrator

import (
	"context"
	"sync"

	"github.com/nevindra/codexcore"
	"github.com/nevindra/codexcore/internal/rollout"
)

// conversationState is the orchestrator's per-conversation mutable state:
// the live (possibly compacted) history, accumulated token usage, the
// active TurnContext, and bookkeeping for interruption and single-flight
// auto-compaction.
type conversationState struct {
	mu sync.Mutex

	turnCtx codexcore.TurnContext
	history []codexcore.ResponseItem
	usage   codexcore.TokenUsage
	writer  *rollout.Writer

	compacting bool
	cancel     context.CancelFunc
}

func (s *conversationState) snapshotHistory() []codexcore.ResponseItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]codexcore.ResponseItem, len(s.history))
	copy(out, s.history)
	return out
}

func (s *conversationState) appendItem(item codexcore.ResponseItem) {
	s.mu.Lock()
	s.history = append(s.history, item)
	w := s.writer
	s.mu.Unlock()
	if w != nil {
		_ = w.AppendResponseItem(item)
	}
}

func (s *conversationState) addUsage(u codexcore.TokenUsage) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage.Add(u)
	return s.usage.Total
}

func (s *conversationState) setCancel(c context.CancelFunc) {
	s.mu.Lock()
	s.cancel = c
	s.mu.Unlock()
}

// tryBeginCompaction reports whether this call won the single-flight race
// to run auto-compaction; it clears automatically when endCompaction is
// called.
func (s *conversationState) tryBeginCompaction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.compacting {
		return false
	}
	s.compacting = true
	return true
}

func (s *conversationState) endCompaction() {
	s.mu.Lock()
	s.compacting = false
	s.mu.Unlock()
}

func (s *conversationState) replaceHistory(newHistory []codexcore.ResponseItem) {
	s.mu.Lock()
	s.history = newHistory
	s.mu.Unlock()
}

func (s *conversationState) policyAndPolicy() (codexcore.ApprovalPolicy, codexcore.SandboxPolicy, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnCtx.ApprovalPolicy, s.turnCtx.SandboxPolicy, s.turnCtx.Cwd
}

func (s *conversationState) writerRef() *rollout.Writer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer
}

func (s *conversationState) resetUsage() {
	s.mu.Lock()
	s.usage = codexcore.TokenUsage{}
	s.mu.Unlock()
}
