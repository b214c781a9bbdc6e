// Package unifiedexec implements the Unified Exec tool (C7): persistent
// PTY-backed shell sessions that a caller can create, poll with bounded
// wait, and write to, getting back bounded slices of output rather than a
// one-shot result.
package unifiedexec

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nevindra/codexcore"
	"github.com/nevindra/codexcore/internal/eventbus"
)

// ErrSessionNotFound is returned by WriteStdin when session_id names no
// session in the table: either it never existed, or an earlier call already
// observed its exit, published ExecCommandEnd and removed it.
var ErrSessionNotFound = errors.New("unifiedexec: session not found")

// ErrSessionExited is returned by WriteStdin when the session's process had
// already exited before the write was attempted but no earlier call has
// reported that exit yet; the caller gets an error result back rather than
// the write silently going nowhere.
var ErrSessionExited = errors.New("unifiedexec: session already exited")

// maxOutputTokens bounds how much output a single ExecChunk carries;
// output beyond this is truncated from the head, since the most recent
// bytes are the most relevant to a caller polling a long-running process.
const maxOutputTokens = 4000

// Metrics receives session lifecycle counts. Instruments implements this
// without either package importing the other.
type Metrics interface {
	SessionOpened(ctx context.Context)
	SessionClosed(ctx context.Context)
}

// Manager owns the table of live sessions for one process, handing out
// small integer IDs and routing exec_command/write_stdin calls to the
// right session.
type Manager struct {
	bus     *eventbus.Bus
	metrics Metrics

	mu       sync.Mutex
	sessions map[int]*session
	nextID   int
}

// Option configures a Manager.
type Option func(*Manager)

// WithMetrics reports session open/close counts to m.
func WithMetrics(m Metrics) Option {
	return func(mgr *Manager) { mgr.metrics = m }
}

// New constructs a Manager publishing events onto bus.
func New(bus *eventbus.Bus, opts ...Option) *Manager {
	mgr := &Manager{bus: bus, sessions: make(map[int]*session)}
	for _, opt := range opts {
		opt(mgr)
	}
	return mgr
}

// ExecCommandRequest starts a new persistent session and waits up to
// YieldTimeMs for it to either produce output or exit before returning.
type ExecCommandRequest struct {
	ConversationID codexcore.ConversationId
	CallID         string
	Command        string
	Cwd            string
	YieldTimeMs    int
}

// ExecCommand spawns a new PTY-backed session running req.Command and
// returns whatever output has accumulated after waiting up to
// YieldTimeMs. If the process has already exited by then, the result
// carries its exit code and no SessionID, and ExecCommandEnd has already
// been published.
func (m *Manager) ExecCommand(req ExecCommandRequest) (codexcore.ExecChunk, error) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.mu.Unlock()

	s, err := startSession(id, req.CallID, req.ConversationID, req.Command, req.Cwd)
	if err != nil {
		return codexcore.ExecChunk{}, fmt.Errorf("unifiedexec: start session: %w", err)
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SessionOpened(context.Background())
	}

	m.bus.Publish(codexcore.EventMsg{
		Kind:           codexcore.EvExecCommandBegin,
		ConversationID: req.ConversationID,
		CallID:         req.CallID,
		Command:        []string{"/bin/sh", "-lc", req.Command},
		Cwd:            req.Cwd,
	})

	go s.pump(m.bus)

	return m.yieldAndCollect(s, req.CallID, time.Duration(req.YieldTimeMs)*time.Millisecond, true)
}

// WriteStdinRequest sends bytes to an existing session's PTY, then waits up
// to YieldTimeMs before returning the session's buffered output.
type WriteStdinRequest struct {
	SessionID   int
	Chars       string
	YieldTimeMs int
}

// WriteStdin writes req.Chars to the session's PTY, waits up to YieldTimeMs,
// and returns the session's buffered output (everything the ring retains,
// not only what arrived during this call). An empty Chars is a pure poll: nothing is
// written, and no new ExecCommandBegin is emitted either way — the session
// was already announced by the ExecCommand call that created it.
func (m *Manager) WriteStdin(req WriteStdinRequest) (codexcore.ExecChunk, error) {
	m.mu.Lock()
	s, ok := m.sessions[req.SessionID]
	m.mu.Unlock()
	if !ok {
		return codexcore.ExecChunk{}, ErrSessionNotFound
	}

	if exited, _ := s.isExited(); exited {
		return codexcore.ExecChunk{}, ErrSessionExited
	}

	if req.Chars != "" {
		if _, err := s.ptmx.Write([]byte(req.Chars)); err != nil {
			if exited, _ := s.isExited(); exited {
				return codexcore.ExecChunk{}, ErrSessionExited
			}
			return codexcore.ExecChunk{}, fmt.Errorf("unifiedexec: write stdin: %w", err)
		}
	}

	return m.yieldAndCollect(s, s.callID, time.Duration(req.YieldTimeMs)*time.Millisecond, true)
}

// yieldAndCollect waits up to d for the session to exit, then snapshots
// whatever output is available and builds the ExecChunk response. On the
// first call to observe the process having exited, it publishes exactly
// one ExecCommandEnd and removes the session from the table.
func (m *Manager) yieldAndCollect(s *session, callID string, d time.Duration, includeSessionID bool) (codexcore.ExecChunk, error) {
	s.waitUpTo(d)

	out, _ := s.ring.snapshot(0)
	output, originalTokens, truncated := truncateToTokens(string(out), maxOutputTokens)

	chunk := codexcore.ExecChunk{
		ChunkID:  newChunkID(),
		WallTime: time.Since(s.startedAt),
		Output:   output,
	}
	if truncated {
		ot := originalTokens
		chunk.OriginalTokenCount = &ot
		chunk.TokensTruncated = true
	}
	exited, code := s.isExited()
	if includeSessionID && !exited {
		id := s.id
		chunk.SessionID = &id
	}

	if exited {
		c := code
		chunk.ExitCode = &c
		if s.markEndEmitted() {
			m.bus.Publish(codexcore.EventMsg{
				Kind:           codexcore.EvExecCommandEnd,
				ConversationID: s.convID,
				CallID:         callID,
				ExitCode:       &c,
				Duration:       chunk.WallTime,
			})
			m.mu.Lock()
			delete(m.sessions, s.id)
			m.mu.Unlock()
			if m.metrics != nil {
				m.metrics.SessionClosed(context.Background())
			}
		}
	}

	return chunk, nil
}

// estimateTokens is a rough chars-per-token heuristic, good enough to
// decide whether output needs truncating without pulling in a tokenizer.
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// truncateToTokens truncates output from the head, keeping the most recent
// content, whenever it exceeds maxTokens by the estimateTokens heuristic.
func truncateToTokens(output string, maxTokens int) (truncated string, originalTokenCount int, wasTruncated bool) {
	total := estimateTokens(output)
	if total <= maxTokens {
		return output, total, false
	}
	maxChars := maxTokens * 4
	if maxChars > len(output) {
		maxChars = len(output)
	}
	return output[len(output)-maxChars:], total, true
}

// newChunkID returns a short hex identifier distinguishing successive
// ExecChunk responses within a session.
func newChunkID() string {
	b := make([]byte, 3)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
