package unifiedexec

import (
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"

	"github.com/nevindra/codexcore"
)

// session is one persistent PTY-backed shell, keyed by a small integer in
// Manager. A background goroutine continuously drains the PTY into ring so
// exec_command/write_stdin polls never block on the process producing
// output, and ExecCommandOutputDelta events keep flowing even while every
// caller is between polls.
type session struct {
	id        int
	callID    string // call_id of the spawning exec_command, reused on ExecCommandEnd
	convID    codexcore.ConversationId
	cmd       *exec.Cmd
	ptmx      *os.File
	ring      *ring
	startedAt time.Time

	mu         sync.Mutex
	exited     bool
	exitCode   int
	endEmitted bool
	exitedCh   chan struct{}
}

func startSession(id int, callID string, convID codexcore.ConversationId, shellCmd, workdir string) (*session, error) {
	cmd := exec.Command("/bin/sh", "-lc", shellCmd)
	if workdir != "" {
		cmd.Dir = workdir
	}

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, err
	}

	return &session{
		id:        id,
		callID:    callID,
		convID:    convID,
		cmd:       cmd,
		ptmx:      ptmx,
		ring:      newRing(DefaultRingBytes),
		startedAt: time.Now(),
		exitedCh:  make(chan struct{}),
	}, nil
}

type publisher interface {
	Publish(codexcore.EventMsg)
}

// pump drains the PTY into ring and publishes ExecCommandOutputDelta events
// until the PTY closes (the process exited), then reaps the process via
// Wait and records its exit code. Runs on its own goroutine for the life of
// the session.
func (s *session) pump(bus publisher) {
	buf := make([]byte, 4096)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.ring.append(chunk)
			bus.Publish(codexcore.EventMsg{
				Kind:           codexcore.EvExecCommandOutputDelta,
				ConversationID: s.convID,
				CallID:         s.callID,
				Stream:         codexcore.StreamStdout,
				Chunk:          chunk,
			})
		}
		if err != nil {
			break
		}
	}

	waitErr := s.cmd.Wait()
	code := 0
	if s.cmd.ProcessState != nil {
		code = s.cmd.ProcessState.ExitCode()
	} else if waitErr != nil {
		code = -1
	}

	s.mu.Lock()
	s.exited = true
	s.exitCode = code
	s.mu.Unlock()
	close(s.exitedCh)
}

func (s *session) isExited() (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exited, s.exitCode
}

// markEndEmitted reports whether this call is the first to observe the
// session's exit, so ExecCommandEnd is published exactly once.
func (s *session) markEndEmitted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.endEmitted {
		return false
	}
	s.endEmitted = true
	return true
}

// waitUpTo blocks until the session exits or d elapses, whichever comes
// first. d <= 0 returns immediately (a pure poll).
func (s *session) waitUpTo(d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.exitedCh:
	case <-timer.C:
	}
}
