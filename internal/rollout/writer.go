package rollout

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nevindra/codexcore"
)

// Writer is the single writer for one conversation's rollout file. Producers
// call the Append* helpers, which enqueue onto a channel drained by a
// background goroutine; Flush blocks until every enqueued line has been
// written and fsynced. The orchestrator must call Flush before emitting
// TaskComplete and Close at Shutdown.
type Writer struct {
	path   string
	logger *slog.Logger

	lines chan lineOp
	flush chan chan error
	done  chan struct{}
}

type lineOp struct {
	line RolloutLine
}

// RolloutLine mirrors codexcore.RolloutLine; kept as a local alias so this
// package's doc comments can refer to it without qualifying every mention.
type RolloutLine = codexcore.RolloutLine

// Create opens a new rollout file for conversation id at startedAt, creating
// parent directories, and writes the SessionMeta line synchronously before
// returning so the file is never observed empty.
func Create(home string, id codexcore.ConversationId, provider string, startedAt time.Time, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	path := PathFor(home, id, startedAt)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("rollout: create sessions dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("rollout: create rollout file: %w", err)
	}

	w := &Writer{
		path:   path,
		logger: logger,
		lines:  make(chan lineOp, 64),
		flush:  make(chan chan error),
		done:   make(chan struct{}),
	}
	go w.run(f)

	meta := codexcore.SessionMeta{ConversationID: id, Provider: provider, StartedAt: startedAt}
	if err := w.appendSync(codexcore.RolloutSessionMeta, meta, startedAt); err != nil {
		return nil, err
	}
	return w, nil
}

// Path returns the rollout file's location on disk.
func (w *Writer) Path() string { return w.path }

func (w *Writer) run(f *os.File) {
	defer f.Close()
	bw := bufio.NewWriter(f)
	var pendingErr error

	write := func(l RolloutLine) error {
		data, err := json.Marshal(l)
		if err != nil {
			return fmt.Errorf("rollout: marshal line: %w", err)
		}
		data = append(data, '\n')
		if _, err := bw.Write(data); err != nil {
			return fmt.Errorf("rollout: write line: %w", err)
		}
		return nil
	}

	for {
		select {
		case op, ok := <-w.lines:
			if !ok {
				return
			}
			if pendingErr == nil {
				if err := write(op.line); err != nil {
					pendingErr = err
					w.logger.Error("rollout write failed", "path", w.path, "err", err)
				}
			}

		case ack := <-w.flush:
			// Write every line enqueued before this Flush call first.
			for drained := false; !drained; {
				select {
				case op := <-w.lines:
					if pendingErr == nil {
						if err := write(op.line); err != nil {
							pendingErr = err
							w.logger.Error("rollout write failed", "path", w.path, "err", err)
						}
					}
				default:
					drained = true
				}
			}
			if pendingErr == nil {
				if err := bw.Flush(); err != nil {
					pendingErr = fmt.Errorf("rollout: flush: %w", err)
				} else if err := f.Sync(); err != nil {
					pendingErr = fmt.Errorf("rollout: sync: %w", err)
				}
			}
			ack <- pendingErr

		case <-w.done:
			_ = bw.Flush()
			_ = f.Sync()
			return
		}
	}
}

// appendSync enqueues a line and blocks until it has been durably written,
// used only for the initial SessionMeta line so Create never returns a
// handle to a file an observer could see as empty.
func (w *Writer) appendSync(kind codexcore.RolloutItemKind, item any, ts time.Time) error {
	if err := w.enqueue(kind, item, ts); err != nil {
		return err
	}
	return w.Flush()
}

func (w *Writer) enqueue(kind codexcore.RolloutItemKind, item any, ts time.Time) error {
	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("rollout: marshal item: %w", err)
	}
	select {
	case w.lines <- lineOp{line: RolloutLine{Timestamp: ts, Kind: kind, Item: raw}}:
		return nil
	case <-w.done:
		return fmt.Errorf("rollout: writer closed")
	}
}

// AppendTurnContext must be called before any ResponseItem produced under
// tc is appended.
func (w *Writer) AppendTurnContext(tc codexcore.TurnContext) error {
	return w.enqueue(codexcore.RolloutTurnContext, tc, time.Now())
}

// AppendResponseItem records one item produced or consumed by the provider.
func (w *Writer) AppendResponseItem(item codexcore.ResponseItem) error {
	return w.enqueue(codexcore.RolloutResponseItem, item, time.Now())
}

// AppendCompacted records a compaction marker.
func (w *Writer) AppendCompacted(c codexcore.Compacted) error {
	return w.enqueue(codexcore.RolloutCompacted, c, time.Now())
}

// AppendEventMsg records a bus event for audit/replay purposes.
func (w *Writer) AppendEventMsg(ev codexcore.EventMsg) error {
	return w.enqueue(codexcore.RolloutEventMsg, ev, time.Now())
}

// Flush blocks until every line enqueued before this call has been written
// and fsynced to disk. Callers must Flush before a TaskComplete event
// becomes visible externally.
func (w *Writer) Flush() error {
	ack := make(chan error, 1)
	select {
	case w.flush <- ack:
		return <-ack
	case <-w.done:
		return fmt.Errorf("rollout: writer closed")
	}
}

// Close flushes pending writes and stops the writer goroutine. Safe to call
// once.
func (w *Writer) Close() error {
	err := w.Flush()
	close(w.done)
	return err
}
