package rollout

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/nevindra/codexcore"
)

// Resumed is the live conversation state reconstructed by replaying a
// rollout file: the most recent TurnContext and the ResponseItem sequence a
// new turn's Prompt should be built from.
type Resumed struct {
	ConversationID codexcore.ConversationId
	TurnContext    *codexcore.TurnContext
	Items          []codexcore.ResponseItem
}

// Resume replays path in order, reconstructing TurnContext and the live
// ResponseItem sequence. A Compacted line materializes as a synthetic user
// message carrying its summary text; every item preceding it in the live
// sequence is dropped (the raw lines remain in the file, just not in the
// returned sequence), matching the on-replay contract in the data model.
func Resume(path string) (*Resumed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rollout: open %s: %w", path, err)
	}
	defer f.Close()

	r := &Resumed{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<20), 16<<20)

	for scanner.Scan() {
		var line codexcore.RolloutLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			return nil, fmt.Errorf("rollout: decode line: %w", err)
		}
		if err := r.apply(line); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("rollout: scan %s: %w", path, err)
	}
	return r, nil
}

func (r *Resumed) apply(line codexcore.RolloutLine) error {
	switch line.Kind {
	case codexcore.RolloutSessionMeta:
		var meta codexcore.SessionMeta
		if err := json.Unmarshal(line.Item, &meta); err != nil {
			return fmt.Errorf("rollout: decode session_meta: %w", err)
		}
		r.ConversationID = meta.ConversationID

	case codexcore.RolloutTurnContext:
		var tc codexcore.TurnContext
		if err := json.Unmarshal(line.Item, &tc); err != nil {
			return fmt.Errorf("rollout: decode turn_context: %w", err)
		}
		r.TurnContext = &tc

	case codexcore.RolloutResponseItem:
		var item codexcore.ResponseItem
		if err := json.Unmarshal(line.Item, &item); err != nil {
			return fmt.Errorf("rollout: decode response_item: %w", err)
		}
		r.Items = append(r.Items, item)

	case codexcore.RolloutCompacted:
		var c codexcore.Compacted
		if err := json.Unmarshal(line.Item, &c); err != nil {
			return fmt.Errorf("rollout: decode compacted: %w", err)
		}
		r.Items = []codexcore.ResponseItem{{
			Kind:    codexcore.ItemMessage,
			Role:    "user",
			Content: []codexcore.ContentPart{{Type: "text", Text: c.Message}},
		}}

	case codexcore.RolloutEventMsg:
		// Events are recorded for audit/replay but do not feed the live
		// ResponseItem sequence.
	}
	return nil
}

// ResumePrefix replays only the first n lines of path, used to test that
// every prefix of a rollout file yields a consistent, independently
// resumable state.
func ResumePrefix(path string, n int) (*Resumed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rollout: open %s: %w", path, err)
	}
	defer f.Close()

	r := &Resumed{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<20), 16<<20)

	count := 0
	for scanner.Scan() && count < n {
		var line codexcore.RolloutLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			return nil, fmt.Errorf("rollout: decode line: %w", err)
		}
		if err := r.apply(line); err != nil {
			return nil, err
		}
		count++
	}
	return r, nil
}
