package patch

import (
	"context"
	"strings"

	"github.com/nevindra/codexcore"
	"github.com/nevindra/codexcore/internal/eventbus"
)

// Tool runs the apply_patch contract end to end: parse, verify, commit, and
// publish a TurnDiff event for the cumulative effect of every apply_patch
// call made so far this turn.
type Tool struct {
	bus           *eventbus.Bus
	writableRoots []string
	turnDiffs     map[codexcore.ConversationId]*strings.Builder
}

// New constructs a Tool publishing TurnDiff events onto bus. writableRoots
// supplements the call's own cwd as an allowed target for Add/Update/Delete
// and Move-to destinations.
func New(bus *eventbus.Bus, writableRoots []string) *Tool {
	return &Tool{
		bus:           bus,
		writableRoots: writableRoots,
		turnDiffs:     make(map[codexcore.ConversationId]*strings.Builder),
	}
}

// Apply runs one apply_patch tool call: parsing raw, confining and
// verifying every target against cwd and the tool's writable roots, and —
// only if every op verifies — committing all changes and accumulating the
// turn's cumulative TurnDiff. It returns the per-path A/M/D summary meant
// for the function-call output and, separately, the unified diff text
// carried by this call's contribution to TurnDiff.
func (t *Tool) Apply(ctx context.Context, convID codexcore.ConversationId, cwd, raw string) (summary, diff string, err error) {
	env, err := Parse(raw)
	if err != nil {
		return "", "", err
	}

	plan, err := Verify(cwd, t.writableRoots, env)
	if err != nil {
		return "", "", err
	}

	diff, err = Commit(plan)
	if err != nil {
		return "", "", err
	}

	if diff != "" {
		acc := t.turnDiffs[convID]
		if acc == nil {
			acc = &strings.Builder{}
			t.turnDiffs[convID] = acc
		}
		acc.WriteString(diff)

		t.bus.Publish(codexcore.EventMsg{
			Kind:           codexcore.EvTurnDiff,
			ConversationID: convID,
			UnifiedDiff:    acc.String(),
		})
	}

	return summarizePlan(plan), diff, nil
}

// ResetTurn clears the accumulated cumulative diff for a conversation,
// called by the orchestrator when a new turn begins.
func (t *Tool) ResetTurn(convID codexcore.ConversationId) {
	delete(t.turnDiffs, convID)
}
