package patch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Commit applies every op in plan to the filesystem, in patch order, and
// returns the unified diff covering this call's changes. Verify must have
// already succeeded for plan; Commit itself only fails on an I/O error,
// at which point earlier ops in the same plan may already be on disk —
// callers that need all-or-nothing durability across a whole turn should
// keep their own backup, the way a VCS checkout does.
func Commit(plan *Plan) (string, error) {
	var diffs []string

	for _, op := range plan.Ops {
		switch op.Kind {
		case OpAdd:
			if err := os.MkdirAll(filepath.Dir(op.ResolvedPath), 0o755); err != nil {
				return "", fmt.Errorf("apply_patch: %s: %w", op.Path, err)
			}
			if err := os.WriteFile(op.ResolvedPath, []byte(op.NewContent), 0o644); err != nil {
				return "", fmt.Errorf("apply_patch: %s: %w", op.Path, err)
			}
			diffs = append(diffs, unifiedDiff(op.Path, "", op.NewContent))

		case OpDelete:
			if err := os.Remove(op.ResolvedPath); err != nil {
				return "", fmt.Errorf("apply_patch: %s: %w", op.Path, err)
			}
			diffs = append(diffs, unifiedDiff(op.Path, op.OldContent, ""))

		case OpUpdate:
			if err := os.WriteFile(op.ResolvedPath, []byte(op.NewContent), 0o644); err != nil {
				return "", fmt.Errorf("apply_patch: %s: %w", op.Path, err)
			}

			contentChanged := op.NewContent != op.OldContent
			if op.ResolvedMoveTo != "" {
				if err := os.MkdirAll(filepath.Dir(op.ResolvedMoveTo), 0o755); err != nil {
					return "", fmt.Errorf("apply_patch: %s: %w", op.MoveTo, err)
				}
				if err := os.Rename(op.ResolvedPath, op.ResolvedMoveTo); err != nil {
					return "", fmt.Errorf("apply_patch: %s -> %s: %w", op.Path, op.MoveTo, err)
				}
				// A pure rename with no content delta is not reflected in
				// TurnDiff.
				if contentChanged {
					diffs = append(diffs, unifiedDiff(op.MoveTo, op.OldContent, op.NewContent))
				}
				continue
			}

			if contentChanged {
				diffs = append(diffs, unifiedDiff(op.Path, op.OldContent, op.NewContent))
			}
		}
	}

	var nonEmpty []string
	for _, d := range diffs {
		if d != "" {
			nonEmpty = append(nonEmpty, d)
		}
	}
	return strings.Join(nonEmpty, ""), nil
}

// summarizePlan renders the "Success. Updated the following files:" report
// the model sees as a committed call's function output: one line per op,
// A/M/D per kind, in patch order. An update that also moves the file is
// reported as "M <path> -> <moveTo>".
func summarizePlan(plan *Plan) string {
	var lines []string
	for _, op := range plan.Ops {
		switch op.Kind {
		case OpAdd:
			lines = append(lines, fmt.Sprintf("A %s", op.Path))
		case OpDelete:
			lines = append(lines, fmt.Sprintf("D %s", op.Path))
		case OpUpdate:
			if op.MoveTo != "" {
				lines = append(lines, fmt.Sprintf("M %s -> %s", op.Path, op.MoveTo))
				continue
			}
			lines = append(lines, fmt.Sprintf("M %s", op.Path))
		}
	}
	return "Success. Updated the following files:\n" + strings.Join(lines, "\n")
}
