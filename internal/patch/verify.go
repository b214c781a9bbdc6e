package patch

import (
	"fmt"
	"os"
	"strings"
)

// planOp is one verified directive, resolved and pre-computed so Commit
// never has to re-derive anything that could fail.
type planOp struct {
	Op
	ResolvedPath   string
	ResolvedMoveTo string
	OldContent     string // Update/Delete: content as currently on disk
	NewContent     string // Add/Update: content to write
}

// Plan is the verified, ready-to-commit result of one patch envelope. No
// filesystem mutation has happened yet.
type Plan struct {
	Ops []planOp
}

// Verify resolves every op's target path against cwd/writableRoots and
// checks it against the current filesystem state. If any op fails
// verification, every failure is collected into a single combined error and
// no Plan is returned — the caller must not mutate anything.
func Verify(cwd string, writableRoots []string, env *Envelope) (*Plan, error) {
	var failures []string
	plan := &Plan{}

	for _, op := range env.Ops {
		resolved, err := confine(cwd, writableRoots, op.Path)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", op.Path, err))
			continue
		}

		p := planOp{Op: op, ResolvedPath: resolved}

		switch op.Kind {
		case OpAdd:
			if _, err := os.Stat(resolved); err == nil {
				failures = append(failures, fmt.Sprintf("%s: add target already exists", op.Path))
				continue
			} else if !os.IsNotExist(err) {
				failures = append(failures, fmt.Sprintf("%s: %v", op.Path, err))
				continue
			}
			p.NewContent = strings.Join(op.AddLines, "\n")

		case OpDelete:
			info, err := os.Stat(resolved)
			if err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", op.Path, err))
				continue
			}
			if !info.Mode().IsRegular() {
				failures = append(failures, fmt.Sprintf("%s: not a regular file", op.Path))
				continue
			}
			raw, err := os.ReadFile(resolved)
			if err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", op.Path, err))
				continue
			}
			p.OldContent = string(raw)

		case OpUpdate:
			info, err := os.Stat(resolved)
			if err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", op.Path, err))
				continue
			}
			if !info.Mode().IsRegular() {
				failures = append(failures, fmt.Sprintf("%s: not a regular file", op.Path))
				continue
			}
			raw, err := os.ReadFile(resolved)
			if err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", op.Path, err))
				continue
			}
			p.OldContent = string(raw)

			newContent, err := applyHunks(p.OldContent, op.Hunks)
			if err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", op.Path, err))
				continue
			}
			p.NewContent = newContent

			if op.MoveTo != "" {
				resolvedMove, err := confine(cwd, writableRoots, op.MoveTo)
				if err != nil {
					failures = append(failures, fmt.Sprintf("%s: move target: %v", op.MoveTo, err))
					continue
				}
				p.ResolvedMoveTo = resolvedMove
			}
		}

		plan.Ops = append(plan.Ops, p)
	}

	if len(failures) > 0 {
		return nil, fmt.Errorf("apply_patch verification failed:\n- %s", strings.Join(failures, "\n- "))
	}
	return plan, nil
}
