package patch

import (
	"path/filepath"
	"strings"
)

// OutsideWorkspace reports whether any target path in env (including
// Move-to destinations) would resolve outside cwd or writableRoots, for
// callers that need to decide an approval policy before running Verify.
func OutsideWorkspace(cwd string, writableRoots []string, env *Envelope) bool {
	for _, op := range env.Ops {
		if _, err := confine(cwd, writableRoots, op.Path); err != nil {
			return true
		}
		if op.MoveTo != "" {
			if _, err := confine(cwd, writableRoots, op.MoveTo); err != nil {
				return true
			}
		}
	}
	return false
}

// confine resolves target against cwd (if relative) and confirms the
// result falls under cwd or one of writableRoots. Mirrors the
// join-then-clean-then-prefix-check pattern used for workspace-confined
// output paths elsewhere in this module.
func confine(cwd string, writableRoots []string, target string) (string, error) {
	abs := target
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(cwd, target)
	}
	abs = filepath.Clean(abs)

	roots := make([]string, 0, len(writableRoots)+1)
	roots = append(roots, cwd)
	roots = append(roots, writableRoots...)

	for _, root := range roots {
		root = filepath.Clean(root)
		if abs == root || strings.HasPrefix(abs, root+string(filepath.Separator)) {
			return abs, nil
		}
	}
	return "", errOutsideWorkspace
}
