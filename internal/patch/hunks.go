package patch

import (
	"fmt"
	"strings"
)

// applyHunks computes the post-patch text for an Update directive without
// touching the filesystem. Hunks are applied in order; each hunk's search
// window starts where the previous one ended (or at the line containing its
// @@ change_context, when present), and must match exactly one contiguous
// position in what remains of the file.
func applyHunks(original string, hunks []Hunk) (string, error) {
	lines := strings.Split(original, "\n")
	var result []string
	cursor := 0

	for n, h := range hunks {
		searchFrom := cursor
		if h.ChangeContext != "" {
			idx := -1
			for i := cursor; i < len(lines); i++ {
				if strings.Contains(lines[i], h.ChangeContext) {
					idx = i
					break
				}
			}
			if idx == -1 {
				return "", fmt.Errorf("hunk %d: change context %q not found", n+1, h.ChangeContext)
			}
			searchFrom = idx
		}

		var oldLines, newLines []string
		for _, hl := range h.Lines {
			switch hl.Kind {
			case HunkContext:
				oldLines = append(oldLines, hl.Text)
				newLines = append(newLines, hl.Text)
			case HunkOld:
				oldLines = append(oldLines, hl.Text)
			case HunkNew:
				newLines = append(newLines, hl.Text)
			}
		}

		matches := findContiguous(lines, oldLines, searchFrom)
		switch len(matches) {
		case 0:
			return "", fmt.Errorf("hunk %d: context did not match any location", n+1)
		case 1:
			// unique, proceed
		default:
			return "", fmt.Errorf("hunk %d: context matched %d locations, expected exactly one", n+1, len(matches))
		}

		pos := matches[0]
		result = append(result, lines[cursor:pos]...)
		result = append(result, newLines...)
		cursor = pos + len(oldLines)
	}

	result = append(result, lines[cursor:]...)
	return strings.Join(result, "\n"), nil
}

// findContiguous returns every index i >= from at which pattern occurs as a
// contiguous subsequence of lines.
func findContiguous(lines, pattern []string, from int) []int {
	if len(pattern) == 0 {
		return nil
	}
	var matches []int
	for i := from; i+len(pattern) <= len(lines); i++ {
		ok := true
		for j, p := range pattern {
			if lines[i+j] != p {
				ok = false
				break
			}
		}
		if ok {
			matches = append(matches, i)
		}
	}
	return matches
}
