package patch

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const diffContext = 3

type diffLine struct {
	op   diffmatchpatch.Operation
	text string
}

// unifiedDiff renders a standard "--- a/path\n+++ b/path\n@@ ...@@" unified
// diff between oldText and newText, using go-diff's line-mode Myers diff for
// the underlying edit script.
func unifiedDiff(path, oldText, newText string) string {
	if oldText == newText {
		return ""
	}

	dmp := diffmatchpatch.New()
	charsOld, charsNew, lineArray := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffMain(charsOld, charsNew, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var flat []diffLine
	for _, d := range diffs {
		text := strings.TrimSuffix(d.Text, "\n")
		if text == "" {
			continue
		}
		for _, line := range strings.Split(text, "\n") {
			flat = append(flat, diffLine{op: d.Type, text: line})
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "--- a/%s\n", path)
	fmt.Fprintf(&b, "+++ b/%s\n", path)

	oldLine, newLine := 1, 1
	i := 0
	for i < len(flat) {
		if flat[i].op == diffmatchpatch.DiffEqual {
			oldLine++
			newLine++
			i++
			continue
		}

		// Start of a change run: back up to include up to diffContext lines
		// of leading equal context already consumed.
		hunkStart := i
		leadCtx := 0
		for leadCtx < diffContext && hunkStart > 0 && flat[hunkStart-1].op == diffmatchpatch.DiffEqual {
			hunkStart--
			leadCtx++
		}
		hunkOldStart := oldLine - leadCtx
		hunkNewStart := newLine - leadCtx

		j := i
		oldCount, newCount := leadCtx, leadCtx
		var body []string
		for k := hunkStart; k < i; k++ {
			body = append(body, " "+flat[k].text)
		}

		for j < len(flat) {
			if flat[j].op == diffmatchpatch.DiffEqual {
				// Look ahead: if the equal run is short enough it's trailing
				// context for this hunk and we continue; otherwise the hunk
				// ends here.
				eqStart := j
				eqLen := 0
				for j < len(flat) && flat[j].op == diffmatchpatch.DiffEqual {
					j++
					eqLen++
				}
				if j >= len(flat) || eqLen > 2*diffContext {
					trail := eqLen
					if trail > diffContext {
						trail = diffContext
					}
					for k := eqStart; k < eqStart+trail; k++ {
						body = append(body, " "+flat[k].text)
					}
					oldCount += trail
					newCount += trail
					oldLine += eqLen
					newLine += eqLen
					break
				}
				for k := eqStart; k < j; k++ {
					body = append(body, " "+flat[k].text)
				}
				oldCount += eqLen
				newCount += eqLen
				oldLine += eqLen
				newLine += eqLen
				continue
			}

			switch flat[j].op {
			case diffmatchpatch.DiffDelete:
				body = append(body, "-"+flat[j].text)
				oldCount++
				oldLine++
			case diffmatchpatch.DiffInsert:
				body = append(body, "+"+flat[j].text)
				newCount++
				newLine++
			}
			j++
		}

		fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@\n", hunkOldStart, oldCount, hunkNewStart, newCount)
		for _, line := range body {
			b.WriteString(line)
			b.WriteByte('\n')
		}

		i = j
	}

	return b.String()
}
