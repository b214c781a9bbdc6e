package exectool

import (
	"fmt"
	"strings"
)

// DefaultMaxOutputLines bounds the aggregated output returned to the model.
const DefaultMaxOutputLines = 256

// TruncateLines head/tail-truncates s when it has more than maxLines lines:
// it keeps the first maxLines/2 and the last maxLines-maxLines/2 lines and
// inserts one middle-elision marker line between them noting how many lines
// were dropped, so a truncated result has maxLines+1 lines. A maxLines <= 0
// disables truncation.
func TruncateLines(s string, maxLines int) string {
	if maxLines <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) <= maxLines {
		return s
	}

	head := maxLines / 2
	tail := maxLines - head
	omitted := len(lines) - head - tail

	var b strings.Builder
	b.WriteString(strings.Join(lines[:head], "\n"))
	b.WriteByte('\n')
	fmt.Fprintf(&b, "[... omitted %d of %d lines ...]\n", omitted, len(lines))
	b.WriteString(strings.Join(lines[len(lines)-tail:], "\n"))
	return b.String()
}
