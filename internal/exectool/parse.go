package exectool

import (
	"strings"

	"github.com/nevindra/codexcore"
)

var readCommands = map[string]bool{"cat": true, "head": true, "tail": true, "less": true, "more": true}
var searchCommands = map[string]bool{"grep": true, "rg": true, "ag": true, "ack": true}
var formatCommands = map[string]bool{"gofmt": true, "goimports": true, "prettier": true, "black": true, "rustfmt": true}

// ParseCommand produces the structured, display-only interpretation of a
// shell command described by codexcore.ParsedCommand. It never changes
// execution semantics — only what a front end shows while the command runs.
func ParseCommand(command []string) *codexcore.ParsedCommand {
	if len(command) == 0 {
		return &codexcore.ParsedCommand{Kind: "other"}
	}
	argv0 := baseName(command[0])

	switch {
	case readCommands[argv0]:
		path := ""
		if len(command) > 1 {
			path = command[len(command)-1]
		}
		return &codexcore.ParsedCommand{Kind: "read", Path: path}

	case searchCommands[argv0]:
		query := ""
		path := ""
		for _, arg := range command[1:] {
			if strings.HasPrefix(arg, "-") {
				continue
			}
			if query == "" {
				query = arg
			} else {
				path = arg
			}
		}
		return &codexcore.ParsedCommand{Kind: "search", Query: query, Path: path}

	case formatCommands[argv0]:
		return &codexcore.ParsedCommand{Kind: "format"}

	default:
		return &codexcore.ParsedCommand{Kind: "other", Snippet: snippet(command)}
	}
}

func baseName(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// snippet joins the command for display, truncating to a reasonable length.
func snippet(command []string) string {
	s := strings.Join(command, " ")
	const max = 200
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
