package orchestrator

import "github.com/nevindra/codexcore"

// builtinTools describes the function-call surface the Turn Orchestrator
// dispatches itself. mcp__* tools are not listed here, and the prompt that
// SubmitUserInput builds carries only these tools.
var builtinTools = []codexcore.ToolSpec{
	{
		Name:        "shell",
		Description: "Run a shell command and return its output.",
		Parameters: jsonSchema(`{
			"type": "object",
			"properties": {
				"command": {"type": "array", "items": {"type": "string"}},
				"workdir": {"type": "string"},
				"timeout_ms": {"type": "integer"},
				"with_escalated_permissions": {"type": "boolean"},
				"justification": {"type": "string"}
			},
			"required": ["command"]
		}`),
	},
	{
		Name:        "apply_patch",
		Description: "Apply a structured patch envelope to the workspace.",
		Parameters: jsonSchema(`{
			"type": "object",
			"properties": {"input": {"type": "string"}},
			"required": ["input"]
		}`),
	},
	{
		Name:        "exec_command",
		Description: "Spawn a command in a fresh persistent PTY session and wait briefly for output.",
		Parameters: jsonSchema(`{
			"type": "object",
			"properties": {
				"cmd": {"type": "string"},
				"yield_time_ms": {"type": "integer"},
				"max_output_tokens": {"type": "integer"},
				"workdir": {"type": "string"}
			},
			"required": ["cmd"]
		}`),
	},
	{
		Name:        "write_stdin",
		Description: "Write to a persistent session's stdin and wait briefly for output.",
		Parameters: jsonSchema(`{
			"type": "object",
			"properties": {
				"chars": {"type": "string"},
				"session_id": {"type": "integer"},
				"yield_time_ms": {"type": "integer"}
			},
			"required": ["session_id"]
		}`),
	},
}

func jsonSchema(s string) []byte { return []byte(s) }
