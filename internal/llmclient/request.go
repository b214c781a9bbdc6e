package llmclient

import (
	"encoding/json"

	"github.com/nevindra/codexcore"
)

// ModelFamily describes the per-family capability flags that govern which
// optional fields the request builder includes.
type ModelFamily struct {
	SupportsReasoningSummaries bool
	SupportsVerbosity          bool
	// AzureRetention selects the store:true + per-item id-patching path
	// required by Azure-style providers that need response retention.
	AzureRetention bool
}

type reasoningConfig struct {
	Effort  string `json:"effort,omitempty"`
	Summary string `json:"summary,omitempty"`
}

type textConfig struct {
	Verbosity string `json:"verbosity,omitempty"`
}

type responsesAPIRequest struct {
	Model             string           `json:"model"`
	Instructions      string           `json:"instructions"`
	Input             []codexcore.ResponseItem `json:"input"`
	Tools             []codexcore.ToolSpec     `json:"tools"`
	ParallelToolCalls bool             `json:"parallel_tool_calls"`
	Stream            bool             `json:"stream"`
	Store             bool             `json:"store"`
	Reasoning         *reasoningConfig `json:"reasoning,omitempty"`
	Include           []string         `json:"include,omitempty"`
	Text              *textConfig      `json:"text,omitempty"`
	OutputSchema      json.RawMessage  `json:"output_schema,omitempty"`
}

// buildRequestBody assembles the per-attempt Responses-API body. Every
// attempt rebuilds the body fresh from prompt + config — nothing here is
// cached across retries, since auth and id-patching can both change between
// attempts.
func buildRequestBody(cfg Config, family ModelFamily, prompt codexcore.Prompt, stream bool) responsesAPIRequest {
	req := responsesAPIRequest{
		Model:             cfg.Model,
		Instructions:      fullInstructions(cfg, prompt),
		Input:             prompt.Input,
		Tools:             prompt.Tools,
		ParallelToolCalls: prompt.ParallelToolCalls,
		Stream:            stream,
		Store:             family.AzureRetention,
		OutputSchema:      prompt.OutputSchema,
	}

	if family.SupportsReasoningSummaries && (cfg.ReasoningEffort != "" || cfg.ReasoningSummary != "") {
		req.Reasoning = &reasoningConfig{Effort: cfg.ReasoningEffort, Summary: cfg.ReasoningSummary}
		req.Include = []string{"reasoning.encrypted_content"}
	}

	if family.SupportsVerbosity {
		req.Text = &textConfig{Verbosity: cfg.Verbosity}
	}

	if family.AzureRetention {
		patchItemIDs(req.Input)
	}

	return req
}

// patchItemIDs attaches a synthetic id to every pre-existing reasoning,
// message, or call item that doesn't already have one — retention semantics
// required by Azure-style providers when store=true.
func patchItemIDs(items []codexcore.ResponseItem) {
	for i := range items {
		it := &items[i]
		if it.ID != "" {
			continue
		}
		switch it.Kind {
		case codexcore.ItemReasoning, codexcore.ItemMessage, codexcore.ItemFunctionCall:
			it.ID = codexcore.NewCallId()
		}
	}
}

// fullInstructions assembles the system instructions for a request. Prompt
// itself carries no instructions field in the core data model — callers
// compose the base system prompt with any model-family-specific preamble
// here, at the HTTP-request-building boundary, rather than baking instructions
// assembly into the core Prompt type.
func fullInstructions(cfg Config, prompt codexcore.Prompt) string {
	return cfg.SystemPrompt
}
