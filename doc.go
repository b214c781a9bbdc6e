// Package codexcore implements the session engine for an interactive
// coding-agent runtime: the model-client streaming layer, turn orchestrator,
// shell/patch/unified-exec tooling surface, rollout journal, and event bus
// that sit between a front-end, an LLM provider, and the local machine.
package codexcore
