// Package compaction implements the Compaction Engine (C9): summarizing
// conversation history through the Model Client's non-streaming endpoint,
// retrying past a context-window rejection by trimming the oldest item,
// and recording the result to the rollout journal.
package compaction

import (
	"context"
	"errors"
	"fmt"

	"github.com/nevindra/codexcore"
	"github.com/nevindra/codexcore/internal/eventbus"
	"github.com/nevindra/codexcore/internal/rollout"
)

// DefaultPrompt is the built-in summarization instruction used when no
// user-configured override is set.
const DefaultPrompt = "Summarize the conversation so far in a few dense paragraphs, " +
	"preserving any decisions, file paths, and unresolved questions a continuation would need. " +
	"Do not include pleasantries or restate this instruction."

// Warning is emitted as a background event after every successful
// compaction.
const Warning = "Heads up: Long conversations and multiple compactions can cause the model to be less accurate. " +
	"Consider starting a fresh conversation if quality degrades."

// compactingClient is the subset of llmclient.Client the engine needs.
type compactingClient interface {
	CompactConversationHistory(ctx context.Context, conv codexcore.ConversationId, prompt codexcore.Prompt) ([]codexcore.ResponseItem, error)
}

// Engine runs compact() against a Model Client, journaling the outcome and
// publishing the events the orchestrator's front-end translators expect.
type Engine struct {
	client compactingClient
	bus    *eventbus.Bus
}

// New constructs an Engine calling client and publishing onto bus.
func New(client compactingClient, bus *eventbus.Bus) *Engine {
	return &Engine{client: client, bus: bus}
}

// Result is the outcome of a successful Compact call.
type Result struct {
	// Summary is the model's condensed account of history.
	Summary string
	// History is the live conversation's full replacement: the synthetic
	// summary user message followed by any trailing items the caller passed
	// as still-pending (user input received after the summarized window
	// closed but not yet acknowledged by a model response).
	History []codexcore.ResponseItem
}

// Compact summarizes history using promptText (DefaultPrompt if empty),
// retrying on ErrContextWindowExceeded by trimming the oldest item from the
// summarization request until it succeeds or nothing is left to trim.
// pending is appended verbatim after the synthetic summary message in the
// returned history.
func (e *Engine) Compact(ctx context.Context, conv codexcore.ConversationId, w *rollout.Writer, history []codexcore.ResponseItem, pending []codexcore.ResponseItem, promptText string) (Result, error) {
	if promptText == "" {
		promptText = DefaultPrompt
	}

	synthetic := codexcore.ResponseItem{
		Kind:    codexcore.ItemMessage,
		Role:    "user",
		Content: []codexcore.ContentPart{{Type: "text", Text: promptText}},
	}

	input := append(append([]codexcore.ResponseItem{}, history...), synthetic)

	var output []codexcore.ResponseItem
	for {
		var err error
		output, err = e.client.CompactConversationHistory(ctx, conv, codexcore.Prompt{Input: input})
		if err == nil {
			break
		}

		var cwe *codexcore.ErrContextWindowExceeded
		if !errors.As(err, &cwe) {
			return Result{}, err
		}
		if len(input) <= 1 {
			// Nothing left to trim but the synthetic prompt itself; surface
			// the underlying error rather than looping forever.
			return Result{}, err
		}
		input = input[1:]
		e.bus.Publish(codexcore.EventMsg{
			Kind:           codexcore.EvBackgroundEvent,
			ConversationID: conv,
			Message:        fmt.Sprintf("Trimmed %d older conversation item(s)", 1),
		})
	}

	summary := extractText(output)

	if w != nil {
		if err := w.AppendCompacted(codexcore.Compacted{Message: summary}); err != nil {
			return Result{}, fmt.Errorf("compaction: append rollout marker: %w", err)
		}
	}

	newHistory := make([]codexcore.ResponseItem, 0, 1+len(pending))
	newHistory = append(newHistory, codexcore.ResponseItem{
		Kind:    codexcore.ItemMessage,
		Role:    "user",
		Content: []codexcore.ContentPart{{Type: "text", Text: summary}},
	})
	newHistory = append(newHistory, pending...)

	e.bus.Publish(codexcore.EventMsg{
		Kind:           codexcore.EvBackgroundEvent,
		ConversationID: conv,
		Message:        Warning,
	})

	return Result{Summary: summary, History: newHistory}, nil
}

// extractText concatenates the text content of every message item in
// output (of any role), in order, which is the provider's rendering of the requested
// summary.
func extractText(output []codexcore.ResponseItem) string {
	var text string
	for _, item := range output {
		if item.Kind != codexcore.ItemMessage {
			continue
		}
		for _, part := range item.Content {
			if part.Type == "text" || part.Type == "output_text" {
				if text != "" {
					text += "\n"
				}
				text += part.Text
			}
		}
	}
	return text
}
