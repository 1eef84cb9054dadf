// Package answer composes a retrieval Result into the chat call that
// produces the query endpoint's wire shape: {answer, references:
// [{reference}]}. The retrieval pipeline itself never talks to the chat
// provider; this package is the only query-path caller of it.
package answer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"noema/internal/apperr"
	"noema/internal/llm"
	"noema/internal/model"
	"noema/internal/retrieval"
	"noema/internal/store"
)

// Reference is one entry of the query response's references array.
type Reference struct {
	Reference string `json:"reference"`
}

// Response is the strict JSON shape the chat provider is constrained to
// for the query endpoint.
type Response struct {
	Answer     string      `json:"answer"`
	References []Reference `json:"references"`
}

var querySchema = &llm.ResponseSchema{
	Name:   "query_answer",
	Strict: true,
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"answer": map[string]any{"type": "string"},
			"references": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"reference": map[string]any{"type": "string"},
					},
					"required": []string{"reference"},
				},
			},
		},
		"required": []string{"answer", "references"},
	},
}

// Deps bundles the collaborators Answer needs beyond the retrieval result
// it is handed: the store (for the configured query system prompt) and the
// chat provider itself.
type Deps struct {
	Store    *store.Store
	Provider llm.Provider
	Model    string
}

// Answer calls the chat provider with the query system prompt, the user's
// question, and the ranked chunks/entities retrieval already assembled,
// asking for a structured
// {answer, references[]} document. Every reference id in the response must
// resolve to a chunk or entity id Answer actually offered as context —
// unresolvable ids are dropped rather than surfaced to the caller.
func Answer(ctx context.Context, deps Deps, query string, result *retrieval.Result) (Response, error) {
	settings, err := deps.Store.Settings(ctx)
	if err != nil {
		return Response{}, err
	}

	known := offeredIDs(result)
	if len(known) == 0 {
		return Response{Answer: "I don't have any relevant context to answer that.", References: []Reference{}}, nil
	}
	if deps.Provider == nil {
		return Response{}, apperr.New(apperr.Fatal, "answer: no chat provider configured")
	}

	chatModel := deps.Model
	if chatModel == "" {
		chatModel = settings.QueryModel
	}

	window, _ := llm.ContextWindow(chatModel)
	promptBudget := window/2 - llm.EstimateTokens(settings.QuerySystemPrompt)
	messages := []llm.Message{
		{Role: "system", Content: settings.QuerySystemPrompt},
		{Role: "user", Content: contextPrompt(query, result, promptBudget)},
	}

	raw, err := deps.Provider.Complete(ctx, chatModel, messages, querySchema)
	if err != nil {
		return Response{}, apperr.Wrap(apperr.Transient, "query completion", err)
	}

	var parsed Response
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return Response{}, apperr.Wrap(apperr.LLMParsing, "parse query response", err)
	}

	filtered := parsed.References[:0]
	for _, ref := range parsed.References {
		if known[ref.Reference] {
			filtered = append(filtered, ref)
		}
	}
	parsed.References = filtered
	if parsed.References == nil {
		parsed.References = []Reference{}
	}
	return parsed, nil
}

func offeredIDs(result *retrieval.Result) map[string]bool {
	known := make(map[string]bool, len(result.Chunks)+len(result.Entities))
	for _, c := range result.Chunks {
		known[c.ID] = true
	}
	for _, e := range result.Entities {
		known[e.ID] = true
	}
	return known
}

// contextPrompt renders the question plus the ranked context lines, dropping
// the lowest-ranked tail once the prompt's token estimate reaches budget.
// Retrieval already budgets its own output; this is the second, model-sized
// bound so a huge configured retrieval budget can't overflow a small model.
func contextPrompt(query string, result *retrieval.Result, budget int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "question: %s\n\ncontext:\n", query)
	spent := llm.EstimateTokens(b.String())
	for _, c := range result.Chunks {
		line := fmt.Sprintf("- id=%s: %s\n", c.ID, truncate(chunkText(c.Item), 1000))
		if cost := llm.EstimateTokens(line); budget <= 0 || spent+cost <= budget {
			b.WriteString(line)
			spent += cost
		}
	}
	for _, e := range result.Entities {
		ent := e.Item
		line := fmt.Sprintf("- id=%s [%s] %s: %s\n", e.ID, ent.EntityType, ent.Name, truncate(ent.Description, 500))
		if cost := llm.EstimateTokens(line); budget <= 0 || spent+cost <= budget {
			b.WriteString(line)
			spent += cost
		}
	}
	return b.String()
}

func chunkText(c model.TextChunk) string { return c.Chunk }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
