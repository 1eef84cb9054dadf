package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"noema/internal/apperr"
	"noema/internal/llm"
	"noema/internal/model"
)

type entityDraft struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
	EntityType  string `json:"entity_type"`
}

type relationshipDraft struct {
	Type   string `json:"type"`
	Source string `json:"source"`
	Target string `json:"target"`
}

type enrichment struct {
	Entities      []entityDraft       `json:"knowledge_entities"`
	Relationships []relationshipDraft `json:"relationships"`
}

var enrichSchema = &llm.ResponseSchema{
	Name:   "ingestion_enrichment",
	Strict: true,
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"knowledge_entities": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"key":         map[string]any{"type": "string"},
						"name":        map[string]any{"type": "string"},
						"description": map[string]any{"type": "string"},
						"entity_type": map[string]any{"type": "string"},
					},
					"required": []string{"key", "name", "description", "entity_type"},
				},
			},
			"relationships": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"type":   map[string]any{"type": "string"},
						"source": map[string]any{"type": "string"},
						"target": map[string]any{"type": "string"},
					},
					"required": []string{"type", "source", "target"},
				},
			},
		},
		"required": []string{"knowledge_entities", "relationships"},
	},
}

// enrich calls the chat provider with the ingestion system prompt, the content, and the
// similar entities retrieval surfaced, asking for a
// knowledge_entities/relationships graph fragment. The model is instructed to prefer
// reusing a similar entity (by its real id, as source/target) over minting a
// duplicate.
func enrich(ctx context.Context, deps Deps, content model.Content, similar []model.KnowledgeEntity) (enrichment, error) {
	if deps.Provider == nil {
		return enrichment{}, apperr.New(apperr.Fatal, "ingest: no chat provider configured")
	}
	settings, err := deps.Store.Settings(ctx)
	if err != nil {
		return enrichment{}, err
	}

	messages := []llm.Message{
		{Role: "system", Content: settings.IngestionSystemPrompt},
		{Role: "user", Content: enrichPrompt(content, similar)},
	}

	parsed, err := completeEnrichment(ctx, deps, messages)
	if err == nil || apperr.KindOf(err) != apperr.LLMParsing {
		return parsed, err
	}

	// One retry with a stricter instruction; a second parse failure is final.
	stricter := append(messages, llm.Message{
		Role:    "user",
		Content: "Your previous response was not valid JSON for the required schema. Respond with ONLY the JSON object, no prose.",
	})
	return completeEnrichment(ctx, deps, stricter)
}

func completeEnrichment(ctx context.Context, deps Deps, messages []llm.Message) (enrichment, error) {
	raw, err := deps.Provider.Complete(ctx, deps.Model, messages, enrichSchema)
	if err != nil {
		return enrichment{}, apperr.Wrap(apperr.Transient, "enrichment completion", err)
	}
	var parsed enrichment
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return enrichment{}, apperr.Wrap(apperr.LLMParsing, "parse enrichment response", err)
	}
	return parsed, nil
}

func enrichPrompt(content model.Content, similar []model.KnowledgeEntity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "content: %s\n", content.Text)
	fmt.Fprintf(&b, "category: %s\n", content.Category)
	if content.Context != "" {
		fmt.Fprintf(&b, "user_context: %s\n", content.Context)
	}
	if len(similar) == 0 {
		b.WriteString("similar_entities: none\n")
		return b.String()
	}
	b.WriteString("similar_entities:\n")
	for _, e := range similar {
		fmt.Fprintf(&b, "- id=%s name=%q type=%s description=%q\n", e.ID, e.Name, e.EntityType, e.Description)
	}
	return b.String()
}
