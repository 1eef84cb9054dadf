package ingest

import (
	"context"

	"noema/internal/apperr"
	"noema/internal/model"
)

// materializeGraph assigns deterministic ids to the enrichment's entity
// drafts, embeds their descriptions with bounded concurrency, and resolves
// each relationship draft's source/target to a concrete entity id: either an
// existing entity (source/target holds its real id, as the enrichment
// prompt instructs when reusing a similar entity) or one of this batch's
// freshly keyed entities. A relationship whose endpoint resolves to neither
// is rejected, failing only that edge rather than the whole task.
func materializeGraph(ctx context.Context, deps Deps, taskID string, content model.Content, e enrichment, dims int) ([]model.KnowledgeEntity, []model.KnowledgeRelationship, error) {
	if len(e.Entities) == 0 {
		return nil, nil, nil
	}

	byKey := make(map[string]string, len(e.Entities))
	texts := make([]string, len(e.Entities))
	for i, d := range e.Entities {
		id := deterministicID(taskID, "entity:"+d.Key)
		byKey[d.Key] = id
		texts[i] = d.Name + ": " + d.Description
	}

	embeddings, err := embedBatched(ctx, deps.Embed, texts, concurrency(deps.Tuning.EntityEmbedConcurrency, 4))
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.Transient, "embed entities", err)
	}

	entities := make([]model.KnowledgeEntity, len(e.Entities))
	for i, d := range e.Entities {
		entities[i] = model.KnowledgeEntity{
			ID:          byKey[d.Key],
			SourceID:    content.ID,
			Name:        d.Name,
			Description: d.Description,
			EntityType:  entityType(d.EntityType),
			Embedding:   embeddings[i],
			UserID:      content.UserID,
		}
	}

	resolve := func(ref string) (string, bool) {
		if id, ok := byKey[ref]; ok {
			return id, true
		}
		if _, ok, err := deps.Store.GetEntity(ctx, ref); err == nil && ok {
			return ref, true
		}
		return "", false
	}

	var relationships []model.KnowledgeRelationship
	for _, d := range e.Relationships {
		outID, ok := resolve(d.Source)
		if !ok {
			continue
		}
		inID, ok := resolve(d.Target)
		if !ok {
			continue
		}
		relationships = append(relationships, model.KnowledgeRelationship{
			ID:               deterministicID(taskID, "rel:"+d.Source+">"+d.Target+":"+d.Type),
			OutID:            outID,
			InID:             inID,
			RelationshipType: relType(d.Type),
			SourceID:         content.ID,
			UserID:           content.UserID,
		})
	}

	return entities, relationships, nil
}

func entityType(s string) model.EntityType {
	switch model.EntityType(s) {
	case model.EntityIdea, model.EntityProject, model.EntityDocument, model.EntityPage, model.EntityTextSnippet:
		return model.EntityType(s)
	default:
		return model.EntityIdea
	}
}

func relType(s string) string {
	if s == "" {
		return model.RelRelatedTo
	}
	return s
}

// persist writes Content, entities, relationships, and chunks. Every insert
// is keyed by a deterministic id, so a retried attempt overwrites the same
// rows instead of duplicating them.
func persist(ctx context.Context, deps Deps, content model.Content, entities []model.KnowledgeEntity, relationships []model.KnowledgeRelationship, chunks []model.TextChunk, dims int) error {
	if err := deps.Store.CreateContent(ctx, content); err != nil {
		return err
	}
	for _, e := range entities {
		if err := deps.Store.CreateEntity(ctx, e, dims); err != nil {
			return err
		}
	}
	for _, r := range relationships {
		if err := deps.Store.CreateRelationship(ctx, r); err != nil {
			return err
		}
	}
	for _, c := range chunks {
		if err := deps.Store.CreateChunk(ctx, c, dims); err != nil {
			return err
		}
	}
	return nil
}
