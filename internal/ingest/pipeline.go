// Package ingest implements the ingestion pipeline that turns a queued
// IngestionTask into persisted Content, chunks, entities, and relationships,
// composing the store, embedding and chat providers, extraction, and
// retrieval (for the enrichment stage's similar-entities lookup).
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"noema/internal/apperr"
	"noema/internal/config"
	"noema/internal/extract"
	"noema/internal/llm"
	"noema/internal/model"
	"noema/internal/retrieval"
	"noema/internal/store"
)

// EmbedFunc embeds a batch of strings in one provider round trip.
type EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)

// Deps bundles the pipeline's collaborators.
type Deps struct {
	Store     *store.Store
	Extract   extract.Deps
	Provider  llm.Provider
	Embed     EmbedFunc
	Retrieval retrieval.Deps
	Tuning    config.IngestionTuning
	Model     string // chat model passed to Provider.Complete
}

// Run drives one task through Claim, Prepare, Retrieve, Enrich, Materialize,
// Chunk, Persist. It is idempotent per attempt: entity and
// chunk ids are derived deterministically from (task id, local key) so a
// retried attempt overwrites the same rows rather than duplicating them.
func Run(ctx context.Context, deps Deps, taskID string) error {
	task, ok, err := deps.Store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New(apperr.NotFound, "ingestion task not found: "+taskID)
	}

	switch task.Status.Kind {
	case model.TaskCompleted, model.TaskCancelled:
		return nil
	case model.TaskError:
		if task.Status.Attempts >= maxAttempts(deps.Tuning) {
			return nil
		}
	}

	attempts := task.Status.Attempts + 1
	task.Status = model.TaskStatus{Kind: model.TaskInProgress, Attempts: attempts, LastAttempt: time.Now().UTC()}
	if err := deps.Store.ReplaceTask(ctx, task); err != nil {
		return err
	}

	if err := process(ctx, deps, task); err != nil {
		task.Status = model.TaskStatus{Kind: model.TaskError, Attempts: attempts, LastAttempt: time.Now().UTC(), Message: err.Error()}
		if replaceErr := deps.Store.ReplaceTask(ctx, task); replaceErr != nil {
			return replaceErr
		}
		return err
	}

	task.Status = model.TaskStatus{Kind: model.TaskCompleted, Attempts: attempts, LastAttempt: time.Now().UTC()}
	return deps.Store.ReplaceTask(ctx, task)
}

func maxAttempts(t config.IngestionTuning) int {
	if t.MaxAttempts > 0 {
		return t.MaxAttempts
	}
	return 3
}

func process(ctx context.Context, deps Deps, task model.IngestionTask) error {
	settings, err := deps.Store.Settings(ctx)
	if err != nil {
		return apperr.Wrap(apperr.Transient, "load settings", err)
	}
	dims := settings.EmbeddingDimensions

	content, err := prepare(ctx, deps, task)
	if err != nil {
		return err
	}

	similar, err := retrieveSimilar(ctx, deps, content)
	if err != nil {
		return err
	}

	enriched, err := enrich(ctx, deps, content, similar)
	if err != nil {
		return err
	}

	entities, relationships, err := materializeGraph(ctx, deps, task.ID, content, enriched, dims)
	if err != nil {
		return err
	}

	chunks, err := chunkAndEmbed(ctx, deps, task.ID, content)
	if err != nil {
		return err
	}

	return persist(ctx, deps, content, entities, relationships, chunks, dims)
}

// prepare resolves the task's payload into plain text: one Extract call per
// FileID when any are set, otherwise the URL, otherwise the inline Text (the
// other inputs of a payload carrying several are not used), and assigns the Content an
// id derived from the task id. Nothing is persisted here: a failed later stage must not leave
// an orphan Content row behind.
func prepare(ctx context.Context, deps Deps, task model.IngestionTask) (model.Content, error) {
	p := task.Payload
	var texts []string
	var fileID string
	var urlInfo *model.URLInfo

	switch {
	case len(p.FileIDs) > 0:
		for _, fid := range p.FileIDs {
			text, file, err := extract.Extract(ctx, extract.Payload{FileID: fid}, task.UserID, deps.Extract)
			if err != nil {
				return model.Content{}, apperr.Wrap(apperr.Transient, "extract file "+fid, err)
			}
			texts = append(texts, text)
			if file != nil {
				fileID = file.ID
			}
		}
	case p.URL != "":
		text, info, _, err := extract.ExtractURL(ctx, p.URL, task.UserID, deps.Extract)
		if err != nil {
			return model.Content{}, apperr.Wrap(apperr.Transient, "extract url", err)
		}
		texts = append(texts, text)
		urlInfo = info
	default:
		texts = append(texts, p.Text)
	}

	full := texts[0]
	for _, t := range texts[1:] {
		full += "\n\n" + t
	}

	return model.Content{
		ID:       deterministicID(task.ID, "content"),
		Text:     full,
		FileID:   fileID,
		URL:      urlInfo,
		Context:  p.Context,
		Category: p.Category,
		UserID:   task.UserID,
	}, nil
}

// retrieveSimilar runs retrieval's ingestion-enrichment strategy to surface
// existing entities the enrichment prompt should consider reusing rather
// than duplicating.
func retrieveSimilar(ctx context.Context, deps Deps, content model.Content) ([]model.KnowledgeEntity, error) {
	if deps.Retrieval.Store == nil {
		return nil, nil
	}
	query := fmt.Sprintf("content: %s, category: %s", content.Text, content.Category)
	if content.Context != "" {
		query = fmt.Sprintf("%s, user_context: %s", query, content.Context)
	}
	result, err := retrieval.Run(ctx, deps.Retrieval, retrieval.Request{
		Query:    query,
		UserID:   content.UserID,
		Strategy: retrieval.StrategyIngestionEnrichment,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, "retrieve similar entities", err)
	}
	entities := make([]model.KnowledgeEntity, 0, len(result.Entities))
	for _, e := range result.Entities {
		entities = append(entities, e.Item)
	}
	return entities, nil
}

// chunkAndEmbed splits content into overlapping windows and embeds them
// concurrently, bounded by IngestionTuning.ChunkEmbedConcurrency.
func chunkAndEmbed(ctx context.Context, deps Deps, taskID string, content model.Content) ([]model.TextChunk, error) {
	pieces := chunkText(content.Text, deps.Tuning.ChunkMinTokens, deps.Tuning.ChunkMaxTokens, deps.Tuning.ChunkOverlapTokens)
	if len(pieces) == 0 {
		return nil, nil
	}
	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.Text
	}

	embeddings, err := embedBatched(ctx, deps.Embed, texts, concurrency(deps.Tuning.ChunkEmbedConcurrency, 8))
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, "embed chunks", err)
	}

	chunks := make([]model.TextChunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = model.TextChunk{
			ID:        deterministicID(taskID, fmt.Sprintf("chunk:%d", p.Index)),
			SourceID:  content.ID,
			Chunk:     p.Text,
			Embedding: embeddings[i],
			UserID:    content.UserID,
		}
	}
	return chunks, nil
}

// embedBatched embeds each text with at most n calls to deps.Embed in
// flight at once, preserving input order in the result.
func embedBatched(ctx context.Context, embed EmbedFunc, texts []string, n int) ([][]float32, error) {
	if embed == nil {
		return nil, apperr.New(apperr.Fatal, "ingest: no embed function configured")
	}
	out := make([][]float32, len(texts))
	sem := semaphore.NewWeighted(int64(n))
	g, gctx := errgroup.WithContext(ctx)
	for i, text := range texts {
		i, text := i, text
		if err := sem.Acquire(gctx, 1); err != nil {
			return nil, err
		}
		g.Go(func() error {
			defer sem.Release(1)
			vecs, err := embed(gctx, []string{text})
			if err != nil {
				return err
			}
			if len(vecs) != 1 {
				return apperr.New(apperr.Transient, "embed returned unexpected batch size")
			}
			out[i] = vecs[0]
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func concurrency(configured, def int) int {
	if configured > 0 {
		return configured
	}
	return def
}

// deterministicID derives a stable uuid from (taskID, key) so retries of the
// same task produce identical ids and overwrite rather than duplicate.
func deterministicID(taskID, key string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(taskID+"/"+key)).String()
}
