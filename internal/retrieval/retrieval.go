// Package retrieval implements the hybrid retrieval pipeline as a stage
// machine over a mutable run context, composing the store, embeddings,
// the scoring algebra, and the reranker pool.
package retrieval

import (
	"context"
	"sync"

	"noema/internal/config"
	"noema/internal/model"
	"noema/internal/rerank"
	"noema/internal/scoring"
	"noema/internal/store"
)

// State names the stage machine's position. Transitions are one-way; an
// abort from any non-terminal state lands in Failed.
type State string

const (
	StateReady              State = "Ready"
	StateEmbedded           State = "Embedded"
	StateCandidatesLoaded   State = "CandidatesLoaded"
	StateGraphExpanded      State = "GraphExpanded"
	StateChunksAttached     State = "ChunksAttached"
	StateReranked           State = "Reranked"
	StateCompleted          State = "Completed"
	StateFailed             State = "Failed"
)

// Strategy selects which stages a Run executes and what Result it emits.
type Strategy string

const (
	// StrategyChatAnswer is the default: embed, vector chunk candidates,
	// rerank, assemble chunks. No graph expansion or entity output.
	StrategyChatAnswer Strategy = "chat_answer"
	// StrategyIngestionEnrichment runs the full entity path (candidates,
	// graph expansion, rerank) and emits entities with no attached chunks,
	// surfacing similar existing entities for ingestion enrichment.
	StrategyIngestionEnrichment Strategy = "ingestion_enrichment"
	// StrategySearchChunks, StrategySearchEntities, StrategySearchBoth back
	// the search surface's target parameter.
	StrategySearchChunks   Strategy = "search_chunks"
	StrategySearchEntities Strategy = "search_entities"
	StrategySearchBoth     Strategy = "search_both"
)

// Request is the pipeline's input. Embedding is optional: when set, the
// Embed stage skips the provider call.
type Request struct {
	Query     string
	Embedding []float32
	UserID    string
	Strategy  Strategy
}

// Diagnostics records what Assemble inspected and decided.
type Diagnostics struct {
	EntitiesInspected int
	EntitiesSelected  []string
	ChunksInspected   int
	ChunksSelected    []string
	SkippedDueBudget  []string
	RerankApplied     bool
	RerankSkipReason  string
}

// Result is a completed or failed run's output.
type Result struct {
	State       State
	Chunks      []scoring.Scored[model.TextChunk]
	Entities    []scoring.Scored[model.KnowledgeEntity]
	Diagnostics Diagnostics
}

// EmbedFunc embeds a single string. Callers typically bind this to
// embedding.EmbedText with config.EmbeddingConfig already applied.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// Deps bundles the pipeline's collaborators.
type Deps struct {
	Store  *store.Store
	Embed  EmbedFunc
	Rerank *rerank.Pool // nil disables the Rerank stage entirely
	Tuning config.RetrievalTuning
}

func (d Deps) weights() scoring.Weights {
	w := scoring.DefaultWeights()
	if d.Tuning.WeightVector > 0 {
		w.Vector = d.Tuning.WeightVector
	}
	if d.Tuning.WeightFTS > 0 {
		w.FTS = d.Tuning.WeightFTS
	}
	if d.Tuning.WeightGraph > 0 {
		w.Graph = d.Tuning.WeightGraph
	}
	if d.Tuning.MultiSignalBonus > 0 {
		w.MultiBonus = d.Tuning.MultiSignalBonus
	}
	return w
}

// run carries the mutable state a Request moves through. It is owned by a
// single call to Run, never shared across goroutines outside the fan-out
// inside collectCandidates.
type run struct {
	deps   Deps
	req    Request
	w      scoring.Weights
	tuning config.RetrievalTuning
	mu     sync.Mutex

	state State

	embedding []float32

	entities map[string]scoring.Scored[model.KnowledgeEntity]
	chunks   map[string]scoring.Scored[model.TextChunk]

	diag Diagnostics
}

// Run executes req's strategy to completion, returning a Result whose State
// is Completed or Failed. A non-nil error always accompanies State ==
// Failed; Result is still returned (possibly partially populated) for
// diagnostics.
func Run(ctx context.Context, deps Deps, req Request) (*Result, error) {
	r := &run{
		deps:     deps,
		req:      req,
		w:        deps.weights(),
		tuning:   defaults(deps.Tuning),
		state:    StateReady,
		entities: map[string]scoring.Scored[model.KnowledgeEntity]{},
		chunks:   map[string]scoring.Scored[model.TextChunk]{},
	}

	stages := stagesFor(req.Strategy)
	for _, stage := range stages {
		if err := stage(ctx, r); err != nil {
			r.state = StateFailed
			return r.result(), err
		}
	}
	r.state = StateCompleted
	return r.result(), nil
}

func (r *run) result() *Result {
	return &Result{
		State:       r.state,
		Chunks:      sortedScores(r.chunks),
		Entities:    sortedEntityScores(r.entities),
		Diagnostics: r.diag,
	}
}

func sortedScores(m map[string]scoring.Scored[model.TextChunk]) []scoring.Scored[model.TextChunk] {
	out := make([]scoring.Scored[model.TextChunk], 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	scoring.SortByFusedDesc(out)
	return out
}

func sortedEntityScores(m map[string]scoring.Scored[model.KnowledgeEntity]) []scoring.Scored[model.KnowledgeEntity] {
	out := make([]scoring.Scored[model.KnowledgeEntity], 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	scoring.SortByFusedDesc(out)
	return out
}
