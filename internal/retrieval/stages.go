package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"noema/internal/apperr"
	"noema/internal/model"
	"noema/internal/scoring"
	"noema/internal/store"
)

// embed computes the query embedding if the request didn't already
// carry one.
func embed(ctx context.Context, r *run) error {
	if len(r.req.Embedding) > 0 {
		r.embedding = r.req.Embedding
		r.state = StateEmbedded
		return nil
	}
	if r.deps.Embed == nil {
		return apperr.New(apperr.Fatal, "retrieval: no embed function configured")
	}
	vec, err := r.deps.Embed(ctx, r.req.Query)
	if err != nil {
		return apperr.Wrap(apperr.Transient, "embed query", err)
	}
	r.embedding = vec
	r.state = StateEmbedded
	return nil
}

// chunkVector is the candidate stage for the chunk-only strategies: one
// vector search over chunks, nothing else. The chat-answer ranking is
// vector similarity refined by rerank; FTS and entity candidates belong to
// the entity-bearing strategies and would skew it here.
func chunkVector(ctx context.Context, r *run) error {
	filter := map[string]string{"user_id": r.req.UserID}
	hits, err := r.deps.Store.VectorSearch(ctx, store.VectorChunks, r.embedding, r.tuning.ChunkVectorTake, filter)
	if err != nil {
		return apperr.Wrap(apperr.Transient, "chunk vector search", err)
	}
	if err := r.mergeChunkVectorHits(ctx, hits); err != nil {
		return err
	}
	r.state = StateCandidatesLoaded
	return nil
}

// collectCandidates fans out the four vector/fts sub-queries concurrently
// and merges their hits by id, so an item appearing in multiple signals
// accumulates subscores without loss.
func collectCandidates(ctx context.Context, r *run) error {
	g, gctx := errgroup.WithContext(ctx)
	filter := map[string]string{"user_id": r.req.UserID}

	g.Go(func() error {
		hits, err := r.deps.Store.VectorSearch(gctx, store.VectorEntities, r.embedding, r.tuning.EntityVectorTake, filter)
		if err != nil {
			return err
		}
		return r.mergeEntityVectorHits(gctx, hits)
	})
	g.Go(func() error {
		hits, err := r.deps.Store.VectorSearch(gctx, store.VectorChunks, r.embedding, r.tuning.ChunkVectorTake, filter)
		if err != nil {
			return err
		}
		return r.mergeChunkVectorHits(gctx, hits)
	})
	g.Go(func() error {
		hits, err := r.deps.Store.FTSSearch(gctx, string(store.VectorEntities), r.req.Query, r.tuning.EntityFTSTake, filter)
		if err != nil {
			return err
		}
		return r.mergeEntityFTSHits(gctx, hits)
	})
	g.Go(func() error {
		hits, err := r.deps.Store.FTSSearch(gctx, string(store.VectorChunks), r.req.Query, r.tuning.ChunkFTSTake, filter)
		if err != nil {
			return err
		}
		return r.mergeChunkFTSHits(gctx, hits)
	})

	if err := g.Wait(); err != nil {
		return apperr.Wrap(apperr.Transient, "collect candidates", err)
	}
	r.state = StateCandidatesLoaded
	return nil
}

func (r *run) mergeEntityVectorHits(ctx context.Context, hits []store.VectorHit) error {
	var incoming []scoring.Scored[model.KnowledgeEntity]
	for _, h := range hits {
		e, ok, err := r.deps.Store.GetEntity(ctx, h.ID)
		if err != nil || !ok || e.UserID != r.req.UserID {
			continue
		}
		sim := scoring.DistanceToSimilarity(h.Distance)
		incoming = append(incoming, scoring.NewVector(e.ID, e, sim, r.w))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mergeEntities(incoming)
	return nil
}

func (r *run) mergeEntityFTSHits(ctx context.Context, hits []store.FTSHit) error {
	scores := ftsSimilarities(hits)
	var incoming []scoring.Scored[model.KnowledgeEntity]
	for i, h := range hits {
		e, ok, err := r.deps.Store.GetEntity(ctx, h.ID)
		if err != nil || !ok || e.UserID != r.req.UserID {
			continue
		}
		incoming = append(incoming, scoring.NewFTS(e.ID, e, scores[i], r.w))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mergeEntities(incoming)
	return nil
}

func (r *run) mergeChunkVectorHits(ctx context.Context, hits []store.VectorHit) error {
	var incoming []scoring.Scored[model.TextChunk]
	for _, h := range hits {
		c, ok, err := r.deps.Store.GetChunk(ctx, h.ID)
		if err != nil || !ok || c.UserID != r.req.UserID {
			continue
		}
		sim := scoring.DistanceToSimilarity(h.Distance)
		incoming = append(incoming, scoring.NewVector(c.ID, c, sim, r.w))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mergeChunks(incoming)
	return nil
}

func (r *run) mergeChunkFTSHits(ctx context.Context, hits []store.FTSHit) error {
	scores := ftsSimilarities(hits)
	var incoming []scoring.Scored[model.TextChunk]
	for i, h := range hits {
		c, ok, err := r.deps.Store.GetChunk(ctx, h.ID)
		if err != nil || !ok || c.UserID != r.req.UserID {
			continue
		}
		incoming = append(incoming, scoring.NewFTS(c.ID, c, scores[i], r.w))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mergeChunks(incoming)
	return nil
}

// ftsSimilarities min-max normalizes raw backend scores into [0,1] so they
// compose with vector cosine similarities on the same scale.
func ftsSimilarities(hits []store.FTSHit) []float64 {
	raw := make([]float64, len(hits))
	for i, h := range hits {
		raw[i] = h.Score
	}
	return scoring.MinMaxNormalize(raw)
}

func (r *run) mergeEntities(incoming []scoring.Scored[model.KnowledgeEntity]) {
	cur := make([]scoring.Scored[model.KnowledgeEntity], 0, len(r.entities))
	for _, v := range r.entities {
		cur = append(cur, v)
	}
	cur = scoring.MergeByID(cur, incoming, r.w)
	r.entities = make(map[string]scoring.Scored[model.KnowledgeEntity], len(cur))
	for _, v := range cur {
		r.entities[v.ID] = v
	}
}

func (r *run) mergeChunks(incoming []scoring.Scored[model.TextChunk]) {
	cur := make([]scoring.Scored[model.TextChunk], 0, len(r.chunks))
	for _, v := range r.chunks {
		cur = append(cur, v)
	}
	cur = scoring.MergeByID(cur, incoming, r.w)
	r.chunks = make(map[string]scoring.Scored[model.TextChunk], len(cur))
	for _, v := range cur {
		r.chunks[v.ID] = v
	}
}

// expandGraph seeds from top entity candidates and walks graph neighbors.
// Neighbors inherit a scaled share of the seed's vector subscore and get a
// per-hop decaying graph subscore.
func expandGraph(ctx context.Context, r *run) error {
	seeds := topEntitySeeds(r.entities, r.tuning.GraphSeedMinScore, r.tuning.GraphTraversalSeedLimit)

	var incoming []scoring.Scored[model.KnowledgeEntity]
	const hops = 2
	for _, seed := range seeds {
		neighbors, err := r.deps.Store.GraphNeighbors(ctx, seed.ID, hops, r.tuning.GraphNeighborLimit)
		if err != nil {
			return apperr.Wrap(apperr.Transient, "graph neighbors", err)
		}
		for _, n := range neighbors {
			e, ok, err := r.deps.Store.GetEntity(ctx, n.ID)
			if err != nil || !ok || e.UserID != r.req.UserID {
				continue
			}
			s := scoring.Scored[model.KnowledgeEntity]{ID: e.ID, Item: e}
			graphScore := math.Pow(r.tuning.GraphScoreDecay, float64(n.Hop))
			s.Graph = floatPtr(graphScore)
			if seed.Vector != nil {
				s.Vector = floatPtr(*seed.Vector * r.tuning.GraphVectorInheritance)
			}
			s.Fused = scoring.Fuse(s, r.w)
			incoming = append(incoming, s)
		}
	}
	r.mergeEntities(incoming)
	r.state = StateGraphExpanded
	return nil
}

func floatPtr(v float64) *float64 { return &v }

func topEntitySeeds(m map[string]scoring.Scored[model.KnowledgeEntity], minScore float64, limit int) []scoring.Scored[model.KnowledgeEntity] {
	all := make([]scoring.Scored[model.KnowledgeEntity], 0, len(m))
	for _, v := range m {
		if v.Fused > minScore {
			all = append(all, v)
		}
	}
	scoring.SortByFusedDesc(all)
	if len(all) > limit {
		all = all[:limit]
	}
	return all
}

// attachChunks couples entity candidates back to their supporting textual
// evidence: the chunks sharing the entity's source_id.
func attachChunks(ctx context.Context, r *run) error {
	for _, e := range r.entities {
		if e.Fused <= r.tuning.ScoreThreshold {
			continue
		}
		chunks, err := r.deps.Store.ListChunksBySource(ctx, e.Item.SourceID)
		if err != nil {
			return apperr.Wrap(apperr.Transient, "list chunks by source", err)
		}
		var incoming []scoring.Scored[model.TextChunk]
		for _, c := range chunks {
			if existing, ok := r.chunks[c.ID]; ok {
				incoming = append(incoming, existing)
				continue
			}
			incoming = append(incoming, scoring.Scored[model.TextChunk]{ID: c.ID, Item: c})
		}
		r.mergeChunks(incoming)
	}
	r.state = StateChunksAttached
	return nil
}

// rerankChunks submits the top-ranked chunks to a reranker lease and blends
// the result back in. A nil pool or a rerank
// failure degrades gracefully: pre-rerank ordering is kept.
func rerankChunks(ctx context.Context, r *run) error {
	ranked := sortedScores(r.chunks)
	top := ranked
	if len(top) > r.tuning.RerankKeepTop {
		top = top[:r.tuning.RerankKeepTop]
	}
	if r.deps.Rerank == nil || len(top) == 0 {
		r.diag.RerankSkipReason = "no reranker pool configured"
		r.state = StateReranked
		return nil
	}

	docs := make([]string, len(top))
	for i, s := range top {
		docs[i] = s.Item.Chunk
	}
	scores, err := r.deps.Rerank.Rerank(ctx, r.req.Query, docs)
	if err != nil {
		r.diag.RerankSkipReason = fmt.Sprintf("rerank failed: %v", err)
		r.state = StateReranked
		return nil
	}

	raw := make([]float64, len(top))
	for _, sc := range scores {
		if sc.Index >= 0 && sc.Index < len(raw) {
			raw[sc.Index] = sc.Score
		}
	}
	norm := scoring.MinMaxNormalize(raw)

	for i, s := range top {
		if r.tuning.RerankScoresOnly {
			s.Fused = norm[i]
		} else {
			s.Fused = (1-r.tuning.RerankBlend)*s.Fused + r.tuning.RerankBlend*norm[i]
		}
		r.chunks[s.ID] = s
	}
	r.diag.RerankApplied = true
	r.state = StateReranked
	return nil
}

// rerankEntities is rerankChunks' entity-strategy counterpart: it reranks
// entity descriptions instead of chunk text.
func rerankEntities(ctx context.Context, r *run) error {
	ranked := sortedEntityScores(r.entities)
	top := ranked
	if len(top) > r.tuning.RerankKeepTop {
		top = top[:r.tuning.RerankKeepTop]
	}
	if r.deps.Rerank == nil || len(top) == 0 {
		r.diag.RerankSkipReason = "no reranker pool configured"
		r.state = StateReranked
		return nil
	}

	docs := make([]string, len(top))
	for i, s := range top {
		docs[i] = s.Item.Name + ": " + s.Item.Description
	}
	scores, err := r.deps.Rerank.Rerank(ctx, r.req.Query, docs)
	if err != nil {
		r.diag.RerankSkipReason = fmt.Sprintf("rerank failed: %v", err)
		r.state = StateReranked
		return nil
	}

	raw := make([]float64, len(top))
	for _, sc := range scores {
		if sc.Index >= 0 && sc.Index < len(raw) {
			raw[sc.Index] = sc.Score
		}
	}
	norm := scoring.MinMaxNormalize(raw)
	for i, s := range top {
		if r.tuning.RerankScoresOnly {
			s.Fused = norm[i]
		} else {
			s.Fused = (1-r.tuning.RerankBlend)*s.Fused + r.tuning.RerankBlend*norm[i]
		}
		r.entities[s.ID] = s
	}
	r.diag.RerankApplied = true
	r.state = StateReranked
	return nil
}

// assembleChunks walks ranked chunks under the character budget, emitting
// until the next chunk would exceed it.
func assembleChunks(ctx context.Context, r *run) error {
	ranked := sortedScores(r.chunks)
	budget := r.tuning.TokenBudgetEstimate * r.tuning.AvgCharsPerToken
	used := 0
	kept := make(map[string]scoring.Scored[model.TextChunk], len(ranked))
	r.diag.ChunksInspected = len(ranked)
	for _, s := range ranked {
		n := len(s.Item.Chunk)
		if used+n > budget {
			r.diag.SkippedDueBudget = append(r.diag.SkippedDueBudget, s.ID)
			continue
		}
		used += n
		kept[s.ID] = s
		r.diag.ChunksSelected = append(r.diag.ChunksSelected, s.ID)
	}
	r.chunks = kept
	r.state = StateCompleted
	return nil
}

// assembleEntities caps attached chunks per entity and walks entities under
// the character budget.
func assembleEntities(ctx context.Context, r *run) error {
	ranked := sortedEntityScores(r.entities)
	budget := r.tuning.TokenBudgetEstimate * r.tuning.AvgCharsPerToken
	used := 0
	kept := make(map[string]scoring.Scored[model.KnowledgeEntity], len(ranked))
	r.diag.EntitiesInspected = len(ranked)
	for _, s := range ranked {
		n := len(s.Item.Description)
		if used+n > budget {
			r.diag.SkippedDueBudget = append(r.diag.SkippedDueBudget, s.ID)
			continue
		}
		used += n
		kept[s.ID] = s
		r.diag.EntitiesSelected = append(r.diag.EntitiesSelected, s.ID)
	}
	r.entities = kept

	if len(r.chunks) > 0 {
		capped := capChunksPerEntity(r.chunks, kept, r.tuning.MaxChunksPerEntity)
		r.chunks = capped
	}
	r.state = StateCompleted
	return nil
}

func capChunksPerEntity(chunks map[string]scoring.Scored[model.TextChunk], entities map[string]scoring.Scored[model.KnowledgeEntity], maxPer int) map[string]scoring.Scored[model.TextChunk] {
	liveSources := map[string]bool{}
	for _, e := range entities {
		liveSources[e.Item.SourceID] = true
	}

	bySource := map[string][]scoring.Scored[model.TextChunk]{}
	for _, c := range chunks {
		if liveSources[c.Item.SourceID] {
			bySource[c.Item.SourceID] = append(bySource[c.Item.SourceID], c)
		}
	}

	out := map[string]scoring.Scored[model.TextChunk]{}
	for _, cs := range bySource {
		sort.Slice(cs, func(i, j int) bool { return cs[i].Fused > cs[j].Fused })
		if len(cs) > maxPer {
			cs = cs[:maxPer]
		}
		for _, c := range cs {
			out[c.ID] = c
		}
	}
	return out
}
