package retrieval

import "noema/internal/config"

// defaults fills in the shipped default for any tuning field left
// at its zero value, so a caller that only cares about a handful of knobs
// doesn't need to restate every constant.
func defaults(t config.RetrievalTuning) config.RetrievalTuning {
	if t.EntityVectorTake <= 0 {
		t.EntityVectorTake = 15
	}
	if t.ChunkVectorTake <= 0 {
		t.ChunkVectorTake = 20
	}
	if t.EntityFTSTake <= 0 {
		t.EntityFTSTake = 10
	}
	if t.ChunkFTSTake <= 0 {
		t.ChunkFTSTake = 20
	}
	if t.GraphSeedMinScore <= 0 {
		t.GraphSeedMinScore = 0.4
	}
	if t.GraphTraversalSeedLimit <= 0 {
		t.GraphTraversalSeedLimit = 5
	}
	if t.GraphNeighborLimit <= 0 {
		t.GraphNeighborLimit = 6
	}
	if t.GraphVectorInheritance <= 0 {
		t.GraphVectorInheritance = 0.6
	}
	if t.GraphScoreDecay <= 0 {
		t.GraphScoreDecay = 0.75
	}
	if t.ScoreThreshold <= 0 {
		t.ScoreThreshold = 0.35
	}
	if t.RerankKeepTop <= 0 {
		t.RerankKeepTop = 8
	}
	if t.RerankBlend <= 0 {
		t.RerankBlend = 0.65
	}
	if t.TokenBudgetEstimate <= 0 {
		t.TokenBudgetEstimate = 10000
	}
	if t.AvgCharsPerToken <= 0 {
		t.AvgCharsPerToken = 4
	}
	if t.MaxChunksPerEntity <= 0 {
		t.MaxChunksPerEntity = 4
	}
	if t.RetrievalDeadlineSecs <= 0 {
		t.RetrievalDeadlineSecs = 30
	}
	return t
}
