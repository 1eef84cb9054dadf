package retrieval

import "context"

type stageFunc func(ctx context.Context, r *run) error

// stagesFor composes each strategy's fixed stage list.
func stagesFor(s Strategy) []stageFunc {
	switch s {
	case StrategyIngestionEnrichment:
		return []stageFunc{embed, collectCandidates, expandGraph, rerankEntities, assembleEntities}
	case StrategySearchEntities:
		return []stageFunc{embed, collectCandidates, expandGraph, rerankEntities, assembleEntities}
	case StrategySearchBoth:
		return []stageFunc{embed, collectCandidates, expandGraph, attachChunks, rerankChunks, assembleChunks, assembleEntities}
	case StrategySearchChunks:
		return []stageFunc{embed, chunkVector, rerankChunks, assembleChunks}
	case StrategyChatAnswer:
		fallthrough
	default:
		// Chunk vector search only: the chat-answer path never gathers
		// entity or FTS candidates.
		return []stageFunc{embed, chunkVector, rerankChunks, assembleChunks}
	}
}
