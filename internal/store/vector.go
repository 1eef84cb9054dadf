package store

import (
	"context"

	"noema/internal/apperr"
	"noema/internal/store/backend"
)

// VectorTarget selects which embedding table a vector search runs over:
// entity embeddings or chunk embeddings.
type VectorTarget string

const (
	VectorEntities VectorTarget = "entities"
	VectorChunks   VectorTarget = "chunks"
)

// VectorHit is one vector_search result: the row id and its distance,
// ascending (closer first).
type VectorHit struct {
	ID       string
	Distance float64
}

func (s *Store) vectorStoreFor(target VectorTarget) (backend.VectorStore, error) {
	switch target {
	case VectorEntities:
		return s.entityVec, nil
	case VectorChunks:
		return s.chunkVec, nil
	default:
		return nil, apperr.New(apperr.Validation, "unknown vector target: "+string(target))
	}
}

// UpsertVector writes or updates the embedding for id in target.
func (s *Store) UpsertVector(ctx context.Context, target VectorTarget, id string, embedding []float32, metadata map[string]string) error {
	vs, err := s.vectorStoreFor(target)
	if err != nil {
		return err
	}
	if err := vs.Upsert(ctx, id, embedding, metadata); err != nil {
		return apperr.Wrap(apperr.Transient, "upsert vector", err)
	}
	return nil
}

// DeleteVector removes id's embedding from target, if present.
func (s *Store) DeleteVector(ctx context.Context, target VectorTarget, id string) error {
	vs, err := s.vectorStoreFor(target)
	if err != nil {
		return err
	}
	if err := vs.Delete(ctx, id); err != nil {
		return apperr.Wrap(apperr.Transient, "delete vector", err)
	}
	return nil
}

// VectorSearch returns the k nearest rows to vector in target, sorted by
// distance ascending. backend.VectorStore.Score is a similarity; distance is
// its complement, and callers re-derive similarity via
// scoring.DistanceToSimilarity for fusion.
func (s *Store) VectorSearch(ctx context.Context, target VectorTarget, vector []float32, k int, filter map[string]string) ([]VectorHit, error) {
	vs, err := s.vectorStoreFor(target)
	if err != nil {
		return nil, err
	}
	results, err := vs.SimilaritySearch(ctx, vector, k, filter)
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, "vector search", err)
	}
	out := make([]VectorHit, len(results))
	for i, r := range results {
		out[i] = VectorHit{ID: r.ID, Distance: 1 - r.Score}
	}
	return out, nil
}
