package store

import (
	"context"

	"noema/internal/apperr"
)

// UpsertEntityNode mirrors a KnowledgeEntity into the graph backend so it
// can participate in traversal.
func (s *Store) UpsertEntityNode(ctx context.Context, id string, props map[string]any) error {
	if err := s.graph.UpsertNode(ctx, id, []string{"KnowledgeEntity"}, props); err != nil {
		return apperr.Wrap(apperr.Transient, "upsert graph node", err)
	}
	return nil
}

// UpsertRelationshipEdge mirrors a KnowledgeRelationship into the graph
// backend, both under its own relationship_type (for type-aware neighbor
// queries) and under the catch-all graphRelAny label graph_neighbors BFS
// traverses.
func (s *Store) UpsertRelationshipEdge(ctx context.Context, outID, relType, inID string) error {
	props := map[string]any{"type": relType}
	if err := s.graph.UpsertEdge(ctx, outID, relType, inID, props); err != nil {
		return apperr.Wrap(apperr.Transient, "upsert graph edge", err)
	}
	if err := s.graph.UpsertEdge(ctx, outID, graphRelAny, inID, props); err != nil {
		return apperr.Wrap(apperr.Transient, "upsert graph edge", err)
	}
	return nil
}

// Neighbor is one graph_neighbors BFS hit, carrying the hop distance from the
// seed so callers (ExpandGraph) can apply a per-hop score decay.
type Neighbor struct {
	ID  string
	Hop int
}

// GraphNeighbors performs a breadth-first traversal from entityID along
// the graphRelAny edges (every relationship type), deduplicating visited ids and capping the
// result at limit, whichever of hops or limit binds first. The seed entity
// itself is never included in the result.
func (s *Store) GraphNeighbors(ctx context.Context, entityID string, hops, limit int) ([]Neighbor, error) {
	if hops <= 0 || limit <= 0 {
		return nil, nil
	}
	visited := map[string]bool{entityID: true}
	var out []Neighbor
	frontier := []string{entityID}

	for hop := 1; hop <= hops && len(out) < limit; hop++ {
		var next []string
		for _, id := range frontier {
			neighbors, err := s.graph.Neighbors(ctx, id, graphRelAny)
			if err != nil {
				return nil, apperr.Wrap(apperr.Transient, "graph neighbors", err)
			}
			for _, n := range neighbors {
				if visited[n] {
					continue
				}
				visited[n] = true
				out = append(out, Neighbor{ID: n, Hop: hop})
				next = append(next, n)
				if len(out) >= limit {
					break
				}
			}
			if len(out) >= limit {
				break
			}
		}
		frontier = next
		if len(frontier) == 0 {
			break
		}
	}
	return out, nil
}
