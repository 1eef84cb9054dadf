package store

import (
	"context"

	"noema/internal/apperr"
	"noema/internal/store/backend"
)

// FTSHit is one fts_search result: the row id, a backend-specific score
// monotone with relevance, and the indexed text (for downstream reuse, e.g.
// snippet generation).
type FTSHit struct {
	ID    string
	Score float64
	Text  string
}

// IndexText (re)indexes id's full-text document. table distinguishes entity
// documents ("entities") from chunk documents ("chunks"); chunk documents are
// also written through backend.ChunkSearcher when the backend supports it,
// so chunk-scoped search can filter by metadata without scanning the whole
// corpus.
func (s *Store) IndexText(ctx context.Context, table, id, text string, metadata map[string]string) error {
	if table == string(VectorChunks) {
		if metadata == nil {
			metadata = map[string]string{}
		}
		metadata["type"] = "chunk"
	}
	if err := s.search.Index(ctx, fullTextPrefix(table)+id, text, metadata); err != nil {
		return apperr.Wrap(apperr.Transient, "index text", err)
	}
	return nil
}

// RemoveText deletes id's full-text document.
func (s *Store) RemoveText(ctx context.Context, table, id string) error {
	if err := s.search.Remove(ctx, fullTextPrefix(table)+id); err != nil {
		return apperr.Wrap(apperr.Transient, "remove text", err)
	}
	return nil
}

// FTSSearch runs a full-text query scoped to table ("entities" or "chunks"),
// returning up to k hits.
func (s *Store) FTSSearch(ctx context.Context, table, query string, k int, filter map[string]string) ([]FTSHit, error) {
	var results []backend.SearchResult
	var err error
	if table == string(VectorChunks) {
		if cs, ok := s.search.(backend.ChunkSearcher); ok {
			if filter == nil {
				filter = map[string]string{}
			}
			filter["type"] = "chunk"
			results, err = cs.SearchChunks(ctx, query, "english", k, filter)
		} else {
			results, err = s.search.Search(ctx, query, k)
		}
	} else {
		results, err = s.search.Search(ctx, query, k)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, "fts search", err)
	}
	prefix := fullTextPrefix(table)
	out := make([]FTSHit, 0, len(results))
	for _, r := range results {
		if !hasPrefix(r.ID, prefix) {
			continue
		}
		out = append(out, FTSHit{ID: r.ID[len(prefix):], Score: r.Score, Text: r.Text})
	}
	return out, nil
}

// fullTextPrefix maps a logical table to the id prefix convention the
// backend's generic documents table (and its "chunk:" id-prefix fallback
// path) already uses.
func fullTextPrefix(table string) string {
	if table == string(VectorChunks) {
		return "chunk:"
	}
	return table + ":"
}

func hasPrefix(s, p string) bool {
	return len(s) >= len(p) && s[:len(p)] == p
}
