package backend

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// memorySearch is the "memory" full-text backend: a naive term-count index
// over KnowledgeEntity and TextChunk documents, keyed by the
// "entities:"/"chunk:" id prefixes the store assigns. It trades ranking
// quality for zero external dependencies, the right tradeoff for tests and
// small single-user deployments without a Postgres search DSN.
type memorySearch struct {
	mu   sync.RWMutex
	docs map[string]indexedDoc
}

type indexedDoc struct {
	text     string
	lower    string // precomputed for case-insensitive scoring
	metadata map[string]string
}

// NewMemorySearch builds an empty in-memory FullTextSearch.
func NewMemorySearch() FullTextSearch { return &memorySearch{docs: make(map[string]indexedDoc)} }

func (m *memorySearch) Index(_ context.Context, id, text string, metadata map[string]string) error {
	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	m.mu.Lock()
	m.docs[id] = indexedDoc{text: text, lower: strings.ToLower(text), metadata: md}
	m.mu.Unlock()
	return nil
}

func (m *memorySearch) Remove(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.docs, id)
	m.mu.Unlock()
	return nil
}

// Search scores every indexed document by counting query-term occurrences
// (case-insensitive), a ranking close enough to the Postgres tsvector
// backend's for the small corpora this backend targets.
func (m *memorySearch) Search(_ context.Context, query string, limit int) ([]SearchResult, error) {
	return m.search(query, limit, func(string, indexedDoc) bool { return true })
}

func (m *memorySearch) GetByID(_ context.Context, id string) (SearchResult, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[id]
	if !ok {
		return SearchResult{}, false, nil
	}
	return d.result(id, 0), true, nil
}

// SearchChunks restricts Search to TextChunk documents (those Indexed with
// metadata["type"]="chunk") and additionally requires every filter key/value
// to match, mirroring the metadata @> containment check the Postgres
// backend's SearchChunks runs in SQL.
func (m *memorySearch) SearchChunks(_ context.Context, query string, _ string, limit int, filter map[string]string) ([]SearchResult, error) {
	return m.search(query, limit, func(id string, d indexedDoc) bool {
		if !strings.HasPrefix(id, "chunk:") {
			return false
		}
		for k, v := range filter {
			if d.metadata[k] != v {
				return false
			}
		}
		return true
	})
}

func (m *memorySearch) search(query string, limit int, keep func(string, indexedDoc) bool) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	terms := strings.Fields(strings.ToLower(query))

	m.mu.RLock()
	var results []SearchResult
	for id, d := range m.docs {
		if !keep(id, d) {
			continue
		}
		var score float64
		for _, t := range terms {
			score += float64(strings.Count(d.lower, t))
		}
		if score > 0 {
			results = append(results, d.result(id, score))
		}
	}
	m.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (d indexedDoc) result(id string, score float64) SearchResult {
	snippet := d.text
	if len(snippet) > 120 {
		snippet = snippet[:120]
	}
	md := make(map[string]string, len(d.metadata))
	for k, v := range d.metadata {
		md[k] = v
	}
	return SearchResult{ID: id, Score: score, Snippet: snippet, Text: d.text, Metadata: md}
}
