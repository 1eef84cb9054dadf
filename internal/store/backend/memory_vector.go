package backend

import (
	"context"
	"math"
	"sort"
	"sync"
)

// memoryVector is the "memory" vector backend: a brute-force cosine
// nearest-neighbor index over entity or chunk embeddings. The store's
// CreateEntity/CreateChunk enforce the configured embedding dimension
// before an id ever reaches Upsert, so this type never validates vector
// length itself.
type memoryVector struct {
	mu    sync.RWMutex
	items map[string]vectorItem
}

type vectorItem struct {
	embedding []float32
	norm      float64 // precomputed at Upsert, reused by every search
	metadata  map[string]string
}

// NewMemoryVector builds an empty in-memory VectorStore.
func NewMemoryVector() VectorStore { return &memoryVector{items: make(map[string]vectorItem)} }

func (m *memoryVector) Upsert(_ context.Context, id string, vector []float32, metadata map[string]string) error {
	item := vectorItem{
		embedding: append([]float32(nil), vector...),
		norm:      l2norm(vector),
		metadata:  make(map[string]string, len(metadata)),
	}
	for k, v := range metadata {
		item.metadata[k] = v
	}
	m.mu.Lock()
	m.items[id] = item
	m.mu.Unlock()
	return nil
}

func (m *memoryVector) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.items, id)
	m.mu.Unlock()
	return nil
}

// SimilaritySearch scores every stored vector by cosine similarity against
// query and returns the k closest whose metadata contains filter. The store
// inverts Score into its ascending-distance contract (distance = 1 - score).
func (m *memoryVector) SimilaritySearch(_ context.Context, query []float32, k int, filter map[string]string) ([]VectorResult, error) {
	if k <= 0 {
		k = 10
	}
	queryNorm := l2norm(query)

	m.mu.RLock()
	hits := make([]VectorResult, 0, len(m.items))
	for id, item := range m.items {
		if !containsAll(item.metadata, filter) {
			continue
		}
		md := make(map[string]string, len(item.metadata))
		for mk, mv := range item.metadata {
			md[mk] = mv
		}
		hits = append(hits, VectorResult{
			ID:       id,
			Score:    cosineSimilarity(query, queryNorm, item.embedding, item.norm),
			Metadata: md,
		})
	}
	m.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// containsAll reports whether md carries every key/value pair of filter,
// the in-memory equivalent of the JSONB @> containment the Postgres
// backends filter with.
func containsAll(md, filter map[string]string) bool {
	for k, v := range filter {
		if md[k] != v {
			return false
		}
	}
	return true
}

func l2norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosineSimilarity(a []float32, aNorm float64, b []float32, bNorm float64) float64 {
	if aNorm == 0 || bNorm == 0 {
		return 0
	}
	n := min(len(a), len(b))
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (aNorm * bNorm)
}
