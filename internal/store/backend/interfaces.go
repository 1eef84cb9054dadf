// Package backend holds the pluggable storage backends (full-text search,
// vector similarity, graph) that internal/store composes into the typed
// document store described by the store package's interfaces. Each backend
// has a Postgres-backed and an in-memory implementation selected by
// config.DBConfig.
package backend

import "context"

// SearchResult represents a single hit from the full-text search backend.
type SearchResult struct {
	ID       string
	Score    float64
	Snippet  string
	Text     string
	Metadata map[string]string
}

// FullTextSearch defines the minimum interface for a pluggable FTS backend.
type FullTextSearch interface {
	Index(ctx context.Context, id string, text string, metadata map[string]string) error
	Remove(ctx context.Context, id string) error
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
	GetByID(ctx context.Context, id string) (SearchResult, bool, error)
}

// ChunkSearcher is an optional capability implemented by FullTextSearch
// backends that can search a dedicated chunk table instead of falling back
// to a "chunk:" id-prefix convention over the generic documents table.
type ChunkSearcher interface {
	SearchChunks(ctx context.Context, query, lang string, limit int, filter map[string]string) ([]SearchResult, error)
}

// VectorResult represents a single nearest neighbor lookup result.
type VectorResult struct {
	ID       string
	Score    float64 // Higher is closer; similarity, not raw distance.
	Metadata map[string]string
}

// VectorStore defines the minimum interface for a pluggable vector store.
type VectorStore interface {
	Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error
	Delete(ctx context.Context, id string) error
	SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]string) ([]VectorResult, error)
}

// Node is a minimal representation of a graph node.
type Node struct {
	ID     string
	Labels []string
	Props  map[string]any
}

// GraphDB defines a portable interface for graph operations. Neighbors is
// single-hop; multi-hop traversal is built on top of it in internal/store.
type GraphDB interface {
	UpsertNode(ctx context.Context, id string, labels []string, props map[string]any) error
	UpsertEdge(ctx context.Context, srcID, rel, dstID string, props map[string]any) error
	Neighbors(ctx context.Context, id string, rel string) ([]string, error)
	GetNode(ctx context.Context, id string) (Node, bool)
}

