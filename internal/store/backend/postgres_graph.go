package backend

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// pgGraph is the "postgres" graph backend behind Store.GraphNeighbors: one
// nodes row per KnowledgeEntity, one edges row per (source, rel, target)
// triple. Store.UpsertRelationshipEdge writes each relationship twice, under
// its own relationship_type and under the catch-all label, so the BFS never
// scans every relationship type.
type pgGraph struct{ pool *pgxpool.Pool }

var graphDDL = []string{
	`CREATE TABLE IF NOT EXISTS nodes (
  id TEXT PRIMARY KEY,
  labels TEXT[] NOT NULL DEFAULT '{}',
  props JSONB NOT NULL DEFAULT '{}'::jsonb
)`,
	`CREATE TABLE IF NOT EXISTS edges (
  id BIGSERIAL PRIMARY KEY,
  source TEXT NOT NULL,
  rel TEXT NOT NULL,
  target TEXT NOT NULL,
  props JSONB NOT NULL DEFAULT '{}'::jsonb
)`,
	`CREATE INDEX IF NOT EXISTS edges_src_rel ON edges(source, rel)`,
	`CREATE INDEX IF NOT EXISTS edges_dst_rel ON edges(target, rel)`,
	// UpsertEdge's ON CONFLICT DO NOTHING needs this to actually dedupe the
	// triple; without it the serial PK never conflicts.
	`CREATE UNIQUE INDEX IF NOT EXISTS edges_triple ON edges(source, rel, target)`,
}

// NewPostgresGraph opens (bootstrapping if absent) the nodes and edges
// tables, indexed for forward traversal.
func NewPostgresGraph(pool *pgxpool.Pool) GraphDB {
	ctx := context.Background()
	for _, stmt := range graphDDL {
		_, _ = pool.Exec(ctx, stmt)
	}
	return &pgGraph{pool: pool}
}

// UpsertNode writes a KnowledgeEntity snapshot (labels is always
// {"KnowledgeEntity"}; props carries entity_type, name, and any other
// scalar fields the graph view needs).
func (g *pgGraph) UpsertNode(ctx context.Context, id string, labels []string, props map[string]any) error {
	if props == nil {
		props = map[string]any{}
	}
	_, err := g.pool.Exec(ctx,
		`INSERT INTO nodes(id, labels, props) VALUES($1,$2,$3)
ON CONFLICT (id) DO UPDATE SET labels=EXCLUDED.labels, props=EXCLUDED.props`,
		id, labels, props)
	return err
}

// UpsertEdge inserts one relationship triple. The unique index on
// (source, rel, target) makes a retried ingestion task idempotent here:
// re-deriving the same relationship never duplicates the edge row.
func (g *pgGraph) UpsertEdge(ctx context.Context, srcID, rel, dstID string, props map[string]any) error {
	if props == nil {
		props = map[string]any{}
	}
	_, err := g.pool.Exec(ctx,
		`INSERT INTO edges(source, rel, target, props) VALUES($1,$2,$3,$4)
ON CONFLICT DO NOTHING`,
		srcID, rel, dstID, props)
	return err
}

// Neighbors returns id's rel-typed out-edge targets, the hop primitive
// Store.GraphNeighbors calls per BFS frontier.
func (g *pgGraph) Neighbors(ctx context.Context, id string, rel string) ([]string, error) {
	rows, err := g.pool.Query(ctx,
		`SELECT target FROM edges WHERE source=$1 AND rel=$2 ORDER BY target`, id, rel)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	targets := []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

func (g *pgGraph) GetNode(ctx context.Context, id string) (Node, bool) {
	n := Node{ID: id}
	err := g.pool.QueryRow(ctx, `SELECT labels, props FROM nodes WHERE id=$1`, id).Scan(&n.Labels, &n.Props)
	if err != nil {
		return Node{}, false
	}
	return n, true
}
