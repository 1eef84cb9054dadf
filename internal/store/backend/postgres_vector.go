package backend

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// pgVector stores embeddings in one pgvector-typed table per instance. The
// store opens two of these, one for entity embeddings and one for chunk
// embeddings, against the same pool.
type pgVector struct {
	pool    *pgxpool.Pool
	table   string
	op      string // pgvector distance operator for the configured metric
	scoreBy string // SQL expression mapping that distance to higher-is-better
}

// NewPostgresVector opens (creating if absent) a vector-indexed table named
// table. A dimensions of 0 leaves the column untyped, accepting whatever
// length the first insert carries.
func NewPostgresVector(pool *pgxpool.Pool, table string, dimensions int, metric string) VectorStore {
	if table == "" {
		table = "embeddings"
	}
	colType := "vector"
	if dimensions > 0 {
		colType = fmt.Sprintf("vector(%d)", dimensions)
	}
	ctx := context.Background()
	_, _ = pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`)
	_, _ = pool.Exec(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  vec %s,
  metadata JSONB NOT NULL DEFAULT '{}'::jsonb
)`, table, colType))

	v := &pgVector{pool: pool, table: table}
	switch strings.ToLower(strings.TrimSpace(metric)) {
	case "l2", "euclidean":
		v.op, v.scoreBy = "<->", "-(vec <-> $1::vector)"
	case "ip", "dot":
		v.op, v.scoreBy = "<#>", "-(vec <#> $1::vector)"
	default: // cosine
		v.op, v.scoreBy = "<=>", "1 - (vec <=> $1::vector)"
	}
	return v
}

func (p *pgVector) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error {
	q := fmt.Sprintf(
		`INSERT INTO %s(id, vec, metadata) VALUES($1, $2::vector, $3)
ON CONFLICT (id) DO UPDATE SET vec=EXCLUDED.vec, metadata=EXCLUDED.metadata`, p.table)
	_, err := p.pool.Exec(ctx, q, id, vectorLiteral(vector), metadata)
	return err
}

func (p *pgVector) Delete(ctx context.Context, id string) error {
	_, err := p.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id=$1`, p.table), id)
	return err
}

func (p *pgVector) SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]string) ([]VectorResult, error) {
	if k <= 0 {
		k = 10
	}
	args := []any{vectorLiteral(vector), k}
	where := ""
	if len(filter) > 0 {
		where = "WHERE metadata @> $3"
		args = append(args, filter)
	}
	q := fmt.Sprintf(`SELECT id, %s AS score, metadata FROM %s %s ORDER BY vec %s $1::vector LIMIT $2`,
		p.scoreBy, p.table, where, p.op)

	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hits := make([]VectorResult, 0, k)
	for rows.Next() {
		var hit VectorResult
		if err := rows.Scan(&hit.ID, &hit.Score, &hit.Metadata); err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// vectorLiteral renders v as the bracketed text form pgvector casts from.
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
