package backend

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// pgSearch is the "postgres" SearchConfig.Backend: a generic documents table
// plus, when present, a dedicated chunks table that SearchChunks prefers.
// Store.IndexText writes KnowledgeEntity documents under an "entities:" id
// prefix and TextChunk documents under a "chunk:" prefix into documents (or,
// once a chunks table exists, chunk rows go there instead); documents
// carries a generated 'simple'-config tsvector column so §4.1's fts_search
// can run ts_rank-ordered full-text queries without a separate search
// engine. The chunks table is not created here.
type pgSearch struct{ pool *pgxpool.Pool }

// NewPostgresSearch opens (bootstrapping if absent) the documents table.
func NewPostgresSearch(pool *pgxpool.Pool) FullTextSearch {
	ctx := context.Background()
	_, _ = pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS pg_trgm`)
	_, _ = pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS documents (
  id TEXT PRIMARY KEY,
  text TEXT NOT NULL,
  metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
  ts tsvector GENERATED ALWAYS AS (to_tsvector('simple', coalesce(text,''))) STORED
);
`)
	_, _ = pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS documents_ts_idx ON documents USING GIN (ts)`)
	return &pgSearch{pool: pool}
}

func (p *pgSearch) Index(ctx context.Context, id, text string, metadata map[string]string) error {
	md := mapToJSON(metadata)
	_, err := p.pool.Exec(ctx, `
INSERT INTO documents(id, text, metadata) VALUES($1,$2,$3)
ON CONFLICT (id) DO UPDATE SET text=EXCLUDED.text, metadata=EXCLUDED.metadata
`, id, text, md)
	return err
}

func (p *pgSearch) Remove(ctx context.Context, id string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM documents WHERE id=$1`, id)
	return err
}

// Search runs plainto_tsquery over the documents table; this is used for
// entity search (table="entities"), which never needs the language/metadata
// filtering TextChunk lookups do.
func (p *pgSearch) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, nil
	}
	rows, err := p.pool.Query(ctx, `
SELECT id, ts_rank(ts, plainto_tsquery('simple',$1)) AS score,
       left(text, 120) AS snippet,
       text,
       metadata
FROM documents
WHERE ts @@ plainto_tsquery('simple',$1)
ORDER BY score DESC
LIMIT $2
`, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]SearchResult, 0, limit)
	for rows.Next() {
		var r SearchResult
		var md map[string]string
		if err := rows.Scan(&r.ID, &r.Score, &r.Snippet, &r.Text, &md); err != nil {
			return nil, err
		}
		r.Metadata = md
		out = append(out, r)
	}
	return out, rows.Err()
}

// SearchChunks implements the TextChunk half of fts_search: it prefers a
// dedicated chunks table (created by UpsertChunk call sites that opt into
// per-language ranking) and always constrains the metadata JSONB column
// with filter via containment (@>), so a caller scoping search to one
// content_id's chunks gets only that content's rows back. lang selects the
// Postgres text-search configuration (e.g. "english") chunks were indexed
// under; websearch_to_tsquery is tried first for its phrase/operator syntax,
// falling back to plainto_tsquery if the configuration rejects it.
func (p *pgSearch) SearchChunks(ctx context.Context, query string, lang string, limit int, filter map[string]string) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, nil
	}
	f := mapToJSON(filter)
	if f == nil {
		f = map[string]string{}
	}
	if _, ok := f["type"]; !ok {
		f["type"] = "chunk"
	}
	run := func(stmt string, args ...any) ([]SearchResult, error) {
		rows, err := p.pool.Query(ctx, stmt, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		out := make([]SearchResult, 0, limit)
		for rows.Next() {
			var r SearchResult
			var md map[string]string
			if err := rows.Scan(&r.ID, &r.Score, &r.Snippet, &r.Text, &md); err != nil {
				return nil, err
			}
			r.Metadata = md
			out = append(out, r)
		}
		return out, rows.Err()
	}

	useChunks, _ := p.HasChunksTable(ctx)
	if useChunks {
		stmt := `SELECT id, ts_rank(ts, websearch_to_tsquery(to_regconfig($2), $1)) AS score,
                         left(text, 120) AS snippet, text, metadata
                  FROM chunks
                  WHERE ts @@ websearch_to_tsquery(to_regconfig($2), $1)
                    AND metadata @> $3
                  ORDER BY score DESC
                  LIMIT $4`
		if res, err := run(stmt, q, lang, f, limit); err == nil {
			return res, nil
		}
		stmt = `SELECT id, ts_rank(ts, plainto_tsquery(to_regconfig($2), $1)) AS score,
                         left(text, 120) AS snippet, text, metadata
                FROM chunks
                WHERE ts @@ plainto_tsquery(to_regconfig($2), $1)
                  AND metadata @> $3
                ORDER BY score DESC
                LIMIT $4`
		return run(stmt, q, lang, f, limit)
	}

	// No dedicated chunks table yet: fall back to documents, scoped to the
	// "chunk:" id prefix Store.IndexText assigns TextChunk documents.
	stmt := `SELECT id, ts_rank(ts, websearch_to_tsquery(to_regconfig($2), $1)) AS score,
                     left(text, 120) AS snippet, text, metadata
              FROM documents
              WHERE ts @@ websearch_to_tsquery(to_regconfig($2), $1)
                AND metadata @> $3
                AND id LIKE 'chunk:%'
              ORDER BY score DESC
              LIMIT $4`
	if res, err := run(stmt, q, lang, f, limit); err == nil {
		return res, nil
	}
	stmt = `SELECT id, ts_rank(ts, plainto_tsquery(to_regconfig($2), $1)) AS score,
                     left(text, 120) AS snippet, text, metadata
            FROM documents
            WHERE ts @@ plainto_tsquery(to_regconfig($2), $1)
              AND metadata @> $3
              AND id LIKE 'chunk:%'
            ORDER BY score DESC
            LIMIT $4`
	return run(stmt, q, lang, f, limit)
}

func (p *pgSearch) GetByID(ctx context.Context, id string) (SearchResult, bool, error) {
	row := p.pool.QueryRow(ctx, `SELECT id, text, metadata FROM documents WHERE id=$1`, id)
	var r SearchResult
	var md map[string]string
	if err := row.Scan(&r.ID, &r.Text, &md); err != nil {
		if strings.Contains(err.Error(), "no rows") {
			return SearchResult{}, false, nil
		}
		return SearchResult{}, false, err
	}
	r.Metadata = md
	return r, true, nil
}

// SnippetForID returns a ts_headline-highlighted snippet for id, preferring
// the chunks table for "chunk:"-prefixed ids when one exists, showing the
// query terms in context within the document's text.
func (p *pgSearch) SnippetForID(ctx context.Context, id, lang, query string) (string, bool, error) {
	useChunks, _ := p.HasChunksTable(ctx)
	stmt := `SELECT ts_headline(to_regconfig($2), text, websearch_to_tsquery(to_regconfig($2), $3)) FROM documents WHERE id=$1`
	if useChunks && strings.HasPrefix(id, "chunk:") {
		stmt = `SELECT ts_headline(to_regconfig($2), text, websearch_to_tsquery(to_regconfig($2), $3)) FROM chunks WHERE id=$1`
	}
	var snip string
	if err := p.pool.QueryRow(ctx, stmt, id, lang, query).Scan(&snip); err != nil {
		if strings.Contains(err.Error(), "no rows") {
			return "", false, nil
		}
		return "", false, err
	}
	return snip, true, nil
}

// HasChunksTable reports whether this schema has a dedicated "chunks" table,
// the capability SearchChunks and SnippetForID branch on.
func (p *pgSearch) HasChunksTable(ctx context.Context) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx, `
SELECT EXISTS (
  SELECT 1 FROM information_schema.tables
  WHERE table_schema = current_schema()
    AND table_name = 'chunks'
)
`).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// UpsertChunk writes a TextChunk row into the dedicated chunks table
// (id TEXT PK, doc_id TEXT, idx INT, text TEXT, metadata JSONB, lang
// regconfig), letting SearchChunks rank by language-specific tsvector
// instead of the 'simple' config documents uses.
func (p *pgSearch) UpsertChunk(ctx context.Context, chunkID, docID string, idx int, text string, metadata map[string]string, lang string) error {
	md := mapToJSON(metadata)
	_, err := p.pool.Exec(ctx, `
INSERT INTO chunks(id, doc_id, idx, text, metadata, lang)
VALUES($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE SET text=EXCLUDED.text, metadata=EXCLUDED.metadata, lang=EXCLUDED.lang
`, chunkID, docID, idx, text, md, lang)
	return err
}

// mapToJSON ensures we never write a SQL NULL into documents.metadata /
// chunks.metadata's NOT NULL JSONB column when a caller passes nil.
func mapToJSON(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
