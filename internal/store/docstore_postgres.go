package store

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/jackc/pgx/v5"

	"noema/internal/apperr"
)

func (s *Store) getRaw(ctx context.Context, table, id string) (json.RawMessage, bool, error) {
	if s.pool == nil {
		return s.mem.get(table, id)
	}
	var raw json.RawMessage
	err := s.pool.QueryRow(ctx, `SELECT payload FROM records WHERE table_name=$1 AND id=$2`, table, id).Scan(&raw)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, apperr.Wrap(apperr.Transient, "get record", err)
	}
	return raw, true, nil
}

func (s *Store) createRaw(ctx context.Context, table, id string, raw json.RawMessage) error {
	if s.pool == nil {
		return s.mem.create(table, id, raw)
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO records(table_name, id, payload, created_at, updated_at)
VALUES ($1, $2, $3, now(), now())
ON CONFLICT (table_name, id) DO NOTHING
`, table, id, raw)
	if err != nil {
		return apperr.Wrap(apperr.Transient, "create record", err)
	}
	return nil
}

func (s *Store) replaceRaw(ctx context.Context, table, id string, raw json.RawMessage) error {
	if s.pool == nil {
		return s.mem.replace(table, id, raw)
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO records(table_name, id, payload, created_at, updated_at)
VALUES ($1, $2, $3, now(), now())
ON CONFLICT (table_name, id) DO UPDATE SET payload=EXCLUDED.payload, updated_at=now()
`, table, id, raw)
	if err != nil {
		return apperr.Wrap(apperr.Transient, "replace record", err)
	}
	return nil
}

func (s *Store) deleteRaw(ctx context.Context, table, id string) error {
	if s.pool == nil {
		return s.mem.delete(table, id)
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM records WHERE table_name=$1 AND id=$2`, table, id)
	if err != nil {
		return apperr.Wrap(apperr.Transient, "delete record", err)
	}
	return nil
}

func (s *Store) selectRaw(ctx context.Context, table string) ([]json.RawMessage, error) {
	if s.pool == nil {
		return s.mem.selectAll(table)
	}
	rows, err := s.pool.Query(ctx, `SELECT payload FROM records WHERE table_name=$1 ORDER BY created_at ASC`, table)
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, "select records", err)
	}
	defer rows.Close()
	var out []json.RawMessage
	for rows.Next() {
		var raw json.RawMessage
		if err := rows.Scan(&raw); err != nil {
			return nil, apperr.Wrap(apperr.Transient, "scan record", err)
		}
		out = append(out, raw)
	}
	return out, rows.Err()
}

// query runs a parameterized SQL statement against the live Postgres
// connection using pgx.NamedArgs so bindings are referenced by @name
// placeholders; bindings are the only injection barrier, so callers never
// splice values into the query string. Column names are preserved verbatim.
func (s *Store) query(ctx context.Context, queryStr string, bindings map[string]any) ([]map[string]any, error) {
	if s.pool == nil {
		return s.mem.query(queryStr, bindings)
	}
	args := make(pgx.NamedArgs, len(bindings))
	for k, v := range bindings {
		args[k] = v
	}
	rows, err := s.pool.Query(ctx, queryStr, args)
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, "query", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.Clone(f.Name)
	}

	var out []map[string]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, apperr.Wrap(apperr.Transient, "scan query row", err)
		}
		row := make(map[string]any, len(names))
		for i, n := range names {
			if i < len(vals) {
				row[n] = vals[i]
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
