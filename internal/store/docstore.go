package store

import (
	"context"
	"encoding/json"
	"fmt"

	"noema/internal/apperr"
	"noema/internal/model"
)

// recordEnvelope is the JSON shape every record is stored as, regardless of
// backend: the typed payload plus the created_at/updated_at the StoredObject
// contract promises every record carries.
type recordEnvelope struct {
	Payload   json.RawMessage `json:"payload"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
}

// Get retrieves one record by table and id, decoding it into T. The bool is
// false (with a nil error) when no such record exists.
func Get[T model.StoredObject](ctx context.Context, s *Store, table, id string) (T, bool, error) {
	var zero T
	raw, ok, err := s.getRaw(ctx, table, id)
	if err != nil || !ok {
		return zero, ok, err
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, false, apperr.Wrap(apperr.Fatal, "decode record", err)
	}
	return out, true, nil
}

// Create inserts a new record. If the id already exists the stored record is
// left unchanged and no error is returned (use Replace to overwrite).
func Create[T model.StoredObject](ctx context.Context, s *Store, obj T) error {
	raw, err := json.Marshal(obj)
	if err != nil {
		return apperr.Wrap(apperr.Fatal, "encode record", err)
	}
	if err := s.createRaw(ctx, obj.TableName(), obj.GetID(), raw); err != nil {
		return err
	}
	s.publish(Event{Kind: EventCreated, Table: obj.TableName(), ID: obj.GetID()})
	return nil
}

// Replace overwrites a record's payload wholesale, creating it if absent.
func Replace[T model.StoredObject](ctx context.Context, s *Store, obj T) error {
	raw, err := json.Marshal(obj)
	if err != nil {
		return apperr.Wrap(apperr.Fatal, "encode record", err)
	}
	if err := s.replaceRaw(ctx, obj.TableName(), obj.GetID(), raw); err != nil {
		return err
	}
	s.publish(Event{Kind: EventUpdated, Table: obj.TableName(), ID: obj.GetID()})
	return nil
}

// Patch applies a flat field-replace patch to an existing record. Keys are
// top-level JSON field names; nothing in this repo's record types needs
// deeper pointer paths.
func Patch(ctx context.Context, s *Store, table, id string, fields map[string]any) error {
	raw, ok, err := s.getRaw(ctx, table, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New(apperr.NotFound, fmt.Sprintf("%s/%s", table, id))
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return apperr.Wrap(apperr.Fatal, "decode record for patch", err)
	}
	for k, v := range fields {
		doc[k] = v
	}
	patched, err := json.Marshal(doc)
	if err != nil {
		return apperr.Wrap(apperr.Fatal, "encode patched record", err)
	}
	if err := s.replaceRaw(ctx, table, id, patched); err != nil {
		return err
	}
	s.publish(Event{Kind: EventUpdated, Table: table, ID: id})
	return nil
}

// Delete removes a record by table and id. Deleting an absent record is not
// an error.
func Delete(ctx context.Context, s *Store, table, id string) error {
	if err := s.deleteRaw(ctx, table, id); err != nil {
		return err
	}
	s.publish(Event{Kind: EventDeleted, Table: table, ID: id})
	return nil
}

// Select streams every record in table, decoded into T, over a channel the
// caller ranges over until it's closed. A record that fails to decode into T
// is skipped without an error; the stream ends early only when ctx is
// cancelled.
func Select[T model.StoredObject](ctx context.Context, s *Store, table string) (<-chan T, error) {
	raws, err := s.selectRaw(ctx, table)
	if err != nil {
		return nil, err
	}
	out := make(chan T)
	go func() {
		defer close(out)
		for _, raw := range raws {
			var v T
			if err := json.Unmarshal(raw, &v); err != nil {
				continue
			}
			select {
			case out <- v:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// SelectAll is Select's non-streaming convenience form, used by call sites
// that need the whole table in memory anyway (categories, cascade deletes).
func SelectAll[T model.StoredObject](ctx context.Context, s *Store, table string) ([]T, error) {
	ch, err := Select[T](ctx, s, table)
	if err != nil {
		return nil, err
	}
	var out []T
	for v := range ch {
		out = append(out, v)
	}
	return out, nil
}

// Query runs a parameterized query against the underlying Postgres records
// table (or an in-memory predicate scan when running memory-backed).
// Bindings are referenced in the query by @name placeholders; see
// docstore_postgres.go / docstore_memory.go for the two implementations.
func Query(ctx context.Context, s *Store, queryStr string, bindings map[string]any) ([]map[string]any, error) {
	return s.query(ctx, queryStr, bindings)
}
