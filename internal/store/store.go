// Package store implements the typed document/graph/vector/full-text store.
// It composes internal/store/backend's pluggable full-text, vector, and
// graph backends with its own generic JSON document table (Postgres) or
// in-memory map, and adds multi-hop graph traversal, live change
// subscriptions, and migrations on top (backend.GraphDB.Neighbors is
// single-hop only).
package store

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"noema/internal/config"
	"noema/internal/store/backend"
)

// graphRelAny is the catch-all edge label every relationship is additionally
// upserted under, so graph_neighbors can BFS across all relationship types
// without the caller enumerating them. The specific relationship_type is
// preserved in the edge's props and in the relationships document table.
const graphRelAny = "any"

// Event is one live_subscribe notification.
type EventKind string

const (
	EventCreated EventKind = "Created"
	EventUpdated EventKind = "Updated"
	EventDeleted EventKind = "Deleted"
)

type Event struct {
	Kind  EventKind
	Table string
	ID    string
}

// Store is the persistence root. Callers go through the generic
// Get/Create/Replace/Patch/Delete/Select/Query functions in docstore.go, or
// the typed convenience wrappers in records.go.
type Store struct {
	pool *pgxpool.Pool // nil when running entirely in-memory
	mem  *memoryDocs   // nil when pool is set

	entityVec backend.VectorStore
	chunkVec  backend.VectorStore
	search    backend.FullTextSearch
	graph     backend.GraphDB

	mu        sync.Mutex
	listeners map[string][]chan Event // table -> subscribers, memory backend only
}

// New constructs a Store from configuration. When cfg.DB.DefaultDSN (or the
// per-backend DSNs) are empty, every component falls back to an in-memory
// implementation so the service is runnable without Postgres for tests and
// local development.
func New(ctx context.Context, cfg config.Config) (*Store, error) {
	s := &Store{listeners: make(map[string][]chan Event)}

	dsn := firstNonEmpty(cfg.DB.DefaultDSN, cfg.DB.Vector.DSN, cfg.DB.Search.DSN, cfg.DB.Graph.DSN)
	usePostgres := dsn != "" && cfg.DB.Vector.Backend != "memory" && cfg.DB.Vector.Backend != "none"

	if usePostgres {
		pool, err := backend.OpenPool(ctx, dsn)
		if err != nil {
			return nil, err
		}
		s.pool = pool
		dims := cfg.DB.Vector.Dimensions
		metric := firstNonEmpty(cfg.DB.Vector.Metric, "cosine")
		s.entityVec = backend.NewPostgresVector(pool, "entity_embeddings", dims, metric)
		s.chunkVec = backend.NewPostgresVector(pool, "chunk_embeddings", dims, metric)
		s.search = backend.NewPostgresSearch(pool)
		s.graph = backend.NewPostgresGraph(pool)
	} else {
		s.mem = newMemoryDocs()
		s.entityVec = backend.NewMemoryVector()
		s.chunkVec = backend.NewMemoryVector()
		s.search = backend.NewMemorySearch()
		s.graph = backend.NewMemoryGraph()
	}

	if err := s.ApplyMigrations(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection pool, if any.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// IsMemory reports whether the store is running without Postgres.
func (s *Store) IsMemory() bool { return s.pool == nil }

// ApplyMigrations idempotently creates the schema and indexes this store
// needs. Safe to call on every startup.
func (s *Store) ApplyMigrations(ctx context.Context) error {
	if s.pool == nil {
		return nil // memory backend has no schema
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS records (
			table_name TEXT NOT NULL,
			id         TEXT NOT NULL,
			payload    JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (table_name, id)
		)`,
		`CREATE INDEX IF NOT EXISTS records_table_idx ON records(table_name)`,
		`CREATE INDEX IF NOT EXISTS records_table_created_idx ON records(table_name, created_at)`,
		// Trigger-based NOTIFY for the ingestion task queue's live_subscribe.
		`CREATE OR REPLACE FUNCTION noema_notify_record() RETURNS trigger AS $$
		BEGIN
			IF TG_OP = 'DELETE' THEN
				PERFORM pg_notify('noema_' || OLD.table_name, 'deleted:' || OLD.id);
				RETURN OLD;
			ELSIF TG_OP = 'INSERT' THEN
				PERFORM pg_notify('noema_' || NEW.table_name, 'created:' || NEW.id);
				RETURN NEW;
			ELSE
				PERFORM pg_notify('noema_' || NEW.table_name, 'updated:' || NEW.id);
				RETURN NEW;
			END IF;
		END;
		$$ LANGUAGE plpgsql`,
		`DROP TRIGGER IF EXISTS records_notify ON records`,
		`CREATE TRIGGER records_notify AFTER INSERT OR UPDATE OR DELETE ON records
			FOR EACH ROW EXECUTE FUNCTION noema_notify_record()`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func nowUTC() time.Time { return time.Now().UTC() }
