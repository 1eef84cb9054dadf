package store

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"noema/internal/apperr"
)

// memoryDocs is the in-memory stand-in for the Postgres records table, used
// when no store DSN is configured (tests, local dev without a database).
type memoryDocs struct {
	mu      sync.RWMutex
	tables  map[string]map[string]json.RawMessage
	order   map[string][]string // table -> ids in insertion order, for Select's created_at-asc contract
}

func newMemoryDocs() *memoryDocs {
	return &memoryDocs{
		tables: make(map[string]map[string]json.RawMessage),
		order:  make(map[string][]string),
	}
}

func (m *memoryDocs) ensure(table string) map[string]json.RawMessage {
	t, ok := m.tables[table]
	if !ok {
		t = make(map[string]json.RawMessage)
		m.tables[table] = t
	}
	return t
}

func (m *memoryDocs) get(table, id string) (json.RawMessage, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[table]
	if !ok {
		return nil, false, nil
	}
	raw, ok := t[id]
	return raw, ok, nil
}

func (m *memoryDocs) create(table, id string, raw json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.ensure(table)
	if _, exists := t[id]; exists {
		return nil // idempotent, matching Postgres's ON CONFLICT DO NOTHING
	}
	t[id] = raw
	m.order[table] = append(m.order[table], id)
	return nil
}

func (m *memoryDocs) replace(table, id string, raw json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.ensure(table)
	if _, exists := t[id]; !exists {
		m.order[table] = append(m.order[table], id)
	}
	t[id] = raw
	return nil
}

func (m *memoryDocs) delete(table, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tables[table]; ok {
		delete(t, id)
	}
	if ids, ok := m.order[table]; ok {
		out := ids[:0]
		for _, existing := range ids {
			if existing != id {
				out = append(out, existing)
			}
		}
		m.order[table] = out
	}
	return nil
}

func (m *memoryDocs) selectAll(table string) ([]json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t := m.tables[table]
	ids := append([]string(nil), m.order[table]...)
	out := make([]json.RawMessage, 0, len(ids))
	for _, id := range ids {
		if raw, ok := t[id]; ok {
			out = append(out, raw)
		}
	}
	return out, nil
}

// query is a minimal in-memory stand-in supporting exactly the shape this
// repo's own code generates: "SELECT * FROM <table> WHERE <field> = @name".
// It exists so unit tests can exercise Query-based call sites without a
// database; it is not a general SQL engine.
func (m *memoryDocs) query(queryStr string, bindings map[string]any) ([]map[string]any, error) {
	lower := strings.ToLower(queryStr)
	fromIdx := strings.Index(lower, "from ")
	if fromIdx < 0 {
		return nil, apperr.New(apperr.Validation, "unsupported query: missing FROM")
	}
	rest := strings.TrimSpace(queryStr[fromIdx+5:])
	table := strings.Fields(rest)[0]

	m.mu.RLock()
	t := m.tables[table]
	ids := append([]string(nil), m.order[table]...)
	m.mu.RUnlock()

	var out []map[string]any
	for _, id := range ids {
		raw, ok := t[id]
		if !ok {
			continue
		}
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			continue
		}
		if matchesWhere(lower, doc, bindings) {
			out = append(out, doc)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i]["id"].(string) < out[j]["id"].(string)
	})
	return out, nil
}

// matchesWhere applies every "@name" binding present in the query string as
// an equality filter against doc[name]. Fields not referenced in the query
// are ignored, and a query with no WHERE clause matches everything.
func matchesWhere(lowerQuery string, doc map[string]any, bindings map[string]any) bool {
	if !strings.Contains(lowerQuery, "where") {
		return true
	}
	for k, v := range bindings {
		needle := "@" + strings.ToLower(k)
		if !strings.Contains(lowerQuery, needle) {
			continue
		}
		dv, ok := doc[k]
		if !ok {
			return false
		}
		if toComparable(dv) != toComparable(v) {
			return false
		}
	}
	return true
}

func toComparable(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}
