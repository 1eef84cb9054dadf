package rerank

import (
	"context"
	"fmt"
	"net/url"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"noema/internal/apperr"
	"noema/internal/config"
)

// Pool is a fixed-size set of reranker engines guarded by a counting
// semaphore. Acquire blocks until a permit and an engine are both available,
// bounding the number of concurrent reranker requests to PoolSize regardless
// of how many retrieval goroutines call in.
type Pool struct {
	engines []*engine
	sem     *semaphore.Weighted
	next    atomic.Uint64
}

// New builds a pool from cfg, or fails startup. A PoolSize under 1 is a
// configuration error, not a request for a default — the loader fills in
// min(GOMAXPROCS, 2) when RERANKER_POOL_SIZE is unset, so a zero here means
// the operator explicitly asked for a pool that can serve nothing. Host
// URLs are validated here too, so a malformed reranker endpoint aborts
// startup instead of failing every rerank call at runtime.
func New(cfg config.RerankConfig) (*Pool, error) {
	if cfg.PoolSize < 1 {
		return nil, fmt.Errorf("reranker pool size must be at least 1, got %d", cfg.PoolSize)
	}
	hosts := cfg.Hosts
	if len(hosts) == 0 {
		hosts = []string{"http://localhost:8012"}
	}
	for _, h := range hosts {
		u, err := url.Parse(h)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("invalid reranker host %q", h)
		}
	}
	return &Pool{
		engines: buildEngines(hosts, cfg.Model, cfg.TimeoutSecs, cfg.PoolSize),
		sem:     semaphore.NewWeighted(int64(cfg.PoolSize)),
	}, nil
}

// Lease is one checked-out engine plus the permit backing it. Callers must
// call Release exactly once.
type Lease struct {
	pool   *Pool
	engine *engine
}

// Acquire blocks until an engine slot is free or ctx is done.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, apperr.Wrap(apperr.Transient, "acquire reranker slot", err)
	}
	idx := p.next.Add(1) - 1
	eng := p.engines[int(idx)%len(p.engines)]
	return &Lease{pool: p, engine: eng}, nil
}

// Rerank scores docs against query using the lease's engine.
func (l *Lease) Rerank(ctx context.Context, query string, docs []string) ([]Score, error) {
	return l.engine.rerank(ctx, query, docs)
}

// Release returns the lease's permit to the pool. Safe to call once; a
// second call would over-release the semaphore, so callers should defer it
// immediately after a successful Acquire.
func (l *Lease) Release() {
	l.pool.sem.Release(1)
}

// Rerank is the convenience path for a single call: acquire, score, release.
// Callers issuing many reranks in a row should hold their own Lease instead
// to avoid repeated semaphore churn.
func (p *Pool) Rerank(ctx context.Context, query string, docs []string) ([]Score, error) {
	lease, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer lease.Release()
	return lease.Rerank(ctx, query, docs)
}
