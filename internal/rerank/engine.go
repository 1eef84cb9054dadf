// Package rerank implements a bounded pool of cross-encoder reranker
// engines, each speaking the llama.cpp-style /v1/rerank HTTP contract.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"noema/internal/apperr"
)

// Score pairs a document's original index with its relevance score.
type Score struct {
	Index int
	Score float64
}

// rerankRequest is the /v1/rerank request body.
type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	TopN      int      `json:"top_n"`
	Documents []string `json:"documents"`
}

// rerankResponse is the /v1/rerank response body.
type rerankResponse struct {
	Model   string `json:"model"`
	Object  string `json:"object"`
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// engine owns one HTTP connection to a reranker host. The reranker server
// processes one request at a time per model instance, so callers must
// hold mu for the duration of a call rather than share an engine across
// concurrent requests.
type engine struct {
	host   string
	model  string
	client *http.Client
	mu     sync.Mutex
}

func newEngine(host, model string, timeout time.Duration) *engine {
	return &engine{
		host:   host,
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

// rerank scores docs against query, sorted by descending relevance. It locks
// the engine for its full duration: one in-flight request per engine.
func (e *engine) rerank(ctx context.Context, query string, docs []string) ([]Score, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	body, err := json.Marshal(rerankRequest{
		Model:     e.model,
		Query:     query,
		TopN:      len(docs),
		Documents: docs,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Fatal, "marshal rerank request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.host+"/v1/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Wrap(apperr.Fatal, "build rerank request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, "rerank request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.New(apperr.Transient, fmt.Sprintf("reranker %s returned status %d", e.host, resp.StatusCode))
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperr.Wrap(apperr.Transient, "decode rerank response", err)
	}

	scores := make([]Score, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		scores = append(scores, Score{Index: r.Index, Score: r.RelevanceScore})
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	return scores, nil
}

// buildEngines distributes size engines round-robin across the validated
// hosts New hands it.
func buildEngines(hosts []string, model string, timeoutSecs, size int) []*engine {
	timeout := time.Duration(timeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	engines := make([]*engine, size)
	for i := range engines {
		engines[i] = newEngine(hosts[i%len(hosts)], model, timeout)
	}
	return engines
}
