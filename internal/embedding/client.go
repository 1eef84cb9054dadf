// Package embedding is a thin client for an OpenAI-compatible /embeddings
// endpoint. One POST, one JSON decode; the endpoint's batch semantics do the
// rest, so there is no SDK dependency here.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"noema/internal/config"
)

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// EmbedText returns one embedding per input string, in input order. The
// endpoint is expected to be dimension-stable; when cfg.Dimensions is set,
// any vector of a different length fails the whole batch rather than
// letting a mis-sized embedding reach the vector index.
func EmbedText(ctx context.Context, cfg config.EmbeddingConfig, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("embedding: empty input batch")
	}

	body, err := json.Marshal(embeddingsRequest{Model: cfg.Model, Input: inputs})
	if err != nil {
		return nil, fmt.Errorf("embedding: encode request: %w", err)
	}

	timeout := 30 * time.Second
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, cfg.BaseURL+cfg.Path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	authorize(req, cfg)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("embedding: read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("embedding: %s: %s", resp.Status, trimForError(payload))
	}

	var decoded embeddingsResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("embedding: parse response %s: %w", trimForError(payload), err)
	}
	if got := len(decoded.Data); got != len(inputs) {
		return nil, fmt.Errorf("embedding: got %d vectors for %d inputs", got, len(inputs))
	}

	out := make([][]float32, len(decoded.Data))
	for i, d := range decoded.Data {
		if cfg.Dimensions > 0 && len(d.Embedding) != cfg.Dimensions {
			return nil, fmt.Errorf("embedding: vector %d has %d dimensions, want %d", i, len(d.Embedding), cfg.Dimensions)
		}
		out[i] = d.Embedding
	}
	return out, nil
}

// authorize sets the configured auth headers. Explicit Headers win over the
// single-header APIHeader/APIKey form, letting a deployment send e.g. an
// x-api-key alongside a Bearer Authorization.
func authorize(req *http.Request, cfg config.EmbeddingConfig) {
	if cfg.APIKey != "" {
		switch cfg.APIHeader {
		case "", "Authorization":
			req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
		default:
			req.Header.Set(cfg.APIHeader, cfg.APIKey)
		}
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
}

// CheckReachability embeds a single short string to verify the endpoint is
// up and the credentials work, for startup and readiness probing.
func CheckReachability(ctx context.Context, cfg config.EmbeddingConfig) error {
	if _, err := EmbedText(ctx, cfg, []string{"ping"}); err != nil {
		return fmt.Errorf("embedding endpoint unreachable: %w", err)
	}
	return nil
}

func trimForError(b []byte) string {
	const keep = 200
	if len(b) > keep {
		b = b[:keep]
	}
	return string(b)
}
