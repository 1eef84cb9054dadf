// Command noemad wires the store, embedding and chat providers, reranker
// pool, retrieval and ingestion pipelines, task queue, and object store into
// a single process: an HTTP API plus the background worker loop that drains
// and drives ingestion tasks.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"noema/internal/answer"
	"noema/internal/config"
	"noema/internal/embedding"
	"noema/internal/extract"
	"noema/internal/httpapi"
	"noema/internal/ingest"
	"noema/internal/llm"
	"noema/internal/llm/anthropic"
	"noema/internal/llm/openai"
	"noema/internal/objectstore"
	"noema/internal/observability"
	"noema/internal/queue"
	"noema/internal/rerank"
	"noema/internal/retrieval"
	"noema/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	if shutdown, err := observability.InitOTel(context.Background(), cfg.Obs); err != nil {
		log.Warn().Err(err).Msg("otel init failed, continuing without observability")
	} else {
		defer func() { _ = shutdown(context.Background()) }()
		observability.EnableOTelSink(cfg.Obs.ServiceName)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := store.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init store")
	}
	defer s.Close()

	objects, err := objectstore.Build(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init object store")
	}

	httpClient := observability.NewHTTPClient(nil)

	chatProvider, err := buildChatProvider(cfg.Chat, httpClient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init chat provider")
	}

	rerankPool, err := rerank.New(cfg.Rerank)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init reranker pool")
	}

	q := queue.New(s, cfg.IngestTuning.MaxAttempts)

	embedBatch := func(ctx context.Context, texts []string) ([][]float32, error) {
		return embedding.EmbedText(ctx, cfg.Embedding, texts)
	}
	embedOne := func(ctx context.Context, text string) ([]float32, error) {
		vecs, err := embedding.EmbedText(ctx, cfg.Embedding, []string{text})
		if err != nil {
			return nil, err
		}
		if len(vecs) == 0 {
			return nil, errors.New("embedding provider returned no vectors")
		}
		return vecs[0], nil
	}

	retrievalDeps := retrieval.Deps{
		Store:  s,
		Embed:  embedOne,
		Rerank: rerankPool,
		Tuning: cfg.Retrieval,
	}

	extractDeps := extract.Deps{
		Store:    s,
		Objects:  objects,
		Provider: chatProvider,
		Config:   cfg.Extract,
	}

	ingestDeps := ingest.Deps{
		Store:     s,
		Extract:   extractDeps,
		Provider:  chatProvider,
		Embed:     embedBatch,
		Retrieval: retrievalDeps,
		Tuning:    cfg.IngestTuning,
		Model:     cfg.Chat.Model,
	}

	answerDeps := answer.Deps{
		Store:    s,
		Provider: chatProvider,
		Model:    cfg.Chat.Model,
	}

	srv := httpapi.NewServer(s, objects, q, retrievalDeps, answerDeps, cfg.Ingest)
	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: srv}

	worker := ingest.NewWorker(ingestDeps, q)
	workerErr := make(chan error, 1)
	go func() {
		log.Info().Msg("ingestion worker draining unfinished tasks")
		workerErr <- worker.Run(ctx)
	}()

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("noemad listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown error")
	}

	select {
	case err := <-workerErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("worker stopped with error")
		}
	case <-time.After(5 * time.Second):
		log.Warn().Msg("worker did not stop within grace period")
	}
}

// buildChatProvider picks the chat binding. This switch lives here, at the
// composition root, so the provider packages stay importable from
// internal/llm without a cycle.
func buildChatProvider(cfg config.ChatConfig, httpClient *http.Client) (llm.Provider, error) {
	switch cfg.Provider {
	case "", "openai":
		return openai.New(cfg, httpClient), nil
	case "anthropic":
		return anthropic.New(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported chat provider: %s", cfg.Provider)
	}
}
