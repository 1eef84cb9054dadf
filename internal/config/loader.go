package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Load reads configuration from environment variables, with an optional
// .env file loaded first via godotenv.Overload so repo-local development
// configuration deterministically wins over a stale shell environment.
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{}

	cfg.HTTPAddr = firstNonEmpty(env("HTTP_ADDR"), ":8080")
	cfg.DataDir = firstNonEmpty(env("DATA_DIR"), "./data")
	cfg.LogPath = env("LOG_PATH")
	cfg.LogLevel = firstNonEmpty(env("LOG_LEVEL"), "info")

	cfg.DB = DBConfig{
		DefaultDSN: env("STORE_DSN"),
		Search: DBBackendConfig{
			Backend: firstNonEmpty(env("STORE_SEARCH_BACKEND"), "auto"),
			DSN:     env("STORE_SEARCH_DSN"),
		},
		Vector: DBBackendConfig{
			Backend:    firstNonEmpty(env("STORE_VECTOR_BACKEND"), "auto"),
			DSN:        env("STORE_VECTOR_DSN"),
			Dimensions: envInt("EMBEDDING_DIMENSIONS", 1536),
			Metric:     firstNonEmpty(env("STORE_VECTOR_METRIC"), "cosine"),
		},
		Graph: DBBackendConfig{
			Backend: firstNonEmpty(env("STORE_GRAPH_BACKEND"), "auto"),
			DSN:     env("STORE_GRAPH_DSN"),
		},
	}

	cfg.Embedding = EmbeddingConfig{
		BaseURL:    firstNonEmpty(env("EMBEDDING_BASE_URL"), "https://api.openai.com/v1"),
		Path:       firstNonEmpty(env("EMBEDDING_PATH"), "/embeddings"),
		Model:      firstNonEmpty(env("EMBEDDING_MODEL"), "text-embedding-3-small"),
		APIHeader:  firstNonEmpty(env("EMBEDDING_API_HEADER"), "Authorization"),
		APIKey:     env("EMBEDDING_API_KEY"),
		Headers:    envHeaders("EMBEDDING_EXTRA_HEADERS"),
		Timeout:    envInt("EMBEDDING_TIMEOUT_SECONDS", 30),
		Dimensions: envInt("EMBEDDING_DIMENSIONS", 1536),
	}

	cfg.Chat = ChatConfig{
		Provider: firstNonEmpty(env("CHAT_PROVIDER"), "openai"),
		BaseURL:  env("CHAT_BASE_URL"),
		APIKey:   firstNonEmpty(env("CHAT_API_KEY"), env("OPENAI_API_KEY"), env("ANTHROPIC_API_KEY")),
		Model:    firstNonEmpty(env("CHAT_MODEL"), "gpt-4o-mini"),
		Timeout:  envInt("CHAT_TIMEOUT_SECONDS", 120),
	}

	cfg.Rerank = RerankConfig{
		// The default is resolved here, not downstream: an explicit
		// RERANKER_POOL_SIZE=0 reaches rerank.New as 0 and fails startup
		// rather than being silently replaced.
		PoolSize:    envInt("RERANKER_POOL_SIZE", defaultRerankerPoolSize()),
		Hosts:       envList("RERANKER_HOSTS", firstNonEmpty(env("RERANKER_HOST"), "http://localhost:8012")),
		Model:       firstNonEmpty(env("RERANKER_MODEL"), "bge-reranker-v2-m3"),
		TimeoutSecs: envInt("RERANKER_TIMEOUT_SECONDS", 30),
	}

	cfg.Retrieval = RetrievalTuning{
		EntityVectorTake:        envInt("RETRIEVAL_ENTITY_VECTOR_TAKE", 15),
		ChunkVectorTake:         envInt("RETRIEVAL_CHUNK_VECTOR_TAKE", 20),
		EntityFTSTake:           envInt("RETRIEVAL_ENTITY_FTS_TAKE", 10),
		ChunkFTSTake:            envInt("RETRIEVAL_CHUNK_FTS_TAKE", 20),
		GraphSeedMinScore:       envFloat("RETRIEVAL_GRAPH_SEED_MIN_SCORE", 0.4),
		GraphTraversalSeedLimit: envInt("RETRIEVAL_GRAPH_SEED_LIMIT", 5),
		GraphNeighborLimit:      envInt("RETRIEVAL_GRAPH_NEIGHBOR_LIMIT", 6),
		GraphVectorInheritance:  envFloat("RETRIEVAL_GRAPH_VECTOR_INHERITANCE", 0.6),
		GraphScoreDecay:         envFloat("RETRIEVAL_GRAPH_SCORE_DECAY", 0.75),
		ScoreThreshold:          envFloat("RETRIEVAL_SCORE_THRESHOLD", 0.35),
		RerankKeepTop:           envInt("RETRIEVAL_RERANK_KEEP_TOP", 8),
		RerankBlend:             envFloat("RETRIEVAL_RERANK_BLEND", 0.65),
		RerankScoresOnly:        envBool("RETRIEVAL_RERANK_SCORES_ONLY", false),
		TokenBudgetEstimate:     envInt("RETRIEVAL_TOKEN_BUDGET_ESTIMATE", 10000),
		AvgCharsPerToken:        envInt("RETRIEVAL_AVG_CHARS_PER_TOKEN", 4),
		MaxChunksPerEntity:      envInt("RETRIEVAL_MAX_CHUNKS_PER_ENTITY", 4),
		WeightVector:            envFloat("RETRIEVAL_WEIGHT_VECTOR", 0.5),
		WeightFTS:               envFloat("RETRIEVAL_WEIGHT_FTS", 0.3),
		WeightGraph:             envFloat("RETRIEVAL_WEIGHT_GRAPH", 0.2),
		MultiSignalBonus:        envFloat("RETRIEVAL_MULTI_SIGNAL_BONUS", 0.02),
		RetrievalDeadlineSecs:   envInt("RETRIEVAL_DEADLINE_SECONDS", 30),
	}

	cfg.Ingest = IngestLimits{
		MaxFiles:         envInt("INGEST_MAX_FILES", 10),
		MaxContentBytes:  envInt64("INGEST_MAX_CONTENT_BYTES", 1<<20),
		MaxContextBytes:  envInt64("INGEST_MAX_CONTEXT_BYTES", 8<<10),
		MaxCategoryBytes: envInt64("INGEST_MAX_CATEGORY_BYTES", 256),
		MaxBodyBytes:     envInt64("INGEST_MAX_BODY_BYTES", 1<<30),
	}

	cfg.IngestTuning = IngestionTuning{
		ChunkMinTokens:         envInt("CHUNK_MIN_TOKENS", 256),
		ChunkMaxTokens:         envInt("CHUNK_MAX_TOKENS", 512),
		ChunkOverlapTokens:     envInt("CHUNK_OVERLAP_TOKENS", 50),
		EntityEmbedConcurrency: envInt("ENTITY_EMBED_CONCURRENCY", 4),
		ChunkEmbedConcurrency:  envInt("CHUNK_EMBED_CONCURRENCY", 8),
		MaxAttempts:            envInt("INGEST_MAX_ATTEMPTS", 3),
		RetryBaseDelaySecs:     envInt("INGEST_RETRY_BASE_DELAY_SECONDS", 30),
		RetryMaxDelaySecs:      envInt("INGEST_RETRY_MAX_DELAY_SECONDS", 15*60),
		RetryExponentCap:       envInt("INGEST_RETRY_EXPONENT_CAP", 5),
		StageDeadlineSecs:      envInt("INGEST_STAGE_DEADLINE_SECONDS", 10*60),
		WorkerConcurrency:      envInt("INGEST_WORKER_CONCURRENCY", 4),
	}

	cfg.Extract = ExtractConfig{
		FetchTimeoutSecs: envInt("EXTRACT_FETCH_TIMEOUT_SECONDS", 20),
		FetchMaxBytes:    envInt64("EXTRACT_FETCH_MAX_BYTES", 8<<20),
		UserAgent:        env("EXTRACT_USER_AGENT"),
		WhisperModelPath: env("WHISPER_MODEL_PATH"),
	}

	cfg.Obs = ObsConfig{
		OTLP:           env("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ServiceName:    firstNonEmpty(env("OTEL_SERVICE_NAME"), "noemad"),
		ServiceVersion: firstNonEmpty(env("OTEL_SERVICE_VERSION"), "dev"),
		Environment:    firstNonEmpty(env("APP_ENV"), "development"),
	}

	cfg.ObjectStoreBackend = firstNonEmpty(env("OBJECTSTORE_BACKEND"), "local")
	cfg.S3 = S3Config{
		Bucket:                env("S3_BUCKET"),
		Region:                firstNonEmpty(env("S3_REGION"), "us-east-1"),
		Endpoint:              env("S3_ENDPOINT"),
		AccessKey:             env("S3_ACCESS_KEY"),
		SecretKey:             env("S3_SECRET_KEY"),
		Prefix:                env("S3_PREFIX"),
		UsePathStyle:          envBool("S3_USE_PATH_STYLE", false),
		TLSInsecureSkipVerify: envBool("S3_TLS_INSECURE_SKIP_VERIFY", false),
		SSE: S3SSEConfig{
			Mode:     env("S3_SSE_MODE"),
			KMSKeyID: env("S3_SSE_KMS_KEY_ID"),
		},
	}

	return cfg, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// defaultRerankerPoolSize is min(available parallelism, 2), minimum 1: each
// pool slot keeps one reranker request in flight, and past two the external
// model server is the bottleneck, not this process.
func defaultRerankerPoolSize() int {
	n := runtime.GOMAXPROCS(0)
	if n > 2 {
		n = 2
	}
	if n < 1 {
		n = 1
	}
	return n
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func envInt(key string, def int) int {
	v := env(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := env(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := env(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := env(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// envHeaders parses a "Key1=Value1,Key2=Value2" env var into a header map.
func envHeaders(key string) map[string]string {
	v := env(key)
	if v == "" {
		return nil
	}
	out := map[string]string{}
	for _, pair := range strings.Split(v, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, val, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(val)
	}
	return out
}

// envList parses a comma-separated env var into a trimmed string slice,
// falling back to a single-element slice of def when unset.
func envList(key, def string) []string {
	v := env(key)
	if v == "" {
		v = def
	}
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
