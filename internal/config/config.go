// Package config loads noemad's runtime configuration from the process
// environment (and an optional .env file): plain env vars with typed
// defaults, no flags/viper stack.
package config

// DBBackendConfig selects and configures one of the three pluggable store
// backends (full-text search, vector, graph).
type DBBackendConfig struct {
	Backend    string // "memory" | "postgres" | "auto" | "none"
	DSN        string
	Table      string // vector backend only; defaults to "embeddings"
	Dimensions int
	Metric     string // cosine|l2|ip, vector backend only
}

// DBConfig configures the internal/store/backend backends plus the document
// store's own Postgres pool.
type DBConfig struct {
	DefaultDSN string
	Search     DBBackendConfig
	Vector     DBBackendConfig
	Graph      DBBackendConfig
}

// EmbeddingConfig configures the embedding provider HTTP client.
type EmbeddingConfig struct {
	BaseURL    string
	Path       string
	Model      string
	APIHeader  string // legacy single-header auth, e.g. "Authorization" or "x-api-key"
	APIKey     string
	Headers    map[string]string // arbitrary static headers, take precedence over APIHeader/APIKey
	Timeout    int                // seconds
	Dimensions int
}

// ChatConfig configures the chat completion provider.
type ChatConfig struct {
	Provider string // "openai" | "anthropic"
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  int // seconds
}

// RerankConfig configures the reranker pool: a fixed set of cross-encoder
// engines, each speaking the llama.cpp-style /v1/rerank HTTP contract.
type RerankConfig struct {
	PoolSize    int
	Hosts       []string
	Model       string
	TimeoutSecs int
}

// RetrievalTuning carries every numeric knob of the retrieval pipeline, so
// they are adjustable per deployment without a code change.
type RetrievalTuning struct {
	EntityVectorTake       int
	ChunkVectorTake        int
	EntityFTSTake          int
	ChunkFTSTake           int
	GraphSeedMinScore      float64
	GraphTraversalSeedLimit int
	GraphNeighborLimit     int
	GraphVectorInheritance float64
	GraphScoreDecay        float64
	ScoreThreshold         float64
	RerankKeepTop          int
	RerankBlend            float64
	RerankScoresOnly       bool
	TokenBudgetEstimate    int
	AvgCharsPerToken       int
	MaxChunksPerEntity     int
	WeightVector           float64
	WeightFTS              float64
	WeightGraph            float64
	MultiSignalBonus       float64
	RetrievalDeadlineSecs  int
}

// IngestLimits carries the configurable ingress size caps.
type IngestLimits struct {
	MaxFiles         int
	MaxContentBytes  int64
	MaxContextBytes  int64
	MaxCategoryBytes int64
	MaxBodyBytes     int64
}

// ExtractConfig configures the text extraction bindings: URL fetch
// limits and the local whisper.cpp model used for audio transcription.
type ExtractConfig struct {
	FetchTimeoutSecs int
	FetchMaxBytes    int64
	UserAgent        string
	WhisperModelPath string // empty => fall back to the chat provider's Transcriber
}

// IngestionTuning carries the ingestion chunker and retry-policy constants.
type IngestionTuning struct {
	ChunkMinTokens       int
	ChunkMaxTokens       int
	ChunkOverlapTokens   int
	EntityEmbedConcurrency int
	ChunkEmbedConcurrency  int
	MaxAttempts          int
	RetryBaseDelaySecs   int
	RetryMaxDelaySecs    int
	RetryExponentCap     int
	StageDeadlineSecs    int
	WorkerConcurrency    int // bounded concurrency across tasks in one worker process
}

// ObsConfig configures internal/observability.InitOTel.
type ObsConfig struct {
	OTLP           string
	ServiceName    string
	ServiceVersion string
	Environment    string
}

// S3SSEConfig configures server-side encryption for the S3 object store.
type S3SSEConfig struct {
	Mode     string // "", "sse-s3", "sse-kms"
	KMSKeyID string
}

// S3Config configures the S3-compatible object store backend.
type S3Config struct {
	Bucket                string
	Region                string
	Endpoint              string
	AccessKey             string
	SecretKey             string
	Prefix                string
	UsePathStyle          bool
	TLSInsecureSkipVerify bool
	SSE                   S3SSEConfig
}

// Config is the fully resolved process configuration, read once at startup.
type Config struct {
	HTTPAddr    string
	DataDir     string
	LogPath     string
	LogLevel    string

	DB          DBConfig
	Embedding   EmbeddingConfig
	Chat        ChatConfig
	Rerank      RerankConfig
	Retrieval   RetrievalTuning
	Ingest      IngestLimits
	IngestTuning IngestionTuning
	Extract     ExtractConfig
	Obs         ObsConfig

	ObjectStoreBackend string // "local" | "s3"
	S3                 S3Config
}
