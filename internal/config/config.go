package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"weft"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"weft"`

	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	Neo4jURI      string `envconfig:"NEO4J_URI" default:"neo4j://localhost:7687"`
	Neo4jUser     string `envconfig:"NEO4J_USER" default:"neo4j"`
	Neo4jPassword string `envconfig:"NEO4J_PASSWORD" default:"password"`

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP   string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`

	GeminiAPIKey   string `envconfig:"GEMINI_API_KEY"`
	EmbeddingModel string `envconfig:"EMBEDDING_MODEL" default:"gemini-embedding-001"`

	// Answer model. Provider is one of googleai, openai, anthropic;
	// googleai reuses GEMINI_API_KEY.
	LLMProvider     string `envconfig:"LLM_PROVIDER" default:"googleai"`
	LLMModel        string `envconfig:"LLM_MODEL" default:"gemini-2.0-flash"`
	OpenAIAPIKey    string `envconfig:"OPENAI_API_KEY"`
	AnthropicAPIKey string `envconfig:"ANTHROPIC_API_KEY"`

	// Sync pipeline tuning. Operational knobs, not invariants.
	SchedulerTick      time.Duration `envconfig:"SCHEDULER_TICK" default:"1m"`
	SyncLease          time.Duration `envconfig:"SYNC_LEASE" default:"30m"`
	SyncConcurrency    int           `envconfig:"SYNC_CONCURRENCY" default:"4"`
	ChunkSize          int           `envconfig:"CHUNK_SIZE" default:"100"`
	ChunkRetryAttempts int           `envconfig:"CHUNK_RETRY_ATTEMPTS" default:"5"`
	ChunkRetryBase     time.Duration `envconfig:"CHUNK_RETRY_BASE" default:"500ms"`
	ExternalTimeout    time.Duration `envconfig:"EXTERNAL_TIMEOUT" default:"60s"`

	// Retrieval tuning.
	RetrievalTopK  int `envconfig:"RETRIEVAL_TOP_K" default:"5"`
	GraphHopDepth  int `envconfig:"GRAPH_HOP_DEPTH" default:"2"`
	ChatHistoryMax int `envconfig:"CHAT_HISTORY_MAX" default:"20"`

	// Chat cache entries expire this long after the most recent write.
	ChatCacheTTL time.Duration `envconfig:"CHAT_CACHE_TTL" default:"24h"`

	ServerPort    int    `envconfig:"SERVER_PORT" default:"8081"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Env vars may be set in the shell instead; ignore a missing .env.
	_ = godotenv.Load(".env")

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: CHUNK_SIZE must be positive", ErrMissingRequired)
	}
	if c.SyncConcurrency <= 0 {
		return fmt.Errorf("%w: SYNC_CONCURRENCY must be positive", ErrMissingRequired)
	}
	if c.RetrievalTopK <= 0 {
		return fmt.Errorf("%w: RETRIEVAL_TOP_K must be positive", ErrMissingRequired)
	}
	return nil
}
