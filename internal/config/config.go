package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalidSetting  = errors.New("invalid configuration value")
)

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"sowflow"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"sowflow"`

	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`

	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	// Object storage. BucketName has no default on purpose: a stage that
	// does not know where documents live must not start.
	ObjectStoreRoot string `envconfig:"OBJECT_STORE_ROOT" default:"./data/objects"`
	BucketName      string `envconfig:"BUCKET_NAME"`

	GeminiAPIKey   string `envconfig:"GEMINI_API_KEY"`
	ExtractModelID string `envconfig:"EXTRACT_MODEL_ID" default:"gemini-2.5-flash"`
	EmbedModelID   string `envconfig:"EMBED_MODEL_ID" default:"gemini-embedding-001"`

	ChunkSize            int     `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap         int     `envconfig:"CHUNK_OVERLAP" default:"200"`
	EmbedMinSuccessRatio float64 `envconfig:"EMBED_SUCCESS_MIN_RATIO" default:"0.95"`
	SchemaVersion        string  `envconfig:"SCHEMA_VERSION" default:"v1"`

	ExtractMaxAttempts int `envconfig:"EXTRACT_MAX_ATTEMPTS" default:"3"`
	EmbedMaxAttempts   int `envconfig:"EMBED_MAX_ATTEMPTS" default:"5"`
	RetryBaseDelayMS   int `envconfig:"RETRY_BASE_DELAY_MS" default:"1000"`
	MaxMsgAttempts     int `envconfig:"MAX_MSG_ATTEMPTS" default:"5"`
	StageTimeoutSec    int `envconfig:"STAGE_TIMEOUT_SECONDS" default:"120"`

	// Server
	ServerPort      int    `envconfig:"SERVER_PORT" default:"8081"`
	MaxUploadSizeMB int64  `envconfig:"MAX_UPLOAD_SIZE_MB" default:"50"`
	MigrationPath   string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Env vars may be set in the shell; a missing .env is not an error.
	_ = godotenv.Load(".env")

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate fails fast at startup. A bad chunk configuration or a missing
// bucket fails identically on every redelivery, so it must never reach the
// queue loop.
func (c *Config) Validate() error {
	if c.BucketName == "" {
		return fmt.Errorf("%w: BUCKET_NAME", ErrMissingRequired)
	}
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY", ErrMissingRequired)
	}
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: CHUNK_SIZE(%d) must be > 0", ErrInvalidSetting, c.ChunkSize)
	}
	if c.ChunkOverlap <= 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: CHUNK_OVERLAP(%d) must be > 0 and < CHUNK_SIZE(%d)",
			ErrInvalidSetting, c.ChunkOverlap, c.ChunkSize)
	}
	if c.EmbedMinSuccessRatio <= 0 || c.EmbedMinSuccessRatio > 1 {
		return fmt.Errorf("%w: EMBED_SUCCESS_MIN_RATIO(%v) must be in (0,1]",
			ErrInvalidSetting, c.EmbedMinSuccessRatio)
	}
	return nil
}

func (c *Config) StageTimeout() time.Duration {
	return time.Duration(c.StageTimeoutSec) * time.Second
}

func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMS) * time.Millisecond
}
