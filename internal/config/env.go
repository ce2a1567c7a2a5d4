package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// ProviderModels defines the model pair for a provider.
type ProviderModels struct {
	Primary   string
	Secondary string
}

// ProvidersConfig defines grading engines and models per provider.
type ProvidersConfig struct {
	PrimaryEngine   string // "openai"|"anthropic"
	SecondaryEngine string // "anthropic"|"openai"
	OpenAI          ProviderModels
	Anthropic       ProviderModels
}

// PlacementConfig holds the annotation layout constants, in points.
type PlacementConfig struct {
	Gap             float64
	Margin          float64
	FontSize        float64
	CharWidthFactor float64
	LineLeading     float64
	Padding         float64
	MaxRetries      int
}

// RenderConfig controls how marked documents are rasterized.
type RenderConfig struct {
	DPI      int
	FontPath string
}

// WorkerConfig defines worker behavior and limits.
type WorkerConfig struct {
	Concurrency        int
	RequestTimeout     time.Duration
	JobTotalTimeout    time.Duration
	JobMaxAttempts     int
	RetryBaseDelay     time.Duration
	RateLimitRetries   int
	RateLimitWait      time.Duration
	MaxInflight        int
	BreakerBaseBackoff time.Duration
	BreakerMaxBackoff  time.Duration
}

// QueueConfig defines queue connectivity and names.
type QueueConfig struct {
	RedisURL     string
	Stream       string
	Group        string
	PollInterval time.Duration
}

// S3Config defines optional S3 submission fetch/store settings.
type S3Config struct {
	Bucket        string
	Region        string
	Prefix        string
	EncryptionKey string // base64 key for AES-GCM payload decryption, optional
}

// HTTPConfig defines listen address and upload limits.
type HTTPConfig struct {
	Addr            string
	MaxUploadSizeMB int
}

// StorageConfig defines local working directories.
type StorageConfig struct {
	WorkDir   string
	ResultDir string
	KeepHours int
}

// Config is the top-level configuration.
type Config struct {
	Logging   LoggingConfig
	Axiom     AxiomConfig
	Providers ProvidersConfig
	Placement PlacementConfig
	Render    RenderConfig
	Worker    WorkerConfig
	Queue     QueueConfig
	S3        S3Config
	HTTP      HTTPConfig
	Storage   StorageConfig
	MaxScore  float64 // default per-question maximum when the key has none
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/exammarker.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_exammarker",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Providers = ProvidersConfig{
		PrimaryEngine:   getEnv("PRIMARY_ENGINE", "openai"),
		SecondaryEngine: getEnv("SECONDARY_ENGINE", "anthropic"),
		OpenAI: ProviderModels{
			Primary:   getEnv("OPENAI_PRIMARY_MODEL", "gpt-4.1"),
			Secondary: getEnv("OPENAI_SECONDARY_MODEL", "gpt-4o"),
		},
		Anthropic: ProviderModels{
			Primary:   getEnv("ANTHROPIC_PRIMARY_MODEL", "claude-3-5-sonnet"),
			Secondary: getEnv("ANTHROPIC_SECONDARY_MODEL", "claude-3-opus"),
		},
	}

	cfg.Placement = PlacementConfig{
		Gap:             parseFloat(getEnv("PLACEMENT_GAP", "10"), 10),
		Margin:          parseFloat(getEnv("PLACEMENT_MARGIN", "30"), 30),
		FontSize:        parseFloat(getEnv("ANNOTATION_FONT_SIZE", "11"), 11),
		CharWidthFactor: parseFloat(getEnv("CHAR_WIDTH_FACTOR", "0.5"), 0.5),
		LineLeading:     parseFloat(getEnv("LINE_LEADING", "4"), 4),
		Padding:         parseFloat(getEnv("PLACEMENT_PADDING", "5"), 5),
		MaxRetries:      parseInt(getEnv("PLACEMENT_MAX_RETRIES", "3"), 3),
	}

	cfg.Render = RenderConfig{
		DPI:      parseInt(getEnv("RENDER_DPI", "150"), 150),
		FontPath: getEnv("ANNOTATION_FONT_PATH", ""),
	}

	cfg.Worker = WorkerConfig{
		Concurrency:        parseInt(getEnv("WORKER_CONCURRENCY", "4"), 4),
		RequestTimeout:     parseDuration(getEnv("REQUEST_TIMEOUT", "60s"), 60*time.Second),
		JobTotalTimeout:    parseDuration(getEnv("JOB_TOTAL_TIMEOUT", "10m"), 10*time.Minute),
		JobMaxAttempts:     parseInt(getEnv("JOB_MAX_ATTEMPTS", "3"), 3),
		RetryBaseDelay:     parseDuration(getEnv("RETRY_BASE_DELAY", "2s"), 2*time.Second),
		RateLimitRetries:   parseInt(getEnv("RATE_LIMIT_RETRIES", "4"), 4),
		RateLimitWait:      parseDuration(getEnv("RATE_LIMIT_WAIT", "2s"), 2*time.Second),
		MaxInflight:        parseInt(getEnv("AI_MAX_INFLIGHT", "0"), 0),
		BreakerBaseBackoff: parseDuration(getEnv("BREAKER_BASE_BACKOFF", "30s"), 30*time.Second),
		BreakerMaxBackoff:  parseDuration(getEnv("BREAKER_MAX_BACKOFF", "5m"), 5*time.Minute),
	}

	cfg.Queue = QueueConfig{
		RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379"),
		Stream:       getEnv("QUEUE_STREAM", "jobs:grading"),
		Group:        getEnv("QUEUE_GROUP", "workers:grading"),
		PollInterval: parseDuration(getEnv("QUEUE_POLL_INTERVAL", "100ms"), 100*time.Millisecond),
	}

	cfg.S3 = S3Config{
		Bucket:        getEnv("S3_BUCKET", ""),
		Region:        getEnv("AWS_REGION", "us-east-1"),
		Prefix:        getEnv("S3_PREFIX", "submissions/"),
		EncryptionKey: getEnv("S3_ENCRYPTION_KEY", ""),
	}

	cfg.HTTP = HTTPConfig{
		Addr:            getEnv("HTTP_ADDR", ":8080"),
		MaxUploadSizeMB: parseInt(getEnv("MAX_UPLOAD_SIZE_MB", "50"), 50),
	}

	cfg.Storage = StorageConfig{
		WorkDir:   getEnv("WORK_DIR", "data/work"),
		ResultDir: getEnv("RESULT_DIR", "data/results"),
		KeepHours: parseInt(getEnv("RESULT_KEEP_HOURS", "48"), 48),
	}

	cfg.MaxScore = parseFloat(getEnv("DEFAULT_MAX_SCORE", "10"), 10)

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
