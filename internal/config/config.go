package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the resmatch service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Ranking   RankingConfig   `yaml:"ranking"`
	Explain   ExplainConfig   `yaml:"explain"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Feedback  FeedbackConfig  `yaml:"feedback"`
	Learning  LearningConfig  `yaml:"learning"`
	Storage   StorageConfig   `yaml:"storage"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds valkey connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig configures the upstream embeddings endpoint used when a
// query arrives with text but no vector. An empty BaseURL disables it.
type EmbeddingConfig struct {
	APIKey      string `yaml:"api_key"`
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	Instruction string `yaml:"query_instruction"`
	TimeoutMs   int    `yaml:"timeout_ms"`
	CacheTTLSec int    `yaml:"cache_ttl_sec"`
}

// Enabled reports whether an upstream embedder is configured.
func (e EmbeddingConfig) Enabled() bool { return e.BaseURL != "" }

// IndexConfig holds vector index settings.
type IndexConfig struct {
	Dimensions        int     `yaml:"dimensions"`
	HNSWM             int     `yaml:"hnsw_m"`
	HNSWEFConstruct   int     `yaml:"hnsw_ef_construction"`
	Mode              string  `yaml:"mode"` // auto, ann, exact
	MaxTopK           int     `yaml:"max_top_k"`
	Overfetch         int     `yaml:"overfetch"`
	ANNMinResources   int     `yaml:"ann_min_resources"`
	RecallSampleEvery int     `yaml:"recall_sample_every"`
	RecallThreshold   float64 `yaml:"recall_threshold"`
	RecallTarget      float64 `yaml:"recall_target"`
	BreakerFailures   uint32  `yaml:"breaker_failures"`
	BreakerTimeoutSec int     `yaml:"breaker_timeout_sec"`
}

// RankingConfig holds ranking settings.
type RankingConfig struct {
	GeoHalfLifeMiles float64 `yaml:"geo_half_life_miles"`
}

// ExplainConfig holds explanation settings.
type ExplainConfig struct {
	MinContribution float64 `yaml:"min_contribution"`
}

// PipelineConfig holds request pipeline settings.
type PipelineConfig struct {
	DeadlineMs         int      `yaml:"deadline_ms"`
	DefaultTopK        int      `yaml:"default_top_k"`
	MinSimilarity      float64  `yaml:"min_similarity"`
	MinConfidence      float64  `yaml:"min_confidence"`
	SupportedLanguages []string `yaml:"supported_languages"`
	TraceTTLHours      int      `yaml:"trace_ttl_hours"`
}

// FeedbackConfig holds feedback intake settings.
type FeedbackConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	MaxCommentLength  int `yaml:"max_comment_length"`
}

// LearningConfig holds learning cycle settings.
type LearningConfig struct {
	Enabled            bool    `yaml:"enabled"`
	Schedule           string  `yaml:"schedule"`
	EmbeddingSchedule  string  `yaml:"embedding_schedule"`
	MinSamples         int     `yaml:"min_samples"`
	SmoothingFactor    float64 `yaml:"smoothing_factor"`
	BatchSize          int     `yaml:"batch_size"`
	LearningRate       float64 `yaml:"learning_rate"`
	MaxDisplacement    float64 `yaml:"max_displacement"`
	WritesPerSecond    float64 `yaml:"writes_per_second"`
	EmbeddingWorkers   int     `yaml:"embedding_workers"`
	EmbeddingLookbackH int     `yaml:"embedding_lookback_hours"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// TracingConfig holds OpenTelemetry settings. An empty Endpoint keeps spans in-process.
type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes raw YAML, expanding ${VAR} references, then applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
//
//nolint:gocyclo // flat list of defaults
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Embedding.TimeoutMs <= 0 {
		c.Embedding.TimeoutMs = 800
	}
	if c.Embedding.CacheTTLSec <= 0 {
		c.Embedding.CacheTTLSec = 86400
	}

	if c.Index.Dimensions <= 0 {
		c.Index.Dimensions = 1024
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 32
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 400
	}
	if c.Index.Mode == "" {
		c.Index.Mode = "auto"
	}
	if c.Index.MaxTopK <= 0 {
		c.Index.MaxTopK = 200
	}
	if c.Index.Overfetch <= 0 {
		c.Index.Overfetch = 2
	}
	if c.Index.ANNMinResources <= 0 {
		c.Index.ANNMinResources = 5000
	}
	if c.Index.RecallSampleEvery <= 0 {
		c.Index.RecallSampleEvery = 100
	}
	if c.Index.RecallThreshold == 0 {
		c.Index.RecallThreshold = 0.5
	}
	if c.Index.RecallTarget <= 0 {
		c.Index.RecallTarget = 0.95
	}
	if c.Index.BreakerFailures == 0 {
		c.Index.BreakerFailures = 5
	}
	if c.Index.BreakerTimeoutSec <= 0 {
		c.Index.BreakerTimeoutSec = 30
	}

	if c.Ranking.GeoHalfLifeMiles <= 0 {
		c.Ranking.GeoHalfLifeMiles = 10
	}
	if c.Explain.MinContribution <= 0 {
		c.Explain.MinContribution = 0.1
	}

	if c.Pipeline.DeadlineMs <= 0 {
		c.Pipeline.DeadlineMs = 3000
	}
	if c.Pipeline.DefaultTopK <= 0 {
		c.Pipeline.DefaultTopK = 10
	}
	if c.Pipeline.MinSimilarity == 0 {
		c.Pipeline.MinSimilarity = 0.05
	}
	if c.Pipeline.MinConfidence == 0 {
		c.Pipeline.MinConfidence = 0.3
	}
	if len(c.Pipeline.SupportedLanguages) == 0 {
		c.Pipeline.SupportedLanguages = []string{"en", "es", "zh", "vi", "ko", "tl"}
	}
	if c.Pipeline.TraceTTLHours <= 0 {
		c.Pipeline.TraceTTLHours = 24 * 30
	}

	if c.Feedback.RequestsPerMinute <= 0 {
		c.Feedback.RequestsPerMinute = 30
	}
	if c.Feedback.MaxCommentLength <= 0 {
		c.Feedback.MaxCommentLength = 2000
	}

	if c.Learning.Schedule == "" {
		c.Learning.Schedule = "@every 15m"
	}
	if c.Learning.EmbeddingSchedule == "" {
		c.Learning.EmbeddingSchedule = "0 3 * * *"
	}
	if c.Learning.MinSamples <= 0 {
		c.Learning.MinSamples = 5
	}
	if c.Learning.SmoothingFactor <= 0 {
		c.Learning.SmoothingFactor = 0.3
	}
	if c.Learning.BatchSize <= 0 {
		c.Learning.BatchSize = 1000
	}
	if c.Learning.LearningRate <= 0 {
		c.Learning.LearningRate = 0.01
	}
	if c.Learning.MaxDisplacement <= 0 {
		c.Learning.MaxDisplacement = 0.05
	}
	if c.Learning.WritesPerSecond <= 0 {
		c.Learning.WritesPerSecond = 50
	}
	if c.Learning.EmbeddingWorkers <= 0 {
		c.Learning.EmbeddingWorkers = 4
	}
	if c.Learning.EmbeddingLookbackH <= 0 {
		c.Learning.EmbeddingLookbackH = 24 * 7
	}

	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "resmatch:"
	}
	if c.Tracing.SampleRatio <= 0 {
		c.Tracing.SampleRatio = 0.1
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	switch c.Index.Mode {
	case "auto", "ann", "exact":
	default:
		return fmt.Errorf("index.mode must be \"auto\", \"ann\" or \"exact\", got %q", c.Index.Mode)
	}
	if c.Index.MaxTopK > 200 {
		return fmt.Errorf("index.max_top_k must not exceed 200, got %d", c.Index.MaxTopK)
	}
	if c.Index.RecallTarget > 1 {
		return fmt.Errorf("index.recall_target must be in (0,1], got %v", c.Index.RecallTarget)
	}
	if c.Learning.SmoothingFactor > 1 {
		return fmt.Errorf("learning.smoothing_factor must be in (0,1], got %v", c.Learning.SmoothingFactor)
	}
	if c.Pipeline.DefaultTopK > c.Index.MaxTopK {
		return fmt.Errorf("pipeline.default_top_k %d exceeds index.max_top_k %d",
			c.Pipeline.DefaultTopK, c.Index.MaxTopK)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
