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

// Config holds the semdex service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Search    SearchConfig    `yaml:"search"`
	Storage   StorageConfig   `yaml:"storage"`
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

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey        string `yaml:"api_key"`
	BaseURL       string `yaml:"base_url"`
	Model         string `yaml:"model"`
	Dimensions    int    `yaml:"dimensions"`
	MaxInputChars int    `yaml:"max_input_chars"`
	MaxAttempts   int    `yaml:"max_attempts"`
	// BatchesPerSecond throttles successive provider calls during ingestion.
	// 0 disables the limiter.
	BatchesPerSecond float64 `yaml:"batches_per_second"`
}

// IngestConfig holds chunking and batching settings.
type IngestConfig struct {
	ChunkSize    int `yaml:"chunk_size"`    // words per chunk
	ChunkOverlap int `yaml:"chunk_overlap"` // words shared between neighbors
	BatchSize    int `yaml:"batch_size"`    // chunk texts per provider call
}

// SearchConfig holds similarity search settings.
type SearchConfig struct {
	// MaxScan caps the number of stored vectors one query scans. This is a
	// scalability cap on the exhaustive scan, not a semantic guarantee.
	MaxScan          int     `yaml:"max_scan"`
	DefaultLimit     int     `yaml:"default_limit"`
	DefaultThreshold float64 `yaml:"default_threshold"`
	AuditLogSize     int     `yaml:"audit_log_size"` // 0 disables the audit log
	QueryCacheSize   int     `yaml:"query_cache_size"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
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
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Embedding.MaxInputChars <= 0 {
		c.Embedding.MaxInputChars = 8000
	}
	if c.Embedding.MaxAttempts <= 0 {
		c.Embedding.MaxAttempts = 3
	}
	if c.Ingest.ChunkSize <= 0 {
		c.Ingest.ChunkSize = 500
	}
	if c.Ingest.ChunkOverlap <= 0 && c.Ingest.ChunkSize > 50 {
		c.Ingest.ChunkOverlap = 50
	}
	if c.Ingest.BatchSize <= 0 {
		c.Ingest.BatchSize = 20
	}
	if c.Search.MaxScan <= 0 {
		c.Search.MaxScan = 10000
	}
	if c.Search.DefaultLimit <= 0 {
		c.Search.DefaultLimit = 10
	}
	if c.Search.QueryCacheSize <= 0 {
		c.Search.QueryCacheSize = 512
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "semdex:"
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
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}
	if c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("ingest.chunk_overlap %d must be less than ingest.chunk_size %d",
			c.Ingest.ChunkOverlap, c.Ingest.ChunkSize)
	}
	if c.Search.DefaultThreshold < -1 || c.Search.DefaultThreshold > 1 {
		return fmt.Errorf("search.default_threshold must be within [-1, 1], got %g",
			c.Search.DefaultThreshold)
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
