// Package config loads memory-engine configuration the way the teacher's
// aider package loads agent configuration: an optional YAML file for
// static defaults, validated after load, with environment variables
// providing the contractual overrides named in spec.md §6.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EvictionPolicy selects the Capacity Manager's victim-selection strategy.
type EvictionPolicy string

const (
	EvictionLRU               EvictionPolicy = "LRU"
	EvictionRelevanceWeighted EvictionPolicy = "RelevanceWeighted"
)

// StorageConfig controls where the two tiers persist data.
type StorageConfig struct {
	DataDir      string `yaml:"data_dir"`
	PrimaryFile  string `yaml:"primary_file"`
	CacheDir     string `yaml:"cache_dir"`
	PrimaryPool  int    `yaml:"primary_pool"`
	SyncInterval int    `yaml:"sync_interval_seconds"`
}

// EmbeddingConfig configures the pluggable embedding capability. A zero
// value (Provider == "") disables semantic features and forces the
// keyword-overlap fallback throughout retrieval and summarization.
type EmbeddingConfig struct {
	Provider            string  `yaml:"provider"`
	Model               string  `yaml:"model"`
	Dimension           int     `yaml:"dimension"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	BatchSize           int     `yaml:"batch_size"`
	BaseURL             string  `yaml:"base_url"`
}

// Config is the root configuration for the memory engine.
type Config struct {
	Storage       StorageConfig    `yaml:"storage"`
	Embedding     EmbeddingConfig  `yaml:"embedding"`
	MaxEpisodes   *int             `yaml:"max_episodes"` // nil = unbounded
	Eviction      EvictionPolicy   `yaml:"eviction_policy"`
	Summarize     bool             `yaml:"enable_summarization"`
	QualityThresh float64          `yaml:"quality_threshold"`
	NATSPort      int              `yaml:"nats_port"`
	HTTPPort      int              `yaml:"http_port"`
}

// Default returns sensible defaults, mirroring spec.md §5/§6 defaults.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir:      "data",
			PrimaryFile:  "primary.db",
			CacheDir:     "cache",
			PrimaryPool:  10,
			SyncInterval: 300, // 5 minutes, per §4.5
		},
		Embedding:     EmbeddingConfig{},
		MaxEpisodes:   nil,
		Eviction:      EvictionRelevanceWeighted,
		Summarize:     true,
		QualityThresh: 0.7,
		NATSPort:      4225,
		HTTPPort:      8085,
	}
}

// Load reads an optional YAML file, applies defaults for anything it
// omits, then layers environment variable overrides on top, and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config YAML: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv("MEMORY_MAX_EPISODES"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxEpisodes = &n
		}
	}
	if v, ok := os.LookupEnv("MEMORY_EVICTION_POLICY"); ok {
		switch strings.ToUpper(v) {
		case "LRU":
			c.Eviction = EvictionLRU
		case "RELEVANCEWEIGHTED":
			c.Eviction = EvictionRelevanceWeighted
		}
	}
	if v, ok := os.LookupEnv("MEMORY_ENABLE_SUMMARIZATION"); ok {
		c.Summarize = strings.EqualFold(v, "true")
	}
	if v, ok := os.LookupEnv("MEMORY_QUALITY_THRESHOLD"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.QualityThresh = f
		}
	}
	if v, ok := os.LookupEnv("EMBEDDING_PROVIDER"); ok {
		c.Embedding.Provider = v
	}
	if v, ok := os.LookupEnv("EMBEDDING_MODEL"); ok {
		c.Embedding.Model = v
	}
	if v, ok := os.LookupEnv("EMBEDDING_DIMENSION"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Embedding.Dimension = n
		}
	}
	if v, ok := os.LookupEnv("EMBEDDING_SIMILARITY_THRESHOLD"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Embedding.SimilarityThreshold = f
		}
	}
	if v, ok := os.LookupEnv("EMBEDDING_BATCH_SIZE"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Embedding.BatchSize = n
		}
	}
}

// Validate checks invariants the engine depends on.
func (c *Config) Validate() error {
	if c.MaxEpisodes != nil && *c.MaxEpisodes < 0 {
		return fmt.Errorf("max_episodes must be >= 0, got %d", *c.MaxEpisodes)
	}
	if c.Eviction != EvictionLRU && c.Eviction != EvictionRelevanceWeighted {
		return fmt.Errorf("invalid eviction policy: %s", c.Eviction)
	}
	if c.QualityThresh < 0 || c.QualityThresh > 1 {
		return fmt.Errorf("quality_threshold must be in [0,1], got %f", c.QualityThresh)
	}
	if c.Storage.PrimaryPool <= 0 {
		return fmt.Errorf("primary_pool must be > 0")
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http port: %d", c.HTTPPort)
	}
	if c.NATSPort <= 0 || c.NATSPort > 65535 {
		return fmt.Errorf("invalid nats port: %d", c.NATSPort)
	}
	return nil
}

// EmbeddingEnabled reports whether semantic features are configured.
func (e EmbeddingConfig) EmbeddingEnabled() bool {
	return e.Provider != ""
}
