// Package config loads docgraph's process configuration from a YAML file,
// layered with environment variable overrides, following the same
// viper-bind-then-unmarshal convention the rest of the configuration
// ecosystem in this codebase uses.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all process configuration for docgraph.
type Config struct {
	Store      StoreConfig      `mapstructure:"store" yaml:"store"`
	Resolver   ResolverConfig   `mapstructure:"resolver" yaml:"resolver"`
	Classifier ClassifierConfig `mapstructure:"classifier" yaml:"classifier"`
	Generator  GeneratorConfig  `mapstructure:"generator" yaml:"generator"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	PathSafety PathSafetyConfig `mapstructure:"path_safety" yaml:"path_safety"`
}

// StoreConfig controls the embedded relational store.
type StoreConfig struct {
	// DataDir holds the SQLite database file and its WAL/journal companions.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`
	// BusyTimeoutMs is the SQLite busy_timeout in milliseconds.
	BusyTimeoutMs int `mapstructure:"busy_timeout_ms" yaml:"busy_timeout_ms"`
	// EmbeddingDim is the configured vector width. Validate requires it to
	// be positive; the store does not check stored vectors against it.
	EmbeddingDim int `mapstructure:"embedding_dim" yaml:"embedding_dim"`
}

// ResolverConfig controls entity resolution defaults.
type ResolverConfig struct {
	// DefaultMode is the resolution mode build_graph uses when the caller
	// omits one: "exact", "fuzzy", or "ai".
	DefaultMode string `mapstructure:"default_mode" yaml:"default_mode"`
	// FuzzyThreshold is the minimum token-set Jaccard similarity for a
	// fuzzy merge (inclusive).
	FuzzyThreshold float64 `mapstructure:"fuzzy_threshold" yaml:"fuzzy_threshold"`
	// ClusterHintBoost is added to the similarity score when both
	// entities' documents share a cluster classification tag.
	ClusterHintBoost float64 `mapstructure:"cluster_hint_boost" yaml:"cluster_hint_boost"`
	// AIMergeConfidence is the minimum generative-classifier confidence
	// accepted as a merge.
	AIMergeConfidence float64 `mapstructure:"ai_merge_confidence" yaml:"ai_merge_confidence"`
	// MaxCooccurrenceEntities is validated here but not read by the edge
	// builder, which caps its O(n^2) pair sweep with its own fixed constant
	// (200).
	MaxCooccurrenceEntities int `mapstructure:"max_cooccurrence_entities" yaml:"max_cooccurrence_entities"`
}

// ClassifierConfig describes the relationship classifier's generative
// stage. The classifier does not read these fields: it uses its own fixed
// constants instead (batches of 20 edges, at most 50 edges a run, 5
// snippets, 1500/500 characters).
type ClassifierConfig struct {
	// BatchSize is the preferred batch size for generative classification.
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size"`
	// MaxBatchSize is the hard cap on a single generative batch.
	MaxBatchSize int `mapstructure:"max_batch_size" yaml:"max_batch_size"`
	// MaxContextSnippets is the max number of evidence snippets gathered
	// per edge before prompting the generator.
	MaxContextSnippets int `mapstructure:"max_context_snippets" yaml:"max_context_snippets"`
	// ChunkSnippetChars / MentionSnippetChars cap the two context sources.
	ChunkSnippetChars   int `mapstructure:"chunk_snippet_chars" yaml:"chunk_snippet_chars"`
	MentionSnippetChars int `mapstructure:"mention_snippet_chars" yaml:"mention_snippet_chars"`
}

// GeneratorConfig controls the generative classifier/resolver collaborator.
type GeneratorConfig struct {
	// Model is the model name passed to the Generator implementation.
	Model string `mapstructure:"model" yaml:"model"`
	// APIKey authenticates the Generator's backing service.
	APIKey string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	// Timeout is a per-call time budget for the generator. No code reads it:
	// a generator call is bounded only by the caller's context.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// MaxRetries is the number of retry attempts after the first call,
	// each with exponential backoff capped at 2x doublings.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
}

// LoggingConfig describes zerolog's output. The CLI does not read it: its
// log level comes from --verbose and its output goes to stderr.
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// PathSafetyConfig restricts caller-supplied filesystem paths.
type PathSafetyConfig struct {
	// AllowedDirs is the allow-list of base directories resolved paths
	// must fall under.
	AllowedDirs []string `mapstructure:"allowed_dirs" yaml:"allowed_dirs"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".docgraph")

	return &Config{
		Store: StoreConfig{
			DataDir:       dataDir,
			BusyTimeoutMs: 30000,
			EmbeddingDim:  1536,
		},
		Resolver: ResolverConfig{
			DefaultMode:             "fuzzy",
			FuzzyThreshold:          0.85,
			ClusterHintBoost:        0.05,
			AIMergeConfidence:       0.8,
			MaxCooccurrenceEntities: 200,
		},
		Classifier: ClassifierConfig{
			BatchSize:           20,
			MaxBatchSize:        50,
			MaxContextSnippets:  5,
			ChunkSnippetChars:   1500,
			MentionSnippetChars: 500,
		},
		Generator: GeneratorConfig{
			Model:      "claude-sonnet-4-5",
			Timeout:    30 * time.Second,
			MaxRetries: 2,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join(dataDir, "logs", "docgraph.log"),
		},
		PathSafety: PathSafetyConfig{
			AllowedDirs: []string{dataDir},
		},
	}
}

// Load reads configuration from the default location (~/.docgraph/config.yaml).
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home directory: %w", err)
	}
	return LoadFromPath(filepath.Join(homeDir, ".docgraph", "config.yaml"))
}

// LoadFromPath reads configuration from a specific file path and merges
// DOCGRAPH_-prefixed environment variable overrides. If the file doesn't
// exist, a default one is written first.
func LoadFromPath(path string) (*Config, error) {
	path = expandPath(path)

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("create config directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeConfigFile(path, Default()); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("DOCGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Store.DataDir = expandPath(cfg.Store.DataDir)
	cfg.Logging.File = expandPath(cfg.Logging.File)
	for i, dir := range cfg.PathSafety.AllowedDirs {
		cfg.PathSafety.AllowedDirs[i] = expandPath(dir)
	}

	return &cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Store.DataDir == "" {
		return fmt.Errorf("store.data_dir cannot be empty")
	}
	if c.Store.BusyTimeoutMs <= 0 {
		return fmt.Errorf("store.busy_timeout_ms must be positive")
	}
	if c.Store.EmbeddingDim <= 0 {
		return fmt.Errorf("store.embedding_dim must be positive")
	}

	validModes := map[string]bool{"exact": true, "fuzzy": true, "ai": true}
	if !validModes[c.Resolver.DefaultMode] {
		return fmt.Errorf("invalid resolver.default_mode %q, must be one of: exact, fuzzy, ai", c.Resolver.DefaultMode)
	}
	if c.Resolver.FuzzyThreshold < 0 || c.Resolver.FuzzyThreshold > 1 {
		return fmt.Errorf("resolver.fuzzy_threshold must be in [0,1]")
	}
	if c.Resolver.MaxCooccurrenceEntities <= 0 {
		return fmt.Errorf("resolver.max_cooccurrence_entities must be positive")
	}

	if c.Classifier.MaxBatchSize <= 0 || c.Classifier.BatchSize > c.Classifier.MaxBatchSize {
		return fmt.Errorf("classifier.batch_size must be positive and not exceed max_batch_size")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level %q, must be one of: debug, info, warn, error", c.Logging.Level)
	}

	return nil
}

// EnsureDirectories creates the data, log, and path-safety directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Store.DataDir, filepath.Dir(c.Logging.File)}
	dirs = append(dirs, c.PathSafety.AllowedDirs...)
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func writeConfigFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[1:])
	}
	return path
}
