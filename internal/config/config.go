package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config is the persistent application configuration
type Config struct {
	// AI Models
	Models ModelConfig `json:"models"`

	// Embedding service
	Embedding EmbeddingConfig `json:"embedding"`

	// Pipeline tuning
	Pipeline PipelineConfig `json:"pipeline"`

	// Analysis cost limits
	Budget BudgetConfig `json:"budget"`

	// Decision rules are stored separately but referenced here
	RulesFile string `json:"rules_file,omitempty"`

	// Feed URLs to poll
	Feeds []string `json:"feeds,omitempty"`
}

// ModelConfig holds AI model settings
type ModelConfig struct {
	Claude ModelSettings `json:"claude"`
	OpenAI ModelSettings `json:"openai"`
	Ollama ModelSettings `json:"ollama"`
}

// ModelSettings for a single AI provider
type ModelSettings struct {
	Enabled  bool   `json:"enabled"`
	APIKey   string `json:"api_key,omitempty"`
	Endpoint string `json:"endpoint,omitempty"` // For Ollama or custom endpoints
	Model    string `json:"model,omitempty"`    // Specific model to use
	Priority int    `json:"priority"`           // Lower = higher priority for fallback
}

// EmbeddingConfig holds embedding service settings
type EmbeddingConfig struct {
	Endpoint string `json:"endpoint"`
	Model    string `json:"model"`
}

// PipelineConfig tunes clustering and cycle behavior
type PipelineConfig struct {
	// Cosine similarity at or above which an item joins a cluster
	// without review
	SimilarityAutoMatch float64 `json:"similarity_auto_match"`

	// Cosine similarity at or above which an item still joins, below
	// it starts a new cluster
	SimilarityCandidate float64 `json:"similarity_candidate"`

	// How far back to look for candidate clusters, in hours
	WindowHours int `json:"window_hours"`

	// At most this many recent clusters are compared per item
	CandidateLimit int `json:"candidate_limit"`

	// Clusters stop accepting members at this size
	MaxClusterSize int `json:"max_cluster_size"`

	// Items pulled per approval phase
	BatchSize int `json:"batch_size"`

	// When false every item starts its own cluster
	ClusteringEnabled bool `json:"clustering_enabled"`

	AutoPublish    bool `json:"auto_publish"`
	AutoDistribute bool `json:"auto_distribute"`

	// Minutes between scheduled cycles
	IntervalMinutes int `json:"interval_minutes"`
}

// BudgetConfig caps analysis spend per cycle
type BudgetConfig struct {
	MaxCalls       int `json:"max_calls"`
	MaxTokens      int `json:"max_tokens"`
	CallsPerMinute int `json:"calls_per_minute"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Models: ModelConfig{
			Claude: ModelSettings{
				Enabled:  true,
				Priority: 1,
				Model:    "claude-sonnet-4-5-20250929",
			},
			OpenAI: ModelSettings{
				Enabled:  false,
				Priority: 2,
				Model:    "gpt-5.2",
			},
			Ollama: ModelSettings{
				Enabled:  false,
				Priority: 3,
				Endpoint: "http://localhost:11434",
				// Model auto-detected from Ollama if not specified
			},
		},
		Embedding: EmbeddingConfig{
			Endpoint: "http://localhost:11434",
			Model:    "nomic-embed-text",
		},
		Pipeline: PipelineConfig{
			SimilarityAutoMatch: 0.85,
			SimilarityCandidate: 0.70,
			WindowHours:         24,
			CandidateLimit:      50,
			MaxClusterSize:      10,
			BatchSize:           10,
			ClusteringEnabled:   true,
			AutoPublish:         true,
			AutoDistribute:      false,
			IntervalMinutes:     15,
		},
		Budget: BudgetConfig{
			MaxCalls:       100,
			MaxTokens:      100000,
			CallsPerMinute: 20,
		},
	}
}

// ConfigPath returns the path to the config file
func ConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".signaldesk", "config.json")
}

// Load reads config from disk, or returns defaults
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads config from an explicit path, or returns defaults
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults and try to auto-populate from environment
			cfg := DefaultConfig()
			cfg.AutoPopulateFromEnv()
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return DefaultConfig(), nil
	}
	cfg.AutoPopulateFromEnv()

	return cfg, nil
}

// Save writes config to disk
func (c *Config) Save() error {
	path := ConfigPath()

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600) // Restrictive permissions for API keys
}

// AutoPopulateFromEnv fills in API keys from environment variables
func (c *Config) AutoPopulateFromEnv() {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && c.Models.Claude.APIKey == "" {
		c.Models.Claude.APIKey = key
		c.Models.Claude.Enabled = true
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && c.Models.OpenAI.APIKey == "" {
		c.Models.OpenAI.APIKey = key
	}
}

// GetEnabledModels returns models that are enabled and have API keys
func (c *Config) GetEnabledModels() []string {
	var models []string
	if c.Models.Claude.Enabled && c.Models.Claude.APIKey != "" {
		models = append(models, "claude")
	}
	if c.Models.OpenAI.Enabled && c.Models.OpenAI.APIKey != "" {
		models = append(models, "openai")
	}
	if c.Models.Ollama.Enabled {
		models = append(models, "ollama")
	}
	return models
}
