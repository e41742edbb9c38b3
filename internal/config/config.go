// Package config loads the YAML configuration file and resolves
// [VAR] environment tokens. Missing required variables fail fast at
// startup rather than mid-index.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/dshills/semindex-mcp/internal/splitter"
)

// DefaultFileName is the config file resolved in the invocation
// directory.
const DefaultFileName = "semindex.yaml"

// Config holds all configuration.
type Config struct {
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Storage   StorageConfig   `yaml:"storage"`
	Search    SearchConfig    `yaml:"search"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"` // "openai", "ollama", "mock"
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"` // supports [VAR] tokens
	BaseURL   string `yaml:"base_url"`
	Dimension int    `yaml:"dimension"`
	CacheSize int    `yaml:"cache_size"`
}

// IndexConfig controls chunking and walking.
type IndexConfig struct {
	Hybrid         bool     `yaml:"hybrid"`
	ContextName    string   `yaml:"context_name"`
	ChunkSize      int      `yaml:"chunk_size"`
	ChunkOverlap   int      `yaml:"chunk_overlap"`
	BatchSize      int      `yaml:"batch_size"`
	IgnorePatterns []string `yaml:"ignore_patterns"`
}

// StorageConfig locates persistent state.
type StorageConfig struct {
	Dir         string `yaml:"dir"`          // collection databases
	SnapshotDir string `yaml:"snapshot_dir"` // file snapshots
	Registry    string `yaml:"registry"`     // registry JSON file
}

// SearchConfig sets retrieval defaults.
type SearchConfig struct {
	TopK      int     `yaml:"top_k"`
	Threshold float64 `yaml:"threshold"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := filepath.Join(home, ".semindex")
	return &Config{
		Embedding: EmbeddingConfig{
			Provider: "ollama",
		},
		Index: IndexConfig{
			Hybrid:       true,
			ChunkSize:    splitter.DefaultChunkSize,
			ChunkOverlap: splitter.DefaultChunkOverlap,
		},
		Storage: StorageConfig{
			Dir:         filepath.Join(base, "collections"),
			SnapshotDir: filepath.Join(base, "snapshots"),
			Registry:    filepath.Join(base, "registry.json"),
		},
		Search: SearchConfig{
			TopK: 10,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads path when it exists, otherwise returns defaults. [VAR]
// tokens anywhere in the file are replaced with the corresponding
// environment variable; an unset variable is a fatal config error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	substituted, err := substituteEnv(string(data))
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal([]byte(substituted), cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

var envToken = regexp.MustCompile(`\[([A-Z_][A-Z0-9_]*)\]`)

// substituteEnv replaces [VAR] tokens with environment values.
func substituteEnv(text string) (string, error) {
	var missing []string
	out := envToken.ReplaceAllStringFunc(text, func(token string) string {
		name := token[1 : len(token)-1]
		value, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, name)
			return token
		}
		return value
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("config references unset environment variables: %v", missing)
	}
	return out, nil
}
