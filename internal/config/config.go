// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config represents the full runner configuration. It is an explicit
// value: constructed once, passed to the components that need it.
type Config struct {
	Agent     AgentConfig        `toml:"agent"`
	LLM       LLMConfig          `toml:"llm"`       // Default collaborator settings
	Profiles  map[string]Profile `toml:"profiles"`  // Named collaborator profiles
	Planner   PlannerConfig      `toml:"planner"`   // Decomposition settings
	Executor  ExecutorConfig     `toml:"executor"`  // Per-task state machine settings
	Retriever RetrieverConfig    `toml:"retriever"` // Library search settings
	Embedding EmbeddingConfig    `toml:"embedding"` // Embedding provider for re-ranking
	Storage   StorageConfig      `toml:"storage"`   // Persistent storage settings
	Registry  RegistryConfig     `toml:"registry"`  // External capability manifests
	Events    EventsConfig       `toml:"events"`    // Session event publishing
	Telemetry TelemetryConfig    `toml:"telemetry"` // Trace export settings
}

// AgentConfig contains agent identification settings.
type AgentConfig struct {
	ID         string `toml:"id"`
	Workspace  string `toml:"workspace"`   // Working directory for task execution
	MaxReplans int    `toml:"max_replans"` // Planner repair ceiling per run
}

// LLMConfig contains collaborator provider settings.
type LLMConfig struct {
	Provider     string `toml:"provider"`
	Model        string `toml:"model"`
	APIKeyEnv    string `toml:"api_key_env"`
	MaxTokens    int    `toml:"max_tokens"`
	BaseURL      string `toml:"base_url"`      // Custom API endpoint (OpenRouter, LiteLLM, Ollama, LMStudio)
	MaxRetries   int    `toml:"max_retries"`   // Max retry attempts (default 5)
	RetryBackoff string `toml:"retry_backoff"` // Max backoff duration (default "60s")
}

// Profile represents a named collaborator configuration. The planner,
// judge, and analyzer can each run against a different profile.
type Profile struct {
	Provider  string `toml:"provider"`
	Model     string `toml:"model"`
	APIKeyEnv string `toml:"api_key_env"`
	MaxTokens int    `toml:"max_tokens"`
	BaseURL   string `toml:"base_url"` // Custom API endpoint
}

// PlannerConfig contains decomposition settings.
type PlannerConfig struct {
	Profile string `toml:"profile"` // Collaborator profile for decomposition
}

// ExecutorConfig contains per-task state machine settings.
type ExecutorConfig struct {
	MaxAttempts    int     `toml:"max_attempts"`    // Amendment ceiling per task (default 3)
	ScoreThreshold float64 `toml:"score_threshold"` // Judge score floor; 0 means the boolean verdict decides
	StepTimeout    int     `toml:"step_timeout"`    // Sandbox step timeout in seconds (default 300)
	JudgeProfile   string  `toml:"judge_profile"`   // Collaborator profile for judgment
	AnalyzeProfile string  `toml:"analyze_profile"` // Collaborator profile for failure classification
}

// RetrieverConfig contains library search settings.
type RetrieverConfig struct {
	TopK    int    `toml:"top_k"`   // Candidate count per query (default 10)
	Profile string `toml:"profile"` // Collaborator profile for candidate selection
}

// EmbeddingConfig contains embedding provider settings for semantic
// re-ranking of library candidates.
type EmbeddingConfig struct {
	Provider  string `toml:"provider"` // "openai", "ollama", or "" to disable re-ranking
	Model     string `toml:"model"`
	BaseURL   string `toml:"base_url"`
	APIKeyEnv string `toml:"api_key_env"`
	ProxyURL  string `toml:"proxy_url"` // Optional http:// or socks5:// proxy
}

// StorageConfig contains persistent storage settings.
type StorageConfig struct {
	Path    string `toml:"path"`    // Base directory for all persistent data
	Backend string `toml:"backend"` // Session store: "files" (default) or "sqlite"
}

// RegistryConfig contains external capability settings.
type RegistryConfig struct {
	Paths []string `toml:"paths"` // Directories holding capability manifests
}

// EventsConfig contains session event publishing settings.
type EventsConfig struct {
	Enabled bool   `toml:"enabled"`
	URL     string `toml:"url"`     // NATS server URL
	Subject string `toml:"subject"` // Subject for published events
}

// TelemetryConfig contains trace export settings.
type TelemetryConfig struct {
	Enabled  bool              `toml:"enabled"`
	Endpoint string            `toml:"endpoint"` // OTLP endpoint (e.g., localhost:4317)
	Protocol string            `toml:"protocol"` // grpc (default) or http
	Insecure bool              `toml:"insecure"` // Disable TLS (default false)
	Headers  map[string]string `toml:"headers"`  // Auth headers
}

// New creates a new config with defaults.
func New() *Config {
	return &Config{
		Agent: AgentConfig{
			Workspace:  ".",
			MaxReplans: 3,
		},
		LLM: LLMConfig{
			MaxTokens: 4096,
		},
		Executor: ExecutorConfig{
			MaxAttempts: 3,
			StepTimeout: 300,
		},
		Retriever: RetrieverConfig{
			TopK: 10,
		},
		Storage: StorageConfig{
			Path: "~/.local/taskforge",
		},
		Events: EventsConfig{
			Subject: "taskforge.events",
		},
	}
}

// Default returns a default configuration.
func Default() *Config {
	return New()
}

// LoadFile loads configuration from a TOML file.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// LoadDefault loads configuration from taskforge.toml in the current directory.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}

	return LoadFile(filepath.Join(cwd, "taskforge.toml"))
}

// GetAPIKey returns the API key from the configured environment variable.
// If api_key_env is not set, uses the default env var for the provider.
func (c *Config) GetAPIKey() string {
	envVar := c.LLM.APIKeyEnv
	if envVar == "" {
		envVar = DefaultAPIKeyEnv(c.LLM.Provider)
	}
	if envVar == "" {
		return ""
	}
	return os.Getenv(envVar)
}

// DefaultAPIKeyEnv returns the default environment variable name for a provider.
func DefaultAPIKeyEnv(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	case "google":
		return "GOOGLE_API_KEY"
	case "mistral":
		return "MISTRAL_API_KEY"
	case "groq":
		return "GROQ_API_KEY"
	default:
		return ""
	}
}

// GetProfile returns the collaborator config for a named profile.
// Falls back to default LLM config if the profile is not found.
func (c *Config) GetProfile(name string) LLMConfig {
	if name == "" {
		return c.LLM
	}
	if profile, ok := c.Profiles[name]; ok {
		// Fill in defaults from main LLM config
		result := LLMConfig{
			Provider:  profile.Provider,
			Model:     profile.Model,
			APIKeyEnv: profile.APIKeyEnv,
			MaxTokens: profile.MaxTokens,
			BaseURL:   profile.BaseURL,
		}
		if result.Provider == "" {
			result.Provider = c.LLM.Provider
		}
		if result.APIKeyEnv == "" {
			result.APIKeyEnv = c.LLM.APIKeyEnv
		}
		if result.MaxTokens == 0 {
			result.MaxTokens = c.LLM.MaxTokens
		}
		return result
	}
	return c.LLM
}

// GetProfileAPIKey returns the API key for a specific profile.
func (c *Config) GetProfileAPIKey(profileName string) string {
	llmCfg := c.GetProfile(profileName)
	envVar := llmCfg.APIKeyEnv
	if envVar == "" {
		envVar = DefaultAPIKeyEnv(llmCfg.Provider)
	}
	if envVar == "" {
		return ""
	}
	return os.Getenv(envVar)
}

// GetEmbeddingAPIKey returns the API key for the embedding provider.
func (c *Config) GetEmbeddingAPIKey() string {
	envVar := c.Embedding.APIKeyEnv
	if envVar == "" && c.Embedding.Provider == "openai" {
		envVar = "OPENAI_API_KEY"
	}
	if envVar == "" {
		return ""
	}
	return os.Getenv(envVar)
}

// LibraryDir returns the directory holding the persistent action library.
func (c *Config) LibraryDir() string {
	return filepath.Join(ExpandPath(c.Storage.Path), "library")
}

// SessionsDir returns the directory holding session records.
func (c *Config) SessionsDir() string {
	return filepath.Join(ExpandPath(c.Storage.Path), "sessions")
}

// SessionsDBPath returns the SQLite database path for session records.
func (c *Config) SessionsDBPath() string {
	return filepath.Join(ExpandPath(c.Storage.Path), "sessions.db")
}

// ExpandPath expands a leading ~/ to the user's home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
