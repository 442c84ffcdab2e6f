package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/openclaw/taskforge/internal/config"
	"github.com/openclaw/taskforge/internal/library"
	"github.com/openclaw/taskforge/internal/llm"
	"github.com/openclaw/taskforge/internal/logging"
	"github.com/openclaw/taskforge/internal/registry"
	"github.com/openclaw/taskforge/internal/sandbox"
	"github.com/openclaw/taskforge/internal/session"
)

// loadConfig loads the named config file, or taskforge.toml from the
// current directory, falling back to defaults when neither exists.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	cfg, err := config.LoadDefault()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return config.New(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the CLI logger. Logs go to stderr so stdout stays
// reserved for command output.
func newLogger(debug bool) *logging.Logger {
	log := logging.New()
	log.SetOutput(os.Stderr)
	if debug {
		log.SetLevel(logging.LevelDebug)
	}
	return log
}

// resolveWorkspace applies the CLI override and makes the path absolute.
func resolveWorkspace(cfg *config.Config, override string) {
	if override != "" {
		cfg.Agent.Workspace = override
	}
	if cfg.Agent.Workspace == "" {
		cfg.Agent.Workspace, _ = os.Getwd()
	}
	if !filepath.IsAbs(cfg.Agent.Workspace) {
		if abs, err := filepath.Abs(cfg.Agent.Workspace); err == nil {
			cfg.Agent.Workspace = abs
		}
	}
}

// newRunner builds the local sandbox rooted at the configured workspace.
func newRunner(cfg *config.Config) (*sandbox.Local, error) {
	return sandbox.NewLocal(sandbox.LocalConfig{
		Workdir: cfg.Agent.Workspace,
		Timeout: time.Duration(cfg.Executor.StepTimeout) * time.Second,
	})
}

// openLibrary opens the persistent action library, wiring the optional
// embedding re-ranker.
func openLibrary(cfg *config.Config, log *logging.Logger) (*library.Library, error) {
	embedder, err := library.NewEmbedder(
		cfg.Embedding.Provider,
		cfg.Embedding.Model,
		cfg.Embedding.BaseURL,
		cfg.GetEmbeddingAPIKey(),
		cfg.Embedding.ProxyURL,
	)
	if err != nil {
		return nil, fmt.Errorf("could not create embedding provider: %w", err)
	}
	lib, err := library.Open(library.Config{
		Dir:      cfg.LibraryDir(),
		Embedder: embedder,
		Logger:   log,
	})
	if err != nil {
		return nil, fmt.Errorf("could not open action library: %w", err)
	}
	return lib, nil
}

// buildRegistry registers the builtin capabilities and loads manifests
// from the configured tool directories.
func buildRegistry(cfg *config.Config, runner sandbox.Runner, log *logging.Logger) *registry.Registry {
	reg := registry.New(log.WithComponent("registry"))
	reg.RegisterBuiltins(runner, cfg.Agent.Workspace)
	if n := reg.LoadManifests(runner, cfg.Registry.Paths); n > 0 {
		log.Info("Loaded capability manifests", map[string]interface{}{"count": n})
	}
	return reg
}

// openSessionStore picks the session backend from config. The returned
// closer is a no-op for the file store.
func openSessionStore(cfg *config.Config) (session.Store, func(), error) {
	switch cfg.Storage.Backend {
	case "", "files":
		store, err := session.NewFileStore(cfg.SessionsDir())
		if err != nil {
			return nil, nil, fmt.Errorf("could not open session store: %w", err)
		}
		return store, func() {}, nil
	case "sqlite":
		store, err := session.NewSQLiteStore(cfg.SessionsDBPath())
		if err != nil {
			return nil, nil, fmt.Errorf("could not open session database: %w", err)
		}
		return store, func() { store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage backend %q (supported: files, sqlite)", cfg.Storage.Backend)
	}
}

// buildProvider creates the chat provider for a profile. An empty name
// resolves to the default [llm] settings.
func buildProvider(cfg *config.Config, profile string) (llm.Provider, error) {
	llmCfg := cfg.GetProfile(profile)
	if llmCfg.Model == "" {
		if profile == "" {
			return nil, fmt.Errorf("no model configured; set llm.model in taskforge.toml")
		}
		return nil, fmt.Errorf("profile %q has no model configured", profile)
	}

	// Named profiles inherit retry settings from the default [llm] block.
	if llmCfg.MaxRetries == 0 {
		llmCfg.MaxRetries = cfg.LLM.MaxRetries
	}
	if llmCfg.RetryBackoff == "" {
		llmCfg.RetryBackoff = cfg.LLM.RetryBackoff
	}

	return llm.NewProvider(llm.FantasyConfig{
		Provider:  llmCfg.Provider,
		Model:     llmCfg.Model,
		APIKey:    cfg.GetProfileAPIKey(profile),
		BaseURL:   llmCfg.BaseURL,
		MaxTokens: llmCfg.MaxTokens,
		Retry:     parseRetryConfig(llmCfg.MaxRetries, llmCfg.RetryBackoff),
	})
}

// optionalProvider builds a provider only when a profile is named.
// A nil return makes the agent fall back to its default provider.
func optionalProvider(cfg *config.Config, profile string) (llm.Provider, error) {
	if profile == "" {
		return nil, nil
	}
	return buildProvider(cfg, profile)
}
