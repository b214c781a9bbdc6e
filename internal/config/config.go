// Package config loads the session engine's on-disk configuration: model
// provider settings, approval/sandbox policy defaults, the rollout home
// directory, and auto-compaction tuning. Grounded on internal/config's
// defaults-then-TOML-then-env-override load order and BurntSushi/toml use.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the top-level on-disk configuration, unmarshaled from
// $CODEX_HOME/config.toml.
type Config struct {
	Model      ModelConfig      `toml:"model"`
	Approval   ApprovalConfig   `toml:"approval"`
	Sandbox    SandboxConfig    `toml:"sandbox"`
	Rollout    RolloutConfig    `toml:"rollout"`
	Compaction CompactionConfig `toml:"compaction"`
}

// ModelConfig configures the Model Client (C2).
type ModelConfig struct {
	Provider         string `toml:"provider"`
	BaseURL          string `toml:"base_url"`
	Model            string `toml:"model"`
	Family           string `toml:"family"`
	APIKey           string `toml:"api_key"`
	MaxRetries       int    `toml:"max_retries"`
	ReasoningEffort  string `toml:"reasoning_effort"`
	ReasoningSummary string `toml:"reasoning_summary"`
	Verbosity        string `toml:"verbosity"`
}

// ApprovalConfig sets the default AskForApproval policy for new
// conversations; a front end may still override it per TurnContext.
type ApprovalConfig struct {
	Policy string `toml:"policy"`
}

// SandboxConfig sets the default SandboxPolicy.
type SandboxConfig struct {
	Policy        string   `toml:"policy"`
	WritableRoots []string `toml:"writable_roots"`
}

// RolloutConfig points at the rollout journal's home directory.
type RolloutConfig struct {
	Home string `toml:"home"`
}

// CompactionConfig tunes the Compaction Engine (C9) auto-trigger.
type CompactionConfig struct {
	AutoCompactLimit int    `toml:"auto_compact_limit"`
	Prompt           string `toml:"prompt"`
}

// Default returns a Config with every field set to its built-in default.
func Default() Config {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "/tmp"
	}
	return Config{
		Model: ModelConfig{
			Provider:   "openai",
			Family:     "gpt-5",
			MaxRetries: 4,
		},
		Approval: ApprovalConfig{Policy: "on-request"},
		Sandbox:  SandboxConfig{Policy: "workspace-write"},
		Rollout:  RolloutConfig{Home: filepath.Join(home, ".codex")},
		Compaction: CompactionConfig{
			AutoCompactLimit: 180_000,
		},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins). path
// defaults to $CODEX_HOME/config.toml when empty, falling back to
// ~/.codex/config.toml when CODEX_HOME is unset.
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		home := os.Getenv("CODEX_HOME")
		if home == "" {
			home = cfg.Rollout.Home
		}
		path = filepath.Join(home, "config.toml")
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	if v := os.Getenv("CODEX_HOME"); v != "" {
		cfg.Rollout.Home = v
	}
	if v := os.Getenv("CODEX_MODEL_API_KEY"); v != "" {
		cfg.Model.APIKey = v
	}
	if v := os.Getenv("CODEX_MODEL"); v != "" {
		cfg.Model.Model = v
	}
	if v := os.Getenv("CODEX_MODEL_BASE_URL"); v != "" {
		cfg.Model.BaseURL = v
	}
	if v := os.Getenv("CODEX_APPROVAL_POLICY"); v != "" {
		cfg.Approval.Policy = v
	}
	if v := os.Getenv("CODEX_SANDBOX_POLICY"); v != "" {
		cfg.Sandbox.Policy = v
	}

	return cfg
}
