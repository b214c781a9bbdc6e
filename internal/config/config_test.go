package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nevindra/codexcore"
)

func TestDefaultSetsSaneValues(t *testing.T) {
	cfg := Default()
	if cfg.Approval.Policy != "on-request" {
		t.Errorf("Approval.Policy = %q, want on-request", cfg.Approval.Policy)
	}
	if cfg.Sandbox.Policy != "workspace-write" {
		t.Errorf("Sandbox.Policy = %q, want workspace-write", cfg.Sandbox.Policy)
	}
	if cfg.Compaction.AutoCompactLimit <= 0 {
		t.Errorf("AutoCompactLimit = %d, want > 0", cfg.Compaction.AutoCompactLimit)
	}
	if cfg.Rollout.Home == "" {
		t.Error("Rollout.Home is empty")
	}
}

func TestLoadMergesTOMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	toml := `
[model]
provider = "openai"
model = "gpt-5-codex"
max_retries = 2

[approval]
policy = "never"

[compaction]
auto_compact_limit = 50000
`
	if err := os.WriteFile(path, []byte(toml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := Load(path)
	if cfg.Model.Model != "gpt-5-codex" {
		t.Errorf("Model.Model = %q, want gpt-5-codex", cfg.Model.Model)
	}
	if cfg.Model.MaxRetries != 2 {
		t.Errorf("Model.MaxRetries = %d, want 2", cfg.Model.MaxRetries)
	}
	if cfg.Approval.Policy != "never" {
		t.Errorf("Approval.Policy = %q, want never", cfg.Approval.Policy)
	}
	if cfg.Compaction.AutoCompactLimit != 50000 {
		t.Errorf("AutoCompactLimit = %d, want 50000", cfg.Compaction.AutoCompactLimit)
	}
	// Untouched sections keep their defaults.
	if cfg.Sandbox.Policy != "workspace-write" {
		t.Errorf("Sandbox.Policy = %q, want workspace-write (default)", cfg.Sandbox.Policy)
	}
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if cfg.Approval.Policy != "on-request" {
		t.Errorf("Approval.Policy = %q, want on-request", cfg.Approval.Policy)
	}
}

func TestLoadEnvOverridesTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(`[model]
model = "from-file"
`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CODEX_MODEL", "from-env")
	t.Setenv("CODEX_MODEL_API_KEY", "secret")

	cfg := Load(path)
	if cfg.Model.Model != "from-env" {
		t.Errorf("Model.Model = %q, want from-env (env wins)", cfg.Model.Model)
	}
	if cfg.Model.APIKey != "secret" {
		t.Errorf("Model.APIKey = %q, want secret", cfg.Model.APIKey)
	}
}

func TestApprovalPolicyDefaultsOnUnknownValue(t *testing.T) {
	c := ApprovalConfig{Policy: "not-a-real-policy"}
	if got := c.ApprovalPolicy(); got != codexcore.ApprovalOnRequest {
		t.Errorf("ApprovalPolicy() = %v, want OnRequest fallback", got)
	}
}

func TestApprovalPolicyRoundTripsKnownValues(t *testing.T) {
	c := ApprovalConfig{Policy: "danger-full-access"}
	if got := c.ApprovalPolicy(); got != codexcore.ApprovalDangerFullAccess {
		t.Errorf("ApprovalPolicy() = %v, want DangerFullAccess", got)
	}
}

func TestSandboxPolicyCarriesWritableRoots(t *testing.T) {
	c := SandboxConfig{Policy: "workspace-write", WritableRoots: []string{"/tmp/work"}}
	got := c.SandboxPolicy()
	if got.Kind != codexcore.SandboxWorkspaceWrite {
		t.Errorf("Kind = %v, want WorkspaceWrite", got.Kind)
	}
	if len(got.WritableRoots) != 1 || got.WritableRoots[0] != "/tmp/work" {
		t.Errorf("WritableRoots = %v, want [/tmp/work]", got.WritableRoots)
	}
}

func TestSandboxPolicyReadOnlyIgnoresWritableRoots(t *testing.T) {
	c := SandboxConfig{Policy: "read-only", WritableRoots: []string{"/tmp/work"}}
	got := c.SandboxPolicy()
	if got.Kind != codexcore.SandboxReadOnly {
		t.Errorf("Kind = %v, want ReadOnly", got.Kind)
	}
	if len(got.WritableRoots) != 0 {
		t.Errorf("WritableRoots = %v, want empty for read-only", got.WritableRoots)
	}
}
