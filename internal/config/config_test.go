package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Plan.Dir != ".ai/plan" {
		t.Errorf("expected plan dir '.ai/plan', got %q", cfg.Plan.Dir)
	}

	if cfg.Templates.Dir != ".phaser/templates" {
		t.Errorf("expected templates dir '.phaser/templates', got %q", cfg.Templates.Dir)
	}

	if cfg.Workers.JitterBase != 100*time.Millisecond || cfg.Workers.JitterSpread != 400*time.Millisecond {
		t.Errorf("expected jitter 100ms/400ms, got %v/%v", cfg.Workers.JitterBase, cfg.Workers.JitterSpread)
	}

	if cfg.Loop.MaxIterations != 50 || cfg.Loop.CandidateLimit != 50 {
		t.Errorf("expected loop bounds 50/50, got %d/%d", cfg.Loop.MaxIterations, cfg.Loop.CandidateLimit)
	}

	if cfg.Monitor.Interval != 2*time.Second {
		t.Errorf("expected monitor interval 2s, got %v", cfg.Monitor.Interval)
	}

	if cfg.Agent.Backend != BackendCLI {
		t.Errorf("expected backend %q, got %q", BackendCLI, cfg.Agent.Backend)
	}

	if cfg.Agent.PermissionMode != "acceptEdits" {
		t.Errorf("expected permission mode 'acceptEdits', got %q", cfg.Agent.PermissionMode)
	}

	if cfg.Agent.Retries != 0 {
		t.Errorf("expected no retries, got %d", cfg.Agent.Retries)
	}

	if cfg.State.Driver != "sqlite" || cfg.State.Path != ".phaser/state.db" {
		t.Errorf("unexpected state config: %+v", cfg.State)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestWorkerCount(t *testing.T) {
	cfg := Default()
	if got := cfg.WorkerCount(5); got != 5 {
		t.Errorf("WorkerCount(5) with no setting = %d, want 5", got)
	}

	cfg.Workers.Count = 3
	if got := cfg.WorkerCount(5); got != 3 {
		t.Errorf("WorkerCount(5) with count 3 = %d, want 3", got)
	}
}

func TestLoadFromPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
plan:
  dir: docs/plan
  repair: true
workers:
  count: 4
  timeout: 10m
  jitter_base: 50ms
validation:
  min_score: 60
agent:
  backend: api
  model: claude-sonnet-4-20250514
  retries: 2
  rate_per_second: 1.5
anthropic:
  api_key: test-key
  bedrock: true
  aws_region: us-west-2
state:
  driver: sqlite3
metrics:
  addr: ":9090"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Plan.Dir != "docs/plan" || !cfg.Plan.Repair {
		t.Errorf("unexpected plan config: %+v", cfg.Plan)
	}

	if cfg.Workers.Count != 4 || cfg.Workers.Timeout != 10*time.Minute {
		t.Errorf("unexpected workers config: %+v", cfg.Workers)
	}

	if cfg.Workers.JitterBase != 50*time.Millisecond {
		t.Errorf("expected jitter base 50ms, got %v", cfg.Workers.JitterBase)
	}

	if cfg.Workers.JitterSpread != 400*time.Millisecond {
		t.Errorf("expected default jitter spread 400ms, got %v", cfg.Workers.JitterSpread)
	}

	if cfg.Validation.MinScore != 60 {
		t.Errorf("expected min score 60, got %d", cfg.Validation.MinScore)
	}

	if cfg.Agent.Backend != BackendAPI || cfg.Agent.Retries != 2 || cfg.Agent.RatePerSecond != 1.5 {
		t.Errorf("unexpected agent config: %+v", cfg.Agent)
	}

	if cfg.Agent.PermissionMode != "acceptEdits" {
		t.Errorf("expected default permission mode, got %q", cfg.Agent.PermissionMode)
	}

	if cfg.Anthropic.APIKey != "test-key" || !cfg.Anthropic.Bedrock || cfg.Anthropic.AWSRegion != "us-west-2" {
		t.Errorf("unexpected anthropic config: %+v", cfg.Anthropic)
	}

	if cfg.State.Driver != "sqlite3" || cfg.State.Path != ".phaser/state.db" {
		t.Errorf("unexpected state config: %+v", cfg.State)
	}

	if cfg.Metrics.Addr != ":9090" {
		t.Errorf("expected metrics addr ':9090', got %q", cfg.Metrics.Addr)
	}
}

func TestLoadFromPath_NotFound(t *testing.T) {
	_, err := LoadFromPath("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent config file")
	}
}

func TestLoadFromPath_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_PHASER_KEY", "sk-ant-expanded")

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := "anthropic:\n  api_key: ${TEST_PHASER_KEY}\n"
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Anthropic.APIKey != "sk-ant-expanded" {
		t.Errorf("expected expanded api key, got %q", cfg.Anthropic.APIKey)
	}
}

func TestLoad_Precedence(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	t.Setenv("ANTHROPIC_API_KEY", "")

	userDir := filepath.Join(xdg, "phaser")
	if err := os.MkdirAll(userDir, 0755); err != nil {
		t.Fatal(err)
	}
	user := "plan:\n  dir: user/plan\nworkers:\n  count: 2\nagent:\n  model: user-model\n"
	if err := os.WriteFile(filepath.Join(userDir, "config.yaml"), []byte(user), 0644); err != nil {
		t.Fatal(err)
	}

	project := t.TempDir()
	nested := filepath.Join(project, "src", "pkg")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(project, ProjectConfigName), []byte("workers:\n  count: 7\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(nested)
	t.Setenv("PHASER_AGENT_MODEL", "env-model")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Plan.Dir != "user/plan" {
		t.Errorf("expected user plan dir, got %q", cfg.Plan.Dir)
	}
	if cfg.Workers.Count != 7 {
		t.Errorf("expected project worker count 7, got %d", cfg.Workers.Count)
	}
	if cfg.Agent.Model != "env-model" {
		t.Errorf("expected env model override, got %q", cfg.Agent.Model)
	}
	if cfg.Loop.MaxIterations != 50 {
		t.Errorf("expected default max iterations, got %d", cfg.Loop.MaxIterations)
	}
	if !strings.HasSuffix(GetProjectConfigPath(), ProjectConfigName) {
		t.Errorf("GetProjectConfigPath = %q", GetProjectConfigPath())
	}
}

func TestSave_RoundTrip(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg := Default()
	cfg.Workers.Count = 3
	cfg.Workers.Timeout = 5 * time.Minute
	cfg.Agent.Backend = BackendAPI
	cfg.Metrics.Addr = "localhost:9100"

	if err := Save(cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := LoadFromPath(GetUserConfigPath())
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if loaded.Workers.Count != 3 || loaded.Workers.Timeout != 5*time.Minute {
		t.Errorf("workers not saved: %+v", loaded.Workers)
	}
	if loaded.Agent.Backend != BackendAPI || loaded.Metrics.Addr != "localhost:9100" {
		t.Errorf("settings not saved: backend=%q metrics=%q", loaded.Agent.Backend, loaded.Metrics.Addr)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown backend", func(c *Config) { c.Agent.Backend = "grpc" }, "agent.backend"},
		{"negative workers", func(c *Config) { c.Workers.Count = -1 }, "workers.count"},
		{"score above max", func(c *Config) { c.Validation.MinScore = 81 }, "validation.min_score"},
		{"negative retries", func(c *Config) { c.Agent.Retries = -2 }, "agent.retries"},
		{"empty plan dir", func(c *Config) { c.Plan.Dir = "" }, "plan.dir"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}
