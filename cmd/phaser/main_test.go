package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ShayCichocki/phaser/internal/config"
	"github.com/ShayCichocki/phaser/internal/graph"
	"github.com/ShayCichocki/phaser/internal/orchestrator"
	"github.com/ShayCichocki/phaser/internal/state"
	"github.com/ShayCichocki/phaser/pkg/models"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, exitOK},
		{"plain error", errors.New("boom"), exitFailure},
		{"interrupted", fmt.Errorf("run: %w", orchestrator.ErrInterrupted), exitInterrupted},
		{"canceled", context.Canceled, exitInterrupted},
		{"explicit code", &exitError{code: exitInterrupted}, exitInterrupted},
		{"wrapped explicit code", fmt.Errorf("cmd: %w", &exitError{code: 3}), 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestLoopResult(t *testing.T) {
	clean := orchestrator.NewStats("Test")
	clean.Record(true)

	failing := orchestrator.NewStats("Test")
	failing.Record(true)
	failing.Record(false)

	if err := loopResult(orchestrator.OutcomeDone, clean, nil); err != nil {
		t.Errorf("done with no failures: %v, want nil", err)
	}
	if err := loopResult(orchestrator.OutcomeExhausted, clean, nil); err != nil {
		t.Errorf("exhausted with no failures: %v, want nil", err)
	}
	if got := exitCode(loopResult(orchestrator.OutcomeDone, failing, nil)); got != exitFailure {
		t.Errorf("failures: exit %d, want %d", got, exitFailure)
	}
	if got := exitCode(loopResult(orchestrator.OutcomeInterrupted, clean, orchestrator.ErrInterrupted)); got != exitInterrupted {
		t.Errorf("interrupt: exit %d, want %d", got, exitInterrupted)
	}
	fatal := errors.New("find work: disk gone")
	if err := loopResult(orchestrator.OutcomeFailed, clean, fatal); !errors.Is(err, fatal) {
		t.Errorf("failed outcome: %v, want %v", err, fatal)
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    models.Status
		wantErr bool
	}{
		{"pending", models.StatusPending, false},
		{"COMPLETED", models.StatusCompleted, false},
		{"in_progress", models.StatusInProgress, false},
		{" in-progress ", models.StatusInProgress, false},
		{"done", "", true},
		{"unknown", "", true},
	}
	for _, tt := range tests {
		got, err := parseStatus(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseStatus(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if tt.wantErr && !errors.Is(err, graph.ErrInvalidStatus) {
			t.Errorf("parseStatus(%q) error = %v, want ErrInvalidStatus", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("parseStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatTreeLine(t *testing.T) {
	long := &graph.TreeNode{
		Node:   models.Node{ID: "2.1", Title: "Checkout", Duration: models.Range(90, 120)},
		Status: models.StatusPending,
		Leaf:   true,
	}
	got := formatTreeLine(long, 1)
	if !strings.HasPrefix(got, "  ") || !strings.Contains(got, "2.1: Checkout (90-120 min) [needs breakdown]") {
		t.Errorf("formatTreeLine = %q", got)
	}

	split := &graph.TreeNode{
		Node:     models.Node{ID: "2", Title: "Shop", Duration: models.Minutes(240)},
		Status:   models.StatusInProgress,
		Children: []*graph.TreeNode{long},
	}
	if got := formatTreeLine(split, 0); strings.Contains(got, "needs breakdown") {
		t.Errorf("broken-down node flagged: %q", got)
	}
}

func TestConfigLinesMaskKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	cfg := config.Default()
	cfg.Anthropic.APIKey = "sk-ant-REDACTED"

	lines := strings.Join(configLines(cfg), "\n")
	if strings.Contains(lines, "abcdefghijklmnop") {
		t.Error("api key printed unmasked")
	}
	for _, want := range []string{"anthropic.api_key: sk-ant-...wxyz (config_file)", "workers.count: (command default)", "metrics.addr: (disabled)"} {
		if !strings.Contains(lines, want) {
			t.Errorf("config output missing %q", want)
		}
	}
}

func TestWorkerDefaults(t *testing.T) {
	cfg := config.Default()
	if got := cfg.WorkerCount(defaultBreakWorkers); got != 1 {
		t.Errorf("break workers = %d, want 1", got)
	}
	if got := cfg.WorkerCount(defaultRunWorkers); got != 5 {
		t.Errorf("run workers = %d, want 5", got)
	}
}

func TestFormatRun(t *testing.T) {
	start := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)
	r := state.Run{
		ID: "abc", Operation: "Breakdown", StartedAt: start, FinishedAt: &end,
		Outcome: "done", Successful: 3, Failed: 1, Iterations: 2,
	}
	got := formatRun(r, start.Add(2*time.Hour))
	for _, want := range []string{"abc", "Breakdown", "done", "3 ok / 1 failed", "2 iteration(s)", "1m", "2h ago"} {
		if !strings.Contains(got, want) {
			t.Errorf("formatRun missing %q: %q", want, got)
		}
	}

	r.FinishedAt = nil
	if got := formatRun(r, start); !strings.Contains(got, "running") {
		t.Errorf("unfinished run: %q", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{2 * time.Hour, "2h"},
		{2*time.Hour + 15*time.Minute, "2h15m"},
		{50 * time.Hour, "2d"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	tests := []struct {
		name    string
		cfg     config.AnthropicConfig
		want    string
		wantErr error
	}{
		{"valid", config.AnthropicConfig{APIKey: "sk-ant-REDACTED"}, "sk-ant-REDACTED", nil},
		{"missing", config.AnthropicConfig{}, "", config.ErrNoAPIKey},
		{"malformed", config.AnthropicConfig{APIKey: "not-a-key-at-all-1234567890"}, "", config.ErrInvalidAPIKey},
		{"bedrock needs no key", config.AnthropicConfig{Bedrock: true}, "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := apiKey(&config.Config{Anthropic: tt.cfg})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("apiKey error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("apiKey = (%q, %v), want (%q, nil)", got, err, tt.want)
			}
		})
	}
}
