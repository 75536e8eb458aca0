// Package config handles configuration loading and management for Phaser.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ProjectConfigName is the project-level config file searched for upward
// from the working directory.
const ProjectConfigName = ".phaser.yaml"

// Agent backends.
const (
	BackendCLI = "cli"
	BackendAPI = "api"
)

// Config holds all configuration for Phaser.
type Config struct {
	Plan       PlanConfig       `mapstructure:"plan"`
	Templates  TemplatesConfig  `mapstructure:"templates"`
	Workers    WorkersConfig    `mapstructure:"workers"`
	Loop       LoopConfig       `mapstructure:"loop"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Validation ValidationConfig `mapstructure:"validation"`
	Agent      AgentConfig      `mapstructure:"agent"`
	Anthropic  AnthropicConfig  `mapstructure:"anthropic"`
	State      StateConfig      `mapstructure:"state"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// PlanConfig locates the plan directory.
type PlanConfig struct {
	Dir string `mapstructure:"dir"`
	// Repair asks an agent to fix plan documents that fail to parse.
	Repair bool `mapstructure:"repair"`
}

// TemplatesConfig locates the agent templates.
type TemplatesConfig struct {
	Dir string `mapstructure:"dir"`
}

// WorkersConfig holds worker pool settings.
type WorkersConfig struct {
	// Count is the number of concurrent workers. Zero means the command's
	// own default.
	Count int `mapstructure:"count"`
	// Timeout bounds one worker's unit of work. Zero disables it.
	Timeout      time.Duration `mapstructure:"timeout"`
	JitterBase   time.Duration `mapstructure:"jitter_base"`
	JitterSpread time.Duration `mapstructure:"jitter_spread"`
}

// LoopConfig bounds the batch loops.
type LoopConfig struct {
	MaxIterations  int `mapstructure:"max_iterations"`
	CandidateLimit int `mapstructure:"candidate_limit"`
}

// MonitorConfig holds live display settings.
type MonitorConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// ValidationConfig holds breakdown acceptance settings.
type ValidationConfig struct {
	// MinScore is the lowest accepted score out of 80. Zero means only the
	// validity flag gates acceptance.
	MinScore int `mapstructure:"min_score"`
}

// AgentConfig selects and tunes the agent backend.
type AgentConfig struct {
	Backend        string  `mapstructure:"backend"`
	Binary         string  `mapstructure:"binary"`
	Model          string  `mapstructure:"model"`
	PermissionMode string  `mapstructure:"permission_mode"`
	Retries        int     `mapstructure:"retries"`
	RatePerSecond  float64 `mapstructure:"rate_per_second"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Bedrock    bool   `mapstructure:"bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

// StateConfig locates the run history database.
type StateConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

// MetricsConfig holds the Prometheus endpoint address. Empty disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// WorkerCount returns the configured worker count, or def when unset.
func (c *Config) WorkerCount(def int) int {
	if c.Workers.Count > 0 {
		return c.Workers.Count
	}
	return def
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	var errs []error
	switch c.Agent.Backend {
	case BackendCLI, BackendAPI:
	default:
		errs = append(errs, fmt.Errorf("agent.backend: unknown backend %q (want %s or %s)", c.Agent.Backend, BackendCLI, BackendAPI))
	}
	if c.Workers.Count < 0 {
		errs = append(errs, fmt.Errorf("workers.count: must not be negative, got %d", c.Workers.Count))
	}
	if c.Validation.MinScore < 0 || c.Validation.MinScore > 80 {
		errs = append(errs, fmt.Errorf("validation.min_score: must be between 0 and 80, got %d", c.Validation.MinScore))
	}
	if c.Agent.Retries < 0 {
		errs = append(errs, fmt.Errorf("agent.retries: must not be negative, got %d", c.Agent.Retries))
	}
	if c.Plan.Dir == "" {
		errs = append(errs, errors.New("plan.dir: must not be empty"))
	}
	return errors.Join(errs...)
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, PHASER_*)
// 2. Project config (.phaser.yaml in current directory or parent)
// 3. User config (~/.config/phaser/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", projectConfig, err)
		}
		if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	bindEnv(v)
	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// bindEnv maps PHASER_SECTION_KEY onto section.key.
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("PHASER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(userConfigDir, "config.yaml"))

	v.Set("plan.dir", cfg.Plan.Dir)
	v.Set("plan.repair", cfg.Plan.Repair)
	v.Set("templates.dir", cfg.Templates.Dir)
	v.Set("workers.count", cfg.Workers.Count)
	v.Set("workers.timeout", cfg.Workers.Timeout.String())
	v.Set("workers.jitter_base", cfg.Workers.JitterBase.String())
	v.Set("workers.jitter_spread", cfg.Workers.JitterSpread.String())
	v.Set("loop.max_iterations", cfg.Loop.MaxIterations)
	v.Set("loop.candidate_limit", cfg.Loop.CandidateLimit)
	v.Set("monitor.interval", cfg.Monitor.Interval.String())
	v.Set("validation.min_score", cfg.Validation.MinScore)
	v.Set("agent.backend", cfg.Agent.Backend)
	v.Set("agent.binary", cfg.Agent.Binary)
	v.Set("agent.model", cfg.Agent.Model)
	v.Set("agent.permission_mode", cfg.Agent.PermissionMode)
	v.Set("agent.retries", cfg.Agent.Retries)
	v.Set("agent.rate_per_second", cfg.Agent.RatePerSecond)
	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.bedrock", cfg.Anthropic.Bedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("anthropic.aws_profile", cfg.Anthropic.AWSProfile)
	v.Set("state.driver", cfg.State.Driver)
	v.Set("state.path", cfg.State.Path)
	v.Set("metrics.addr", cfg.Metrics.Addr)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("plan.dir", d.Plan.Dir)
	v.SetDefault("plan.repair", d.Plan.Repair)
	v.SetDefault("templates.dir", d.Templates.Dir)

	v.SetDefault("workers.count", d.Workers.Count)
	v.SetDefault("workers.timeout", d.Workers.Timeout.String())
	v.SetDefault("workers.jitter_base", d.Workers.JitterBase.String())
	v.SetDefault("workers.jitter_spread", d.Workers.JitterSpread.String())

	v.SetDefault("loop.max_iterations", d.Loop.MaxIterations)
	v.SetDefault("loop.candidate_limit", d.Loop.CandidateLimit)
	v.SetDefault("monitor.interval", d.Monitor.Interval.String())
	v.SetDefault("validation.min_score", d.Validation.MinScore)

	v.SetDefault("agent.backend", d.Agent.Backend)
	v.SetDefault("agent.binary", d.Agent.Binary)
	v.SetDefault("agent.model", d.Agent.Model)
	v.SetDefault("agent.permission_mode", d.Agent.PermissionMode)
	v.SetDefault("agent.retries", d.Agent.Retries)
	v.SetDefault("agent.rate_per_second", d.Agent.RatePerSecond)

	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.bedrock", false)
	v.SetDefault("anthropic.aws_region", "")
	v.SetDefault("anthropic.aws_profile", "")

	v.SetDefault("state.driver", d.State.Driver)
	v.SetDefault("state.path", d.State.Path)
	v.SetDefault("metrics.addr", "")
}

// getUserConfigDir returns the XDG config directory for Phaser.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "phaser")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "phaser")
	}
	return filepath.Join(home, ".config", "phaser")
}

// findProjectConfig searches for .phaser.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ProjectConfigName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Plan:      PlanConfig{Dir: ".ai/plan"},
		Templates: TemplatesConfig{Dir: ".phaser/templates"},
		Workers: WorkersConfig{
			JitterBase:   100 * time.Millisecond,
			JitterSpread: 400 * time.Millisecond,
		},
		Loop: LoopConfig{
			MaxIterations:  50,
			CandidateLimit: 50,
		},
		Monitor: MonitorConfig{Interval: 2 * time.Second},
		Agent: AgentConfig{
			Backend:        BackendCLI,
			Binary:         "claude",
			PermissionMode: "acceptEdits",
		},
		State: StateConfig{
			Driver: "sqlite",
			Path:   ".phaser/state.db",
		},
	}
}
