package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/phaser/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View Phaser configuration.

Configuration is read from ~/.config/phaser/config.yaml, then from a
.phaser.yaml in the current directory or a parent, then from PHASER_*
environment variables (for example PHASER_WORKERS_COUNT=3).`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		applyFlags(cfg)
		for _, line := range configLines(cfg) {
			fmt.Println(line)
		}
		fmt.Println()
		fmt.Printf("user config: %s\n", config.GetUserConfigPath())
		if p := config.GetProjectConfigPath(); p != "" {
			fmt.Printf("project config: %s\n", p)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
}

// configLines renders every key with the API key masked.
func configLines(cfg *config.Config) []string {
	apiKey, _ := config.GetAPIKey(cfg)
	return []string{
		fmt.Sprintf("plan.dir: %s", cfg.Plan.Dir),
		fmt.Sprintf("plan.repair: %t", cfg.Plan.Repair),
		fmt.Sprintf("templates.dir: %s", cfg.Templates.Dir),
		fmt.Sprintf("workers.count: %s", orUnset(cfg.Workers.Count)),
		fmt.Sprintf("workers.timeout: %s", cfg.Workers.Timeout),
		fmt.Sprintf("workers.jitter_base: %s", cfg.Workers.JitterBase),
		fmt.Sprintf("workers.jitter_spread: %s", cfg.Workers.JitterSpread),
		fmt.Sprintf("loop.max_iterations: %d", cfg.Loop.MaxIterations),
		fmt.Sprintf("loop.candidate_limit: %d", cfg.Loop.CandidateLimit),
		fmt.Sprintf("monitor.interval: %s", cfg.Monitor.Interval),
		fmt.Sprintf("validation.min_score: %d", cfg.Validation.MinScore),
		fmt.Sprintf("agent.backend: %s", cfg.Agent.Backend),
		fmt.Sprintf("agent.binary: %s", cfg.Agent.Binary),
		fmt.Sprintf("agent.model: %s", orDefaultString(cfg.Agent.Model, "(default)")),
		fmt.Sprintf("agent.permission_mode: %s", cfg.Agent.PermissionMode),
		fmt.Sprintf("agent.retries: %d", cfg.Agent.Retries),
		fmt.Sprintf("agent.rate_per_second: %g", cfg.Agent.RatePerSecond),
		fmt.Sprintf("anthropic.api_key: %s (%s)", config.MaskAPIKey(apiKey), config.GetAPIKeySource(cfg)),
		fmt.Sprintf("anthropic.bedrock: %t", cfg.Anthropic.Bedrock),
		fmt.Sprintf("anthropic.aws_region: %s", cfg.Anthropic.AWSRegion),
		fmt.Sprintf("anthropic.aws_profile: %s", cfg.Anthropic.AWSProfile),
		fmt.Sprintf("state.driver: %s", cfg.State.Driver),
		fmt.Sprintf("state.path: %s", cfg.State.Path),
		fmt.Sprintf("metrics.addr: %s", orDefaultString(cfg.Metrics.Addr, "(disabled)")),
	}
}

func orUnset(n int) string {
	if n <= 0 {
		return "(command default)"
	}
	return fmt.Sprint(n)
}

func orDefaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
