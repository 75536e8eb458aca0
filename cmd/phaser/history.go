package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/phaser/internal/state"
)

var (
	historyLimit int
	historyRun   string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent breakdown and execution runs",
	Long: `List recent runs recorded in the state database, newest first.

With --run the per-node results of one run are shown.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to show")
	historyCmd.Flags().StringVar(&historyRun, "run", "", "Show node results for a run id")
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), appOptions{history: true})
	if err != nil {
		return err
	}
	defer a.close()

	if a.history == nil {
		return &exitError{code: exitFailure}
	}

	if historyRun != "" {
		results, err := a.history.NodeResults(historyRun)
		if err != nil {
			return fmt.Errorf("load run %s: %w", historyRun, err)
		}
		if len(results) == 0 {
			fmt.Printf("No node results recorded for run %s\n", historyRun)
			return nil
		}
		for _, r := range results {
			fmt.Println(formatNodeResult(r))
		}
		return nil
	}

	runs, err := a.history.RecentRuns(historyLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet. Run 'phaser break' or 'phaser run' to start.")
		return nil
	}
	fmt.Println("Recent Runs:")
	for _, r := range runs {
		fmt.Println(formatRun(r, time.Now()))
	}
	return nil
}

func formatRun(r state.Run, now time.Time) string {
	duration := "running"
	if r.FinishedAt != nil {
		duration = formatDuration(r.FinishedAt.Sub(r.StartedAt))
	}
	return fmt.Sprintf("  %s  %-14s %-11s %d ok / %d failed, %d iteration(s), %s (%s ago)",
		r.ID, r.Operation, r.Outcome, r.Successful, r.Failed, r.Iterations, duration,
		formatDuration(now.Sub(r.StartedAt)))
}

func formatNodeResult(r state.NodeResult) string {
	mark := color.RedString("✗")
	if r.Success {
		mark = color.GreenString("✓")
	}
	line := fmt.Sprintf("  %s %s", mark, r.NodeID)
	if r.Verdict != "" {
		line += " " + r.Verdict
	}
	if r.Score > 0 {
		line += fmt.Sprintf(" score %d/80", r.Score)
	}
	if r.Error != "" {
		line += ": " + r.Error
	}
	return line
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	days := int(d.Hours()) / 24
	return fmt.Sprintf("%dd", days)
}
