package main

import (
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/phaser/internal/orchestrator"
	"github.com/ShayCichocki/phaser/internal/validation"
)

// Default worker counts when neither the flag nor workers.count is set.
const (
	defaultBreakWorkers = 1
	defaultRunWorkers   = 5
)

var breakFlags loopFlags

var breakCmd = &cobra.Command{
	Use:   "break",
	Short: "Break long phases into validated sub-phases",
	Long: `Repeatedly find phases whose estimate exceeds 60 minutes and have no
breakdown document yet, ask the breakdown agent to split them, validate the
result and write <id>.json into the plan directory.

Stops when nothing needs breakdown, when --max-iterations is reached, or on
interrupt (the current batch always finishes).`,
	Args: cobra.NoArgs,
	RunE: runBreak,
}

func init() {
	addLoopFlags(breakCmd, &breakFlags)
}

func addLoopFlags(cmd *cobra.Command, f *loopFlags) {
	cmd.Flags().IntVarP(&f.workers, "workers", "w", 0, "Number of concurrent workers (default from config)")
	cmd.Flags().IntVar(&f.maxIterations, "max-iterations", 0, "Maximum number of batches (default from config, 50)")
	cmd.Flags().BoolVar(&f.tui, "tui", false, "Show the interactive worker view")
}

func runBreak(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{agents: true})
	if err != nil {
		return err
	}
	defer a.close()

	src := orchestrator.NewBreakdownSystem(orchestrator.BreakdownConfig{
		Resolver:       a.resolver,
		Composer:       a.composer(),
		Engine:         validation.NewEngine(validation.WithMinScore(a.cfg.Validation.MinScore)),
		Templates:      a.templates,
		Prompts:        a.prompts,
		Invoker:        a.inv,
		CandidateLimit: a.cfg.Loop.CandidateLimit,
	})
	return a.runLoop(ctx, src, defaultBreakWorkers, breakFlags)
}
