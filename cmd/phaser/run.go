package main

import (
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/phaser/internal/orchestrator"
)

var runFlags loopFlags

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute actionable tasks in parallel batches",
	Long: `Repeatedly pick pending leaf tasks whose dependencies are complete and
run them through four phases: task analysis, execution, validation and
status update. A PASS verdict completes a task; PARTIAL or FAIL marks it
in progress.

Stops when nothing is actionable, when --max-iterations is reached, or on
interrupt (the current batch always finishes).`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	addLoopFlags(runCmd, &runFlags)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{agents: true})
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.resolver.CheckCycles(); err != nil {
		return err
	}

	src := orchestrator.NewTaskExecutionSystem(orchestrator.ExecutionConfig{
		Resolver:  a.resolver,
		Composer:  a.composer(),
		Templates: a.templates,
		Prompts:   a.prompts,
		Invoker:   a.inv,
	})
	return a.runLoop(ctx, src, defaultRunWorkers, runFlags)
}
