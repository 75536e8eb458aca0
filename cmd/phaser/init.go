package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/phaser/internal/monitor"
	"github.com/ShayCichocki/phaser/internal/orchestrator"
)

var initCmd = &cobra.Command{
	Use:   "init <plan-file> [target-folder]",
	Short: "Create the initial plan, schema and structure from a plan file",
	Long: `Analyze a requirements document and create the project's initial plan.

Runs the plan-analyzer agent first, then the database-schema-designer and
project-structure-generator agents in parallel. Creates .ai/plan, .ai/schema,
.ai/structure and the .ai/brain working directories.

The plan file may be given with a leading @, as in @prd.md.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{agents: true})
	if err != nil {
		return err
	}
	defer a.close()

	target := ""
	if len(args) > 1 {
		target = args[1]
	}

	in := orchestrator.NewInitializer(orchestrator.InitConfig{
		Root:        a.root,
		Templates:   a.templates,
		Prompts:     a.prompts,
		Invoker:     a.inv,
		Out:         os.Stdout,
		Monitor:     monitor.New(2, monitor.WithInterval(a.cfg.Monitor.Interval)),
		LiveDisplay: true,
		Jitter:      a.jitter(),
		Metrics:     a.metrics,
		Logger:      a.logger,
	})

	if _, err := in.CheckPrerequisites(args[0]); err != nil {
		printStatus("✗", err.Error(), color.FgRed)
		if errors.Is(err, orchestrator.ErrTemplatesMissing) {
			fmt.Printf("  Place the agent templates in %s\n", a.templates.Dir())
		}
		return &exitError{code: exitFailure}
	}
	printStatus("✓", "Prerequisites satisfied", color.FgGreen)

	if err := in.Run(ctx, args[0], target); err != nil {
		if errors.Is(err, orchestrator.ErrInterrupted) {
			return &exitError{code: exitInterrupted}
		}
		return err
	}

	fmt.Println("\nNext steps:")
	fmt.Println("  phaser break   split long phases into sub-phases")
	fmt.Println("  phaser run     execute actionable tasks")
	return nil
}
