package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/phaser/internal/graph"
	"github.com/ShayCichocki/phaser/pkg/models"
)

var listYAML bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the plan tree with statuses",
	Long: `Print every phase and task with its resolved status, followed by the
tasks that are ready to run and the phases that still need breakdown.

With --yaml the whole plan tree is written as YAML instead.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVar(&listYAML, "yaml", false, "Export the plan tree as YAML")
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	if listYAML {
		return a.store.ExportYAML(os.Stdout)
	}

	project, tree, err := a.resolver.Tree()
	if err != nil {
		return fmt.Errorf("read plan: %w", err)
	}
	if project != nil && project.Title != "" {
		fmt.Printf("%s\n", color.New(color.Bold).Sprint(project.Title))
		if project.Description != "" {
			fmt.Printf("%s\n", project.Description)
		}
		fmt.Println()
	}
	if len(tree) == 0 {
		fmt.Printf("No phases found in %s. Run 'phaser init <plan-file>' first.\n", a.store.Dir())
		return nil
	}

	graph.Walk(tree, func(t *graph.TreeNode, depth int) {
		fmt.Println(formatTreeLine(t, depth))
	})

	actionable, err := a.resolver.ActionableNodes()
	if err != nil {
		return fmt.Errorf("find actionable tasks: %w", err)
	}
	fmt.Printf("\nReady to run (%d):\n", len(actionable))
	for _, c := range actionable {
		fmt.Printf("  %s: %s\n", c.Node.ID, c.Node.Title)
	}

	needing, err := a.resolver.NodesNeedingBreakdown(a.cfg.Loop.CandidateLimit)
	if err != nil {
		return fmt.Errorf("find phases needing breakdown: %w", err)
	}
	fmt.Printf("\nNeeding breakdown (%d):\n", len(needing))
	for _, c := range needing {
		fmt.Printf("  %s: %s (%s min)\n", c.Node.ID, c.Node.Title, c.Node.Duration)
	}

	if len(needing) == a.cfg.Loop.CandidateLimit {
		fmt.Printf("  (showing the first %d)\n", len(needing))
	}
	return nil
}

// formatTreeLine renders one tree row: indentation, status glyph, id, title
// and duration.
func formatTreeLine(t *graph.TreeNode, depth int) string {
	var b strings.Builder
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(statusGlyph(t.Status))
	b.WriteString(" ")
	b.WriteString(t.Node.ID)
	b.WriteString(": ")
	b.WriteString(t.Node.Title)
	if !t.Node.Duration.IsZero() {
		fmt.Fprintf(&b, " (%s min)", t.Node.Duration)
	}
	if graph.NeedsBreakdown(t.Node.Duration) && t.Leaf && len(t.Children) == 0 {
		b.WriteString(" [needs breakdown]")
	}
	return b.String()
}

func statusGlyph(s models.Status) string {
	switch s {
	case models.StatusCompleted:
		return color.GreenString("✓")
	case models.StatusInProgress:
		return color.YellowString("~")
	case models.StatusPending:
		return "○"
	default:
		return color.RedString("?")
	}
}
