package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/phaser/internal/agent"
	"github.com/ShayCichocki/phaser/internal/orchestrator"
)

// requiredTemplates lists every template a command loads.
var requiredTemplates = append([]string{
	agent.TemplateBreakdown,
	agent.TemplateTaskAnalyzer,
	agent.TemplateValidator,
	agent.TemplateStatusUpdater,
}, orchestrator.InitTemplates...)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List agent templates",
	Long: `List the agent templates found in the template directory with their
front-matter descriptions, and report any template a command needs that is
missing.`,
	Args: cobra.NoArgs,
	RunE: runTemplates,
}

func runTemplates(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	names, err := a.templates.List()
	if err != nil {
		return fmt.Errorf("list templates: %w", err)
	}
	fmt.Printf("Templates in %s:\n", a.templates.Dir())
	if len(names) == 0 {
		fmt.Println("  (none)")
	}
	for _, name := range names {
		tmpl, err := a.templates.Load(name)
		if err != nil {
			printStatus("✗", fmt.Sprintf("%s: %v", name, err), color.FgRed)
			continue
		}
		line := name
		if tmpl.Meta.Description != "" {
			line += ": " + tmpl.Meta.Description
		}
		if tmpl.Meta.Model != "" {
			line += fmt.Sprintf(" [%s]", tmpl.Meta.Model)
		}
		printStatus("✓", line, color.FgGreen)
	}

	missing := a.templates.Missing(requiredTemplates...)
	if len(missing) > 0 {
		fmt.Println()
		for _, name := range missing {
			printStatus("⚠", "Missing "+name, color.FgYellow)
		}
	}
	return nil
}
