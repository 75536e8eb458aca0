package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/phaser/internal/graph"
	"github.com/ShayCichocki/phaser/pkg/models"
)

var updateAll bool

var updateStatusCmd = &cobra.Command{
	Use:   "update-status <id> <status> | --all <status>",
	Short: "Set the status of a node, or of every node",
	Long: `Set a node's status to pending, in-progress or completed.

The node's document and all of its embedded children are updated. Completing
the last open child of a phase completes the phase as well.

With --all every document and aggregate entry is set to the status.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if updateAll {
			return cobra.ExactArgs(1)(cmd, args)
		}
		return cobra.ExactArgs(2)(cmd, args)
	},
	RunE: runUpdateStatus,
}

func init() {
	updateStatusCmd.Flags().BoolVar(&updateAll, "all", false, "Apply the status to every node")
}

func runUpdateStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	if updateAll {
		status, err := parseStatus(args[0])
		if err != nil {
			return err
		}
		n, err := a.resolver.SetAllStatus(status)
		if err != nil {
			return fmt.Errorf("update statuses: %w", err)
		}
		printStatus("✓", fmt.Sprintf("Set %d file(s) to %s", n, status), color.FgGreen)
		return nil
	}

	id := args[0]
	status, err := parseStatus(args[1])
	if err != nil {
		return err
	}
	if err := a.resolver.SetStatus(id, status); err != nil {
		if errors.Is(err, graph.ErrNodeNotFound) {
			printStatus("✗", fmt.Sprintf("Node %s not found in %s", id, a.store.Dir()), color.FgRed)
			return &exitError{code: exitFailure}
		}
		return fmt.Errorf("update %s: %w", id, err)
	}
	printStatus("✓", fmt.Sprintf("%s -> %s", id, status), color.FgGreen)
	return nil
}

// parseStatus accepts the status names case-insensitively, with
// in_progress as an alias.
func parseStatus(s string) (models.Status, error) {
	status := models.Status(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-"))
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q (want pending, in-progress or completed)", graph.ErrInvalidStatus, s)
	}
	return status, nil
}
