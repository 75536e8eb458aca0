package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/phaser/internal/orchestrator"
)

// Exit codes.
const (
	exitOK          = 0
	exitFailure     = 1
	exitInterrupted = 130
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

// exitCode maps a command error to a process exit code.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if errors.Is(err, orchestrator.ErrInterrupted) || errors.Is(err, context.Canceled) {
		return exitInterrupted
	}
	return exitFailure
}

var (
	flagPlanDir      string
	flagTemplatesDir string
	flagMetricsAddr  string
	flagDebugLog     bool
)

var rootCmd = &cobra.Command{
	Use:   "phaser",
	Short: "Hierarchical plan breakdown and execution engine",
	Long: `Phaser turns a requirements document into a hierarchical plan and drives
agents through it.

  phaser init prd.md      analyze the plan file and create the initial plan
  phaser break            split long phases into validated sub-phases
  phaser run              execute actionable leaf tasks in parallel batches

Plan documents live under .ai/plan as JSON. Agent templates are read from
.phaser/templates.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := signalContext()
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	code := exitCode(err)
	if err != nil && code != exitInterrupted {
		var ee *exitError
		if !errors.As(err, &ee) || ee.err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
	return code
}

// signalContext cancels on the first SIGINT or SIGTERM so the current batch
// can finish. A second signal exits immediately.
func signalContext() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
			return
		}
		fmt.Fprintln(os.Stderr, "\nReceived interrupt, finishing the current batch (press Ctrl+C again to abort)...")
		cancel()
		<-sigCh
		fmt.Fprintln(os.Stderr, "Aborted.")
		os.Exit(exitInterrupted)
	}()
	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagPlanDir, "plan-dir", "", "Plan directory (default from config, .ai/plan)")
	pf.StringVar(&flagTemplatesDir, "templates-dir", "", "Agent template directory (default from config, .phaser/templates)")
	pf.StringVar(&flagMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	pf.BoolVar(&flagDebugLog, "debug-log", false, "Write a debug log to .phaser/logs/phaser-debug.log")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(breakCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(updateStatusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(templatesCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
