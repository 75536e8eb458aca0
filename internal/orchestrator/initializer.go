package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ShayCichocki/phaser/internal/agent"
	"github.com/ShayCichocki/phaser/internal/metrics"
	"github.com/ShayCichocki/phaser/internal/monitor"
)

// OperationInit names the initialization system.
const OperationInit = "Initialization"

var (
	// ErrPlanFileNotFound is returned when the plan file is missing or not a file.
	ErrPlanFileNotFound = errors.New("plan file not found")
	// ErrTemplatesMissing is returned when required agent templates are absent.
	ErrTemplatesMissing = errors.New("agent templates missing")
	// ErrInitFailed is returned when any init agent failed.
	ErrInitFailed = errors.New("initialization completed with errors")
)

// InitTemplates are the templates the init system needs.
var InitTemplates = []string{
	agent.TemplatePlanAnalyzer,
	agent.TemplateSchemaDesigner,
	agent.TemplateStructureGenerator,
}

// ProjectDirs are created under the project root by init.
var ProjectDirs = []string{
	".ai/plan",
	".ai/schema",
	".ai/structure",
	agent.BrainTasksDir,
	agent.BrainValidationDir,
	agent.BrainStatusDir,
}

// InitConfig wires the initializer.
type InitConfig struct {
	Root      string
	Templates *agent.Templates
	Prompts   *agent.Prompts
	Invoker   agent.Invoker

	Out         io.Writer
	Monitor     *monitor.Monitor
	LiveDisplay bool
	Jitter      *JitterPolicy
	Metrics     *metrics.Metrics
	Logger      *DebugLogger
}

// Initializer turns a requirements document into the initial plan, schema
// and structure files.
type Initializer struct {
	cfg   InitConfig
	stats *Stats
}

// NewInitializer creates an initializer.
func NewInitializer(cfg InitConfig) *Initializer {
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = NopLogger()
	}
	if cfg.Monitor == nil {
		cfg.Monitor = monitor.New(2, monitor.WithOutput(cfg.Out))
	}
	return &Initializer{cfg: cfg, stats: NewStats(OperationInit)}
}

// Stats returns the initialization statistics.
func (in *Initializer) Stats() *Stats {
	return in.stats
}

// CheckPrerequisites validates the plan file and the templates. A leading
// "@" on the plan path is ignored. It returns the cleaned plan path.
func (in *Initializer) CheckPrerequisites(planFile string) (string, error) {
	planFile = strings.TrimPrefix(planFile, "@")
	info, err := os.Stat(planFile)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrPlanFileNotFound, planFile)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s is not a file", ErrPlanFileNotFound, planFile)
	}

	if _, err := os.Stat(in.cfg.Templates.Dir()); err != nil {
		return "", fmt.Errorf("%w: template directory %s: %v", ErrTemplatesMissing, in.cfg.Templates.Dir(), err)
	}
	if missing := in.cfg.Templates.Missing(InitTemplates...); len(missing) > 0 {
		return "", fmt.Errorf("%w: %s", ErrTemplatesMissing, strings.Join(missing, ", "))
	}
	return planFile, nil
}

// CreateProjectDirs creates the .ai working directories.
func CreateProjectDirs(root string) error {
	for _, dir := range ProjectDirs {
		if err := os.MkdirAll(filepath.Join(root, dir), 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// Run analyzes the plan file, then generates the schema and structure in
// parallel. Each phase runs to completion; an interrupt stops before the
// next phase.
func (in *Initializer) Run(ctx context.Context, planFile, target string) (err error) {
	out := in.cfg.Out
	defer func() {
		in.stats.Print(out)
		if err == nil {
			fmt.Fprintln(out, "[OK] Project initialization completed successfully!")
		}
	}()

	planFile, err = in.CheckPrerequisites(planFile)
	if err != nil {
		return err
	}
	if err := CreateProjectDirs(in.cfg.Root); err != nil {
		return err
	}

	fmt.Fprintln(out, "Starting Project Initialization")
	fmt.Fprintf(out, "Plan file: %s\n", planFile)
	fmt.Fprintf(out, "Target folder: %s\n", orDefault(target, "New project"))

	if in.cfg.LiveDisplay {
		in.cfg.Monitor.Start(ctx)
		defer in.cfg.Monitor.Stop()
	}

	detached := context.WithoutCancel(ctx)

	fmt.Fprintln(out, "\n--- Phase 1: Plan Analysis ---")
	if !in.runAgent(detached, 1, agent.TemplatePlanAnalyzer, func(t *agent.Template) string {
		return in.cfg.Prompts.PlanAnalyzerPrompt(t, planFile, target)
	}) {
		return fmt.Errorf("%w: plan analysis failed", ErrInitFailed)
	}

	if ctx.Err() != nil {
		return ErrInterrupted
	}

	fmt.Fprintln(out, "\n--- Phase 2: Parallel Generation ---")
	jitter := DefaultJitter()
	if in.cfg.Jitter != nil {
		jitter = *in.cfg.Jitter
	}
	pool := NewPool(2, WithJitter(jitter), WithPoolMetrics(in.cfg.Metrics), WithPoolLogger(in.cfg.Logger))
	builders := []struct {
		name  string
		build func(t *agent.Template) string
	}{
		{agent.TemplateSchemaDesigner, func(t *agent.Template) string { return in.cfg.Prompts.SchemaDesignerPrompt(t, target) }},
		{agent.TemplateStructureGenerator, func(t *agent.Template) string { return in.cfg.Prompts.StructureGeneratorPrompt(t, target) }},
	}
	units := make([]Unit, len(builders))
	for i, b := range builders {
		units[i] = func(ctx context.Context, slot int) error {
			if !in.runAgent(ctx, slot+1, b.name, b.build) {
				return fmt.Errorf("%s failed", b.name)
			}
			return nil
		}
	}
	var failed []string
	for i, uerr := range pool.Run(detached, units) {
		if uerr == nil {
			continue
		}
		var pe *PanicError
		if errors.As(uerr, &pe) {
			in.stats.RecordError()
		}
		failed = append(failed, builders[i].name)
	}
	if len(failed) > 0 {
		return fmt.Errorf("%w: %s", ErrInitFailed, strings.Join(failed, ", "))
	}
	return nil
}

// runAgent loads a template, invokes the agent on a monitor slot and records
// the outcome.
func (in *Initializer) runAgent(ctx context.Context, worker int, name string, build func(*agent.Template) string) bool {
	out := in.cfg.Out
	mon := in.cfg.Monitor

	tmpl, err := in.cfg.Templates.Load(name)
	if err != nil {
		fmt.Fprintf(out, "[ERROR] Failed to prepare %s: %v\n", name, err)
		in.stats.Record(false)
		return false
	}

	mon.Update(worker, "Running "+name, monitor.StateActive)
	start := time.Now()
	resp, err := agent.Stream(ctx, in.cfg.Invoker, build(tmpl), mon.StreamCallback(worker))
	ok := err == nil && resp.OK()
	in.cfg.Metrics.RecordAgentCall(name, ok, time.Since(start))
	in.stats.Record(ok)

	if !ok {
		msg := fmt.Sprintf("exit code %d", resp.ExitCode)
		if err != nil {
			msg = err.Error()
		}
		in.cfg.Logger.Log("[init] %s failed: %s", name, msg)
		mon.SetErrorThenIdle(worker, name+" failed", monitor.DefaultErrorIdleDelay)
		fmt.Fprintf(out, "[ERROR] %s failed: %s\n", name, msg)
		return false
	}
	mon.SetCompleted(worker, name)
	fmt.Fprintf(out, "[OK] %s completed\n", name)
	return true
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
