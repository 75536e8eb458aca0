package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ShayCichocki/phaser/internal/agent"
	"github.com/ShayCichocki/phaser/internal/graph"
	"github.com/ShayCichocki/phaser/internal/monitor"
	"github.com/ShayCichocki/phaser/internal/strategy"
	"github.com/ShayCichocki/phaser/internal/validation"
	"github.com/ShayCichocki/phaser/pkg/models"
)

// OperationExecution names the task execution system.
const OperationExecution = "Task Execution"

// ErrTaskAnalysis is returned when the analyzer agent fails, which aborts
// the batch before any task runs.
var ErrTaskAnalysis = errors.New("task analysis failed")

// ExecutionConfig wires the execution system's collaborators.
type ExecutionConfig struct {
	Resolver  *graph.Resolver
	Composer  *strategy.Composer
	Templates *agent.Templates
	Prompts   *agent.Prompts
	Invoker   agent.Invoker
}

// TaskExecutionSystem runs actionable leaf tasks through analysis,
// execution, validation and status update.
type TaskExecutionSystem struct {
	cfg ExecutionConfig
}

// NewTaskExecutionSystem creates the execution system.
func NewTaskExecutionSystem(cfg ExecutionConfig) *TaskExecutionSystem {
	return &TaskExecutionSystem{cfg: cfg}
}

// Operation implements BatchSource.
func (s *TaskExecutionSystem) Operation() string {
	return OperationExecution
}

// Pending returns the actionable nodes in dispatch order.
func (s *TaskExecutionSystem) Pending(ctx context.Context) ([]graph.Candidate, error) {
	return s.cfg.Resolver.ActionableNodes()
}

// Announce lists the actionable tasks.
func (s *TaskExecutionSystem) Announce(w io.Writer, pending, batch []graph.Candidate) {
	fmt.Fprintf(w, "Found %d actionable task(s):\n", len(pending))
	for _, c := range pending {
		priority := string(c.Node.Priority)
		if priority == "" {
			priority = "unset"
		}
		fmt.Fprintf(w, "   - %s: %s [%s]\n", c.Node.ID, c.Node.Title, priority)
	}
	fmt.Fprintf(w, "Processing %d task(s)\n", len(batch))
}

// taskRun carries one task through the four phases.
type taskRun struct {
	node     models.Node
	executed bool
	verdict  validation.Verdict
	status   models.Status
	err      string
}

// RunBatch runs the four phases over the batch. Each phase fans out over the
// pool and finishes before the next starts.
func (s *TaskExecutionSystem) RunBatch(ctx context.Context, b *Batch) error {
	runs := make([]*taskRun, len(b.Items))
	for i, c := range b.Items {
		runs[i] = &taskRun{node: c.Node, verdict: validation.VerdictFail}
	}

	if err := s.analyze(ctx, b, runs); err != nil {
		for _, r := range runs {
			b.Finish(NodeOutcome{NodeID: r.node.ID, Err: err.Error()})
		}
		return err
	}
	s.execute(ctx, b, runs)
	s.validate(ctx, b, runs)
	s.updateStatus(ctx, b, runs)

	for _, r := range runs {
		b.Finish(NodeOutcome{
			NodeID:  r.node.ID,
			Success: r.executed && r.verdict == validation.VerdictPass && r.err == "",
			Verdict: string(r.verdict),
			Err:     r.err,
		})
	}
	return nil
}

// analyze composes every task's strategic context in parallel, then asks
// the analyzer agent to write per-task context files.
func (s *TaskExecutionSystem) analyze(ctx context.Context, b *Batch, runs []*taskRun) error {
	b.Print("\n--- Phase 1: Task Analysis ---\n")

	contexts := make([]*strategy.Context, len(runs))
	units := make([]Unit, len(runs))
	for i, r := range runs {
		units[i] = func(ctx context.Context, slot int) error {
			sc, err := s.cfg.Composer.Compose(r.node.ID)
			if err != nil {
				b.Print(fmt.Sprintf("Warning: no strategic context for task %s: %v\n", r.node.ID, err))
				return nil
			}
			contexts[slot] = sc
			return nil
		}
	}
	b.Pool.Run(ctx, units)

	tasks := make([]models.Node, len(runs))
	byID := make(map[string]*strategy.Context, len(runs))
	for i, r := range runs {
		tasks[i] = r.node
		if contexts[i] != nil {
			byID[r.node.ID] = contexts[i]
		}
	}

	tmpl, err := s.cfg.Templates.Load(agent.TemplateTaskAnalyzer)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTaskAnalysis, err)
	}
	prompt := s.cfg.Prompts.TaskAnalyzerPrompt(tmpl, tasks, byID)

	b.Monitor.Update(1, "Analyzing tasks", monitor.StateActive)
	_, err = s.call(ctx, b, agent.TemplateTaskAnalyzer, prompt, b.Monitor.StreamCallback(1))
	if err != nil {
		b.Monitor.SetErrorThenIdle(1, "task analysis failed", monitor.DefaultErrorIdleDelay)
		b.Print(fmt.Sprintf("[ERROR] Task analysis failed: %v\n", err))
		return fmt.Errorf("%w: %v", ErrTaskAnalysis, err)
	}
	b.Monitor.SetIdle(1)
	b.Print("[OK] Task analysis completed\n")
	return nil
}

// execute runs one execution agent per task. A failure leaves the task's
// status untouched so it stays eligible on the next run.
func (s *TaskExecutionSystem) execute(ctx context.Context, b *Batch, runs []*taskRun) {
	b.Print("\n--- Phase 2: Task Execution ---\n")

	units := make([]Unit, len(runs))
	for i, r := range runs {
		units[i] = func(ctx context.Context, slot int) error {
			worker := slot + 1
			b.Monitor.Update(worker, fmt.Sprintf("Executing task %s: %s", r.node.ID, r.node.Title), monitor.StateActive)
			_, err := s.call(ctx, b, "task-executor", s.cfg.Prompts.TaskExecutionPrompt(r.node), b.Monitor.StreamCallback(worker))
			if err != nil {
				return err
			}
			r.executed = true
			b.Monitor.SetCompleted(worker, "Executed "+r.node.ID)
			b.Print(fmt.Sprintf("✓ %s executed\n", r.node.ID))
			return nil
		}
	}
	for i, err := range b.Pool.Run(ctx, units) {
		if err != nil {
			runs[i].err = err.Error()
			b.Monitor.SetErrorThenIdle(i+1, runs[i].node.ID+": "+err.Error(), monitor.DefaultErrorIdleDelay)
			b.Print(fmt.Sprintf("✗ %s execution failed: %v\n", runs[i].node.ID, err))
		}
	}
}

// validate asks the validator agent for a verdict on each executed task.
// Tasks that did not execute keep FAIL.
func (s *TaskExecutionSystem) validate(ctx context.Context, b *Batch, runs []*taskRun) {
	b.Print("\n--- Phase 3: Quality Validation ---\n")

	tmpl, err := s.cfg.Templates.Load(agent.TemplateValidator)
	if err != nil {
		b.Logger.Log("[execution] validator template: %v", err)
	}

	units := make([]Unit, len(runs))
	for i, r := range runs {
		units[i] = func(ctx context.Context, slot int) error {
			if !r.executed {
				return nil
			}
			worker := slot + 1
			b.Monitor.Update(worker, "Validating "+r.node.ID, monitor.StateActive)
			resp, err := s.call(ctx, b, agent.TemplateValidator, s.cfg.Prompts.ValidatorPrompt(tmpl, r.node.ID), b.Monitor.StreamCallback(worker))
			if err != nil {
				b.Monitor.SetErrorThenIdle(worker, "validation failed for "+r.node.ID, monitor.DefaultErrorIdleDelay)
				b.Print(fmt.Sprintf("✗ %s validation failed: %v\n", r.node.ID, err))
				return nil
			}
			r.verdict = validation.ParseVerdict(resp.Text)
			b.Monitor.SetIdle(worker)
			b.Print(fmt.Sprintf("%s %s: %s\n", verdictMark(r.verdict), r.node.ID, r.verdict))
			return nil
		}
	}
	b.Pool.Run(ctx, units)
}

// updateStatus writes the verdict into the plan: PASS completes the task,
// anything else marks it in progress. The status-updater agent then writes
// its log; its failure does not change the recorded status.
func (s *TaskExecutionSystem) updateStatus(ctx context.Context, b *Batch, runs []*taskRun) {
	b.Print("\n--- Phase 4: Status Management ---\n")

	tmpl, err := s.cfg.Templates.Load(agent.TemplateStatusUpdater)
	if err != nil {
		b.Logger.Log("[execution] status updater template: %v", err)
	}

	units := make([]Unit, len(runs))
	for i, r := range runs {
		units[i] = func(ctx context.Context, slot int) error {
			if !r.executed {
				return nil
			}
			status := models.StatusInProgress
			if r.verdict == validation.VerdictPass {
				status = models.StatusCompleted
			}
			if err := s.cfg.Resolver.SetStatus(r.node.ID, status); err != nil {
				r.err = fmt.Sprintf("set status: %v", err)
				b.Print(fmt.Sprintf("✗ %s: %s\n", r.node.ID, r.err))
				return nil
			}
			r.status = status
			b.Print(fmt.Sprintf("%s -> %s\n", r.node.ID, status))

			worker := slot + 1
			b.Monitor.Update(worker, "Logging status for "+r.node.ID, monitor.StateActive)
			prompt := s.cfg.Prompts.StatusUpdaterPrompt(tmpl, r.node.ID, string(r.verdict), status)
			if _, err := s.call(ctx, b, agent.TemplateStatusUpdater, prompt, b.Monitor.StreamCallback(worker)); err != nil {
				b.Logger.Log("[execution] status log for %s: %v", r.node.ID, err)
			}
			b.Monitor.SetIdle(worker)
			return nil
		}
	}
	b.Pool.Run(ctx, units)
}

// call invokes the agent with streaming and folds a non-zero exit into an
// error.
func (s *TaskExecutionSystem) call(ctx context.Context, b *Batch, name, prompt string, onText func(string)) (agent.Response, error) {
	start := time.Now()
	resp, err := agent.Stream(ctx, s.cfg.Invoker, prompt, onText)
	b.Metrics.RecordAgentCall(name, err == nil && resp.OK(), time.Since(start))
	if err != nil {
		return resp, err
	}
	if !resp.OK() {
		return resp, fmt.Errorf("agent exited with code %d: %s", resp.ExitCode, firstLine(resp.Text))
	}
	return resp, nil
}

func verdictMark(v validation.Verdict) string {
	switch v {
	case validation.VerdictPass:
		return "✓"
	case validation.VerdictPartial:
		return "~"
	default:
		return "✗"
	}
}

var _ BatchSource = (*TaskExecutionSystem)(nil)
