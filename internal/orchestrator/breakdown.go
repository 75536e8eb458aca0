package orchestrator

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ShayCichocki/phaser/internal/agent"
	"github.com/ShayCichocki/phaser/internal/graph"
	"github.com/ShayCichocki/phaser/internal/monitor"
	"github.com/ShayCichocki/phaser/internal/strategy"
	"github.com/ShayCichocki/phaser/internal/validation"
	"github.com/ShayCichocki/phaser/pkg/models"
)

// OperationBreakdown names the breakdown system.
const OperationBreakdown = "Breakdown"

// DefaultCandidateLimit caps how many candidates one iteration looks at.
const DefaultCandidateLimit = 50

// BreakdownConfig wires the breakdown system's collaborators.
type BreakdownConfig struct {
	Resolver  *graph.Resolver
	Composer  *strategy.Composer
	Engine    *validation.Engine
	Templates *agent.Templates
	Prompts   *agent.Prompts
	Invoker   agent.Invoker
	// CandidateLimit caps each iteration's candidates once nodes already
	// attempted in the run are removed. Defaults to DefaultCandidateLimit.
	CandidateLimit int
}

// BreakdownSystem splits nodes whose estimates exceed the threshold into
// validated children.
type BreakdownSystem struct {
	cfg BreakdownConfig
}

// NewBreakdownSystem creates the breakdown system.
func NewBreakdownSystem(cfg BreakdownConfig) *BreakdownSystem {
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = DefaultCandidateLimit
	}
	if cfg.Engine == nil {
		cfg.Engine = validation.NewEngine()
	}
	return &BreakdownSystem{cfg: cfg}
}

// Operation implements BatchSource.
func (s *BreakdownSystem) Operation() string {
	return OperationBreakdown
}

// Pending returns the largest nodes still needing breakdown.
func (s *BreakdownSystem) Pending(ctx context.Context) ([]graph.Candidate, error) {
	return s.cfg.Resolver.NodesNeedingBreakdown(0)
}

// CandidateLimit returns the per-iteration candidate cap.
func (s *BreakdownSystem) CandidateLimit() int {
	return s.cfg.CandidateLimit
}

// Announce prints the candidates grouped by the file they came from.
func (s *BreakdownSystem) Announce(w io.Writer, pending, batch []graph.Candidate) {
	fmt.Fprintf(w, "Found %d phase(s) needing breakdown:\n", len(pending))
	printGrouped(w, pending)
	fmt.Fprintf(w, "Processing %d phase(s)\n", len(batch))
}

func printGrouped(w io.Writer, cs []graph.Candidate) {
	var order []string
	bySource := make(map[string][]graph.Candidate)
	for _, c := range cs {
		if _, ok := bySource[c.Source]; !ok {
			order = append(order, c.Source)
		}
		bySource[c.Source] = append(bySource[c.Source], c)
	}
	for _, src := range order {
		fmt.Fprintf(w, "File: %s\n", src)
		for _, c := range bySource[src] {
			fmt.Fprintf(w, "   - %s: %s (%smin)\n", c.Node.ID, c.Node.Title, c.Node.Duration)
		}
	}
}

// RunBatch breaks down every node in the batch concurrently.
func (s *BreakdownSystem) RunBatch(ctx context.Context, b *Batch) error {
	units := make([]Unit, len(b.Items))
	outcomes := make([]NodeOutcome, len(b.Items))
	for i, c := range b.Items {
		units[i] = func(ctx context.Context, slot int) error {
			outcomes[slot] = s.breakdown(ctx, b, slot+1, c)
			return nil
		}
	}

	for i, err := range b.Pool.Run(ctx, units) {
		if err != nil {
			id := b.Items[i].Node.ID
			outcomes[i] = NodeOutcome{NodeID: id, Err: err.Error()}
			b.Monitor.SetErrorThenIdle(i+1, err.Error(), monitor.DefaultErrorIdleDelay)
			b.Print(fmt.Sprintf("✗ %s: %v\n", id, err))
		}
		b.Finish(outcomes[i])
	}
	return nil
}

// breakdown runs one worker: compose, invoke, parse, validate, write.
func (s *BreakdownSystem) breakdown(ctx context.Context, b *Batch, worker int, c graph.Candidate) NodeOutcome {
	id := c.Node.ID
	fail := func(msg string) NodeOutcome {
		b.Logger.Log("[breakdown] %s failed: %s", id, msg)
		b.Monitor.SetErrorThenIdle(worker, id+": "+msg, monitor.DefaultErrorIdleDelay)
		b.Print(fmt.Sprintf("✗ %s: %s\n", id, msg))
		return NodeOutcome{NodeID: id, Err: msg}
	}

	b.Monitor.Update(worker, "Composing context for "+id, monitor.StateActive)
	sc, err := s.cfg.Composer.Compose(id)
	if err != nil {
		return fail(fmt.Sprintf("compose context: %v", err))
	}

	tmpl, err := s.cfg.Templates.Load(agent.TemplateBreakdown)
	if err != nil {
		return fail(err.Error())
	}
	prompt := s.cfg.Prompts.BreakdownPrompt(tmpl, sc, c.Node, c.Source)

	b.Monitor.Update(worker, "Breaking down "+id, monitor.StateActive)
	start := time.Now()
	resp, err := agent.Stream(ctx, s.cfg.Invoker, prompt, b.Monitor.StreamCallback(worker))
	b.Metrics.RecordAgentCall(agent.TemplateBreakdown, err == nil && resp.OK(), time.Since(start))
	if err != nil {
		return fail(fmt.Sprintf("invoke agent: %v", err))
	}
	if !resp.OK() {
		return fail(fmt.Sprintf("agent exited with code %d: %s", resp.ExitCode, firstLine(resp.Text)))
	}

	bd, err := validation.ParseBreakdown(resp.Text)
	if err != nil {
		result := validation.ParseFailure(err)
		b.Print(formatBreakdownResult(id, result))
		b.Monitor.SetErrorThenIdle(worker, id+": unparseable reply", monitor.DefaultErrorIdleDelay)
		return NodeOutcome{NodeID: id, Err: err.Error()}
	}
	bd.Normalize(id)

	result := s.cfg.Engine.Validate(bd, sc)
	b.Metrics.ObserveScore(result.Score)
	accepted := s.cfg.Engine.Accept(result)

	if err := s.write(c, bd, accepted); err != nil {
		return fail(err.Error())
	}

	b.Print(formatBreakdownResult(id, result))
	if !accepted {
		b.Monitor.SetErrorThenIdle(worker, fmt.Sprintf("%s: validation score %d", id, result.Score), monitor.DefaultErrorIdleDelay)
		return NodeOutcome{NodeID: id, Score: result.Score, Err: "breakdown failed validation"}
	}
	b.Monitor.SetCompleted(worker, fmt.Sprintf("%s -> %d phases", id, len(bd.Phases)))
	return NodeOutcome{NodeID: id, Success: true, Score: result.Score}
}

// write stages the node's document with its new children, then promotes it
// when accepted and discards it otherwise. An existing document keeps its
// other fields.
func (s *BreakdownSystem) write(c graph.Candidate, bd validation.Breakdown, accepted bool) error {
	store := s.cfg.Resolver.Store()
	id := c.Node.ID

	doc, ok, err := store.LoadDocument(id)
	if err != nil {
		return fmt.Errorf("load document %s: %w", id, err)
	}
	if !ok {
		n := c.Node
		doc = &models.Document{
			ID:           n.ID,
			Title:        n.Title,
			Description:  n.Description,
			Status:       n.Status.OrPending(),
			Priority:     n.Priority,
			Duration:     n.Duration,
			Dependencies: n.Dependencies,
			Deliverables: n.Deliverables,
		}
	}
	doc.Phases = bd.Phases
	doc.BreakdownComplete = true

	if err := store.Stage(doc); err != nil {
		return fmt.Errorf("stage %s: %w", id, err)
	}
	if !accepted {
		return store.Discard(id)
	}
	if err := store.Promote(id); err != nil {
		return fmt.Errorf("promote %s: %w", id, err)
	}
	return nil
}

func formatBreakdownResult(id string, r *validation.Result) string {
	var sb strings.Builder
	mark := "✓"
	if !r.Valid {
		mark = "✗"
	}
	fmt.Fprintf(&sb, "%s %s: score %d/80\n", mark, id, r.Score)
	for _, check := range validation.AllChecks {
		res, ok := r.Checks[check]
		if !ok {
			continue
		}
		verdict := "PASS"
		if !res.Passed {
			verdict = "FAIL"
		}
		fmt.Fprintf(&sb, "   %s: %s\n", check, verdict)
	}
	for i, rec := range r.Recommendations {
		if i == 2 {
			break
		}
		fmt.Fprintf(&sb, "   -> %s\n", rec)
	}
	return sb.String()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return monitor.Truncate(s, 120)
}

var _ BatchSource = (*BreakdownSystem)(nil)
