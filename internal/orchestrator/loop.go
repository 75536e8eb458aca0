package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/ShayCichocki/phaser/internal/graph"
	"github.com/ShayCichocki/phaser/internal/metrics"
	"github.com/ShayCichocki/phaser/internal/monitor"
	"github.com/ShayCichocki/phaser/internal/state"
)

// ErrInterrupted is returned when a user interrupt stopped the loop.
var ErrInterrupted = errors.New("interrupted")

// Outcome is how a loop run ended.
type Outcome int

const (
	// OutcomeDone means no work remained.
	OutcomeDone Outcome = iota
	// OutcomeExhausted means the iteration limit was reached with work left.
	OutcomeExhausted
	// OutcomeInterrupted means a user interrupt stopped the loop between batches.
	OutcomeInterrupted
	// OutcomeFailed means the loop could not continue.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDone:
		return "done"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeInterrupted:
		return "interrupted"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DefaultMaxIterations bounds a loop run.
const DefaultMaxIterations = 50

// BatchSource supplies work to a Loop and processes batches of it.
type BatchSource interface {
	// Operation names the system for output, stats and history.
	Operation() string
	// Pending returns every node currently eligible, in dispatch order.
	Pending(ctx context.Context) ([]graph.Candidate, error)
	// Announce prints what this iteration found before the batch runs.
	Announce(w io.Writer, pending, batch []graph.Candidate)
	// RunBatch processes the batch and reports every node through b.Finish.
	// An error aborts the loop.
	RunBatch(ctx context.Context, b *Batch) error
}

// candidateLimiter is implemented by sources that cap how many pending nodes
// one iteration considers. The cap applies after attempted ids are removed.
type candidateLimiter interface {
	CandidateLimit() int
}

// NodeOutcome is the result of processing one node.
type NodeOutcome struct {
	NodeID  string
	Success bool
	Score   int
	Verdict string
	Err     string
}

// Batch is one iteration's slice of work together with the shared
// machinery workers report into.
type Batch struct {
	Iteration int
	Items     []graph.Candidate
	Pool      *Pool
	Monitor   *monitor.Monitor
	Out       io.Writer
	Metrics   *metrics.Metrics
	Logger    *DebugLogger

	loop    *Loop
	printMu sync.Mutex
}

// Finish records a node's outcome in stats, metrics and history.
func (b *Batch) Finish(o NodeOutcome) {
	l := b.loop
	l.stats.Record(o.Success)
	l.cfg.Metrics.RecordNode(l.source.Operation(), o.Success)
	if l.history == nil || l.runID == "" {
		return
	}
	err := l.history.RecordNode(state.NodeResult{
		RunID:     l.runID,
		NodeID:    o.NodeID,
		Operation: l.source.Operation(),
		Success:   o.Success,
		Score:     o.Score,
		Verdict:   o.Verdict,
		Error:     o.Err,
	})
	if err != nil {
		l.cfg.Logger.Log("[loop] record node %s: %v", o.NodeID, err)
	}
}

// Progress returns the run's successful and failed counts so far.
func (b *Batch) Progress() (successful, failed int) {
	return b.loop.stats.Counts()
}

// Print writes s to the batch output in one piece so concurrent workers do
// not interleave their reports.
func (b *Batch) Print(s string) {
	b.printMu.Lock()
	defer b.printMu.Unlock()
	io.WriteString(b.Out, s)
}

// LoopConfig configures a Loop.
type LoopConfig struct {
	Workers       int
	MaxIterations int
	// Timeout bounds each worker unit. Zero means no limit.
	Timeout time.Duration
	Jitter  *JitterPolicy

	Out io.Writer
	// Monitor is created with Workers slots when nil.
	Monitor *monitor.Monitor
	// LiveDisplay prints monitor frames while batches run.
	LiveDisplay bool

	Interrupter Interrupter
	Metrics     *metrics.Metrics
	History     *state.History
	Logger      *DebugLogger
}

// Loop is the batch control loop shared by the breakdown and execution
// systems.
type Loop struct {
	source  BatchSource
	cfg     LoopConfig
	pool    *Pool
	mon     *monitor.Monitor
	stats   *Stats
	history *state.History

	runID      string
	iterations int
	attempted  map[string]bool
}

// NewLoop creates a loop over source.
func NewLoop(source BatchSource, cfg LoopConfig) *Loop {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxIterations < 1 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = NopLogger()
	}
	jitter := DefaultJitter()
	if cfg.Jitter != nil {
		jitter = *cfg.Jitter
	}
	mon := cfg.Monitor
	if mon == nil {
		mon = monitor.New(cfg.Workers, monitor.WithOutput(cfg.Out))
	}

	return &Loop{
		source: source,
		cfg:    cfg,
		pool: NewPool(cfg.Workers,
			WithTimeout(cfg.Timeout),
			WithJitter(jitter),
			WithPoolMetrics(cfg.Metrics),
			WithPoolLogger(cfg.Logger),
		),
		mon:       mon,
		stats:     NewStats(source.Operation()),
		history:   cfg.History,
		attempted: make(map[string]bool),
	}
}

// Stats returns the run statistics.
func (l *Loop) Stats() *Stats {
	return l.stats
}

// Monitor returns the worker monitor.
func (l *Loop) Monitor() *monitor.Monitor {
	return l.mon
}

// Iterations returns how many batches have been dispatched.
func (l *Loop) Iterations() int {
	return l.iterations
}

// RunID returns the history id of the current run, if history is enabled.
func (l *Loop) RunID() string {
	return l.runID
}

// Run drives batches until no work remains, the iteration limit is reached,
// or an interrupt arrives. Interrupts are checked only between batches;
// a dispatched batch always runs to completion. The summary is printed on
// every exit path.
func (l *Loop) Run(ctx context.Context) (outcome Outcome, err error) {
	op := l.source.Operation()
	l.cfg.Logger.Log("[loop] %s starting: workers=%d max_iterations=%d", op, l.cfg.Workers, l.cfg.MaxIterations)

	if l.history != nil {
		id, herr := l.history.StartRun(op)
		if herr != nil {
			log.Printf("[loop] history disabled: %v", herr)
		}
		l.runID = id
	}
	if l.cfg.LiveDisplay {
		l.mon.Start(ctx)
	}

	defer func() {
		if r := recover(); r != nil {
			l.stats.RecordError()
			outcome, err = OutcomeFailed, fmt.Errorf("%s loop panicked: %v", op, r)
		}
		l.mon.Stop()
		l.stats.Print(l.cfg.Out)
		l.finishRun(outcome)
		l.cfg.Logger.Log("[loop] %s finished: outcome=%s iterations=%d", op, outcome, l.iterations)
	}()

	for {
		if l.interrupted(ctx) {
			fmt.Fprintf(l.cfg.Out, "\nInterrupt received, stopping after %d iteration(s)\n", l.iterations)
			return OutcomeInterrupted, ErrInterrupted
		}

		pending, err := l.source.Pending(ctx)
		if err != nil {
			return OutcomeFailed, fmt.Errorf("find %s work: %w", op, err)
		}
		pending = l.unattempted(pending)
		if lim, ok := l.source.(candidateLimiter); ok {
			if n := lim.CandidateLimit(); n > 0 && len(pending) > n {
				pending = pending[:n]
			}
		}
		if len(pending) == 0 {
			fmt.Fprintf(l.cfg.Out, "\nNo more %s work found\n", op)
			return OutcomeDone, nil
		}
		if l.iterations >= l.cfg.MaxIterations {
			fmt.Fprintf(l.cfg.Out, "\nReached max iterations (%d) with %d item(s) remaining\n", l.cfg.MaxIterations, len(pending))
			return OutcomeExhausted, nil
		}

		l.iterations++
		batch := pending[:min(l.cfg.Workers, len(pending))]
		for _, c := range batch {
			l.attempted[c.Node.ID] = true
		}

		fmt.Fprintf(l.cfg.Out, "\n--- Iteration %d ---\n", l.iterations)
		l.source.Announce(l.cfg.Out, pending, batch)
		l.cfg.Metrics.RecordBatch(op)

		b := &Batch{
			Iteration: l.iterations,
			Items:     batch,
			Pool:      l.pool,
			Monitor:   l.mon,
			Out:       l.cfg.Out,
			Metrics:   l.cfg.Metrics,
			Logger:    l.cfg.Logger,
			loop:      l,
		}
		// The batch runs detached from cancellation so an interrupt lets
		// in-flight agents finish.
		if err := l.source.RunBatch(context.WithoutCancel(ctx), b); err != nil {
			return OutcomeFailed, fmt.Errorf("run %s batch %d: %w", op, l.iterations, err)
		}

		successful, failed := l.stats.Counts()
		l.mon.SetProgress(successful+failed, successful+failed+len(pending)-len(batch))
		fmt.Fprintf(l.cfg.Out, "\nBatch completed: %d successful, %d failed so far\n", successful, failed)
	}
}

func (l *Loop) interrupted(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return l.cfg.Interrupter != nil && l.cfg.Interrupter.ShouldStop()
}

func (l *Loop) unattempted(cs []graph.Candidate) []graph.Candidate {
	out := cs[:0:0]
	for _, c := range cs {
		if !l.attempted[c.Node.ID] {
			out = append(out, c)
		}
	}
	return out
}

func (l *Loop) finishRun(outcome Outcome) {
	if l.history == nil || l.runID == "" {
		return
	}
	successful, failed := l.stats.Counts()
	if err := l.history.FinishRun(l.runID, outcome.String(), successful, failed, l.iterations); err != nil {
		l.cfg.Logger.Log("[loop] finish run %s: %v", l.runID, err)
	}
}
