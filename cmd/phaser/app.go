package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/anthropics/anthropic-sdk-go"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"

	"github.com/ShayCichocki/phaser/internal/agent"
	"github.com/ShayCichocki/phaser/internal/api"
	"github.com/ShayCichocki/phaser/internal/config"
	"github.com/ShayCichocki/phaser/internal/graph"
	"github.com/ShayCichocki/phaser/internal/metrics"
	"github.com/ShayCichocki/phaser/internal/monitor"
	"github.com/ShayCichocki/phaser/internal/orchestrator"
	"github.com/ShayCichocki/phaser/internal/plan"
	"github.com/ShayCichocki/phaser/internal/state"
	"github.com/ShayCichocki/phaser/internal/strategy"
)

// app holds the collaborators shared by the commands of one invocation.
type app struct {
	root      string
	cfg       *config.Config
	logger    *orchestrator.DebugLogger
	store     *plan.Store
	resolver  *graph.Resolver
	templates *agent.Templates
	prompts   *agent.Prompts
	inv       agent.Invoker
	metrics   *metrics.Metrics
	history   *state.History
	kill      *orchestrator.KillWatcher

	closers []func() error
}

// appOptions selects the optional collaborators a command needs.
type appOptions struct {
	agents  bool
	history bool
}

// newApp loads configuration, applies the global flags and wires the
// plan store. Agents, metrics and history are set up only when requested.
func newApp(ctx context.Context, opts appOptions) (*app, error) {
	root, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &app{root: root, cfg: cfg, logger: orchestrator.NopLogger()}
	if flagDebugLog {
		a.logger = orchestrator.NewDebugLoggerForProject(root)
		a.closers = append(a.closers, a.logger.Close)
	}

	if opts.agents {
		inv, err := newInvoker(root, cfg, a.logger)
		if err != nil {
			return nil, err
		}
		a.inv = inv
	}

	storeOpts := []plan.Option{plan.WithLogger(a.logger.Log)}
	if cfg.Plan.Repair && a.inv != nil {
		storeOpts = append(storeOpts, plan.WithRepairer(agent.NewRepairer(a.inv)))
	}
	a.store = plan.Open(a.abs(cfg.Plan.Dir), storeOpts...)
	a.resolver = graph.New(a.store)
	a.resolver.SetDebugLog(a.logger.Log)
	a.templates = agent.NewTemplates(a.abs(cfg.Templates.Dir))
	a.prompts = agent.NewPrompts(root, cfg.Plan.Dir)

	if opts.agents {
		a.startMetrics(ctx)
		kw, err := orchestrator.NewKillWatcher(root)
		if err != nil {
			log.Printf("[phaser] kill signal watcher disabled: %v", err)
		} else {
			kw.Clear()
			a.kill = kw
			a.closers = append(a.closers, kw.Close)
		}
	}
	if opts.history || opts.agents {
		a.openHistory()
	}
	return a, nil
}

// applyFlags lets the global flags override configuration.
func applyFlags(cfg *config.Config) {
	if flagPlanDir != "" {
		cfg.Plan.Dir = flagPlanDir
	}
	if flagTemplatesDir != "" {
		cfg.Templates.Dir = flagTemplatesDir
	}
	if flagMetricsAddr != "" {
		cfg.Metrics.Addr = flagMetricsAddr
	}
}

func (a *app) abs(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(a.root, p)
}

// close releases everything newApp opened, in reverse order.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("[phaser] close: %v", err)
		}
	}
}

func (a *app) startMetrics(ctx context.Context) {
	if a.cfg.Metrics.Addr == "" {
		return
	}
	reg, m := metrics.NewRegistry()
	a.metrics = m
	go func() {
		if err := metrics.Serve(ctx, a.cfg.Metrics.Addr, reg); err != nil {
			log.Printf("[metrics] server stopped: %v", err)
		}
	}()
	printStatus("✓", fmt.Sprintf("Serving metrics on %s/metrics", a.cfg.Metrics.Addr), color.FgGreen)
}

// openHistory opens the run database. History is best effort: a failure is
// reported and the run continues without it.
func (a *app) openHistory() {
	db, err := state.OpenWithDriver(a.cfg.State.Driver, a.abs(a.cfg.State.Path))
	if err != nil {
		printStatus("⚠", fmt.Sprintf("Run history disabled: %v", err), color.FgYellow)
		return
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		printStatus("⚠", fmt.Sprintf("Run history disabled: %v", err), color.FgYellow)
		return
	}
	a.history = state.NewHistory(db)
	a.closers = append(a.closers, db.Close)
}

// apiKey returns the key for the api backend, empty when Bedrock supplies
// credentials.
func apiKey(cfg *config.Config) (string, error) {
	if cfg.Anthropic.Bedrock {
		return "", nil
	}
	key, err := config.GetAPIKey(cfg)
	if err == nil {
		err = config.ValidateAPIKey(key)
	}
	if err != nil {
		return "", fmt.Errorf("api backend: %w (set ANTHROPIC_API_KEY or anthropic.api_key)", err)
	}
	return key, nil
}

// newInvoker builds the configured agent backend wrapped in the retry policy.
func newInvoker(root string, cfg *config.Config, logger *orchestrator.DebugLogger) (agent.Invoker, error) {
	var inv agent.Invoker
	switch cfg.Agent.Backend {
	case config.BackendAPI:
		key, err := apiKey(cfg)
		if err != nil {
			return nil, err
		}
		client, err := api.NewClient(api.ClientConfig{
			Model:         anthropic.Model(cfg.Agent.Model),
			APIKey:        key,
			UseAWSBedrock: cfg.Anthropic.Bedrock,
			AWSRegion:     cfg.Anthropic.AWSRegion,
			AWSProfile:    cfg.Anthropic.AWSProfile,
		})
		if err != nil {
			return nil, fmt.Errorf("create api client: %w", err)
		}
		inv = agent.NewAPIInvoker(client, "")
	default:
		if err := checkClaudeCLI(cfg.Agent.Binary); err != nil {
			return nil, err
		}
		cli := agent.NewCLIInvoker(
			agent.WithBinary(cfg.Agent.Binary),
			agent.WithModel(cfg.Agent.Model),
			agent.WithPermissionMode(cfg.Agent.PermissionMode),
			agent.WithWorkDir(root),
		)
		cli.SetDebugLog(logger.Log)
		inv = cli
	}

	policy := agent.DefaultRetryPolicy()
	policy.MaxRetries = cfg.Agent.Retries
	policy.RatePerSecond = cfg.Agent.RatePerSecond
	return agent.Retrying(inv, policy), nil
}

// checkClaudeCLI verifies that the claude CLI is available.
func checkClaudeCLI(binary string) error {
	if binary == "" {
		binary = "claude"
	}
	if _, err := exec.LookPath(binary); err != nil {
		return fmt.Errorf("%s CLI not found in PATH\n\n"+
			"Phaser drives agents through the Claude Code CLI.\n\n"+
			"Install it with:\n"+
			"  npm install -g @anthropic-ai/claude-code\n\n"+
			"Or set agent.backend: api to call the Anthropic API directly", binary)
	}
	return nil
}

func (a *app) composer() *strategy.Composer {
	return strategy.NewComposer(a.store)
}

func (a *app) jitter() *orchestrator.JitterPolicy {
	return &orchestrator.JitterPolicy{Base: a.cfg.Workers.JitterBase, Spread: a.cfg.Workers.JitterSpread}
}

// loopFlags are the flags shared by break and run.
type loopFlags struct {
	workers       int
	maxIterations int
	tui           bool
}

// runLoop drives src to completion, either with the plain ticker display or
// inside the bubbletea view.
func (a *app) runLoop(ctx context.Context, src orchestrator.BatchSource, defaultWorkers int, f loopFlags) error {
	workers := a.cfg.WorkerCount(defaultWorkers)
	if f.workers > 0 {
		workers = f.workers
	}
	maxIterations := a.cfg.Loop.MaxIterations
	if f.maxIterations > 0 {
		maxIterations = f.maxIterations
	}

	var out io.Writer = os.Stdout
	var captured *bytes.Buffer
	if f.tui {
		captured = &bytes.Buffer{}
		out = captured
	}
	mon := monitor.New(workers, monitor.WithOutput(out), monitor.WithInterval(a.cfg.Monitor.Interval))

	cfg := orchestrator.LoopConfig{
		Workers:       workers,
		MaxIterations: maxIterations,
		Timeout:       a.cfg.Workers.Timeout,
		Jitter:        a.jitter(),
		Out:           out,
		Monitor:       mon,
		LiveDisplay:   !f.tui,
		Metrics:       a.metrics,
		History:       a.history,
		Logger:        a.logger,
	}
	if a.kill != nil {
		cfg.Interrupter = a.kill
	}
	loop := orchestrator.NewLoop(src, cfg)

	var (
		outcome orchestrator.Outcome
		err     error
	)
	if f.tui {
		outcome, err = runInView(ctx, loop, mon, src.Operation())
		os.Stdout.Write(captured.Bytes())
	} else {
		outcome, err = loop.Run(ctx)
	}
	return loopResult(outcome, loop.Stats(), err)
}

// runInView runs the loop while a bubbletea view renders the monitor.
// Quitting the view interrupts the loop after the current batch.
func runInView(ctx context.Context, loop *orchestrator.Loop, mon *monitor.Monitor, title string) (orchestrator.Outcome, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Log output corrupts the alt-screen.
	original := log.Writer()
	log.SetOutput(io.Discard)
	defer log.SetOutput(original)

	program := tea.NewProgram(monitor.NewView(mon, monitor.WithTitle("Phaser: "+title), monitor.WithOnQuit(cancel)), tea.WithAltScreen())

	type result struct {
		outcome orchestrator.Outcome
		err     error
	}
	done := make(chan result, 1)
	go func() {
		outcome, err := loop.Run(ctx)
		done <- result{outcome, err}
		program.Send(monitor.DoneMsg{})
	}()

	if _, err := program.Run(); err != nil {
		cancel()
		r := <-done
		if r.err == nil {
			r.err = fmt.Errorf("display: %w", err)
		}
		return r.outcome, r.err
	}
	r := <-done
	return r.outcome, r.err
}

// loopResult maps a loop outcome onto the command's exit status.
func loopResult(outcome orchestrator.Outcome, stats *orchestrator.Stats, err error) error {
	switch {
	case outcome == orchestrator.OutcomeInterrupted:
		return &exitError{code: exitInterrupted}
	case err != nil:
		return err
	}
	if _, failed := stats.Counts(); failed > 0 {
		return &exitError{code: exitFailure, err: fmt.Errorf("%d item(s) failed", failed)}
	}
	return nil
}

// printStatus prints a status line with color
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}
