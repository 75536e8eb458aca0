package orchestrator

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ShayCichocki/phaser/internal/agent"
	"github.com/ShayCichocki/phaser/internal/graph"
	"github.com/ShayCichocki/phaser/internal/plan"
	"github.com/ShayCichocki/phaser/internal/strategy"
	"github.com/ShayCichocki/phaser/internal/validation"
)

// scriptedInvoker answers each prompt with fn and records every prompt.
type scriptedInvoker struct {
	mu      sync.Mutex
	fn      func(prompt string) agent.Response
	prompts []string
}

func (s *scriptedInvoker) Invoke(ctx context.Context, prompt string) (agent.Response, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
	return s.fn(prompt), nil
}

func (s *scriptedInvoker) count(marker string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.prompts {
		if strings.Contains(p, marker) {
			n++
		}
	}
	return n
}

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// project is a temp project root with a plan directory and agent templates.
type project struct {
	root      string
	planDir   string
	store     *plan.Store
	resolver  *graph.Resolver
	templates *agent.Templates
	prompts   *agent.Prompts
}

// Template bodies double as markers so scripted invokers can tell agents apart.
const (
	markBreakdown = "BREAKDOWN-AGENT"
	markAnalyzer  = "ANALYZER-AGENT"
	markValidator = "VALIDATOR-AGENT"
	markStatus    = "STATUS-AGENT"
	markPlan      = "PLAN-AGENT"
	markSchema    = "SCHEMA-AGENT"
	markStructure = "STRUCTURE-AGENT"
)

func setupProject(t *testing.T, aggregate string) *project {
	t.Helper()
	root := t.TempDir()
	planDir := filepath.Join(root, ".ai", "plan")
	if aggregate != "" {
		writeFile(t, filepath.Join(planDir, "phases.json"), aggregate)
	}

	tmplDir := filepath.Join(root, ".phaser", "templates")
	for name, body := range map[string]string{
		agent.TemplateBreakdown:          markBreakdown,
		agent.TemplateTaskAnalyzer:       markAnalyzer,
		agent.TemplateValidator:          markValidator,
		agent.TemplateStatusUpdater:      markStatus,
		agent.TemplatePlanAnalyzer:       markPlan,
		agent.TemplateSchemaDesigner:     markSchema,
		agent.TemplateStructureGenerator: markStructure,
	} {
		writeFile(t, filepath.Join(tmplDir, name+".md"), "---\nname: "+name+"\n---\n"+body+"\n")
	}

	store := plan.Open(planDir)
	return &project{
		root:      root,
		planDir:   planDir,
		store:     store,
		resolver:  graph.New(store),
		templates: agent.NewTemplates(tmplDir),
		prompts:   agent.NewPrompts(root, ".ai/plan"),
	}
}

func (p *project) composer() *strategy.Composer {
	return strategy.NewComposer(p.store)
}

func noJitter() *JitterPolicy {
	j := NoJitter()
	return &j
}

func mustParse(t *testing.T, reply string) validation.Breakdown {
	t.Helper()
	bd, err := validation.ParseBreakdown(reply)
	if err != nil {
		t.Fatalf("ParseBreakdown: %v", err)
	}
	return bd
}
