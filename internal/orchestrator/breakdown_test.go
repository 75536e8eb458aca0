package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ShayCichocki/phaser/internal/agent"
	"github.com/ShayCichocki/phaser/pkg/models"
)

const breakdownAggregate = `{
  "project": {"title": "Tool", "description": "command line tool", "type": "cli"},
  "phases": [
    {"id": "1", "title": "Foundation", "description": "Build the foundation layer", "duration": 90},
    {"id": "2", "title": "Docs", "duration": 30, "dependencies": ["1"]}
  ]
}`

const goodBreakdownReply = "Here is the breakdown:\n```json\n" + `{"phases": [
  {"id": "1.1", "title": "Foundation design", "description": "Design the foundation module structure with secure auth and caching", "duration": 30},
  {"id": "1.2", "title": "Foundation integration", "description": "Integrate the foundation with docs, secure credentials and a performance benchmark", "duration": "20-30", "dependencies": ["1.1"]}
]}` + "\n```"

func runBreakdown(t *testing.T, p *project, inv agent.Invoker, workers int) (*Loop, *syncBuffer, Outcome, error) {
	t.Helper()
	sys := NewBreakdownSystem(BreakdownConfig{
		Resolver:  p.resolver,
		Composer:  p.composer(),
		Templates: p.templates,
		Prompts:   p.prompts,
		Invoker:   inv,
	})
	loop, out := testLoop(sys, LoopConfig{Workers: workers})
	outcome, err := loop.Run(context.Background())
	return loop, out, outcome, err
}

func TestBreakdown_ValidReplyIsPromoted(t *testing.T) {
	p := setupProject(t, breakdownAggregate)
	inv := &scriptedInvoker{fn: func(string) agent.Response { return agent.Response{Text: goodBreakdownReply} }}

	loop, out, outcome, err := runBreakdown(t, p, inv, 2)
	if err != nil || outcome != OutcomeDone {
		t.Fatalf("Run = (%v, %v), want done", outcome, err)
	}

	doc, ok, err := p.store.LoadDocument("1")
	if err != nil || !ok {
		t.Fatalf("LoadDocument(1) = (%v, %v)", ok, err)
	}
	if !doc.BreakdownComplete || len(doc.Phases) != 2 {
		t.Fatalf("doc = %+v, want two phases and breakdown_complete", doc)
	}
	if doc.Title != "Foundation" || doc.Status != models.StatusPending {
		t.Errorf("doc header = (%q, %q), want copied from the aggregate entry", doc.Title, doc.Status)
	}
	if doc.Phases[1].Status != models.StatusPending || doc.Phases[1].Dependencies[0] != "1.1" {
		t.Errorf("child 1.2 = %+v", doc.Phases[1])
	}
	if _, err := os.Stat(p.store.StagingPath("1")); !os.IsNotExist(err) {
		t.Errorf("staged file left behind: %v", err)
	}

	if s, f := loop.Stats().Counts(); s != 1 || f != 0 {
		t.Errorf("counts = (%d, %d), want (1, 0)", s, f)
	}
	if inv.count(markBreakdown) != 1 || inv.count("- Phase ID: 1") != 1 {
		t.Errorf("breakdown prompt not built from the template and node")
	}
	for _, want := range []string{"File: phases.json", "   - 1: Foundation (90min)", "✓ 1: score 80/80", "strategic_alignment: PASS"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}

	needs, err := p.resolver.NodesNeedingBreakdown(10)
	if err != nil || len(needs) != 0 {
		t.Errorf("NodesNeedingBreakdown after run = (%v, %v), want none", needs, err)
	}
}

func TestBreakdown_InvalidReplyIsDiscarded(t *testing.T) {
	p := setupProject(t, breakdownAggregate)
	inv := &scriptedInvoker{fn: func(string) agent.Response {
		return agent.Response{Text: `{"phases": [{"id": "1.1", "title": "Paint walls", "duration": 20}]}`}
	}}

	loop, out, outcome, err := runBreakdown(t, p, inv, 1)
	if err != nil || outcome != OutcomeDone {
		t.Fatalf("Run = (%v, %v), want done", outcome, err)
	}
	if p.store.HasDocument("1") {
		t.Error("invalid breakdown should not create 1.json")
	}
	if _, err := os.Stat(p.store.StagingPath("1")); !os.IsNotExist(err) {
		t.Errorf("staged file left behind: %v", err)
	}
	if _, f := loop.Stats().Counts(); f != 1 {
		t.Errorf("failed = %d, want 1", f)
	}
	if inv.count(markBreakdown) != 1 {
		t.Errorf("node re-dispatched within the run: %d calls", inv.count(markBreakdown))
	}
	if !strings.Contains(out.String(), "strategic_alignment: FAIL") {
		t.Errorf("output missing failed check:\n%s", out.String())
	}
}

func TestBreakdown_AgentFailures(t *testing.T) {
	tests := []struct {
		name string
		resp agent.Response
		want string
	}{
		{"non-zero exit", agent.Response{ExitCode: 2, Text: "rate limited"}, "agent exited with code 2: rate limited"},
		{"unparseable reply", agent.Response{Text: "I could not do it"}, "JSON format error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := setupProject(t, breakdownAggregate)
			inv := &scriptedInvoker{fn: func(string) agent.Response { return tt.resp }}

			loop, out, outcome, err := runBreakdown(t, p, inv, 1)
			if err != nil || outcome != OutcomeDone {
				t.Fatalf("Run = (%v, %v)", outcome, err)
			}
			if _, f := loop.Stats().Counts(); f != 1 {
				t.Errorf("failed = %d, want 1", f)
			}
			if p.store.HasDocument("1") {
				t.Error("failed breakdown should not write 1.json")
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("output missing %q:\n%s", tt.want, out.String())
			}
		})
	}
}

func TestBreakdown_MissingTemplate(t *testing.T) {
	p := setupProject(t, breakdownAggregate)
	if err := os.Remove(filepath.Join(p.templates.Dir(), agent.TemplateBreakdown+".md")); err != nil {
		t.Fatal(err)
	}
	inv := &scriptedInvoker{fn: func(string) agent.Response { return agent.Response{Text: goodBreakdownReply} }}

	loop, _, _, err := runBreakdown(t, p, inv, 1)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if _, f := loop.Stats().Counts(); f != 1 {
		t.Errorf("failed = %d, want 1", f)
	}
	if len(inv.prompts) != 0 {
		t.Errorf("agent invoked %d times without a template", len(inv.prompts))
	}
}

func TestFormatBreakdownResult_TopTwoRecommendations(t *testing.T) {
	p := setupProject(t, breakdownAggregate)
	sc, err := p.composer().Compose("1")
	if err != nil {
		t.Fatal(err)
	}
	sys := NewBreakdownSystem(BreakdownConfig{})
	bd := mustParse(t, `{"phases": [{"title": "Paint walls"}, {"title": "Mow lawn"}, {"title": "Wash car"}]}`)
	got := formatBreakdownResult("1", sys.cfg.Engine.Validate(bd, sc))

	if !strings.HasPrefix(got, "✗ 1: score") {
		t.Errorf("header = %q", strings.SplitN(got, "\n", 2)[0])
	}
	if n := strings.Count(got, "   -> "); n != 2 {
		t.Errorf("recommendations printed = %d, want 2", n)
	}
}
