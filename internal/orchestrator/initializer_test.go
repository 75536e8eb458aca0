package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ShayCichocki/phaser/internal/agent"
)

func newInitializer(p *project, inv agent.Invoker) (*Initializer, *syncBuffer) {
	out := &syncBuffer{}
	return NewInitializer(InitConfig{
		Root:      p.root,
		Templates: p.templates,
		Prompts:   p.prompts,
		Invoker:   inv,
		Out:       out,
		Jitter:    noJitter(),
	}), out
}

func writePRD(t *testing.T, p *project) string {
	t.Helper()
	path := filepath.Join(p.root, "prd.md")
	writeFile(t, path, "# Shop\nSell things online.\n")
	return path
}

func TestInitializer_Run(t *testing.T) {
	p := setupProject(t, "")
	inv := &scriptedInvoker{fn: func(string) agent.Response { return agent.Response{Text: "ok"} }}
	in, out := newInitializer(p, inv)

	if err := in.Run(context.Background(), "@"+writePRD(t, p), "shop"); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	for _, marker := range []string{markPlan, markSchema, markStructure} {
		if inv.count(marker) != 1 {
			t.Errorf("%s called %d times, want 1", marker, inv.count(marker))
		}
	}
	if !strings.Contains(inv.prompts[0], markPlan) {
		t.Error("plan analyzer must run before the parallel phase")
	}
	for _, dir := range ProjectDirs {
		if info, err := os.Stat(filepath.Join(p.root, dir)); err != nil || !info.IsDir() {
			t.Errorf("directory %s not created: %v", dir, err)
		}
	}
	if s, f := in.Stats().Counts(); s != 3 || f != 0 {
		t.Errorf("counts = (%d, %d), want (3, 0)", s, f)
	}
	if !strings.Contains(out.String(), "Project initialization completed successfully") {
		t.Errorf("output:\n%s", out.String())
	}
}

func TestInitializer_PlanAnalysisFailureStops(t *testing.T) {
	p := setupProject(t, "")
	inv := &scriptedInvoker{fn: func(prompt string) agent.Response {
		if strings.Contains(prompt, markPlan) {
			return agent.Response{ExitCode: 1}
		}
		return agent.Response{Text: "ok"}
	}}
	in, out := newInitializer(p, inv)

	err := in.Run(context.Background(), writePRD(t, p), "")
	if !errors.Is(err, ErrInitFailed) {
		t.Fatalf("error = %v, want ErrInitFailed", err)
	}
	if len(inv.prompts) != 1 {
		t.Errorf("prompts = %d, want phase 2 skipped", len(inv.prompts))
	}
	if !strings.Contains(out.String(), "--- Initialization Summary ---") {
		t.Error("summary not printed on failure")
	}
}

func TestInitializer_ParallelFailureReported(t *testing.T) {
	p := setupProject(t, "")
	inv := &scriptedInvoker{fn: func(prompt string) agent.Response {
		if strings.Contains(prompt, markSchema) {
			return agent.Response{ExitCode: 1}
		}
		return agent.Response{Text: "ok"}
	}}
	in, _ := newInitializer(p, inv)

	err := in.Run(context.Background(), writePRD(t, p), "")
	if !errors.Is(err, ErrInitFailed) || !strings.Contains(err.Error(), agent.TemplateSchemaDesigner) {
		t.Fatalf("error = %v, want ErrInitFailed naming the schema designer", err)
	}
	if inv.count(markStructure) != 1 {
		t.Error("structure generator should still run")
	}
	if s, f := in.Stats().Counts(); s != 2 || f != 1 {
		t.Errorf("counts = (%d, %d), want (2, 1)", s, f)
	}
}

func TestInitializer_Prerequisites(t *testing.T) {
	p := setupProject(t, "")
	in, _ := newInitializer(p, &scriptedInvoker{fn: func(string) agent.Response { return agent.Response{} }})

	if _, err := in.CheckPrerequisites(filepath.Join(p.root, "missing.md")); !errors.Is(err, ErrPlanFileNotFound) {
		t.Errorf("missing plan: error = %v, want ErrPlanFileNotFound", err)
	}
	if _, err := in.CheckPrerequisites(p.root); !errors.Is(err, ErrPlanFileNotFound) {
		t.Errorf("directory plan: error = %v, want ErrPlanFileNotFound", err)
	}

	prd := writePRD(t, p)
	if err := os.Remove(filepath.Join(p.templates.Dir(), agent.TemplateSchemaDesigner+".md")); err != nil {
		t.Fatal(err)
	}
	_, err := in.CheckPrerequisites(prd)
	if !errors.Is(err, ErrTemplatesMissing) || !strings.Contains(err.Error(), agent.TemplateSchemaDesigner) {
		t.Errorf("missing template: error = %v", err)
	}
}
