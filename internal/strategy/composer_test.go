package strategy

import (
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"testing"

	"github.com/ShayCichocki/phaser/internal/plan"
)

func writePlanFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

// setupComposer seeds a plan with a web shop project, one broken-down phase
// and two siblings.
func setupComposer(t *testing.T, opts ...Option) *Composer {
	t.Helper()
	dir := t.TempDir()
	writePlanFile(t, dir, "phases.json", `{
  "project": {"title": "Shop", "description": "Secure online store with payment processing", "type": "web application", "complexity": "enterprise"},
  "phases": [
    {"id": "1", "title": "Foundation", "description": "Backend only service, no ui work. MVP.", "duration": 90, "deliverables": ["REST API", "schema"]},
    {"id": "2", "title": "Checkout", "duration": 30, "dependencies": ["1"]},
    {"id": "3", "title": "Docs", "duration": 20, "status": "completed"}
  ]
}`)
	writePlanFile(t, dir, "1.json", `{"id":"1","breakdown_complete":true,"phases":[
  {"id":"1.1","title":"Repo","description":"Set up the repository","duration":40},
  {"id":"1.2","title":"CI","duration":20,"dependencies":["1.1"]},
  {"id":"1.3","title":"Lint","duration":10}
]}`)
	return NewComposer(plan.Open(dir), opts...)
}

func TestCompose_ProjectDNA(t *testing.T) {
	c := setupComposer(t)
	ctx, err := c.Compose("1.1")
	if err != nil {
		t.Fatalf("Compose error: %v", err)
	}

	dna := ctx.ProjectDNA
	if dna.Vision != "Shop" {
		t.Errorf("Vision = %q, want Shop", dna.Vision)
	}
	if dna.Complexity != "enterprise" {
		t.Errorf("Complexity = %q, want enterprise", dna.Complexity)
	}
	if !slices.Contains(dna.ArchitecturalPrinciples, "security") {
		t.Errorf("ArchitecturalPrinciples = %v, want security", dna.ArchitecturalPrinciples)
	}
	if !slices.Contains(dna.CriticalSuccessFactors, "security") {
		t.Errorf("CriticalSuccessFactors = %v, want security", dna.CriticalSuccessFactors)
	}
	wantExperts := []string{
		"Frontend Expert (UX/UI, Performance)",
		"Backend Expert (API, Business Logic)",
		"Database Expert (Scalability, Performance)",
		"Testing Expert (Comprehensive Coverage)",
	}
	if !reflect.DeepEqual(dna.DomainExperts, wantExperts) {
		t.Errorf("DomainExperts = %v, want %v", dna.DomainExperts, wantExperts)
	}
}

func TestCompose_ParentChain(t *testing.T) {
	c := setupComposer(t)
	ctx, err := c.Compose("1.1")
	if err != nil {
		t.Fatalf("Compose error: %v", err)
	}

	if len(ctx.ParentChain) != 2 {
		t.Fatalf("len(ParentChain) = %d, want 2", len(ctx.ParentChain))
	}
	root := ctx.ParentChain[0]
	if root.Level != 0 || root.ID != "project" || root.Title != "Shop" {
		t.Errorf("root = %+v, want level 0 project Shop", root)
	}
	p := ctx.ParentChain[1]
	// Title comes from the aggregate entry since 1.json has none.
	if p.Level != 1 || p.ID != "1" || p.Title != "Foundation" {
		t.Errorf("parent = %+v, want level 1 id 1 Foundation", p)
	}
	if !reflect.DeepEqual(p.Deliverables, []string{"REST API", "schema"}) {
		t.Errorf("parent deliverables = %v", p.Deliverables)
	}
}

func TestCompose_Siblings(t *testing.T) {
	c := setupComposer(t)

	tests := []struct {
		id   string
		want map[string]CoordinationKind
	}{
		{"1.1", map[string]CoordinationKind{"1.2": CoordinationSequential, "1.3": CoordinationParallel}},
		{"1.2", map[string]CoordinationKind{"1.1": CoordinationSequential, "1.3": CoordinationParallel}},
		{"2", map[string]CoordinationKind{"1": CoordinationSequential, "3": CoordinationIndependent}},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			ctx, err := c.Compose(tt.id)
			if err != nil {
				t.Fatalf("Compose error: %v", err)
			}
			if !ctx.Siblings.HasSiblings {
				t.Fatal("HasSiblings = false, want true")
			}
			got := make(map[string]CoordinationKind)
			for _, p := range ctx.Siblings.Points {
				got[p.SiblingID] = p.Kind
				if p.Note == "" {
					t.Errorf("sibling %s has empty note", p.SiblingID)
				}
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("coordination = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompose_BoundaryConstraints(t *testing.T) {
	c := setupComposer(t)
	ctx, err := c.Compose("1.2")
	if err != nil {
		t.Fatalf("Compose error: %v", err)
	}

	b := ctx.Boundary
	if !reflect.DeepEqual(b.MustInclude, []string{"REST API", "schema"}) {
		t.Errorf("MustInclude = %v", b.MustInclude)
	}
	if !slices.Contains(b.MustNotInclude, "frontend") {
		t.Errorf("MustNotInclude = %v, want frontend", b.MustNotInclude)
	}
	if !slices.Contains(b.ScopeLimits, "minimum viable scope") {
		t.Errorf("ScopeLimits = %v, want minimum viable scope", b.ScopeLimits)
	}
}

func TestCompose_CurrentNode(t *testing.T) {
	c := setupComposer(t)
	ctx, err := c.Compose("1.1")
	if err != nil {
		t.Fatalf("Compose error: %v", err)
	}
	cur := ctx.Current
	if cur.ID != "1.1" || cur.Title != "Repo" || cur.Description != "Set up the repository" {
		t.Errorf("Current = %+v", cur)
	}
	if cur.Duration.Max() != 40 {
		t.Errorf("Current.Duration = %v, want 40", cur.Duration)
	}
}

func TestCompose_TopLevelWithoutAggregate(t *testing.T) {
	dir := t.TempDir()
	writePlanFile(t, dir, "4.json", `{"id":"4","title":"Standalone"}`)
	c := NewComposer(plan.Open(dir))

	ctx, err := c.Compose("4")
	if err != nil {
		t.Fatalf("Compose error: %v", err)
	}
	if ctx.ProjectDNA.Vision != "Unknown" || ctx.ProjectDNA.Type != "unknown" {
		t.Errorf("ProjectDNA = %+v, want defaults", ctx.ProjectDNA)
	}
	if ctx.Siblings.HasSiblings {
		t.Error("HasSiblings = true, want false")
	}
	if ctx.Current.Title != "Standalone" {
		t.Errorf("Current.Title = %q, want Standalone", ctx.Current.Title)
	}
}

func TestCompose_EmptyID(t *testing.T) {
	c := setupComposer(t)
	if _, err := c.Compose(""); err == nil {
		t.Error("Compose(\"\") should fail")
	}
}

func TestCompose_Deterministic(t *testing.T) {
	c := setupComposer(t)
	a, err := c.Compose("1.3")
	if err != nil {
		t.Fatalf("Compose error: %v", err)
	}
	b, _ := c.Compose("1.3")
	if !reflect.DeepEqual(a, b) {
		t.Error("Compose is not deterministic for the same store")
	}
}

func TestWithRules(t *testing.T) {
	rules := RuleSet{
		Principles: []Rule{{Keywords: []string{"store"}, Label: "commerce"}},
		Exclusions: []Rule{{Keywords: []string{"rest api"}, Label: "graphql"}},
	}
	c := setupComposer(t, WithRules(rules))
	ctx, err := c.Compose("1")
	if err != nil {
		t.Fatalf("Compose error: %v", err)
	}
	if !reflect.DeepEqual(ctx.ProjectDNA.ArchitecturalPrinciples, []string{"commerce"}) {
		t.Errorf("ArchitecturalPrinciples = %v, want [commerce]", ctx.ProjectDNA.ArchitecturalPrinciples)
	}
	if len(ctx.ProjectDNA.DomainExperts) != 0 {
		t.Errorf("DomainExperts = %v, want none", ctx.ProjectDNA.DomainExperts)
	}
}

func TestRuleMatches(t *testing.T) {
	r := Rule{Keywords: []string{"Secur", "auth"}, Label: "security"}
	tests := []struct {
		text string
		want bool
	}{
		{"Secure login", true},
		{"OAuth flow", true},
		{"billing", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := r.Matches(tt.text); got != tt.want {
			t.Errorf("Matches(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestFormat(t *testing.T) {
	c := setupComposer(t)
	ctx, err := c.Compose("1.1")
	if err != nil {
		t.Fatalf("Compose error: %v", err)
	}
	out := Format(ctx)

	for _, want := range []string{
		"### PROJECT STRATEGIC DNA",
		"**Vision**: Shop",
		"### PARENT CHAIN",
		"phases.json - Shop",
		"1.json - Foundation",
		"### SIBLING COORDINATION REQUIREMENTS",
		"Coordination Type: sequential_dependency",
		"**MUST INCLUDE**: REST API, schema",
		"**MUST NOT INCLUDE**: frontend",
		"### CURRENT PHASE CONTEXT",
		"1.1.json - Repo",
		"SECURITY Expert has HIGH priority",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Format output missing %q", want)
		}
	}
}
