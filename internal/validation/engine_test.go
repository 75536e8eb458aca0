package validation

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/ShayCichocki/phaser/internal/strategy"
	"github.com/ShayCichocki/phaser/pkg/models"
)

// paymentContext is a context for breaking down a payment gateway phase that
// has one sibling and must not include frontend work.
func paymentContext() *strategy.Context {
	return &strategy.Context{
		ProjectDNA: strategy.ProjectDNA{
			Vision:                  "Shop",
			Type:                    "cli",
			Complexity:              "medium",
			ArchitecturalPrinciples: []string{"security", "performance"},
		},
		ParentChain: []strategy.Ancestor{{Level: 0, ID: "project", Title: "Shop"}},
		Siblings: strategy.SiblingCoordination{
			HasSiblings: true,
			Points:      []strategy.CoordinationPoint{{SiblingID: "2", Kind: strategy.CoordinationParallel}},
		},
		Boundary: strategy.BoundaryConstraints{MustNotInclude: []string{"frontend"}},
		Current: strategy.CurrentNode{
			ID:          "1",
			Title:       "Payment gateway",
			Description: "Integrate payment processing securely",
		},
	}
}

func goodBreakdown() Breakdown {
	return Breakdown{Phases: []models.Node{
		{
			ID:          "1.1",
			Title:       "Payment provider integration",
			Description: "Integrate the provider API with secure credential storage and caching of tokens",
		},
		{
			ID:          "1.2",
			Title:       "Payment flow design",
			Description: "Design the payment module structure for performance and security, with rollback on conflict",
		},
	}}
}

func TestValidate_AlignedBreakdown(t *testing.T) {
	r := NewEngine().Validate(goodBreakdown(), paymentContext())

	if !r.Valid {
		t.Fatalf("Valid = false, checks = %+v", r.Checks)
	}
	if r.Score != 80 {
		t.Errorf("Score = %d, want 80", r.Score)
	}
	if !reflect.DeepEqual(r.Recommendations, []string{AlignedMessage}) {
		t.Errorf("Recommendations = %v, want [%s]", r.Recommendations, AlignedMessage)
	}
	for _, c := range AllChecks {
		if !r.Checks[c].Passed {
			t.Errorf("check %s failed: %v", c, r.Checks[c].Issues)
		}
	}
}

func TestValidate_MisalignedBreakdown(t *testing.T) {
	b := Breakdown{Phases: []models.Node{
		{ID: "1.1", Title: "Frontend landing page", Description: "Hero banner and footer"},
	}}
	r := NewEngine().Validate(b, paymentContext())

	if r.Valid {
		t.Fatal("Valid = true, want false")
	}
	if r.Score != 0 {
		t.Errorf("Score = %d, want 0", r.Score)
	}
	for _, c := range AllChecks {
		if r.Checks[c].Passed {
			t.Errorf("check %s passed, want failure", c)
		}
	}
	if got := len(r.Checks[CheckExpertCoverage].Issues); got != 3 {
		t.Errorf("expert issues = %d, want 3", got)
	}
}

func TestValidate_SingleMisalignedChild(t *testing.T) {
	b := goodBreakdown()
	b.Phases = append(b.Phases, models.Node{ID: "1.3", Title: "Misc chores", Description: "tidy"})
	r := NewEngine().Validate(b, paymentContext())

	if r.Valid {
		t.Error("Valid = true, want false")
	}
	if r.Checks[CheckStrategicAlignment].Passed {
		t.Error("strategic alignment passed, want failure")
	}
	// 4 passed, 1 issue.
	if r.Score != 59 {
		t.Errorf("Score = %d, want 59", r.Score)
	}
	if !strings.Contains(r.Recommendations[0], "1.3") {
		t.Errorf("first recommendation = %q, want mention of 1.3", r.Recommendations[0])
	}
}

func TestValidate_NoSiblingsSkipsCoordination(t *testing.T) {
	sc := paymentContext()
	sc.Siblings = strategy.SiblingCoordination{}
	b := Breakdown{Phases: []models.Node{{
		ID:          "1.1",
		Title:       "Payment module design",
		Description: "Secure, cached payment structure with performance budget",
	}}}
	r := NewEngine().Validate(b, sc)
	if !r.Checks[CheckCoordination].Passed {
		t.Errorf("coordination failed without siblings: %v", r.Checks[CheckCoordination].Issues)
	}
}

func TestValidate_ArchitectureHalfRule(t *testing.T) {
	tests := []struct {
		name       string
		principles []string
		want       bool
	}{
		{"none declared", nil, true},
		{"all reflected", []string{"security", "performance"}, true},
		{"half reflected", []string{"security", "accessibility"}, true},
		{"minority reflected", []string{"security", "accessibility", "modularity"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := paymentContext()
			sc.ProjectDNA.ArchitecturalPrinciples = tt.principles
			r := NewEngine().Validate(goodBreakdown(), sc)
			if got := r.Checks[CheckArchitecture].Passed; got != tt.want {
				t.Errorf("architecture passed = %v, want %v (issues %v)", got, tt.want, r.Checks[CheckArchitecture].Issues)
			}
		})
	}
}

func TestValidate_DomainGapsAreAdvisory(t *testing.T) {
	sc := paymentContext()
	sc.ProjectDNA.Type = "web"
	sc.ProjectDNA.Complexity = "enterprise"
	r := NewEngine().Validate(goodBreakdown(), sc)

	if !r.Checks[CheckExpertCoverage].Passed {
		t.Fatalf("expert coverage failed: %v", r.Checks[CheckExpertCoverage].Issues)
	}
	if r.Score != 80 {
		t.Errorf("Score = %d, want 80: advisories must not cost points", r.Score)
	}
	found := false
	for _, rec := range r.Recommendations {
		if strings.Contains(rec, "frontend expert") {
			found = true
		}
	}
	if !found {
		t.Errorf("Recommendations = %v, want a frontend advisory", r.Recommendations)
	}
}

func TestWithKeywords(t *testing.T) {
	k := DefaultKeywords()
	k.Coordination = []string{"zzz-never"}
	r := NewEngine(WithKeywords(k)).Validate(goodBreakdown(), paymentContext())
	if r.Checks[CheckCoordination].Passed {
		t.Error("coordination passed with unmatched keyword list")
	}
}

func TestEngineAccept(t *testing.T) {
	e := NewEngine(WithMinScore(70))
	tests := []struct {
		name string
		r    *Result
		want bool
	}{
		{"nil", nil, false},
		{"invalid", &Result{Valid: false, Score: 80}, false},
		{"below min", &Result{Valid: true, Score: 60}, false},
		{"ok", &Result{Valid: true, Score: 80}, true},
	}
	for _, tt := range tests {
		if got := e.Accept(tt.r); got != tt.want {
			t.Errorf("Accept(%s) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		passed, issues, want int
	}{
		{5, 0, 80},
		{5, 1, 75},
		{3, 2, 38},
		{4, 10, 44},
		{0, 3, 0},
		{1, 0, 16},
	}
	for _, tt := range tests {
		if got := Score(tt.passed, tt.issues); got != tt.want {
			t.Errorf("Score(%d, %d) = %d, want %d", tt.passed, tt.issues, got, tt.want)
		}
	}
}

func TestScore_Monotonic(t *testing.T) {
	for passed := 0; passed <= 5; passed++ {
		for issues := 0; issues <= 8; issues++ {
			s := Score(passed, issues)
			if s < 0 || s > 80 {
				t.Errorf("Score(%d, %d) = %d out of range", passed, issues, s)
			}
			if next := Score(passed, issues+1); next > s {
				t.Errorf("Score increased with issues: (%d,%d)=%d -> %d", passed, issues, s, next)
			}
			if passed < 5 {
				if more := Score(passed+1, issues); more < s {
					t.Errorf("Score decreased with passes: (%d,%d)=%d -> %d", passed, issues, s, more)
				}
			}
		}
	}
}

func TestParseFailure(t *testing.T) {
	r := ParseFailure(errors.New("unexpected end of JSON input"))
	if r.Valid || r.Score != 0 {
		t.Errorf("Valid = %v, Score = %d, want false and 0", r.Valid, r.Score)
	}
	if r.Passed() != 0 {
		t.Errorf("Passed() = %d, want 0", r.Passed())
	}
	if len(r.Checks) != len(AllChecks) {
		t.Errorf("len(Checks) = %d, want %d", len(r.Checks), len(AllChecks))
	}
	if !strings.HasPrefix(r.Recommendations[0], "JSON format error: ") {
		t.Errorf("Recommendations[0] = %q", r.Recommendations[0])
	}
}
