package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/ShayCichocki/phaser/internal/strategy"
	"github.com/ShayCichocki/phaser/pkg/models"
)

// Check names one of the five breakdown checks.
type Check string

const (
	CheckStrategicAlignment Check = "strategic_alignment"
	CheckBoundaryCompliance Check = "boundary_compliance"
	CheckCoordination       Check = "coordination_check"
	CheckArchitecture       Check = "architecture_consistency"
	CheckExpertCoverage     Check = "expert_perspectives"
)

// AllChecks lists the checks in evaluation order.
var AllChecks = []Check{
	CheckStrategicAlignment,
	CheckBoundaryCompliance,
	CheckCoordination,
	CheckArchitecture,
	CheckExpertCoverage,
}

// AlignedMessage is the sole recommendation when no check reports anything.
const AlignedMessage = "Breakdown aligns with strategic context"

// Breakdown is the set of child nodes an agent proposed for a parent.
type Breakdown struct {
	Phases []models.Node
}

// CheckResult is the outcome of a single check.
type CheckResult struct {
	Passed bool
	Issues []string
}

// Result is the outcome of validating one breakdown.
type Result struct {
	// Valid is true only when every check passed.
	Valid bool
	// Score ranges from 0 to 80.
	Score int
	// Checks holds each check's result, keyed by name.
	Checks map[Check]CheckResult
	// Recommendations lists every issue plus advisory notes.
	Recommendations []string
}

// Passed returns how many checks passed.
func (r *Result) Passed() int {
	n := 0
	for _, c := range AllChecks {
		if r.Checks[c].Passed {
			n++
		}
	}
	return n
}

// IssueCount returns the total number of issues across checks.
func (r *Result) IssueCount() int {
	n := 0
	for _, c := range r.Checks {
		n += len(c.Issues)
	}
	return n
}

// Score computes 80*passed/5 less 5 per issue (capped at 20), floored at 0.
func Score(passed, issues int) int {
	penalty := 5 * issues
	if penalty > 20 {
		penalty = 20
	}
	score := 80*passed/len(AllChecks) - penalty
	if score < 0 {
		return 0
	}
	return score
}

// Engine scores breakdowns against a strategic context. It holds no mutable
// state and is safe for concurrent use.
type Engine struct {
	keywords Keywords
	minScore int
}

// Option configures an Engine.
type Option func(*Engine)

// WithKeywords replaces the keyword lists.
func WithKeywords(k Keywords) Option {
	return func(e *Engine) {
		e.keywords = k
	}
}

// WithMinScore sets the score Accept requires in addition to Valid.
func WithMinScore(score int) Option {
	return func(e *Engine) {
		e.minScore = score
	}
}

// NewEngine creates an engine with the default keyword lists.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{keywords: DefaultKeywords()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Accept reports whether a result is good enough to materialize.
func (e *Engine) Accept(r *Result) bool {
	return r != nil && r.Valid && r.Score >= e.minScore
}

// Validate runs the five checks over b using the context it was requested with.
func (e *Engine) Validate(b Breakdown, sc *strategy.Context) *Result {
	if sc == nil {
		sc = &strategy.Context{}
	}
	texts := make([]string, len(b.Phases))
	for i, n := range b.Phases {
		texts[i] = nodeText(n)
	}
	combined := strings.Join(texts, " ")

	var advisories []string
	expert, notes := e.checkExperts(combined, sc)
	advisories = append(advisories, notes...)
	arch, notes := checkArchitecture(combined, sc.ProjectDNA.ArchitecturalPrinciples)
	advisories = append(advisories, notes...)

	r := &Result{
		Checks: map[Check]CheckResult{
			CheckStrategicAlignment: checkAlignment(b.Phases, texts, sc),
			CheckBoundaryCompliance: checkBoundary(b.Phases, texts, sc.Boundary.MustNotInclude),
			CheckCoordination:       e.checkCoordination(combined, sc.Siblings),
			CheckArchitecture:       arch,
			CheckExpertCoverage:     expert,
		},
	}

	r.Valid = r.Passed() == len(AllChecks)
	r.Score = Score(r.Passed(), r.IssueCount())
	for _, c := range AllChecks {
		r.Recommendations = append(r.Recommendations, r.Checks[c].Issues...)
	}
	r.Recommendations = append(r.Recommendations, advisories...)
	if len(r.Recommendations) == 0 {
		r.Recommendations = []string{AlignedMessage}
	}
	return r
}

// checkAlignment requires each child to share a significant word with the
// goal of the node being broken down.
func checkAlignment(phases []models.Node, texts []string, sc *strategy.Context) CheckResult {
	goal := sc.Current.Title + " " + sc.Current.Description + " " + strings.Join(sc.Current.Deliverables, " ")
	if strings.TrimSpace(goal) == "" {
		if p := sc.Parent(); p != nil {
			goal = p.Title + " " + p.Goal
		}
	}
	goalWords := significantWords(goal)
	if len(goalWords) == 0 {
		return CheckResult{Passed: true}
	}

	res := CheckResult{Passed: true}
	for i, n := range phases {
		if !sharesWord(significantWords(texts[i]), goalWords) {
			res.Passed = false
			res.Issues = append(res.Issues, fmt.Sprintf("Phase %s (%s) does not reference the parent goal", orID(n), n.Title))
		}
	}
	return res
}

// checkBoundary rejects any child mentioning a significant word from a
// must-not-include constraint.
func checkBoundary(phases []models.Node, texts []string, mustNot []string) CheckResult {
	res := CheckResult{Passed: true}
	for i, n := range phases {
		words := significantWords(texts[i])
		for _, constraint := range mustNot {
			if sharesWord(words, significantWords(constraint)) {
				res.Passed = false
				res.Issues = append(res.Issues, fmt.Sprintf("Phase %s (%s) violates constraint: must not include %s", orID(n), n.Title, constraint))
			}
		}
	}
	return res
}

func (e *Engine) checkCoordination(combined string, siblings strategy.SiblingCoordination) CheckResult {
	if !siblings.HasSiblings {
		return CheckResult{Passed: true}
	}
	if containsAny(combined, e.keywords.Coordination) {
		return CheckResult{Passed: true}
	}
	return CheckResult{Issues: []string{
		fmt.Sprintf("No coordination or integration phase despite %d sibling(s)", len(siblings.Points)),
	}}
}

// checkArchitecture passes when at least half of the declared principles are
// reflected in the combined text. Missing principles on a passing check are
// advisory only.
func checkArchitecture(combined string, principles []string) (CheckResult, []string) {
	if len(principles) == 0 {
		return CheckResult{Passed: true}, nil
	}
	var missing []string
	for _, p := range principles {
		if !strings.Contains(combined, strings.ToLower(p)) {
			missing = append(missing, p)
		}
	}
	if len(missing)*2 > len(principles) {
		issues := make([]string, len(missing))
		for i, p := range missing {
			issues[i] = fmt.Sprintf("Architectural principle not reflected: %s", p)
		}
		return CheckResult{Issues: issues}, nil
	}
	var notes []string
	for _, p := range missing {
		notes = append(notes, fmt.Sprintf("Consider reflecting principle: %s", p))
	}
	return CheckResult{Passed: true}, notes
}

// checkExperts fails only when a core perspective is absent. Domain and
// conflict/risk gaps become advisory notes.
func (e *Engine) checkExperts(combined string, sc *strategy.Context) (CheckResult, []string) {
	k := e.keywords
	res := CheckResult{Passed: true}
	core := []struct {
		name     string
		keywords []string
	}{
		{"performance", k.Performance},
		{"security", k.Security},
		{"architecture", k.Architecture},
	}
	for _, c := range core {
		if !containsAny(combined, c.keywords) {
			res.Passed = false
			res.Issues = append(res.Issues, fmt.Sprintf("Missing %s expert perspective", c.name))
		}
	}

	projectType := strings.ToLower(sc.ProjectDNA.Type)
	complexity := strings.ToLower(sc.ProjectDNA.Complexity)
	var notes []string
	advise := func(cond bool, keywords []string, note string) {
		if cond && !containsAny(combined, keywords) {
			notes = append(notes, note)
		}
	}
	webOrApp := strings.Contains(projectType, "web") || strings.Contains(projectType, "app")
	advise(webOrApp, k.Frontend, "Consider frontend expert perspective (UX, client performance)")
	advise(webOrApp, k.Backend, "Consider backend expert perspective (services, business logic)")
	advise(strings.Contains(projectType, "api"), k.API, "Consider API expert perspective (contracts, versioning)")
	advise(strings.Contains(complexity, "enterprise"), k.Testing, "Consider testing expert perspective (coverage strategy)")
	advise(strings.Contains(complexity, "enterprise"), k.Database, "Consider database expert perspective (schema, queries)")
	advise(true, k.Conflict, "Consider how competing expert recommendations are resolved")
	advise(true, k.Risk, "Consider adding risk mitigation or rollback steps")
	return res, notes
}

func nodeText(n models.Node) string {
	parts := []string{n.Title, n.Description}
	parts = append(parts, n.Deliverables...)
	return strings.ToLower(strings.Join(parts, " "))
}

// significantWords returns the lowercase words longer than three characters.
func significantWords(text string) map[string]bool {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make(map[string]bool, len(words))
	for _, w := range words {
		if len([]rune(w)) > 3 {
			out[w] = true
		}
	}
	return out
}

func sharesWord(a, b map[string]bool) bool {
	for w := range a {
		if b[w] {
			return true
		}
	}
	return false
}

func containsAny(text string, keywords []string) bool {
	text = strings.ToLower(text)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func orID(n models.Node) string {
	if n.ID == "" {
		return "?"
	}
	return n.ID
}
