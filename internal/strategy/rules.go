package strategy

import "strings"

// Rule maps any of its keywords, matched as lowercase substrings, to a label.
type Rule struct {
	Keywords []string
	Label    string
}

// Matches reports whether text contains any of the rule's keywords.
func (r Rule) Matches(text string) bool {
	text = strings.ToLower(text)
	for _, kw := range r.Keywords {
		if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// RuleSet holds the keyword heuristics used to infer context that plan
// documents do not state explicitly. Rules within a group are evaluated in
// order and each label is reported at most once.
type RuleSet struct {
	// Principles are matched against project type and description.
	Principles []Rule
	// SuccessFactors are matched against project type and description.
	SuccessFactors []Rule
	// Exclusions are matched against the parent's description and produce
	// must-not-include constraints.
	Exclusions []Rule
	// Scope is matched against the parent's description and produces scope limits.
	Scope []Rule
	// Experts are matched against project type and complexity.
	Experts []Rule
}

// DefaultRules returns the built-in heuristics.
func DefaultRules() RuleSet {
	return RuleSet{
		Principles: []Rule{
			{Keywords: []string{"secur", "auth", "payment", "privacy", "compliance", "encrypt"}, Label: "security"},
			{Keywords: []string{"performance", "fast", "real-time", "realtime", "latency", "high-throughput"}, Label: "performance"},
			{Keywords: []string{"scal", "distributed", "multi-tenant", "cloud"}, Label: "scalability"},
			{Keywords: []string{"modular", "plugin", "microservice", "extensible"}, Label: "modularity"},
			{Keywords: []string{"maintain", "refactor", "clean", "legacy"}, Label: "maintainability"},
			{Keywords: []string{"reliab", "availability", "fault", "resilien"}, Label: "reliability"},
			{Keywords: []string{"accessib", "a11y"}, Label: "accessibility"},
		},
		SuccessFactors: []Rule{
			{Keywords: []string{"user", "customer", "web", "mobile", "app"}, Label: "user experience"},
			{Keywords: []string{"data", "database", "store", "inventory", "order"}, Label: "data integrity"},
			{Keywords: []string{"secur", "payment", "auth", "privacy"}, Label: "security"},
			{Keywords: []string{"scal", "traffic", "growth", "load"}, Label: "scalability"},
			{Keywords: []string{"api", "integration", "partner", "webhook"}, Label: "integration stability"},
			{Keywords: []string{"enterprise", "compliance", "audit"}, Label: "operational compliance"},
		},
		Exclusions: []Rule{
			{Keywords: []string{"no ui", "without ui", "headless", "backend only", "backend-only"}, Label: "frontend"},
			{Keywords: []string{"no auth", "without auth", "unauthenticated"}, Label: "authentication"},
			{Keywords: []string{"stateless", "no database", "without persistence", "in-memory only"}, Label: "persistence"},
			{Keywords: []string{"no deploy", "without deploy", "local only", "local-only"}, Label: "deployment"},
			{Keywords: []string{"no payment", "without payment", "free tier only"}, Label: "billing"},
		},
		Scope: []Rule{
			{Keywords: []string{"mvp", "prototype", "proof of concept", "minimal"}, Label: "minimum viable scope"},
			{Keywords: []string{"local", "offline"}, Label: "local environment only"},
			{Keywords: []string{"single user", "single-user"}, Label: "single-user operation"},
			{Keywords: []string{"read-only", "readonly"}, Label: "read-only access"},
			{Keywords: []string{"internal", "admin"}, Label: "internal audience"},
		},
		Experts: []Rule{
			{Keywords: []string{"web", "app"}, Label: "Frontend Expert (UX/UI, Performance)"},
			{Keywords: []string{"web", "app"}, Label: "Backend Expert (API, Business Logic)"},
			{Keywords: []string{"api"}, Label: "API Expert (REST, Contracts)"},
			{Keywords: []string{"api"}, Label: "Integration Expert (Third-party APIs)"},
			{Keywords: []string{"enterprise"}, Label: "Database Expert (Scalability, Performance)"},
			{Keywords: []string{"enterprise"}, Label: "Testing Expert (Comprehensive Coverage)"},
			{Keywords: []string{"mobile"}, Label: "Mobile Expert (Platform Guidelines)"},
			{Keywords: []string{"mobile"}, Label: "Performance Expert (Resource Optimization)"},
		},
	}
}

// match returns the labels of every rule matching text, in rule order.
func match(rules []Rule, text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, r := range rules {
		if seen[r.Label] || !r.Matches(text) {
			continue
		}
		seen[r.Label] = true
		out = append(out, r.Label)
	}
	return out
}
