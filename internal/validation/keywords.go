package validation

// Keyword lists used by the checks. Matching is by lowercase substring, so
// stems like "secur" cover "secure" and "security".
var (
	CoordinationKeywords = []string{"coordinat", "integrat", "align", "handoff", "hand-off", "sync", "contract", "interface"}
	PerformanceKeywords  = []string{"performance", "optimi", "cache", "caching", "latency", "scal", "efficien", "benchmark", "throughput"}
	SecurityKeywords     = []string{"secur", "auth", "encrypt", "sanitiz", "permission", "vulnerab", "credential", "access control"}
	ArchitectureKeywords = []string{"architect", "design", "structure", "pattern", "modul", "component", "layer"}
	FrontendKeywords     = []string{"frontend", "front-end", "user interface", "page", "screen", "view", "css", "ux"}
	BackendKeywords      = []string{"backend", "back-end", "server", "service", "handler", "business logic"}
	APIKeywords          = []string{"api", "endpoint", "rest", "graphql", "route", "openapi"}
	TestingKeywords      = []string{"test", "coverage", "verification", "qa "}
	DatabaseKeywords     = []string{"database", "schema", "migration", "query", "index", "sql"}
	ConflictKeywords     = []string{"conflict", "trade-off", "tradeoff", "reconcile", "resolve", "prioritiz"}
	RiskKeywords         = []string{"risk", "mitigat", "fallback", "rollback", "contingency"}
)

// Keywords groups the lists an Engine matches against.
type Keywords struct {
	Coordination []string
	Performance  []string
	Security     []string
	Architecture []string
	Frontend     []string
	Backend      []string
	API          []string
	Testing      []string
	Database     []string
	Conflict     []string
	Risk         []string
}

// DefaultKeywords returns the package-level keyword lists.
func DefaultKeywords() Keywords {
	return Keywords{
		Coordination: CoordinationKeywords,
		Performance:  PerformanceKeywords,
		Security:     SecurityKeywords,
		Architecture: ArchitectureKeywords,
		Frontend:     FrontendKeywords,
		Backend:      BackendKeywords,
		API:          APIKeywords,
		Testing:      TestingKeywords,
		Database:     DatabaseKeywords,
		Conflict:     ConflictKeywords,
		Risk:         RiskKeywords,
	}
}
