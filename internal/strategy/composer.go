// Package strategy composes the strategic context handed to agents: the
// project's intent, the chain of parent goals, sibling coordination, scope
// boundaries, and the node being worked on.
package strategy

import (
	"fmt"
	"slices"

	"github.com/ShayCichocki/phaser/internal/plan"
	"github.com/ShayCichocki/phaser/pkg/models"
)

// CoordinationKind describes how a node relates to one of its siblings.
type CoordinationKind string

const (
	// CoordinationSequential means one of the pair depends on the other.
	CoordinationSequential CoordinationKind = "sequential_dependency"
	// CoordinationParallel means both are pending and unrelated, so they may run together.
	CoordinationParallel CoordinationKind = "parallel_execution"
	// CoordinationIndependent covers every other pairing.
	CoordinationIndependent CoordinationKind = "independent_coordination"
)

// ProjectDNA is the project-wide intent derived from the aggregate document.
type ProjectDNA struct {
	Vision                  string
	Goal                    string
	Type                    string
	Complexity              string
	ArchitecturalPrinciples []string
	CriticalSuccessFactors  []string
	DomainExperts           []string
}

// Ancestor is one level of the parent chain. Level 0 is the project root.
type Ancestor struct {
	Level        int
	ID           string
	Title        string
	Goal         string
	Deliverables []string
}

// CoordinationPoint relates the current node to one sibling.
type CoordinationPoint struct {
	SiblingID    string
	SiblingTitle string
	Kind         CoordinationKind
	Note         string
}

// SiblingCoordination lists the current node's siblings.
type SiblingCoordination struct {
	HasSiblings bool
	Points      []CoordinationPoint
}

// BoundaryConstraints bound what a breakdown or execution may cover.
type BoundaryConstraints struct {
	MustInclude    []string
	MustNotInclude []string
	ScopeLimits    []string
}

// CurrentNode is the target node's own descriptive fields.
type CurrentNode struct {
	ID           string
	Title        string
	Description  string
	Status       models.Status
	Duration     models.Duration
	Dependencies []string
	Deliverables []string
}

// Context is a read-only snapshot built for one dispatch and then discarded.
type Context struct {
	PlanDir     string
	ProjectDNA  ProjectDNA
	ParentChain []Ancestor
	Siblings    SiblingCoordination
	Boundary    BoundaryConstraints
	Current     CurrentNode
}

// Parent returns the immediate parent level, or nil for an empty chain.
func (c *Context) Parent() *Ancestor {
	if len(c.ParentChain) == 0 {
		return nil
	}
	return &c.ParentChain[len(c.ParentChain)-1]
}

// Composer builds strategic contexts from a plan store. It only reads, so a
// single Composer can serve concurrent workers.
type Composer struct {
	store *plan.Store
	rules RuleSet
}

// Option configures a Composer.
type Option func(*Composer)

// WithRules replaces the default keyword heuristics.
func WithRules(rules RuleSet) Option {
	return func(c *Composer) {
		c.rules = rules
	}
}

// NewComposer creates a composer over store.
func NewComposer(store *plan.Store, opts ...Option) *Composer {
	c := &Composer{store: store, rules: DefaultRules()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Rules returns the heuristics in use.
func (c *Composer) Rules() RuleSet {
	return c.rules
}

// Compose builds the strategic context for id.
func (c *Composer) Compose(id string) (*Context, error) {
	if id == "" {
		return nil, fmt.Errorf("compose context: empty id")
	}

	agg, _, err := c.store.LoadAggregate()
	if err != nil {
		return nil, fmt.Errorf("compose context for %s: %w", id, err)
	}
	var project models.Project
	if agg != nil {
		project = agg.Project
	}

	current, err := c.resolve(id, agg)
	if err != nil {
		return nil, fmt.Errorf("compose context for %s: %w", id, err)
	}

	ctx := &Context{
		PlanDir:    c.store.Dir(),
		ProjectDNA: c.projectDNA(project),
		Current: CurrentNode{
			ID:           id,
			Title:        current.Title,
			Description:  current.Description,
			Status:       current.Status.OrPending(),
			Duration:     current.Duration,
			Dependencies: current.Dependencies,
			Deliverables: current.Deliverables,
		},
	}

	ctx.ParentChain = append(ctx.ParentChain, Ancestor{
		Level: 0,
		ID:    models.ProjectRootID,
		Title: orDefault(project.Title, "Unknown"),
		Goal:  project.Description,
	})
	for i, ancestorID := range models.Ancestors(id) {
		n, err := c.resolve(ancestorID, agg)
		if err != nil {
			return nil, fmt.Errorf("compose context for %s: %w", id, err)
		}
		ctx.ParentChain = append(ctx.ParentChain, Ancestor{
			Level:        i + 1,
			ID:           ancestorID,
			Title:        orDefault(n.Title, "Unknown"),
			Goal:         n.Description,
			Deliverables: n.Deliverables,
		})
	}

	siblings, err := c.siblings(id, agg)
	if err != nil {
		return nil, fmt.Errorf("compose context for %s: %w", id, err)
	}
	ctx.Siblings = coordinate(current, siblings)

	parent := ctx.Parent()
	ctx.Boundary = BoundaryConstraints{
		MustInclude:    parent.Deliverables,
		MustNotInclude: match(c.rules.Exclusions, parent.Goal),
		ScopeLimits:    match(c.rules.Scope, parent.Goal),
	}
	return ctx, nil
}

func (c *Composer) projectDNA(p models.Project) ProjectDNA {
	text := p.Type + " " + p.Description
	return ProjectDNA{
		Vision:                  orDefault(p.Title, "Unknown"),
		Goal:                    orDefault(p.Description, "No goal specified"),
		Type:                    orDefault(p.Type, "unknown"),
		Complexity:              orDefault(p.Complexity, "medium"),
		ArchitecturalPrinciples: match(c.rules.Principles, text),
		CriticalSuccessFactors:  match(c.rules.SuccessFactors, text),
		DomainExperts:           match(c.rules.Experts, p.Type+" "+p.Complexity),
	}
}

// resolve merges what is known about id: its entry in the parent document or
// the aggregate, overlaid with non-empty fields from its own document.
func (c *Composer) resolve(id string, agg *models.Aggregate) (models.Node, error) {
	n := models.Node{ID: id}

	if parent := models.ParentID(id); parent != "" {
		pdoc, ok, err := c.store.LoadDocument(parent)
		if err != nil {
			return n, err
		}
		if ok {
			if entry := findEntry(pdoc.Phases, id); entry != nil {
				n = *entry
			}
		}
	} else if agg != nil {
		if entry := agg.FindPhase(id); entry != nil {
			n = *entry
		}
	}

	doc, ok, err := c.store.LoadDocument(id)
	if err != nil {
		return n, err
	}
	if ok {
		own := doc.AsNode()
		if own.Title != "" {
			n.Title = own.Title
		}
		if own.Description != "" {
			n.Description = own.Description
		}
		if own.Status != "" {
			n.Status = own.Status
		}
		if len(own.Deliverables) > 0 {
			n.Deliverables = own.Deliverables
		}
		if len(own.Dependencies) > 0 {
			n.Dependencies = own.Dependencies
		}
		if !own.Duration.IsZero() {
			n.Duration = own.Duration
		}
	}
	n.ID = id
	return n, nil
}

// siblings returns the other children of id's parent. Top-level siblings
// come from the aggregate.
func (c *Composer) siblings(id string, agg *models.Aggregate) ([]models.Node, error) {
	var all []models.Node
	if parent := models.ParentID(id); parent != "" {
		pdoc, ok, err := c.store.LoadDocument(parent)
		if err != nil {
			return nil, err
		}
		if ok {
			all = pdoc.Phases
		}
	} else if agg != nil {
		all = agg.Phases
	}

	out := make([]models.Node, 0, len(all))
	for _, n := range all {
		if n.ID == "" || n.ID == id {
			continue
		}
		// A sibling's own document carries its current status.
		if doc, ok, err := c.store.LoadDocument(n.ID); err == nil && ok && doc.Status != "" {
			n.Status = doc.Status
		}
		out = append(out, n)
	}
	return out, nil
}

func coordinate(current models.Node, siblings []models.Node) SiblingCoordination {
	sc := SiblingCoordination{HasSiblings: len(siblings) > 0}
	for _, s := range siblings {
		p := CoordinationPoint{SiblingID: s.ID, SiblingTitle: orDefault(s.Title, "Unknown")}
		switch {
		case slices.Contains(current.Dependencies, s.ID):
			p.Kind = CoordinationSequential
			p.Note = fmt.Sprintf("%s must complete before %s starts", s.ID, current.ID)
		case slices.Contains(s.Dependencies, current.ID):
			p.Kind = CoordinationSequential
			p.Note = fmt.Sprintf("%s waits on %s; keep its inputs stable", s.ID, current.ID)
		case current.Status.OrPending() == models.StatusPending && s.Status.OrPending() == models.StatusPending:
			p.Kind = CoordinationParallel
			p.Note = "may run concurrently; agree on shared interfaces early"
		default:
			p.Kind = CoordinationIndependent
			p.Note = fmt.Sprintf("sibling is %s; stay consistent with its outputs", s.Status.OrPending())
		}
		sc.Points = append(sc.Points, p)
	}
	return sc
}

func findEntry(nodes []models.Node, id string) *models.Node {
	for i := range nodes {
		if nodes[i].ID == id {
			return &nodes[i]
		}
		if n := findEntry(nodes[i].Phases, id); n != nil {
			return n
		}
	}
	return nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
