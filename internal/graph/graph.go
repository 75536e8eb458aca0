// Package graph resolves the plan hierarchy: node status, dependency
// satisfaction, leaf detection, the actionable and breakdown work lists, and
// status propagation through the tree.
package graph

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ShayCichocki/phaser/internal/plan"
	"github.com/ShayCichocki/phaser/pkg/models"
)

// BreakdownThreshold is the duration in minutes above which a node must be
// broken down further.
const BreakdownThreshold = 60

var (
	// ErrInvalidStatus is returned when a status outside the closed set is written.
	ErrInvalidStatus = errors.New("invalid status")
	// ErrNodeNotFound is returned when a status update targets an unknown id.
	ErrNodeNotFound = errors.New("node not found")
	// ErrCycleDetected indicates a circular dependency among plan nodes.
	ErrCycleDetected = errors.New("circular dependency detected")
)

// Candidate is a node selected by a resolver scan together with where it was found.
type Candidate struct {
	Node models.Node
	// ParentID is the id of the document embedding the node, empty for
	// top-level phases from the aggregate.
	ParentID string
	// Source is the base name of the file the node was read from.
	Source string
}

// Resolver answers hierarchy and dependency questions against a plan store.
// Every query rescans the store so edits made between batches are visible.
type Resolver struct {
	store *plan.Store

	// mu serializes status writes; cascades read-modify-write shared parents.
	mu sync.Mutex

	debugLog func(format string, args ...interface{})
}

// New creates a resolver over store.
func New(store *plan.Store) *Resolver {
	return &Resolver{
		store:    store,
		debugLog: func(format string, args ...interface{}) {}, // no-op by default
	}
}

// SetDebugLog sets the debug logging function.
func (r *Resolver) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		r.debugLog = fn
	}
}

// Store returns the underlying plan store.
func (r *Resolver) Store() *plan.Store {
	return r.store
}

// NeedsBreakdown reports whether a duration exceeds the breakdown threshold.
// For a range, either bound exceeding it is enough; absent durations never do.
func NeedsBreakdown(d models.Duration) bool {
	return d.Exceeds(BreakdownThreshold)
}

// StatusOf returns the status of id.
func (r *Resolver) StatusOf(id string) models.Status {
	v, err := r.snapshot()
	if err != nil {
		r.debugLog("[graph.StatusOf] snapshot failed: %v", err)
		return models.StatusUnknown
	}
	return v.statusOf(id)
}

// DependenciesSatisfied reports whether every id is completed.
// An empty set is satisfied; unknown ids are not.
func (r *Resolver) DependenciesSatisfied(ids []string) bool {
	if len(ids) == 0 {
		return true
	}
	v, err := r.snapshot()
	if err != nil {
		return false
	}
	return v.depsSatisfied(ids)
}

// IsLeaf reports whether no document exists for a direct child of id.
func (r *Resolver) IsLeaf(id string) bool {
	v, err := r.snapshot()
	if err != nil {
		return false
	}
	return v.isLeaf(id)
}

// IsTrueLeaf reports whether an embedded node is really a leaf: it must have
// no child documents, and if it has its own document that document must not
// list phases.
func (r *Resolver) IsTrueLeaf(n models.Node) bool {
	v, err := r.snapshot()
	if err != nil {
		return false
	}
	return v.isTrueLeaf(n)
}

// ActionableNodes returns every pending leaf whose dependencies are complete,
// ordered by (priority ordinal, id).
func (r *Resolver) ActionableNodes() ([]Candidate, error) {
	v, err := r.snapshot()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []Candidate
	consider := func(n models.Node, parentID, source string) {
		if seen[n.ID] || n.ID == "" {
			return
		}
		if n.Status.OrPending() != models.StatusPending {
			return
		}
		if !v.isTrueLeaf(n) {
			return
		}
		if !v.depsSatisfied(n.Dependencies) {
			return
		}
		seen[n.ID] = true
		out = append(out, Candidate{Node: n, ParentID: parentID, Source: source})
	}

	for _, f := range v.files {
		doc := v.doc(f.ID)
		if doc == nil || doc.Title == "" {
			continue
		}
		for _, child := range doc.Phases {
			consider(v.withOwnStatus(child), f.ID, filepath.Base(f.Path))
		}
	}
	if v.agg != nil {
		// A phase with a leaf document of its own is still work; consider
		// rejects the ones whose document was broken down.
		for _, n := range v.agg.Phases {
			consider(v.withOwnStatus(n), "", plan.AggregateFile)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].Node.Priority.Ordinal(), out[j].Node.Priority.Ordinal()
		if pi != pj {
			return pi < pj
		}
		return models.CompareIDs(out[i].Node.ID, out[j].Node.ID) < 0
	})
	r.debugLog("[graph.ActionableNodes] %d actionable", len(out))
	return out, nil
}

// NodesNeedingBreakdown returns up to limit nodes whose duration exceeds the
// threshold and that have no document of their own yet, largest first.
func (r *Resolver) NodesNeedingBreakdown(limit int) ([]Candidate, error) {
	v, err := r.snapshot()
	if err != nil {
		return nil, err
	}

	type key struct{ source, id string }
	seen := make(map[key]bool)
	var out []Candidate

	var walk func(nodes []models.Node, parentID, source string)
	walk = func(nodes []models.Node, parentID, source string) {
		for _, n := range nodes {
			if n.ID == "" {
				continue
			}
			if _, hasDoc := v.ids[n.ID]; !hasDoc && NeedsBreakdown(n.Duration) {
				k := key{source, n.ID}
				if !seen[k] {
					seen[k] = true
					out = append(out, Candidate{Node: n, ParentID: parentID, Source: source})
				}
			}
			if len(n.Phases) > 0 {
				walk(n.Phases, n.ID, source)
			}
		}
	}

	for _, f := range v.files {
		if doc := v.doc(f.ID); doc != nil {
			walk(doc.Phases, f.ID, filepath.Base(f.Path))
		}
	}
	if v.agg != nil {
		walk(v.agg.Phases, "", plan.AggregateFile)
	}

	sort.SliceStable(out, func(i, j int) bool {
		di, dj := out[i].Node.Duration.Max(), out[j].Node.Duration.Max()
		if di != dj {
			return di > dj
		}
		return models.CompareIDs(out[i].Node.ID, out[j].Node.ID) < 0
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	r.debugLog("[graph.NodesNeedingBreakdown] %d candidates (limit %d)", len(out), limit)
	return out, nil
}

// CheckCycles returns ErrCycleDetected if the dependency edges across the
// whole plan contain a cycle.
func (r *Resolver) CheckCycles() error {
	v, err := r.snapshot()
	if err != nil {
		return err
	}
	edges := v.edges()

	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int, len(edges))
	var cycleAt string
	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1
		for _, dep := range edges[id] {
			switch colors[dep] {
			case 1:
				cycleAt = dep
				return true
			case 0:
				if visit(dep) {
					return true
				}
			}
		}
		colors[id] = 2
		return false
	}

	ids := make([]string, 0, len(edges))
	for id := range edges {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if colors[id] == 0 && visit(id) {
			return fmt.Errorf("%w: involving %s", ErrCycleDetected, cycleAt)
		}
	}
	return nil
}
