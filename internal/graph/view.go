package graph

import (
	"github.com/ShayCichocki/phaser/internal/plan"
	"github.com/ShayCichocki/phaser/pkg/models"
)

// view is a point-in-time read of the store used by a single query.
// Documents are loaded lazily and cached only for the life of the view.
type view struct {
	store *plan.Store
	files []plan.File
	ids   map[string]string
	docs  map[string]*models.Document
	agg   *models.Aggregate
}

func (r *Resolver) snapshot() (*view, error) {
	files, err := r.store.Files()
	if err != nil {
		return nil, err
	}
	v := &view{
		store: r.store,
		files: files,
		ids:   make(map[string]string, len(files)),
		docs:  make(map[string]*models.Document),
	}
	for _, f := range files {
		if _, dup := v.ids[f.ID]; !dup {
			v.ids[f.ID] = f.Path
		}
	}
	agg, ok, err := r.store.LoadAggregate()
	if err != nil {
		return nil, err
	}
	if ok {
		v.agg = agg
	}
	return v, nil
}

// doc returns the document for id, or nil when none exists or it cannot be read.
func (v *view) doc(id string) *models.Document {
	if d, ok := v.docs[id]; ok {
		return d
	}
	if _, exists := v.ids[id]; !exists {
		v.docs[id] = nil
		return nil
	}
	d, ok, err := v.store.LoadDocument(id)
	if err != nil || !ok {
		d = nil
	}
	v.docs[id] = d
	return d
}

// statusOf looks in the node's own document, then the aggregate, then the
// entry embedded in the parent's document.
func (v *view) statusOf(id string) models.Status {
	if d := v.doc(id); d != nil {
		return d.Status.OrPending()
	}
	if v.agg != nil {
		if n := v.agg.FindPhase(id); n != nil {
			return n.Status.OrPending()
		}
	}
	if parent := models.ParentID(id); parent != "" {
		if d := v.doc(parent); d != nil {
			if n := findNode(d.Phases, id); n != nil {
				return n.Status.OrPending()
			}
		}
	}
	return models.StatusUnknown
}

func (v *view) depsSatisfied(ids []string) bool {
	for _, id := range ids {
		if v.statusOf(id) != models.StatusCompleted {
			return false
		}
	}
	return true
}

func (v *view) isLeaf(id string) bool {
	for other := range v.ids {
		if models.IsDirectChild(id, other) {
			return false
		}
	}
	return true
}

func (v *view) isTrueLeaf(n models.Node) bool {
	if d := v.doc(n.ID); d != nil && len(d.Phases) > 0 {
		return false
	}
	return v.isLeaf(n.ID)
}

// withOwnStatus returns n with the status from its own document, which is
// authoritative over the embedded or aggregate entry.
func (v *view) withOwnStatus(n models.Node) models.Node {
	if own := v.doc(n.ID); own != nil && own.Status != "" {
		n.Status = own.Status
	}
	return n
}

// edges collects dependency edges for every node visible in the plan.
func (v *view) edges() map[string][]string {
	edges := make(map[string][]string)
	var add func(nodes []models.Node)
	add = func(nodes []models.Node) {
		for _, n := range nodes {
			if n.ID == "" {
				continue
			}
			edges[n.ID] = append(edges[n.ID], n.Dependencies...)
			add(n.Phases)
		}
	}
	if v.agg != nil {
		add(v.agg.Phases)
	}
	for _, f := range v.files {
		if d := v.doc(f.ID); d != nil {
			if len(d.Dependencies) > 0 {
				edges[f.ID] = append(edges[f.ID], d.Dependencies...)
			}
			add(d.Phases)
		}
	}
	return edges
}

// findNode searches nodes and their embedded phases for id.
func findNode(nodes []models.Node, id string) *models.Node {
	for i := range nodes {
		if nodes[i].ID == id {
			return &nodes[i]
		}
		if n := findNode(nodes[i].Phases, id); n != nil {
			return n
		}
	}
	return nil
}
