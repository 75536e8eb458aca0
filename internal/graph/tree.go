package graph

import "github.com/ShayCichocki/phaser/pkg/models"

// TreeNode is a resolved view of one node for display.
type TreeNode struct {
	Node     models.Node
	Status   models.Status
	Leaf     bool
	Children []*TreeNode
}

// Tree returns the plan rooted at the aggregate's top-level phases, with
// each node that has its own document expanded into that document's children.
func (r *Resolver) Tree() (*models.Project, []*TreeNode, error) {
	v, err := r.snapshot()
	if err != nil {
		return nil, nil, err
	}
	if v.agg == nil {
		return nil, nil, nil
	}

	var build func(n models.Node, depth int) *TreeNode
	build = func(n models.Node, depth int) *TreeNode {
		t := &TreeNode{Node: n, Status: v.statusOf(n.ID)}
		if t.Status == models.StatusUnknown {
			t.Status = n.Status.OrPending()
		}
		children := n.Phases
		if d := v.doc(n.ID); d != nil && len(d.Phases) > 0 {
			children = d.Phases
		}
		t.Leaf = len(children) == 0 && v.isLeaf(n.ID)
		if depth >= 32 {
			return t
		}
		for _, c := range children {
			if c.ID == n.ID {
				continue
			}
			t.Children = append(t.Children, build(c, depth+1))
		}
		return t
	}

	roots := make([]*TreeNode, 0, len(v.agg.Phases))
	for _, n := range v.agg.Phases {
		roots = append(roots, build(n, 0))
	}
	project := v.agg.Project
	return &project, roots, nil
}

// Walk visits every node in the tree depth-first.
func Walk(nodes []*TreeNode, fn func(t *TreeNode, depth int)) {
	var visit func(ts []*TreeNode, depth int)
	visit = func(ts []*TreeNode, depth int) {
		for _, t := range ts {
			fn(t, depth)
			visit(t.Children, depth+1)
		}
	}
	visit(nodes, 0)
}
