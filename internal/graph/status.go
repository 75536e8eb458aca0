package graph

import (
	"fmt"

	"github.com/ShayCichocki/phaser/pkg/models"
)

// SetStatus writes status for id.
//
// If id has its own document, the document and all of its embedded children
// are stamped and each child is updated recursively. The entry for id in its
// parent's document and in the aggregate is updated too. Completing a node
// triggers the upward cascade: a parent whose children are all completed is
// itself marked completed, and so on toward the root.
func (r *Resolver) SetStatus(id string, status models.Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	found, err := r.setStatusLocked(id, status, true)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	r.debugLog("[graph.SetStatus] %s -> %s", id, status)

	if status == models.StatusCompleted {
		return r.cascadeLocked(models.ParentID(id))
	}
	return nil
}

// setStatusLocked updates every place id is recorded. When down is true the
// node's own document children are stamped recursively.
func (r *Resolver) setStatusLocked(id string, status models.Status, down bool) (bool, error) {
	found := false

	doc, ok, err := r.store.LoadDocument(id)
	if err != nil {
		return false, err
	}
	if ok {
		found = true
		doc.Status = status
		var children []string
		if down {
			for i := range doc.Phases {
				stampTree(&doc.Phases[i], status)
				children = append(children, doc.Phases[i].ID)
			}
		}
		if err := r.store.SaveDocument(doc); err != nil {
			return false, fmt.Errorf("save %s: %w", id, err)
		}
		for _, child := range children {
			if child == "" || child == id {
				continue
			}
			if _, err := r.setStatusLocked(child, status, true); err != nil {
				return false, err
			}
		}
	}

	if parent := models.ParentID(id); parent != "" {
		pdoc, ok, err := r.store.LoadDocument(parent)
		if err != nil {
			return false, err
		}
		if ok {
			if n := findNode(pdoc.Phases, id); n != nil {
				found = true
				if n.Status != status {
					n.Status = status
					if down {
						for i := range n.Phases {
							stampTree(&n.Phases[i], status)
						}
					}
					if err := r.store.SaveDocument(pdoc); err != nil {
						return false, fmt.Errorf("save %s: %w", parent, err)
					}
				}
			}
		}
	}

	agg, ok, err := r.store.LoadAggregate()
	if err != nil {
		return false, err
	}
	if ok {
		if n := agg.FindPhase(id); n != nil {
			found = true
			if n.Status != status {
				n.Status = status
				if err := r.store.SaveAggregate(agg); err != nil {
					return false, fmt.Errorf("save aggregate: %w", err)
				}
			}
		}
	}

	return found, nil
}

// cascadeLocked promotes parentID to completed when every child in its
// document is completed, then continues with the grandparent.
func (r *Resolver) cascadeLocked(parentID string) error {
	for parentID != "" {
		doc, ok, err := r.store.LoadDocument(parentID)
		if err != nil {
			return err
		}
		if !ok || len(doc.Phases) == 0 || doc.Status == models.StatusCompleted {
			return nil
		}

		v, err := r.snapshot()
		if err != nil {
			return err
		}
		for _, child := range doc.Phases {
			if v.statusOf(child.ID) != models.StatusCompleted {
				return nil
			}
		}

		r.debugLog("[graph.cascade] all children of %s completed", parentID)
		if _, err := r.setStatusLocked(parentID, models.StatusCompleted, false); err != nil {
			return err
		}
		parentID = models.ParentID(parentID)
	}
	return nil
}

// SetAllStatus stamps status onto every document, every embedded child and
// the aggregate. It returns the number of files rewritten.
func (r *Resolver) SetAllStatus(status models.Status) (int, error) {
	if !status.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	agg, ok, err := r.store.LoadAggregate()
	if err != nil {
		return 0, err
	}
	if ok {
		for i := range agg.Phases {
			stampTree(&agg.Phases[i], status)
		}
		if err := r.store.SaveAggregate(agg); err != nil {
			return count, fmt.Errorf("save aggregate: %w", err)
		}
		count++
	}

	files, err := r.store.Files()
	if err != nil {
		return count, err
	}
	for _, f := range files {
		doc, ok, err := r.store.LoadDocument(f.ID)
		if err != nil || !ok {
			continue
		}
		doc.Status = status
		for i := range doc.Phases {
			stampTree(&doc.Phases[i], status)
		}
		if err := r.store.SaveDocument(doc); err != nil {
			return count, fmt.Errorf("save %s: %w", f.ID, err)
		}
		count++
	}
	r.debugLog("[graph.SetAllStatus] %d files set to %s", count, status)
	return count, nil
}

func stampTree(n *models.Node, status models.Status) {
	n.Status = status
	for i := range n.Phases {
		stampTree(&n.Phases[i], status)
	}
}
