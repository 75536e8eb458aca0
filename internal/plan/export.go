package plan

import (
	"fmt"
	"io"

	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/phaser/pkg/models"
)

type exportNode struct {
	ID           string       `yaml:"id"`
	Title        string       `yaml:"title"`
	Status       string       `yaml:"status"`
	Duration     string       `yaml:"duration,omitempty"`
	Priority     string       `yaml:"priority,omitempty"`
	Dependencies []string     `yaml:"dependencies,omitempty"`
	Children     []exportNode `yaml:"children,omitempty"`
}

type exportPlan struct {
	Project models.Project `yaml:"project"`
	Phases  []exportNode   `yaml:"phases"`
}

// ExportYAML writes the plan tree as YAML, expanding every node that has
// its own document into its children.
func (s *Store) ExportYAML(w io.Writer) error {
	agg, ok, err := s.LoadAggregate()
	if err != nil {
		return err
	}
	out := exportPlan{}
	if ok {
		out.Project = agg.Project
		for _, n := range agg.Phases {
			out.Phases = append(out.Phases, s.exportNode(n, 0))
		}
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode plan yaml: %w", err)
	}
	return enc.Close()
}

// maxExportDepth guards against documents that list themselves as children.
const maxExportDepth = 32

func (s *Store) exportNode(n models.Node, depth int) exportNode {
	e := exportNode{
		ID:           n.ID,
		Title:        n.Title,
		Status:       string(n.Status.OrPending()),
		Duration:     n.Duration.String(),
		Priority:     string(n.Priority),
		Dependencies: n.Dependencies,
	}
	if depth >= maxExportDepth {
		return e
	}
	children := n.Phases
	if doc, ok, err := s.LoadDocument(n.ID); err == nil && ok {
		if doc.Status != "" {
			e.Status = string(doc.Status)
		}
		children = doc.Phases
	}
	for _, c := range children {
		if c.ID == n.ID {
			continue
		}
		e.Children = append(e.Children, s.exportNode(c, depth+1))
	}
	return e
}
