package models

import (
	"strconv"
	"strings"
)

// ProjectRootID names the synthetic root above every top-level phase.
const ProjectRootID = "project"

// ParentID returns the id with its last dotted segment removed.
// Top-level ids have no parent and return "".
func ParentID(id string) string {
	i := strings.LastIndex(id, ".")
	if i < 0 {
		return ""
	}
	return id[:i]
}

// Depth returns the number of dotted segments in id.
func Depth(id string) int {
	if id == "" {
		return 0
	}
	return strings.Count(id, ".") + 1
}

// IsDirectChild reports whether id is parent plus exactly one numeric segment.
func IsDirectChild(parent, id string) bool {
	if parent == "" || !strings.HasPrefix(id, parent+".") {
		return false
	}
	rest := id[len(parent)+1:]
	if rest == "" || strings.Contains(rest, ".") {
		return false
	}
	_, err := strconv.Atoi(rest)
	return err == nil
}

// Ancestors returns the chain of ancestor ids from the top level down to the
// immediate parent. Ancestors("1.2.3") is ["1", "1.2"].
func Ancestors(id string) []string {
	parts := strings.Split(id, ".")
	out := make([]string, 0, len(parts)-1)
	for i := 1; i < len(parts); i++ {
		out = append(out, strings.Join(parts[:i], "."))
	}
	return out
}

// CompareIDs orders dotted ids segment by segment, numerically where both
// segments are numbers. It returns -1, 0 or 1.
func CompareIDs(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		if as[i] == bs[i] {
			continue
		}
		an, aerr := strconv.Atoi(as[i])
		bn, berr := strconv.Atoi(bs[i])
		if aerr == nil && berr == nil {
			if an < bn {
				return -1
			}
			return 1
		}
		if as[i] < bs[i] {
			return -1
		}
		return 1
	}
	switch {
	case len(as) < len(bs):
		return -1
	case len(as) > len(bs):
		return 1
	}
	return 0
}
