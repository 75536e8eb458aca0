package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Status represents the lifecycle state of a plan node.
type Status string

const (
	// StatusPending indicates the node has not started.
	StatusPending Status = "pending"
	// StatusInProgress indicates the node is being worked on.
	StatusInProgress Status = "in-progress"
	// StatusCompleted indicates the node finished successfully.
	StatusCompleted Status = "completed"
	// StatusUnknown is returned by lookups for ids that exist nowhere.
	// It is never written to a document.
	StatusUnknown Status = "unknown"
)

// Valid returns true if the status may be written to a document.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	default:
		return false
	}
}

// OrPending returns the status, defaulting an empty value to pending.
func (s Status) OrPending() Status {
	if s == "" {
		return StatusPending
	}
	return s
}

// Priority is the free-form priority label carried by a node.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Ordinal maps the priority to its sort position. Unknown labels sort last.
func (p Priority) Ordinal() int {
	switch Priority(strings.ToLower(string(p))) {
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 999
	}
}

// Duration is a minute estimate: either a single value or a "min-max" range.
// It remembers whether it was encoded as a number or a string so rewrites
// keep the original shape.
type Duration struct {
	Min     int
	MaxVal  int
	isRange bool
	quoted  bool
	set     bool
}

// Minutes returns a single-valued duration.
func Minutes(n int) Duration {
	return Duration{Min: n, MaxVal: n, set: true}
}

// Range returns a "min-max" duration.
func Range(lo, hi int) Duration {
	return Duration{Min: lo, MaxVal: hi, isRange: true, quoted: true, set: true}
}

// ParseDuration parses "45", "30-90" or " 30 - 90 ".
func ParseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Duration{}, nil
	}
	if lo, hi, ok := strings.Cut(s, "-"); ok {
		a, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return Duration{}, fmt.Errorf("parse duration %q: %w", s, err)
		}
		b, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return Duration{}, fmt.Errorf("parse duration %q: %w", s, err)
		}
		return Range(a, b), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return Duration{}, fmt.Errorf("parse duration %q: %w", s, err)
	}
	d := Minutes(n)
	d.quoted = true
	return d, nil
}

// IsZero reports whether the duration was absent or zero.
func (d Duration) IsZero() bool {
	return !d.set || (d.Min == 0 && d.MaxVal == 0)
}

// IsRange reports whether the duration was given as "min-max".
func (d Duration) IsRange() bool {
	return d.isRange
}

// Max returns the larger bound.
func (d Duration) Max() int {
	if d.Min > d.MaxVal {
		return d.Min
	}
	return d.MaxVal
}

// Exceeds reports whether either bound is greater than threshold.
func (d Duration) Exceeds(threshold int) bool {
	if d.IsZero() {
		return false
	}
	return d.Min > threshold || d.MaxVal > threshold
}

// String renders the duration the way it is written in plan documents.
func (d Duration) String() string {
	if !d.set {
		return ""
	}
	if d.isRange {
		return fmt.Sprintf("%d-%d", d.Min, d.MaxVal)
	}
	return strconv.Itoa(d.Min)
}

// MarshalJSON writes a number, or a string for ranges and quoted values.
func (d Duration) MarshalJSON() ([]byte, error) {
	if !d.set {
		return []byte("null"), nil
	}
	if d.isRange || d.quoted {
		return json.Marshal(d.String())
	}
	return []byte(strconv.Itoa(d.Min)), nil
}

// UnmarshalJSON accepts a number, a numeric string or a range string.
func (d *Duration) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*d = Duration{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseDuration(s)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse duration: %w", err)
	}
	*d = Minutes(int(f))
	return nil
}

// Node is a phase or task entry in the hierarchical plan.
type Node struct {
	// ID is the dotted hierarchical identifier, e.g. "1.2.4".
	ID string `json:"id"`
	// Title is the short name of the node.
	Title string `json:"title"`
	// Description is free text describing the work.
	Description string `json:"description,omitempty"`
	// Duration is the estimate in minutes.
	Duration Duration `json:"duration,omitzero"`
	// Status is the lifecycle state. Empty means pending.
	Status Status `json:"status,omitempty"`
	// Priority is high, medium or low.
	Priority Priority `json:"priority,omitempty"`
	// Dependencies lists node ids that must complete first.
	Dependencies []string `json:"dependencies,omitempty"`
	// Deliverables lists expected outputs, used for context only.
	Deliverables []string `json:"deliverables,omitempty"`
	// Phases holds embedded child definitions.
	Phases []Node `json:"phases,omitempty"`

	// Extra keeps fields this package does not model so rewrites preserve them.
	Extra map[string]json.RawMessage `json:"-"`
}

var nodeFields = []string{"id", "title", "description", "duration", "status", "priority", "dependencies", "deliverables", "phases"}

type nodeAlias Node

// UnmarshalJSON decodes known fields and stashes the rest in Extra.
func (n *Node) UnmarshalJSON(data []byte) error {
	var a nodeAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, err := collectExtra(data, nodeFields)
	if err != nil {
		return err
	}
	*n = Node(a)
	n.Extra = extra
	return nil
}

// MarshalJSON encodes known fields followed by preserved extras.
func (n Node) MarshalJSON() ([]byte, error) {
	return mergeExtra(nodeAlias(n), n.Extra)
}

// Document is a per-id plan file. When a node is broken down, its children
// are materialized into a document named by the node's id.
type Document struct {
	ID                string   `json:"id,omitempty"`
	Title             string   `json:"title,omitempty"`
	Description       string   `json:"description,omitempty"`
	Status            Status   `json:"status,omitempty"`
	Priority          Priority `json:"priority,omitempty"`
	Duration          Duration `json:"duration,omitzero"`
	Dependencies      []string `json:"dependencies,omitempty"`
	Deliverables      []string `json:"deliverables,omitempty"`
	Phases            []Node   `json:"phases,omitempty"`
	BreakdownComplete bool     `json:"breakdown_complete,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

var documentFields = []string{"id", "title", "description", "status", "priority", "duration", "dependencies", "deliverables", "phases", "breakdown_complete"}

type documentAlias Document

// UnmarshalJSON decodes known fields and stashes the rest in Extra.
func (d *Document) UnmarshalJSON(data []byte) error {
	var a documentAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, err := collectExtra(data, documentFields)
	if err != nil {
		return err
	}
	*d = Document(a)
	d.Extra = extra
	return nil
}

// MarshalJSON encodes known fields followed by preserved extras.
func (d Document) MarshalJSON() ([]byte, error) {
	return mergeExtra(documentAlias(d), d.Extra)
}

// AsNode returns the document's own descriptive fields as a Node.
func (d *Document) AsNode() Node {
	return Node{
		ID:           d.ID,
		Title:        d.Title,
		Description:  d.Description,
		Duration:     d.Duration,
		Status:       d.Status,
		Priority:     d.Priority,
		Dependencies: d.Dependencies,
		Deliverables: d.Deliverables,
		Phases:       d.Phases,
	}
}

// Project is the metadata block of the aggregate document.
type Project struct {
	Title             string `json:"title"`
	Description       string `json:"description,omitempty"`
	Type              string `json:"type,omitempty"`
	Complexity        string `json:"complexity,omitempty"`
	TotalPhases       int    `json:"totalPhases,omitempty"`
	EstimatedDuration string `json:"estimatedDuration,omitempty"`
}

// Aggregate is the root document holding top-level phases inline.
type Aggregate struct {
	Project Project `json:"project"`
	Phases  []Node  `json:"phases"`
}

// FindPhase returns a pointer to the top-level phase with the given id.
func (a *Aggregate) FindPhase(id string) *Node {
	for i := range a.Phases {
		if a.Phases[i].ID == id {
			return &a.Phases[i]
		}
	}
	return nil
}

func collectExtra(data []byte, known []string) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

func mergeExtra(v interface{}, extra map[string]json.RawMessage) ([]byte, error) {
	base, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return base, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(base, &m); err != nil {
		return nil, err
	}
	for k, raw := range extra {
		if _, exists := m[k]; !exists {
			m[k] = raw
		}
	}
	return json.Marshal(m)
}
