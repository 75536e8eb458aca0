package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ShayCichocki/phaser/internal/plan"
	"github.com/ShayCichocki/phaser/pkg/models"
)

// ErrEmptyBreakdown is returned when a reply parses but proposes no phases.
var ErrEmptyBreakdown = errors.New("breakdown contains no phases")

// Verdict is the task validator's judgement of an executed task.
type Verdict string

const (
	VerdictPass    Verdict = "PASS"
	VerdictPartial Verdict = "PARTIAL"
	VerdictFail    Verdict = "FAIL"
)

// ParseVerdict reads a validator reply. PASS is checked first, then PARTIAL;
// anything else is FAIL.
func ParseVerdict(text string) Verdict {
	upper := strings.ToUpper(text)
	switch {
	case strings.Contains(upper, string(VerdictPass)):
		return VerdictPass
	case strings.Contains(upper, string(VerdictPartial)):
		return VerdictPartial
	default:
		return VerdictFail
	}
}

// ParseBreakdown extracts proposed phases from an agent reply. The reply may
// be a {"phases": [...]} object or a bare array, optionally wrapped in prose
// or code fences.
func ParseBreakdown(text string) (Breakdown, error) {
	s := strings.TrimSpace(text)
	objStart := strings.Index(s, "{")
	arrStart := strings.Index(s, "[")

	var phases []models.Node
	switch {
	case arrStart >= 0 && (objStart < 0 || arrStart < objStart):
		end := strings.LastIndex(s, "]")
		if end < arrStart {
			return Breakdown{}, fmt.Errorf("no valid JSON array found in response (got %d chars)", len(s))
		}
		if err := json.Unmarshal([]byte(s[arrStart:end+1]), &phases); err != nil {
			return Breakdown{}, fmt.Errorf("unmarshal JSON: %w", err)
		}
	case objStart >= 0:
		var doc struct {
			Phases []models.Node `json:"phases"`
		}
		if err := json.Unmarshal(plan.ExtractJSONObject([]byte(s)), &doc); err != nil {
			return Breakdown{}, fmt.Errorf("unmarshal JSON: %w", err)
		}
		phases = doc.Phases
	default:
		preview := s
		if len(preview) > 200 {
			preview = preview[:200] + "... (truncated)"
		}
		return Breakdown{}, fmt.Errorf("no JSON found in response: %q", preview)
	}

	if len(phases) == 0 {
		return Breakdown{}, ErrEmptyBreakdown
	}
	return Breakdown{Phases: phases}, nil
}

// ParseFailure is the result reported when a reply cannot be parsed: score
// zero, every check failed.
func ParseFailure(err error) *Result {
	r := &Result{Checks: make(map[Check]CheckResult, len(AllChecks))}
	r.Checks[CheckStrategicAlignment] = CheckResult{Issues: []string{"Invalid JSON format"}}
	for _, c := range AllChecks[1:] {
		r.Checks[c] = CheckResult{Issues: []string{"Cannot validate due to JSON error"}}
	}
	r.Recommendations = []string{fmt.Sprintf("JSON format error: %v", err)}
	return r
}

// Normalize gives every child a dotted id directly under parentID, keeping
// ids that already fit and renumbering the rest. Dependencies on renumbered
// siblings are rewritten and empty statuses become pending.
func (b *Breakdown) Normalize(parentID string) {
	used := make(map[string]bool)
	for _, n := range b.Phases {
		if models.IsDirectChild(parentID, n.ID) {
			used[n.ID] = true
		}
	}

	kept := make(map[string]bool)
	renamed := make(map[string]string)
	next := 1
	for i := range b.Phases {
		n := &b.Phases[i]
		if models.IsDirectChild(parentID, n.ID) && !kept[n.ID] {
			kept[n.ID] = true
			continue
		}
		for used[parentID+"."+strconv.Itoa(next)] {
			next++
		}
		newID := parentID + "." + strconv.Itoa(next)
		used[newID] = true
		// Duplicates of a kept id stay referenced by the original.
		if n.ID != "" && !kept[n.ID] {
			renamed[n.ID] = newID
		}
		n.ID = newID
	}

	for i := range b.Phases {
		n := &b.Phases[i]
		for j, dep := range n.Dependencies {
			if to, ok := renamed[dep]; ok {
				n.Dependencies[j] = to
			}
		}
		if n.Status == "" {
			n.Status = models.StatusPending
		}
	}
}
