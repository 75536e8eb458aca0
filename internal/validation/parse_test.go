package validation

import (
	"errors"
	"reflect"
	"testing"

	"github.com/ShayCichocki/phaser/pkg/models"
)

func TestParseBreakdown(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantIDs []string
		wantErr bool
	}{
		{
			name:    "object",
			input:   `{"id":"1","phases":[{"id":"1.1","title":"a"},{"id":"1.2","title":"b"}],"breakdown_complete":true}`,
			wantIDs: []string{"1.1", "1.2"},
		},
		{
			name:    "fenced object with prose",
			input:   "Here is the plan:\n```json\n{\"phases\":[{\"id\":\"2.1\",\"title\":\"x\",\"duration\":\"20-40\"}]}\n```\nDone.",
			wantIDs: []string{"2.1"},
		},
		{
			name:    "bare array",
			input:   `Result: [{"id":"3.1","title":"y"}]`,
			wantIDs: []string{"3.1"},
		},
		{name: "no json", input: "I could not do it", wantErr: true},
		{name: "malformed", input: `{"phases":[{"id":}]}`, wantErr: true},
		{name: "empty phases", input: `{"phases":[]}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := ParseBreakdown(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseBreakdown error: %v", err)
			}
			var ids []string
			for _, n := range b.Phases {
				ids = append(ids, n.ID)
			}
			if !reflect.DeepEqual(ids, tt.wantIDs) {
				t.Errorf("ids = %v, want %v", ids, tt.wantIDs)
			}
		})
	}
}

func TestParseBreakdown_EmptyIsSentinel(t *testing.T) {
	if _, err := ParseBreakdown(`[]`); !errors.Is(err, ErrEmptyBreakdown) {
		t.Errorf("error = %v, want ErrEmptyBreakdown", err)
	}
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		input string
		want  Verdict
	}{
		{"VERDICT: PASS", VerdictPass},
		{"verdict: partial", VerdictPartial},
		{"FAIL: tests missing", VerdictFail},
		{"", VerdictFail},
		{"looks good", VerdictFail},
		{"PARTIAL PASS", VerdictPass},
	}
	for _, tt := range tests {
		if got := ParseVerdict(tt.input); got != tt.want {
			t.Errorf("ParseVerdict(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}

func TestBreakdownNormalize(t *testing.T) {
	b := Breakdown{Phases: []models.Node{
		{ID: "1.1", Title: "keep"},
		{ID: "x", Title: "renamed", Dependencies: []string{"1.1"}},
		{ID: "", Title: "blank"},
		{ID: "1.1", Title: "duplicate"},
		{ID: "2.3", Title: "foreign", Dependencies: []string{"x"}, Status: models.StatusCompleted},
	}}
	b.Normalize("1")

	var ids []string
	for _, n := range b.Phases {
		ids = append(ids, n.ID)
	}
	want := []string{"1.1", "1.2", "1.3", "1.4", "1.5"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}
	if got := b.Phases[4].Dependencies; !reflect.DeepEqual(got, []string{"1.2"}) {
		t.Errorf("rewritten dependencies = %v, want [1.2]", got)
	}
	if b.Phases[0].Status != models.StatusPending {
		t.Errorf("status = %q, want pending", b.Phases[0].Status)
	}
	if b.Phases[4].Status != models.StatusCompleted {
		t.Errorf("status = %q, want completed kept", b.Phases[4].Status)
	}
}
