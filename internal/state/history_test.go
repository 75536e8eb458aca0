package state

import (
	"errors"
	"testing"
	"time"
)

func setupHistory(t *testing.T) *History {
	t.Helper()
	h := NewHistory(setupTestDB(t))
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	h.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return h
}

func TestHistory_RunLifecycle(t *testing.T) {
	h := setupHistory(t)

	id, err := h.StartRun("breakdown")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if len(id) != 36 {
		t.Errorf("run id = %q, want a uuid", id)
	}

	for _, r := range []NodeResult{
		{RunID: id, NodeID: "1", Operation: "breakdown", Success: true, Score: 80},
		{RunID: id, NodeID: "2", Operation: "breakdown", Error: "agent exited with code 1"},
	} {
		if err := h.RecordNode(r); err != nil {
			t.Fatalf("RecordNode: %v", err)
		}
	}
	if err := h.FinishRun(id, "done", 1, 1, 1); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	runs, err := h.RecentRuns(10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	got := runs[0]
	if got.Outcome != "done" || got.Successful != 1 || got.Failed != 1 || got.Iterations != 1 {
		t.Errorf("run = %+v", got)
	}
	if got.FinishedAt == nil || !got.FinishedAt.After(got.StartedAt) {
		t.Errorf("FinishedAt = %v, want after %v", got.FinishedAt, got.StartedAt)
	}

	results, err := h.NodeResults(id)
	if err != nil {
		t.Fatalf("NodeResults: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if !results[0].Success || results[0].Score != 80 {
		t.Errorf("results[0] = %+v", results[0])
	}
	if results[1].Success || results[1].Error == "" || results[1].Verdict != "" {
		t.Errorf("results[1] = %+v", results[1])
	}
}

func TestHistory_RecentRunsNewestFirst(t *testing.T) {
	h := setupHistory(t)
	var ids []string
	for _, op := range []string{"breakdown", "execution", "breakdown"} {
		id, err := h.StartRun(op)
		if err != nil {
			t.Fatalf("StartRun: %v", err)
		}
		ids = append(ids, id)
	}

	runs, err := h.RecentRuns(2)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	if runs[0].ID != ids[2] || runs[1].ID != ids[1] {
		t.Errorf("order = [%s %s], want newest first", runs[0].ID, runs[1].ID)
	}
	if runs[0].FinishedAt != nil || runs[0].Outcome != "running" {
		t.Errorf("unfinished run = %+v", runs[0])
	}
}

func TestHistory_FinishUnknownRun(t *testing.T) {
	h := setupHistory(t)
	if err := h.FinishRun("missing", "done", 0, 0, 0); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("error = %v, want ErrRunNotFound", err)
	}
}
