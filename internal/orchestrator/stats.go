package orchestrator

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Stats tracks the outcome of every processed item in one run.
// It is safe for concurrent use by workers.
type Stats struct {
	mu         sync.Mutex
	operation  string
	start      time.Time
	total      int
	successful int
	failed     int
	completed  int
	errors     int
	now        func() time.Time
}

// NewStats starts tracking an operation.
func NewStats(operation string) *Stats {
	return newStatsWithClock(operation, time.Now)
}

func newStatsWithClock(operation string, now func() time.Time) *Stats {
	return &Stats{operation: operation, start: now(), now: now}
}

// Operation returns the tracked operation name.
func (s *Stats) Operation() string {
	return s.operation
}

// Record counts one processed item.
func (s *Stats) Record(success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	s.completed++
	if success {
		s.successful++
	} else {
		s.failed++
	}
}

// RecordError counts an error that did not finish an item, such as a panic
// in a worker.
func (s *Stats) RecordError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors++
}

// Counts returns the successful and failed totals.
func (s *Stats) Counts() (successful, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.successful, s.failed
}

// Total returns the number of recorded items.
func (s *Stats) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// SuccessRate returns the percentage of successful items.
func (s *Stats) SuccessRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.successRateLocked()
}

func (s *Stats) successRateLocked() float64 {
	if s.total == 0 {
		return 0
	}
	return float64(s.successful) / float64(s.total) * 100
}

// Elapsed formats the time since the tracker started.
func (s *Stats) Elapsed() string {
	return formatElapsed(s.now().Sub(s.start))
}

func formatElapsed(d time.Duration) string {
	secs := int(d.Seconds())
	h, m, sec := secs/3600, (secs%3600)/60, secs%60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, sec)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, sec)
	default:
		return fmt.Sprintf("%ds", sec)
	}
}

// Summary is a snapshot of the tracker.
type Summary struct {
	Operation   string
	Total       int
	Successful  int
	Failed      int
	Completed   int
	Errors      int
	Elapsed     string
	SuccessRate float64
}

// Summary returns a snapshot of the counters.
func (s *Stats) Summary() Summary {
	elapsed := s.Elapsed()
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summary{
		Operation:   s.operation,
		Total:       s.total,
		Successful:  s.successful,
		Failed:      s.failed,
		Completed:   s.completed,
		Errors:      s.errors,
		Elapsed:     elapsed,
		SuccessRate: s.successRateLocked(),
	}
}

// IsComplete reports whether every recorded item finished.
func (s *Stats) IsComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed == s.total
}

// StatusMessage describes the run in one line.
func (s *Stats) StatusMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.total == 0:
		return "No items processed"
	case s.failed == 0:
		return "All operations completed successfully"
	case s.successful == 0:
		return "All operations failed"
	default:
		return fmt.Sprintf("Operations completed with %d failures", s.failed)
	}
}

// Print writes the final summary block.
func (s *Stats) Print(w io.Writer) {
	sum := s.Summary()
	fmt.Fprintf(w, "\n--- %s Summary ---\n", sum.Operation)
	fmt.Fprintf(w, "Total items: %d\n", sum.Total)
	fmt.Fprintf(w, "Successful: %d\n", sum.Successful)
	fmt.Fprintf(w, "Failed: %d\n", sum.Failed)
	if sum.Completed != sum.Total {
		fmt.Fprintf(w, "Completed: %d\n", sum.Completed)
	}
	if sum.Errors > 0 {
		fmt.Fprintf(w, "Errors: %d\n", sum.Errors)
	}
	fmt.Fprintf(w, "Elapsed time: %s\n", sum.Elapsed)
	fmt.Fprintf(w, "Success rate: %.1f%%\n", sum.SuccessRate)
	fmt.Fprintln(w, s.StatusMessage())
}
