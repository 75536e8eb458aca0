// Package monitor tracks what each worker in a batch is doing and renders it,
// either as periodic plain-text frames or as a bubbletea view.
package monitor

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// State is a worker slot's lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateError     State = "error"
)

// Label returns the bracketed tag printed next to a slot.
func (s State) Label() string {
	switch s {
	case StateActive:
		return "[ACTIVE]"
	case StateCompleted:
		return "[OK]"
	case StateError:
		return "[ERROR]"
	default:
		return "[IDLE]"
	}
}

const (
	// DisplayWidth is the maximum status text length shown per slot.
	DisplayWidth = 40
	// DefaultInterval is how often the plain display prints a frame.
	DefaultInterval = 2 * time.Second
	// DefaultErrorIdleDelay is how long an error stays visible before the slot idles.
	DefaultErrorIdleDelay = 2 * time.Second

	idleText      = "IDLE"
	completedText = "[COMPLETED]"
	errorPrefix   = "[ERROR] "
	header        = "=== WORKER ACTIVITY ==="
	footer        = "======================="
)

// Slot is a snapshot of one worker's state.
type Slot struct {
	ID      int
	Text    string
	State   State
	Updated time.Time
}

// Monitor is a fixed-size registry of worker slots numbered 1..n. All methods
// are safe for concurrent use.
type Monitor struct {
	mu    sync.Mutex
	slots []Slot
	gen   []uint64
	done  int
	total int

	out      io.Writer
	interval time.Duration
	now      func() time.Time

	displayMu sync.Mutex
	stop      chan struct{}
	stopped   chan struct{}

	labelStyles map[State]lipgloss.Style
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithOutput sets where the plain display writes. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(m *Monitor) {
		m.out = w
	}
}

// WithInterval sets the plain display refresh interval.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

// New creates a monitor with n idle slots.
func New(n int, opts ...Option) *Monitor {
	if n < 1 {
		n = 1
	}
	m := &Monitor{
		out:      os.Stdout,
		interval: DefaultInterval,
		now:      time.Now,
		labelStyles: map[State]lipgloss.Style{
			StateActive:    lipgloss.NewStyle().Foreground(lipgloss.Color("34")),  // Green
			StateCompleted: lipgloss.NewStyle().Foreground(lipgloss.Color("28")),  // Dark green
			StateError:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")), // Red
			StateIdle:      lipgloss.NewStyle().Foreground(lipgloss.Color("244")), // Gray
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.slots = make([]Slot, n)
	m.gen = make([]uint64, n)
	ts := m.now()
	for i := range m.slots {
		m.slots[i] = Slot{ID: i + 1, Text: idleText, State: StateIdle, Updated: ts}
	}
	return m
}

// Size returns the number of slots.
func (m *Monitor) Size() int {
	return len(m.slots)
}

// Update sets a slot's text and state. Out-of-range ids are ignored.
func (m *Monitor) Update(id int, text string, state State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateLocked(id, text, state)
}

func (m *Monitor) updateLocked(id int, text string, state State) bool {
	if id < 1 || id > len(m.slots) {
		return false
	}
	m.slots[id-1] = Slot{ID: id, Text: text, State: state, Updated: m.now()}
	m.gen[id-1]++
	return true
}

// SetIdle returns a slot to idle.
func (m *Monitor) SetIdle(id int) {
	m.Update(id, idleText, StateIdle)
}

// SetCompleted marks a slot completed with an optional message.
func (m *Monitor) SetCompleted(id int, text string) {
	if text == "" {
		text = completedText
	}
	m.Update(id, text, StateCompleted)
}

// SetError marks a slot failed.
func (m *Monitor) SetError(id int, text string) {
	m.Update(id, errorPrefix+text, StateError)
}

// SetErrorThenIdle marks a slot failed and idles it after the delay, unless
// the slot was updated again in the meantime.
func (m *Monitor) SetErrorThenIdle(id int, text string, after time.Duration) {
	if after <= 0 {
		after = DefaultErrorIdleDelay
	}
	m.mu.Lock()
	ok := m.updateLocked(id, errorPrefix+text, StateError)
	var stamp uint64
	if ok {
		stamp = m.gen[id-1]
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	time.AfterFunc(after, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.gen[id-1] == stamp {
			m.updateLocked(id, idleText, StateIdle)
		}
	})
}

// ResetAll idles every slot.
func (m *Monitor) ResetAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.slots {
		m.updateLocked(i+1, idleText, StateIdle)
	}
}

// SetProgress records overall progress for views that show it.
func (m *Monitor) SetProgress(done, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.done, m.total = done, total
}

// Progress returns the last recorded overall progress.
func (m *Monitor) Progress() (done, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done, m.total
}

// Snapshot returns a copy of every slot.
func (m *Monitor) Snapshot() []Slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Slot, len(m.slots))
	copy(out, m.slots)
	return out
}

// Summary counts slots per state. Every state is present in the map.
func (m *Monitor) Summary() map[State]int {
	counts := map[State]int{StateIdle: 0, StateActive: 0, StateCompleted: 0, StateError: 0}
	for _, s := range m.Snapshot() {
		counts[s.State]++
	}
	return counts
}

// CountByState returns how many slots are in state.
func (m *Monitor) CountByState(state State) int {
	return m.Summary()[state]
}

// StreamCallback returns a function that feeds streamed agent text into a
// slot as its active status.
func (m *Monitor) StreamCallback(id int) func(string) {
	return func(text string) {
		clean := CleanText(text)
		if clean == "" {
			return
		}
		m.Update(id, Truncate(clean, DisplayWidth), StateActive)
	}
}

// CleanText collapses line breaks and surrounding whitespace.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.Join(strings.Fields(s), " ")
}

// Truncate shortens s to at most width runes, ending in "..." when cut.
func Truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 3 {
		return string(r[:width])
	}
	return string(r[:width-3]) + "..."
}

// Start prints the header and begins printing a frame every interval until
// Stop is called or ctx is done. Calling Start twice has no effect.
func (m *Monitor) Start(ctx context.Context) {
	m.displayMu.Lock()
	defer m.displayMu.Unlock()
	if m.stop != nil {
		return
	}
	m.stop = make(chan struct{})
	m.stopped = make(chan struct{})
	fmt.Fprintf(m.out, "\n%s\n", header)

	go func(stop, stopped chan struct{}) {
		defer close(stopped)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.printFrame()
			}
		}
	}(m.stop, m.stopped)
}

// Stop halts the display loop and prints a final frame.
func (m *Monitor) Stop() {
	m.displayMu.Lock()
	defer m.displayMu.Unlock()
	if m.stop == nil {
		return
	}
	close(m.stop)
	<-m.stopped
	m.stop, m.stopped = nil, nil

	m.printFrame()
	fmt.Fprintf(m.out, "%s\n\n", footer)
}

// printFrame snapshots under the lock and writes outside it.
func (m *Monitor) printFrame() {
	fmt.Fprint(m.out, m.Frame())
}

// Frame renders every slot as "W{i}:{status} [STATE] | HH:MM:SS" followed
// by a separator line.
func (m *Monitor) Frame() string {
	slots := m.Snapshot()
	ts := m.now().Format("15:04:05")
	var sb strings.Builder
	for _, s := range slots {
		label := s.State.Label()
		if style, ok := m.labelStyles[s.State]; ok {
			label = style.Render(label)
		}
		fmt.Fprintf(&sb, "W%d:%s %s | %s\n", s.ID, Truncate(CleanText(s.Text), DisplayWidth), label, ts)
	}
	sb.WriteString(strings.Repeat("-", 60))
	sb.WriteString("\n")
	return sb.String()
}
