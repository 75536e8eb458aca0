package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	viewTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	viewSlotStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	viewDimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	viewFooterStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			MarginTop(1)
)

type refreshMsg time.Time

// DoneMsg tells a running view that the work has finished.
type DoneMsg struct{}

// View is a bubbletea model that renders a Monitor live.
type View struct {
	monitor  *Monitor
	title    string
	interval time.Duration
	onQuit   func()

	spinner  spinner.Model
	bar      progress.Model
	quitting bool
}

// ViewOption configures a View.
type ViewOption func(*View)

// WithTitle sets the header shown above the slots.
func WithTitle(title string) ViewOption {
	return func(v *View) {
		v.title = title
	}
}

// WithOnQuit registers a function called when the user quits the view.
func WithOnQuit(fn func()) ViewOption {
	return func(v *View) {
		v.onQuit = fn
	}
}

// NewView creates a view over m. It refreshes at m's display interval, capped
// at one second so the spinner and slots stay responsive.
func NewView(m *Monitor, opts ...ViewOption) *View {
	interval := m.interval
	if interval > time.Second {
		interval = time.Second
	}
	v := &View{
		monitor:  m,
		title:    "phaser workers",
		interval: interval,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
		bar: progress.New(
			progress.WithGradient("#00ff00", "#00ffff"),
			progress.WithWidth(40),
		),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func refresh(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

// Init starts the spinner and the refresh ticker.
func (v *View) Init() tea.Cmd {
	return tea.Batch(v.spinner.Tick, refresh(v.interval))
}

// Update handles ticks, quit keys and completion.
func (v *View) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			v.quitting = true
			if v.onQuit != nil {
				v.onQuit()
			}
			return v, tea.Quit
		}
	case DoneMsg:
		v.quitting = true
		return v, tea.Quit
	case refreshMsg:
		return v, refresh(v.interval)
	case spinner.TickMsg:
		var cmd tea.Cmd
		v.spinner, cmd = v.spinner.Update(msg)
		return v, cmd
	}
	return v, nil
}

// View renders the header, one line per slot, and overall progress.
func (v *View) View() string {
	var b strings.Builder
	b.WriteString(viewTitleStyle.Render(v.title))
	b.WriteString("\n\n")

	for _, s := range v.monitor.Snapshot() {
		marker := "  "
		if s.State == StateActive {
			marker = v.spinner.View() + " "
		}
		label := s.State.Label()
		if style, ok := v.monitor.labelStyles[s.State]; ok {
			label = style.Render(label)
		}
		line := fmt.Sprintf("W%d:%s %s", s.ID, Truncate(CleanText(s.Text), DisplayWidth), label)
		b.WriteString(marker + viewSlotStyle.Render(line))
		b.WriteString(viewDimStyle.Render(" | " + s.Updated.Format("15:04:05")))
		b.WriteString("\n")
	}

	if done, total := v.monitor.Progress(); total > 0 {
		b.WriteString("\n")
		b.WriteString(v.bar.ViewAs(float64(done) / float64(total)))
		b.WriteString(viewDimStyle.Render(fmt.Sprintf(" %d/%d", done, total)))
		b.WriteString("\n")
	}

	if v.quitting {
		return b.String()
	}
	b.WriteString(viewFooterStyle.Render("q: stop after current batch"))
	b.WriteString("\n")
	return b.String()
}

var _ tea.Model = (*View)(nil)
