// Package tui provides the interactive BubbleTea progress view for
// idetbench's bench subcommand: a spinner, a running tally of images
// processed/detections found, and a live latency readout, styled after
// the same palette/status-bar conventions as the rest of the ambient CLI.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ── Palette ──────────────────────────────────────────────────────────────

var (
	colorAccent = lipgloss.Color("#7C6AF7")
	colorDim    = lipgloss.Color("#555555")
	colorMuted  = lipgloss.Color("#888888")
	colorText   = lipgloss.Color("#DDDDDD")
	colorScore  = lipgloss.Color("#5ECEF5")
	colorErr    = lipgloss.Color("#FF6B6B")
	colorGreen  = lipgloss.Color("#5AF078")

	sTitle = lipgloss.NewStyle().Bold(true).Foreground(colorText)
	sDim   = lipgloss.NewStyle().Foreground(colorDim)
	sMuted = lipgloss.NewStyle().Foreground(colorMuted)
	sCount = lipgloss.NewStyle().Foreground(colorScore).Bold(true)
	sErr   = lipgloss.NewStyle().Foreground(colorErr)
	sGreen = lipgloss.NewStyle().Foreground(colorGreen)
	sHint  = lipgloss.NewStyle().Foreground(colorDim).Background(lipgloss.Color("#111111"))
)

// Stats is a snapshot of bench progress, pushed into the model as results
// arrive from the caller's detection loop.
type Stats struct {
	Done, Total   int
	Detections    int
	LastPath      string
	LastLatency   time.Duration
	AvgLatency    time.Duration
	Err           error
	CurrentEngine string
}

// StatsMsg wraps a Stats snapshot as a tea.Msg.
type StatsMsg Stats

// DoneMsg signals the bench run finished (successfully or not).
type DoneMsg struct{ Err error }

// Model is the BubbleTea application model driving the bench progress view.
type Model struct {
	stats    Stats
	spin     spinner.Model
	bar      progress.Model
	width    int
	finished bool
	finalErr error
}

// New creates a bench-progress Model for a run of total images against
// engine (the name shown in the header, e.g. "dbnet" or "scrfd").
func New(total int, engine string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorAccent)

	bar := progress.New(progress.WithGradient("#7C6AF7", "#5ECEF5"))

	return Model{stats: Stats{Total: total, CurrentEngine: engine}, spin: sp, bar: bar}
}

func (m Model) Init() tea.Cmd {
	return m.spin.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = clamp(m.width-20, 10, 80)
		return m, nil

	case spinner.TickMsg:
		if m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case StatsMsg:
		m.stats = Stats(msg)
		return m, nil

	case DoneMsg:
		m.finished = true
		m.finalErr = msg.Err
		return m, tea.Quit

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		m.width = 72
	}
	var b strings.Builder

	header := "  " + sTitle.Render("idetbench") + "  " + sMuted.Render(m.stats.CurrentEngine)
	fmt.Fprintln(&b, header)
	fmt.Fprintln(&b, "  "+sDim.Render(strings.Repeat("─", clamp(m.width-2, 10, 200))))

	if m.finished {
		if m.finalErr != nil {
			fmt.Fprintln(&b, "  "+sErr.Render("error: "+m.finalErr.Error()))
		} else {
			fmt.Fprintln(&b, "  "+sGreen.Render("done."))
		}
	} else {
		fmt.Fprintf(&b, "  %s  processing %s\n", m.spin.View(), sMuted.Render(shortPath(m.stats.LastPath, 50)))
	}

	ratio := 0.0
	if m.stats.Total > 0 {
		ratio = float64(m.stats.Done) / float64(m.stats.Total)
	}
	fmt.Fprintf(&b, "  %s  [%d/%d]\n", m.bar.ViewAs(ratio), m.stats.Done, m.stats.Total)
	fmt.Fprintf(&b, "  detections: %s   avg latency: %s\n",
		sCount.Render(fmt.Sprintf("%d", m.stats.Detections)),
		sCount.Render(m.stats.AvgLatency.Round(time.Millisecond).String()))

	if m.stats.Err != nil {
		fmt.Fprintln(&b, "  "+sErr.Render("last error: "+m.stats.Err.Error()))
	}

	fmt.Fprintln(&b, "  "+sDim.Render(strings.Repeat("─", clamp(m.width-2, 10, 200))))
	fmt.Fprint(&b, sHint.Render("  q / ctrl+c quit  "))
	return b.String()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func shortPath(p string, maxLen int) string {
	if len(p) <= maxLen {
		return p
	}
	return "…" + p[len(p)-maxLen+1:]
}
