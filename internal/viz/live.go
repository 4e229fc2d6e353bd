package viz

import (
	"fmt"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/DeepakIngole/genesis-path-follower/internal/control"
	"github.com/DeepakIngole/genesis-path-follower/internal/mpc"
	"github.com/DeepakIngole/genesis-path-follower/internal/reference"
)

const (
	width       = 80
	height      = 24
	followSpan  = 40.0 // m shown in follow mode
	refreshRate = time.Second / 15
)

// LoopStatus is the part of the control loop the dashboard reads.
type LoopStatus interface {
	State() control.TrackingState
	Stats() control.Stats
}

type Options struct {
	Title   string
	Path    *reference.Path
	Loop    LoopStatus
	Metrics func() map[string]float64
}

type TickMsg time.Time

type Model struct {
	feed    *Feed
	opts    Options
	canvas  *Canvas
	snap    FeedSnapshot
	frozen  bool
	follow  bool
	help    bool
	started time.Time
}

func NewModel(feed *Feed, opts Options) Model {
	if opts.Title == "" {
		opts.Title = "path follower"
	}
	return Model{
		feed:    feed,
		opts:    opts,
		canvas:  NewCanvas(width, height),
		started: time.Now(),
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshRate, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case " ":
			m.frozen = !m.frozen
		case "f":
			m.follow = !m.follow
		case "?":
			m.help = !m.help
		}
	case tea.WindowSizeMsg:
		w := max(20, msg.Width-52)
		h := max(8, msg.Height-4)
		m.canvas = NewCanvas(w, h)
	case TickMsg:
		if !m.frozen {
			m.snap = m.feed.Snapshot()
		}
		return m, tick()
	}
	return m, nil
}

func (m Model) View() string {
	m.draw()
	canvasView := canvasStyle.Render(m.canvas.String())

	var s strings.Builder
	s.WriteString(headerStyle.Render(strings.ToUpper(m.opts.Title)) + "\n")
	s.WriteString(m.status() + "\n\n")

	d := m.snap.Diagnostic
	if len(m.snap.SolveMs) > 1 {
		chart := asciigraph.Plot(m.snap.SolveMs, asciigraph.Height(4), asciigraph.Width(30), asciigraph.Caption("Solve time (ms)"))
		s.WriteString(graphStyle.Render(chart) + "\n\n")
	}
	row := func(label, value string) {
		s.WriteString(labelStyle.Render(label) + valueStyle.Render(value) + "\n")
	}
	row("Uptime", time.Since(m.started).Truncate(time.Second).String())
	if m.snap.HasDiagnostic {
		row("Solver", d.Status)
		row("Solve", fmt.Sprintf("%.2f ms", float64(d.SolveTime.Microseconds())/1000))
		row("Pose", fmt.Sprintf("%.1f, %.1f", d.State.X, d.State.Y))
		row("Yaw", fmt.Sprintf("%.3f rad", d.State.Yaw))
		row("Speed", fmt.Sprintf("%.2f m/s", d.State.Speed))
	}
	if m.snap.HasCommand {
		c := m.snap.Command
		row("Accel", fmt.Sprintf("%+.3f m/s²", c.Accel))
		row("Steer", fmt.Sprintf("%+.4f rad", c.Steer))
	}
	if len(m.snap.Speed) > 0 {
		s.WriteString(labelStyle.Render("v history") + SparklineChart(m.snap.Speed, 30) + "\n")
	}
	if m.opts.Loop != nil {
		st := m.opts.Loop.Stats()
		row("Ticks", fmt.Sprintf("%d (%d idle)", st.Ticks, st.Idle))
		row("Solves", fmt.Sprintf("%d (%d optimal)", st.Solves, st.Optimal))
	}
	if m.opts.Metrics != nil {
		vals := m.opts.Metrics()
		names := make([]string, 0, len(vals))
		for k := range vals {
			names = append(names, k)
		}
		slices.Sort(names)
		s.WriteString("\nMETRICS\n")
		for _, k := range names {
			s.WriteString("  " + valueStyle.Render(fmt.Sprintf("%-16s %.3f", k, vals[k])) + "\n")
		}
	}
	s.WriteString(helpStyle.Render("\n─────────────────────\nSP:Freeze F:Follow ?:Help Q:Quit"))

	mainView := lipgloss.JoinHorizontal(lipgloss.Top, canvasView, statsStyle.Render(s.String()))
	if m.help {
		return `
╔══════════════════════════════════════╗
║           KEYBOARD SHORTCUTS         ║
╠══════════════════════════════════════╣
║  Space    - Freeze/unfreeze display  ║
║  F        - Toggle follow camera     ║
║  Q        - Quit and stop the loop   ║
║  ?        - Toggle this help         ║
╚══════════════════════════════════════╝
` + "\n\n" + mainView
	}
	return mainView
}

func (m Model) status() string {
	var parts []string
	if m.opts.Loop != nil {
		switch st := m.opts.Loop.State(); st {
		case control.Tracking:
			parts = append(parts, StatusTracking.Render(st.String()))
		default:
			parts = append(parts, StatusStopped.Render(st.String()))
		}
	}
	if m.snap.HasDiagnostic && m.snap.Diagnostic.Status != mpc.Optimal.String() {
		parts = append(parts, StatusFailed.Render(m.snap.Diagnostic.Status))
	}
	if m.frozen {
		parts = append(parts, StatusStopped.Render("FROZEN"))
	}
	if len(parts) == 0 {
		return "WAITING"
	}
	return strings.Join(parts, " ")
}

// draw renders path, driven trail, horizon and vehicle onto the canvas.
func (m *Model) draw() {
	m.canvas.Clear()
	d := m.snap.Diagnostic

	var v Viewport
	switch {
	case m.follow && m.snap.HasDiagnostic:
		v = CenteredViewport(m.canvas, d.State.X, d.State.Y, followSpan)
	case m.opts.Path != nil:
		v = FitViewport(m.canvas, m.opts.Path.X, m.opts.Path.Y)
	default:
		xs, ys := split(m.snap.Trail)
		v = FitViewport(m.canvas, xs, ys)
	}

	if m.opts.Path != nil {
		m.canvas.Polyline(v, m.opts.Path.X, m.opts.Path.Y)
	}
	if !m.snap.HasDiagnostic {
		return
	}
	xs, ys := split(m.snap.Trail)
	m.canvas.Polyline(v, xs, ys)
	xs, ys = split(d.Predicted)
	m.canvas.Polyline(v, xs, ys)
	for _, r := range d.Reference {
		px, py := v.ToPixel(r.X, r.Y)
		m.canvas.Set(px, py)
	}
	m.canvas.Marker(v, d.State.X, d.State.Y, d.State.Yaw)
}
