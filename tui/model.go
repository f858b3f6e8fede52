package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zappabad/herdmarket/internal/engine"
	feedview "github.com/zappabad/herdmarket/internal/feed/view"
	"github.com/zappabad/herdmarket/tui/panels"
	"github.com/zappabad/herdmarket/tui/styles"
)

// PanelFocus represents which panel is currently focused.
type PanelFocus int

const (
	FocusPopulation PanelFocus = iota
	FocusChart
	FocusAgents
	FocusSwitches
	panelCount
)

// Feed is the read side of a running simulation.
type Feed interface {
	Events() <-chan feedview.StepEvent
	View() *feedview.StepView
}

// Controller pauses and resumes the simulation driver.
type Controller interface {
	Toggle() bool
	Paused() bool
	Done() <-chan struct{}
	Err() error
}

// Options configures the viewer.
type Options struct {
	RunID string
	// CandleTicks is how many ticks one chart candle covers.
	CandleTicks int
	// Refresh is how often the switch list is re-read from the view.
	Refresh time.Duration
}

// StepMsg carries one completed tick into the UI.
type StepMsg struct {
	Record *engine.StepRecord
}

type feedClosedMsg struct{}

type runDoneMsg struct {
	err error
}

type tickMsg time.Time

// Model is the main TUI application model.
type Model struct {
	feed    Feed
	control Controller
	opts    Options

	// Panels
	populationPanel *panels.PopulationPanel
	chartPanel      *panels.ChartPanel
	agentsPanel     *panels.AgentsPanel
	switchesPanel   *panels.SwitchesPanel

	focusedPanel PanelFocus

	width  int
	height int

	lastPrice float64
	steps     int
	finished  bool
	statusMsg string
	ready     bool
}

// NewModel creates a new TUI model. control may be nil for a read-only view.
func NewModel(feed Feed, control Controller, opts Options) *Model {
	if opts.CandleTicks <= 0 {
		opts.CandleTicks = 5
	}
	if opts.Refresh <= 0 {
		opts.Refresh = 250 * time.Millisecond
	}

	m := &Model{
		feed:            feed,
		control:         control,
		opts:            opts,
		populationPanel: panels.NewPopulationPanel(),
		chartPanel:      panels.NewChartPanel(opts.CandleTicks),
		agentsPanel:     panels.NewAgentsPanel(),
		switchesPanel:   panels.NewSwitchesPanel(),
	}
	m.setFocus(FocusChart)
	return m
}

// Init initializes the model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.populationPanel.Init(),
		m.chartPanel.Init(),
		m.agentsPanel.Init(),
		m.switchesPanel.Init(),
		m.listenSteps(),
		m.waitRunner(),
		m.tickRefresh(),
	)
}

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "tab":
			m.setFocus((m.focusedPanel + 1) % panelCount)

		case "shift+tab":
			m.setFocus((m.focusedPanel + panelCount - 1) % panelCount)

		case "f1":
			m.setFocus(FocusPopulation)
		case "f2":
			m.setFocus(FocusChart)
		case "f3":
			m.setFocus(FocusAgents)
		case "f4":
			m.setFocus(FocusSwitches)

		case " ", "p":
			m.togglePause()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

	case StepMsg:
		m.applyStep(msg.Record)
		cmds = append(cmds, m.listenSteps())

	case feedClosedMsg:
		m.statusMsg = "feed closed"

	case runDoneMsg:
		m.finished = true
		if msg.err != nil {
			m.statusMsg = "run failed: " + msg.err.Error()
		} else {
			m.statusMsg = "run complete"
		}

	case tickMsg:
		m.switchesPanel.SetSwitches(m.feed.View().Switches(200))
		cmds = append(cmds, m.tickRefresh())
	}

	m.updateFocusedPanel(msg, &cmds)

	return m, tea.Batch(cmds...)
}

func (m *Model) updateFocusedPanel(msg tea.Msg, cmds *[]tea.Cmd) {
	var cmd tea.Cmd

	switch m.focusedPanel {
	case FocusPopulation:
		m.populationPanel, cmd = m.populationPanel.Update(msg)
	case FocusChart:
		m.chartPanel, cmd = m.chartPanel.Update(msg)
	case FocusAgents:
		m.agentsPanel, cmd = m.agentsPanel.Update(msg)
	case FocusSwitches:
		m.switchesPanel, cmd = m.switchesPanel.Update(msg)
	}

	if cmd != nil {
		*cmds = append(*cmds, cmd)
	}
}

// View renders the UI.
func (m *Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	// Layout:
	// ┌─────────────┬─────────────────────────────┐
	// │ Population  │           Chart             │
	// ├─────────────┴───────────────┬─────────────┤
	// │           Agents            │  Switches   │
	// └─────────────────────────────┴─────────────┘

	leftWidth := m.width / 3
	rightWidth := m.width - leftWidth

	topHeight := (m.height - 1) / 2
	bottomHeight := m.height - topHeight - 1

	m.populationPanel.SetSize(leftWidth, topHeight)
	m.chartPanel.SetSize(rightWidth, topHeight)
	topRow := lipgloss.JoinHorizontal(lipgloss.Top,
		m.populationPanel.View(),
		m.chartPanel.View(),
	)

	m.agentsPanel.SetSize(rightWidth, bottomHeight)
	m.switchesPanel.SetSize(leftWidth, bottomHeight)
	bottomRow := lipgloss.JoinHorizontal(lipgloss.Top,
		m.agentsPanel.View(),
		m.switchesPanel.View(),
	)

	return lipgloss.JoinVertical(lipgloss.Left, topRow, bottomRow, m.renderStatusBar())
}

func (m *Model) renderStatusBar() string {
	help := lipgloss.JoinHorizontal(lipgloss.Center,
		styles.StatusBarKeyStyle.Render("F1-F4")+styles.StatusBarDescStyle.Render(" panels"),
		" │ ",
		styles.StatusBarKeyStyle.Render("Tab")+styles.StatusBarDescStyle.Render(" cycle"),
		" │ ",
		styles.StatusBarKeyStyle.Render("Space")+styles.StatusBarDescStyle.Render(" pause"),
		" │ ",
		styles.StatusBarKeyStyle.Render("q")+styles.StatusBarDescStyle.Render(" quit"),
	)

	state := fmt.Sprintf(" │ run %s │ %d steps", shortID(m.opts.RunID), m.steps)
	if m.control != nil && m.control.Paused() && !m.finished {
		state += " │ " + styles.PausedStyle.Render("PAUSED")
	}
	if m.statusMsg != "" {
		state += " │ " + m.statusMsg
	}

	return styles.StatusBarStyle.Width(m.width).Render(help + state)
}

func (m *Model) setFocus(panel PanelFocus) {
	m.focusedPanel = panel
	m.populationPanel.SetFocus(panel == FocusPopulation)
	m.chartPanel.SetFocus(panel == FocusChart)
	m.agentsPanel.SetFocus(panel == FocusAgents)
	m.switchesPanel.SetFocus(panel == FocusSwitches)
}

func (m *Model) togglePause() {
	if m.control == nil || m.finished {
		return
	}
	if m.control.Toggle() {
		m.statusMsg = "paused"
	} else {
		m.statusMsg = ""
	}
}

func (m *Model) applyStep(rec *engine.StepRecord) {
	if rec == nil {
		return
	}

	previous := m.lastPrice
	if m.steps == 0 {
		previous = rec.Model.Price
	}

	m.populationPanel.SetStep(rec.Model, previous)
	m.chartPanel.AddStep(rec.Model)
	m.agentsPanel.SetAgents(rec.Model.Step, rec.Agents)

	m.lastPrice = rec.Model.Price
	m.steps++
}

// Steps returns the number of ticks the UI has shown.
func (m *Model) Steps() int {
	return m.steps
}

// Focus returns the focused panel.
func (m *Model) Focus() PanelFocus {
	return m.focusedPanel
}

func (m *Model) listenSteps() tea.Cmd {
	events := m.feed.Events()
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return feedClosedMsg{}
		}
		return StepMsg{Record: ev.Record}
	}
}

func (m *Model) waitRunner() tea.Cmd {
	if m.control == nil {
		return nil
	}
	control := m.control
	return func() tea.Msg {
		<-control.Done()
		return runDoneMsg{err: control.Err()}
	}
}

func (m *Model) tickRefresh() tea.Cmd {
	return tea.Tick(m.opts.Refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
