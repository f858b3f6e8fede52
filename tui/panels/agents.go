package panels

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zappabad/herdmarket/internal/engine"
	"github.com/zappabad/herdmarket/tui/styles"
)

var agentColumns = []table.Column{
	{Title: "ID", Width: 5},
	{Title: "Type", Width: 10},
	{Title: "H", Width: 3},
	{Title: "Action", Width: 7},
	{Title: "E[p]", Width: 9},
	{Title: "Fitness", Width: 9},
	{Title: "μ+", Width: 8},
	{Title: "μ-", Width: 8},
	{Title: "p(sw)", Width: 6},
}

// AgentsPanel is a scrollable table of every agent at the latest tick.
type AgentsPanel struct {
	table   table.Model
	step    int
	focused bool
	width   int
	height  int
}

// NewAgentsPanel creates a new agents panel.
func NewAgentsPanel() *AgentsPanel {
	t := table.New(
		table.WithColumns(agentColumns),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.BorderColor).
		BorderBottom(true).
		Bold(true).
		Foreground(styles.TextSecondaryColor)
	s.Selected = s.Selected.
		Foreground(styles.TextColor).
		Background(styles.BorderColor).
		Bold(false)
	t.SetStyles(s)

	return &AgentsPanel{table: t, step: -1}
}

// Init initializes the panel.
func (p *AgentsPanel) Init() tea.Cmd {
	return nil
}

// Update handles messages for the panel.
func (p *AgentsPanel) Update(msg tea.Msg) (*AgentsPanel, tea.Cmd) {
	if !p.focused {
		return p, nil
	}
	var cmd tea.Cmd
	p.table, cmd = p.table.Update(msg)
	return p, cmd
}

// View renders the panel.
func (p *AgentsPanel) View() string {
	panelStyle := styles.PanelStyle
	if p.focused {
		panelStyle = styles.FocusedPanelStyle
	}

	name := "Agents"
	if p.step >= 0 {
		name = fmt.Sprintf("Agents @ t=%d", p.step)
	}
	title := styles.RenderTitle(name, p.focused)
	panel := lipgloss.JoinVertical(lipgloss.Left, title, p.table.View())

	return panelStyle.Width(max(p.width-2, 0)).Height(max(p.height-2, 0)).Render(panel)
}

// SetFocus sets the focus state of the panel.
func (p *AgentsPanel) SetFocus(focused bool) {
	p.focused = focused
	if focused {
		p.table.Focus()
	} else {
		p.table.Blur()
	}
}

// SetSize sets the panel dimensions.
func (p *AgentsPanel) SetSize(width, height int) {
	p.width = width
	p.height = height
	p.table.SetWidth(max(width-4, 10))
	p.table.SetHeight(max(height-5, 3))
}

// SetAgents replaces the table rows with one tick's agent records.
func (p *AgentsPanel) SetAgents(step int, agents []engine.AgentRecord) {
	p.step = step
	rows := make([]table.Row, len(agents))
	for i, a := range agents {
		rows[i] = agentRow(a)
	}
	p.table.SetRows(rows)
}

// Rows returns the rendered table rows.
func (p *AgentsPanel) Rows() []table.Row {
	return p.table.Rows()
}

func agentRow(a engine.AgentRecord) table.Row {
	horizon := "-"
	if a.Type != engine.StrategyRandom {
		horizon = strconv.Itoa(a.Horizon)
	}
	return table.Row{
		strconv.Itoa(a.AgentID),
		a.Type.String(),
		horizon,
		a.Action.String(),
		styles.FormatPrice(a.Expectation),
		strconv.FormatFloat(a.Fitness, 'f', 4, 64),
		strconv.FormatFloat(a.OptimistMean, 'f', 3, 64),
		strconv.FormatFloat(a.PessimistMean, 'f', 3, 64),
		strconv.FormatFloat(a.SwitchProb, 'f', 2, 64),
	}
}
