package panels

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zappabad/herdmarket/internal/engine"
	"github.com/zappabad/herdmarket/tui/styles"
)

// PopulationPanel shows the latest tick and how the herd is split.
type PopulationPanel struct {
	last     engine.ModelRecord
	previous float64
	hasLast  bool
	focused  bool
	width    int
	height   int
}

// NewPopulationPanel creates a new population panel.
func NewPopulationPanel() *PopulationPanel {
	return &PopulationPanel{}
}

// Init initializes the panel.
func (p *PopulationPanel) Init() tea.Cmd {
	return nil
}

// Update handles messages for the panel.
func (p *PopulationPanel) Update(msg tea.Msg) (*PopulationPanel, tea.Cmd) {
	return p, nil
}

// View renders the panel.
func (p *PopulationPanel) View() string {
	var content strings.Builder

	if !p.hasLast {
		content.WriteString(styles.MutedStyle.Render("No ticks yet"))
	} else {
		m := p.last
		change := m.Price - p.previous

		content.WriteString(fmt.Sprintf("%s %s  %s\n",
			styles.HeaderStyle.Render("Price"),
			styles.PriceStyle.Render(styles.FormatPrice(m.Price)),
			styles.ChangeStyle(change).Render(fmt.Sprintf("%+.2f", change)),
		))
		content.WriteString(fmt.Sprintf("%s %d   %s %d/%d   %s %d\n\n",
			styles.HeaderStyle.Render("Step"), m.Step,
			styles.HeaderStyle.Render("Bids/Offers"), m.Bids, m.Offers,
			styles.HeaderStyle.Render("Excess"), m.ExcessDemand(),
		))

		total := m.Optimists + m.Pessimists + m.Randoms
		barWidth := max(p.width-26, 5)
		rows := []struct {
			strategy engine.Strategy
			count    int
		}{
			{engine.StrategyOptimist, m.Optimists},
			{engine.StrategyPessimist, m.Pessimists},
			{engine.StrategyRandom, m.Randoms},
		}
		for _, r := range rows {
			content.WriteString(fmt.Sprintf("%-9s %5d %s\n",
				r.strategy.String(),
				r.count,
				styles.StrategyStyle(r.strategy).Render(bar(r.count, total, barWidth)),
			))
		}

		content.WriteString("\n")
		content.WriteString(fmt.Sprintf("%s %s",
			styles.HeaderStyle.Render("Switches this tick"),
			styles.SwitchStyle.Render(fmt.Sprintf("%d", m.Switches)),
		))
	}

	panelStyle := styles.PanelStyle
	if p.focused {
		panelStyle = styles.FocusedPanelStyle
	}

	title := styles.RenderTitle("Population", p.focused)
	panel := lipgloss.JoinVertical(lipgloss.Left, title, content.String())

	return panelStyle.Width(max(p.width-2, 0)).Height(max(p.height-2, 0)).Render(panel)
}

func bar(count, total, width int) string {
	if total <= 0 || width <= 0 {
		return ""
	}
	filled := count * width / total
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// SetFocus sets the focus state of the panel.
func (p *PopulationPanel) SetFocus(focused bool) {
	p.focused = focused
}

// SetSize sets the panel dimensions.
func (p *PopulationPanel) SetSize(width, height int) {
	p.width = width
	p.height = height
}

// SetStep shows m as the latest tick. previous is the price before it.
func (p *PopulationPanel) SetStep(m engine.ModelRecord, previous float64) {
	p.last = m
	p.previous = previous
	p.hasLast = true
}
