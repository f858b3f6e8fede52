package panels

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	feedview "github.com/zappabad/herdmarket/internal/feed/view"
	"github.com/zappabad/herdmarket/tui/styles"
)

var (
	upKey   = key.NewBinding(key.WithKeys("up", "k"))
	downKey = key.NewBinding(key.WithKeys("down", "j"))
)

// SwitchesPanel lists recent strategy switches, newest last.
type SwitchesPanel struct {
	switches      []feedview.SwitchEvent
	selectedIndex int
	scrollOffset  int
	follow        bool
	focused       bool
	width         int
	height        int
	maxItems      int
}

// NewSwitchesPanel creates a new switches panel.
func NewSwitchesPanel() *SwitchesPanel {
	return &SwitchesPanel{
		follow:   true,
		maxItems: 200,
	}
}

// Init initializes the panel.
func (p *SwitchesPanel) Init() tea.Cmd {
	return nil
}

// Update handles messages for the panel.
func (p *SwitchesPanel) Update(msg tea.Msg) (*SwitchesPanel, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok || !p.focused {
		return p, nil
	}

	switch {
	case key.Matches(km, upKey):
		if p.selectedIndex > 0 {
			p.selectedIndex--
			p.follow = false
			if p.selectedIndex < p.scrollOffset {
				p.scrollOffset = p.selectedIndex
			}
		}
	case key.Matches(km, downKey):
		if p.selectedIndex < len(p.switches)-1 {
			p.selectedIndex++
			if p.selectedIndex >= p.scrollOffset+p.visibleItems() {
				p.scrollOffset = p.selectedIndex - p.visibleItems() + 1
			}
		}
		p.follow = p.selectedIndex == len(p.switches)-1
	}
	return p, nil
}

func (p *SwitchesPanel) visibleItems() int {
	return max(p.height-5, 1)
}

// View renders the panel.
func (p *SwitchesPanel) View() string {
	var content strings.Builder

	if len(p.switches) == 0 {
		content.WriteString(styles.MutedStyle.Render("No switches yet"))
	} else {
		visible := p.visibleItems()
		start := p.scrollOffset
		end := min(start+visible, len(p.switches))

		for i := start; i < end; i++ {
			sw := p.switches[i]
			line := fmt.Sprintf("%s #%-4d %s → %s  p=%.2f u=%.2f",
				styles.StepStyle.Render(fmt.Sprintf("t=%-5d", sw.Step)),
				sw.AgentID,
				styles.StrategyStyle(sw.From).Render(sw.From.String()),
				styles.StrategyStyle(sw.To).Render(sw.To.String()),
				sw.Probability,
				sw.Draw,
			)
			if i == p.selectedIndex && p.focused {
				line = styles.SelectedRowStyle.Render(line)
			}

			content.WriteString(line)
			if i < end-1 {
				content.WriteString("\n")
			}
		}

		if len(p.switches) > visible {
			content.WriteString("\n")
			content.WriteString(styles.MutedStyle.Render(fmt.Sprintf(" (%d/%d)", p.selectedIndex+1, len(p.switches))))
		}
	}

	panelStyle := styles.PanelStyle
	if p.focused {
		panelStyle = styles.FocusedPanelStyle
	}

	title := styles.RenderTitle("Switches", p.focused)
	panel := lipgloss.JoinVertical(lipgloss.Left, title, content.String())

	return panelStyle.Width(max(p.width-2, 0)).Height(max(p.height-2, 0)).Render(panel)
}

// SetFocus sets the focus state of the panel.
func (p *SwitchesPanel) SetFocus(focused bool) {
	p.focused = focused
}

// SetSize sets the panel dimensions.
func (p *SwitchesPanel) SetSize(width, height int) {
	p.width = width
	p.height = height
}

// SetSwitches replaces the list. While following, the selection tracks the
// newest switch.
func (p *SwitchesPanel) SetSwitches(items []feedview.SwitchEvent) {
	if len(items) > p.maxItems {
		items = items[len(items)-p.maxItems:]
	}
	p.switches = items

	if p.follow || p.selectedIndex >= len(p.switches) {
		p.selectedIndex = max(len(p.switches)-1, 0)
	}
	if p.selectedIndex >= p.scrollOffset+p.visibleItems() {
		p.scrollOffset = p.selectedIndex - p.visibleItems() + 1
	}
	if p.scrollOffset > p.selectedIndex {
		p.scrollOffset = p.selectedIndex
	}
}

// Selected returns the highlighted switch.
func (p *SwitchesPanel) Selected() (feedview.SwitchEvent, bool) {
	if p.selectedIndex >= 0 && p.selectedIndex < len(p.switches) {
		return p.switches[p.selectedIndex], true
	}
	return feedview.SwitchEvent{}, false
}
