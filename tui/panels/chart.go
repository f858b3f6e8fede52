package panels

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zappabad/herdmarket/internal/engine"
	"github.com/zappabad/herdmarket/tui/styles"
)

// Candle aggregates the prices of a fixed number of consecutive ticks.
type Candle struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int
	Step   int
}

// ChartPanel draws the price series as candles.
type ChartPanel struct {
	candles []Candle

	// Current candle being built
	current     *Candle
	candleStart int
	candleTicks int

	focused bool
	width   int
	height  int

	maxCandles int
}

// NewChartPanel creates a chart that folds candleTicks ticks into one candle.
func NewChartPanel(candleTicks int) *ChartPanel {
	if candleTicks <= 0 {
		candleTicks = 1
	}
	return &ChartPanel{
		candleTicks: candleTicks,
		maxCandles:  120,
	}
}

// Init initializes the panel.
func (p *ChartPanel) Init() tea.Cmd {
	return nil
}

// Update handles messages for the panel.
func (p *ChartPanel) Update(msg tea.Msg) (*ChartPanel, tea.Cmd) {
	return p, nil
}

// View renders the panel.
func (p *ChartPanel) View() string {
	var content strings.Builder

	chartWidth := p.width - 4
	chartHeight := p.height - 4
	if chartHeight < 5 {
		chartHeight = 5
	}

	all := p.Candles()
	if len(all) == 0 {
		content.WriteString(styles.MutedStyle.Render("Waiting for the first tick..."))
	} else {
		content.WriteString(p.renderChart(chartWidth, chartHeight, all))
	}

	panelStyle := styles.PanelStyle
	if p.focused {
		panelStyle = styles.FocusedPanelStyle
	}

	title := styles.RenderTitle(fmt.Sprintf("Price (%d ticks/candle)", p.candleTicks), p.focused)
	panel := lipgloss.JoinVertical(lipgloss.Left, title, content.String())

	return panelStyle.Width(max(p.width-2, 0)).Height(max(p.height-2, 0)).Render(panel)
}

// Candles returns the closed candles followed by the one being built.
func (p *ChartPanel) Candles() []Candle {
	out := make([]Candle, len(p.candles), len(p.candles)+1)
	copy(out, p.candles)
	if p.current != nil {
		out = append(out, *p.current)
	}
	return out
}

func (p *ChartPanel) renderChart(width, height int, candles []Candle) string {
	// 9 chars for the price axis, 1 for the separator
	plotWidth := width - 10
	if plotWidth < 10 {
		plotWidth = 10
	}

	// Each candle takes its glyph plus a space
	show := plotWidth / 2
	if show < 1 {
		show = 1
	}
	if show > len(candles) {
		show = len(candles)
	}
	display := candles[len(candles)-show:]

	lo, hi := display[0].Low, display[0].High
	for _, c := range display {
		lo = min(lo, c.Low)
		hi = max(hi, c.High)
	}

	span := hi - lo
	if span == 0 {
		span = 1
	}
	lo -= span * 0.1
	hi += span * 0.1

	// 2 rows for the step axis
	rows := height - 3
	if rows < 5 {
		rows = 5
	}

	var out strings.Builder
	for row := 0; row < rows; row++ {
		price := yToPrice(row, lo, hi, rows)
		out.WriteString(styles.ChartAxisStyle.Render(fmt.Sprintf("%8s │", styles.FormatPrice(price))))

		for _, c := range display {
			style := styles.CandleUpStyle
			if c.Close < c.Open {
				style = styles.CandleDownStyle
			}
			out.WriteString(style.Render(string(candleGlyph(c, row, lo, hi, rows))))
			out.WriteString(" ")
		}
		out.WriteString("\n")
	}

	out.WriteString(styles.ChartAxisStyle.Render("─────────┴"))
	out.WriteString(styles.ChartAxisStyle.Render(strings.Repeat("──", len(display))))
	out.WriteString("\n")

	// Step labels every 8 candles
	out.WriteString("          ")
	var axis strings.Builder
	for i := 0; i < len(display); i += 8 {
		label := fmt.Sprintf("%-16d", display[i].Step)
		axis.WriteString(label)
	}
	labels := axis.String()
	if len(labels) > len(display)*2 {
		labels = labels[:len(display)*2]
	}
	out.WriteString(styles.ChartLabelStyle.Render(labels))

	return out.String()
}

// candleGlyph returns what a candle draws at a given row.
func candleGlyph(c Candle, row int, lo, hi float64, height int) rune {
	rowPrice := yToPrice(row, lo, hi, height)

	bodyTop, bodyBottom := c.Open, c.Close
	if c.Close > c.Open {
		bodyTop, bodyBottom = c.Close, c.Open
	}

	// Half a row of slack so thin bodies still show
	tolerance := (hi - lo) / float64(height*2)

	switch {
	case rowPrice <= bodyTop+tolerance && rowPrice >= bodyBottom-tolerance:
		return '┃'
	case rowPrice <= c.High+tolerance && rowPrice > bodyTop:
		return '│'
	case rowPrice >= c.Low-tolerance && rowPrice < bodyBottom:
		return '│'
	default:
		return ' '
	}
}

func yToPrice(y int, lo, hi float64, height int) float64 {
	if height <= 1 {
		return lo
	}
	ratio := float64(y) / float64(height-1)
	return hi - ratio*(hi-lo)
}

// SetFocus sets the focus state of the panel.
func (p *ChartPanel) SetFocus(focused bool) {
	p.focused = focused
}

// SetSize sets the panel dimensions.
func (p *ChartPanel) SetSize(width, height int) {
	p.width = width
	p.height = height
}

// AddStep folds one tick's price into the current candle.
func (p *ChartPanel) AddStep(m engine.ModelRecord) {
	start := (m.Step / p.candleTicks) * p.candleTicks
	volume := m.Bids + m.Offers

	if p.current == nil || start != p.candleStart {
		if p.current != nil {
			p.candles = append(p.candles, *p.current)
			if len(p.candles) > p.maxCandles {
				p.candles = p.candles[len(p.candles)-p.maxCandles:]
			}
		}

		open := m.Price
		if p.current != nil {
			open = p.current.Close
		}
		p.current = &Candle{
			Open:   open,
			High:   max(open, m.Price),
			Low:    min(open, m.Price),
			Close:  m.Price,
			Volume: volume,
			Step:   start,
		}
		p.candleStart = start
		return
	}

	p.current.High = max(p.current.High, m.Price)
	p.current.Low = min(p.current.Low, m.Price)
	p.current.Close = m.Price
	p.current.Volume += volume
}

// Reset drops every candle.
func (p *ChartPanel) Reset() {
	p.candles = nil
	p.current = nil
}
