package styles

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"

	"github.com/zappabad/herdmarket/internal/engine"
)

// Color palette
var (
	PrimaryColor = lipgloss.Color("#7C3AED") // Purple
	AccentColor  = lipgloss.Color("#F59E0B") // Amber

	UpColor      = lipgloss.Color("#10B981") // Green
	DownColor    = lipgloss.Color("#EF4444") // Red
	NeutralColor = lipgloss.Color("#6B7280") // Gray

	OptimistColor  = lipgloss.Color("#10B981")
	PessimistColor = lipgloss.Color("#EF4444")
	RandomColor    = lipgloss.Color("#60A5FA") // Blue

	BackgroundColor  = lipgloss.Color("#1F2937")
	BorderColor      = lipgloss.Color("#374151")
	FocusBorderColor = lipgloss.Color("#7C3AED")

	TextColor          = lipgloss.Color("#F9FAFB")
	TextSecondaryColor = lipgloss.Color("#9CA3AF")
	TextMutedColor     = lipgloss.Color("#6B7280")
)

// Panel styles
var (
	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderColor).
			Padding(0, 1)

	FocusedPanelStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(FocusBorderColor).
				Padding(0, 1)

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryColor).
			Padding(0, 1)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(TextSecondaryColor)

	RowStyle = lipgloss.NewStyle().
			Foreground(TextColor)

	SelectedRowStyle = lipgloss.NewStyle().
				Foreground(TextColor).
				Background(lipgloss.Color("#374151"))

	MutedStyle = lipgloss.NewStyle().
			Foreground(TextMutedColor)
)

// Market text styles
var (
	PriceStyle = lipgloss.NewStyle().
			Foreground(TextColor).
			Bold(true)

	PriceUpStyle = lipgloss.NewStyle().
			Foreground(UpColor)

	PriceDownStyle = lipgloss.NewStyle().
			Foreground(DownColor)

	StepStyle = lipgloss.NewStyle().
			Foreground(TextMutedColor)

	SwitchStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(AccentColor)
)

// Chart styles
var (
	CandleUpStyle = lipgloss.NewStyle().
			Foreground(UpColor)

	CandleDownStyle = lipgloss.NewStyle().
			Foreground(DownColor)

	ChartAxisStyle = lipgloss.NewStyle().
			Foreground(TextMutedColor)

	ChartLabelStyle = lipgloss.NewStyle().
			Foreground(TextSecondaryColor)
)

// Status bar styles
var (
	StatusBarStyle = lipgloss.NewStyle().
			Background(BackgroundColor).
			Foreground(TextSecondaryColor).
			Padding(0, 1)

	StatusBarKeyStyle = lipgloss.NewStyle().
				Foreground(PrimaryColor).
				Bold(true)

	StatusBarDescStyle = lipgloss.NewStyle().
				Foreground(TextSecondaryColor)

	PausedStyle = lipgloss.NewStyle().
			Foreground(AccentColor).
			Bold(true)
)

// RenderTitle renders a panel title bar.
func RenderTitle(title string, focused bool) string {
	style := TitleStyle
	if focused {
		style = style.Foreground(FocusBorderColor)
	}
	return style.Render(title)
}

// StrategyColor returns the color of a strategy.
func StrategyColor(s engine.Strategy) lipgloss.Color {
	switch s {
	case engine.StrategyOptimist:
		return OptimistColor
	case engine.StrategyPessimist:
		return PessimistColor
	default:
		return RandomColor
	}
}

// StrategyStyle returns the text style of a strategy.
func StrategyStyle(s engine.Strategy) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(StrategyColor(s))
}

// FormatPrice renders a price with two decimals.
func FormatPrice(price float64) string {
	return strconv.FormatFloat(price, 'f', 2, 64)
}

// ChangeStyle picks the up or down style for a price change.
func ChangeStyle(change float64) lipgloss.Style {
	switch {
	case change > 0:
		return PriceUpStyle
	case change < 0:
		return PriceDownStyle
	default:
		return RowStyle
	}
}
