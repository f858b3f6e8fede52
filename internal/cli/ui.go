package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/zappabad/herdmarket/internal/reporting"
	"github.com/zappabad/herdmarket/internal/storage"
)

// UI styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	boxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#374151")).
			Padding(0, 2)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#9CA3AF")).
			Width(22)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F9FAFB")).
			Bold(true)

	upStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#10B981"))

	downStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444"))

	completedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))
)

func field(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value)
}

// renderSummary formats a run summary for the terminal.
func renderSummary(s reporting.Summary) string {
	change := s.FinalPrice - s.InitialPrice
	changeStyle := upStyle
	if change < 0 {
		changeStyle = downStyle
	}

	lines := []string{
		field("Run", s.RunID),
		field("Steps", fmt.Sprintf("%d", s.Steps)),
		field("Price", fmt.Sprintf("%.2f → %.2f ", s.InitialPrice, s.FinalPrice)) + changeStyle.Render(fmt.Sprintf("(%+.2f)", change)),
		field("Range", fmt.Sprintf("%.2f .. %.2f", s.MinPrice, s.MaxPrice)),
		field("Volatility", fmt.Sprintf("%.4f", s.Volatility)),
		field("Excess kurtosis", fmt.Sprintf("%.4f", s.Kurtosis)),
		field("|Δp| autocorrelation", fmt.Sprintf("%.4f", s.AbsChangeAutocorr)),
		field("Max drawdown", fmt.Sprintf("%.4f", s.MaxDrawdown)),
		"",
		field("Optimist share", fmt.Sprintf("%.1f%% mean, %.1f%% peak", s.MeanOptimistShare*100, s.PeakOptimistShare*100)),
		field("Final population", fmt.Sprintf("%d / %d / %d", s.FinalOptimists, s.FinalPessimists, s.FinalRandoms)),
		field("Switches", fmt.Sprintf("%d (peak %d at t=%d)", s.TotalSwitches, s.PeakSwitches, s.PeakSwitchStep)),
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Run summary"),
		boxStyle.Render(strings.Join(lines, "\n")),
	)
}

// renderRuns formats stored runs as a table.
func renderRuns(runs []*storage.Run) string {
	if len(runs) == 0 {
		return mutedStyle.Render("No runs recorded")
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#374151"))).
		Headers("RUN", "STARTED", "SEED", "STEPS", "AGENTS", "PRICE")
	for _, r := range runs {
		t.Row(
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%d", r.Seed),
			fmt.Sprintf("%d", r.Steps),
			fmt.Sprintf("%d", r.Agents),
			fmt.Sprintf("%.2f", r.InitialPrice),
		)
	}
	return t.String()
}
