package panels

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/zappabad/herdmarket/internal/engine"
	feedview "github.com/zappabad/herdmarket/internal/feed/view"
)

func TestChartPanelFoldsTicksIntoCandles(t *testing.T) {
	p := NewChartPanel(3)
	for step := 0; step < 7; step++ {
		p.AddStep(engine.ModelRecord{Step: step, Price: 100 + float64(step), Bids: 1, Offers: 1})
	}

	candles := p.Candles()
	if len(candles) != 3 {
		t.Fatalf("expected 3 candles, got %d", len(candles))
	}

	first := candles[0]
	if first.Open != 100 || first.Close != 102 || first.High != 102 || first.Low != 100 {
		t.Errorf("unexpected first candle: %+v", first)
	}
	if first.Volume != 6 {
		t.Errorf("expected volume 6, got %d", first.Volume)
	}

	second := candles[1]
	if second.Open != 102 || second.Close != 105 || second.Step != 3 {
		t.Errorf("second candle must open at the previous close: %+v", second)
	}
	if candles[2].Step != 6 || candles[2].Close != 106 {
		t.Errorf("unexpected open candle: %+v", candles[2])
	}
}

func TestChartPanelView(t *testing.T) {
	p := NewChartPanel(1)
	p.SetSize(60, 16)

	if !strings.Contains(p.View(), "Waiting for the first tick") {
		t.Error("empty chart must show the placeholder")
	}

	p.AddStep(engine.ModelRecord{Step: 0, Price: 100})
	p.AddStep(engine.ModelRecord{Step: 1, Price: 101.5})
	view := p.View()
	if !strings.Contains(view, "┃") {
		t.Error("expected candle bodies in chart")
	}
	if !strings.Contains(view, "101") {
		t.Error("expected price axis labels in chart")
	}

	p.Reset()
	if len(p.Candles()) != 0 {
		t.Error("reset must drop every candle")
	}
}

func TestPopulationPanelView(t *testing.T) {
	p := NewPopulationPanel()
	p.SetSize(50, 14)
	if !strings.Contains(p.View(), "No ticks yet") {
		t.Error("expected placeholder before the first tick")
	}

	p.SetStep(engine.ModelRecord{Step: 4, Price: 101.25, Bids: 3, Offers: 1, Optimists: 5, Pessimists: 3, Randoms: 2, Switches: 1}, 100)
	view := p.View()
	for _, want := range []string{"101.25", "+1.25", "OPTIMIST", "PESSIMIST", "RANDOM"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestBar(t *testing.T) {
	tests := []struct {
		name         string
		count, total int
		width        int
		filled       int
	}{
		{name: "half", count: 5, total: 10, width: 10, filled: 5},
		{name: "full", count: 3, total: 3, width: 4, filled: 4},
		{name: "empty", count: 0, total: 3, width: 4, filled: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := bar(tt.count, tt.total, tt.width)
			if n := strings.Count(got, "█"); n != tt.filled {
				t.Errorf("expected %d filled cells, got %d", tt.filled, n)
			}
			if n := strings.Count(got, "░"); n != tt.width-tt.filled {
				t.Errorf("expected %d empty cells, got %d", tt.width-tt.filled, n)
			}
		})
	}

	if bar(1, 0, 5) != "" {
		t.Error("zero population must render no bar")
	}
}

func TestAgentsPanelRows(t *testing.T) {
	p := NewAgentsPanel()
	p.SetSize(90, 12)
	p.SetAgents(7, []engine.AgentRecord{
		{AgentID: 0, Type: engine.StrategyOptimist, Horizon: 3, Action: engine.ActionBid, Expectation: 102.5},
		{AgentID: 1, Type: engine.StrategyRandom, Action: engine.ActionOffer},
	})

	rows := p.Rows()
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0][1] != "OPTIMIST" || rows[0][2] != "3" || rows[0][3] != "BID" || rows[0][4] != "102.50" {
		t.Errorf("unexpected row: %v", rows[0])
	}
	if rows[1][2] != "-" {
		t.Errorf("random agents have no horizon, got %q", rows[1][2])
	}
	if !strings.Contains(p.View(), "Agents @ t=7") {
		t.Error("expected step in title")
	}
}

func TestSwitchesPanelFollowsNewest(t *testing.T) {
	p := NewSwitchesPanel()
	p.SetSize(60, 10)
	p.SetFocus(true)

	var items []feedview.SwitchEvent
	for i := 0; i < 3; i++ {
		items = append(items, feedview.SwitchEvent{Step: i + 1, AgentID: i, From: engine.StrategyPessimist, To: engine.StrategyOptimist})
	}
	p.SetSwitches(items)

	sel, ok := p.Selected()
	if !ok || sel.Step != 3 {
		t.Fatalf("expected newest switch selected, got %+v", sel)
	}

	p.Update(tea.KeyMsg{Type: tea.KeyUp})
	items = append(items, feedview.SwitchEvent{Step: 4, AgentID: 9})
	p.SetSwitches(items)

	sel, _ = p.Selected()
	if sel.Step != 2 {
		t.Errorf("selection must stay put after scrolling up, got step %d", sel.Step)
	}

	if !strings.Contains(p.View(), "PESSIMIST") {
		t.Error("expected strategy names in view")
	}
}
