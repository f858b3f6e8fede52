package reporting

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/zappabad/herdmarket/internal/engine"
)

const places = 4

// fixed renders v with a fixed number of decimals. Non-finite values
// render as their float spelling.
func fixed(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return decimal.NewFromFloat(v).StringFixed(places)
}

func percent(v float64) string {
	return decimal.NewFromFloat(v).Mul(decimal.NewFromInt(100)).StringFixed(1) + "%"
}

// Markdown renders the summary as a Markdown report.
func (s Summary) Markdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Run %s\n\n", s.RunID)
	fmt.Fprintf(&b, "%d ticks recorded.\n\n", s.Steps)

	b.WriteString("## Price\n\n")
	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Initial price | %s |\n", fixed(s.InitialPrice))
	fmt.Fprintf(&b, "| Final price | %s |\n", fixed(s.FinalPrice))
	fmt.Fprintf(&b, "| Min / max | %s / %s |\n", fixed(s.MinPrice), fixed(s.MaxPrice))
	fmt.Fprintf(&b, "| Mean change | %s |\n", fixed(s.MeanChange))
	fmt.Fprintf(&b, "| Volatility | %s |\n", fixed(s.Volatility))
	fmt.Fprintf(&b, "| Excess kurtosis | %s |\n", fixed(s.Kurtosis))
	fmt.Fprintf(&b, "| Autocorr \\|Δp\\| (lag 1) | %s |\n", fixed(s.AbsChangeAutocorr))
	fmt.Fprintf(&b, "| Max drawdown | %s |\n", fixed(s.MaxDrawdown))
	fmt.Fprintf(&b, "| Mean excess demand | %s |\n\n", fixed(s.MeanExcessDemand))

	b.WriteString("## Population\n\n")
	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Final optimists | %d |\n", s.FinalOptimists)
	fmt.Fprintf(&b, "| Final pessimists | %d |\n", s.FinalPessimists)
	fmt.Fprintf(&b, "| Final random | %d |\n", s.FinalRandoms)
	fmt.Fprintf(&b, "| Mean optimist share | %s |\n", percent(s.MeanOptimistShare))
	fmt.Fprintf(&b, "| Peak optimist share | %s |\n", percent(s.PeakOptimistShare))
	fmt.Fprintf(&b, "| Switches | %d |\n", s.TotalSwitches)
	fmt.Fprintf(&b, "| Peak switches | %d (tick %d) |\n", s.PeakSwitches, s.PeakSwitchStep)

	return b.String()
}

// WriteMarkdown writes the Markdown report to w.
func (s Summary) WriteMarkdown(w io.Writer) error {
	_, err := io.WriteString(w, s.Markdown())
	return err
}

var modelHeader = []string{
	"step", "price", "bids", "offers", "excess_demand",
	"optimists", "pessimists", "randoms", "switches",
}

// WriteModelCSV writes the model series as CSV with a header row.
func WriteModelCSV(w io.Writer, models []engine.ModelRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(modelHeader); err != nil {
		return err
	}
	for _, m := range models {
		row := []string{
			strconv.Itoa(m.Step),
			fixed(m.Price),
			strconv.Itoa(m.Bids),
			strconv.Itoa(m.Offers),
			strconv.Itoa(m.ExcessDemand()),
			strconv.Itoa(m.Optimists),
			strconv.Itoa(m.Pessimists),
			strconv.Itoa(m.Randoms),
			strconv.Itoa(m.Switches),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
