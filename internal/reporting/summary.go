// Package reporting summarizes a recorded run: price statistics, return
// clustering and the strategy mix over time.
package reporting

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/zappabad/herdmarket/internal/engine"
)

// Summary holds the statistics of one run's model series.
type Summary struct {
	RunID        string  `json:"run_id"`
	Steps        int     `json:"steps"`
	InitialPrice float64 `json:"initial_price"`
	FinalPrice   float64 `json:"final_price"`
	MinPrice     float64 `json:"min_price"`
	MaxPrice     float64 `json:"max_price"`

	// Price changes between consecutive ticks. Volatility is the sample
	// standard deviation.
	MeanChange float64 `json:"mean_change"`
	Volatility float64 `json:"volatility"`
	// Sample excess kurtosis of price changes; positive values mean fat tails.
	Kurtosis float64 `json:"kurtosis"`
	// Lag-1 autocorrelation of absolute price changes, a volatility
	// clustering indicator.
	AbsChangeAutocorr float64 `json:"abs_change_autocorr"`
	MaxDrawdown       float64 `json:"max_drawdown"`

	MeanExcessDemand  float64 `json:"mean_excess_demand"`
	MeanOptimistShare float64 `json:"mean_optimist_share"`
	PeakOptimistShare float64 `json:"peak_optimist_share"`
	FinalOptimists    int     `json:"final_optimists"`
	FinalPessimists   int     `json:"final_pessimists"`
	FinalRandoms      int     `json:"final_randoms"`
	TotalSwitches     int     `json:"total_switches"`
	PeakSwitches      int     `json:"peak_switches"`
	PeakSwitchStep    int     `json:"peak_switch_step"`
}

// Summarize computes the summary of models, which must be ordered by step.
// initialPrice is the seed price preceding the first record.
func Summarize(runID string, initialPrice float64, models []engine.ModelRecord) Summary {
	s := Summary{
		RunID:        runID,
		Steps:        len(models),
		InitialPrice: initialPrice,
		FinalPrice:   initialPrice,
		MinPrice:     initialPrice,
		MaxPrice:     initialPrice,
	}
	if len(models) == 0 {
		return s
	}

	prices := make([]float64, 0, len(models)+1)
	prices = append(prices, initialPrice)

	var excess, shareSum float64
	shares := 0
	for _, m := range models {
		prices = append(prices, m.Price)
		s.MinPrice = math.Min(s.MinPrice, m.Price)
		s.MaxPrice = math.Max(s.MaxPrice, m.Price)
		excess += float64(m.ExcessDemand())

		if active := m.Optimists + m.Pessimists; active > 0 {
			share := float64(m.Optimists) / float64(active)
			shareSum += share
			shares++
			s.PeakOptimistShare = math.Max(s.PeakOptimistShare, share)
		}

		s.TotalSwitches += m.Switches
		if m.Switches > s.PeakSwitches {
			s.PeakSwitches = m.Switches
			s.PeakSwitchStep = m.Step
		}
	}

	last := models[len(models)-1]
	s.FinalPrice = last.Price
	s.FinalOptimists = last.Optimists
	s.FinalPessimists = last.Pessimists
	s.FinalRandoms = last.Randoms
	s.MeanExcessDemand = excess / float64(len(models))
	if shares > 0 {
		s.MeanOptimistShare = shareSum / float64(shares)
	}

	changes := Changes(prices)
	s.MeanChange, s.Volatility, s.Kurtosis = moments(changes)

	abs := make([]float64, len(changes))
	for i, c := range changes {
		abs[i] = math.Abs(c)
	}
	s.AbsChangeAutocorr = Autocorrelation(abs, 1)
	s.MaxDrawdown = MaxDrawdown(prices)
	return s
}

// Changes returns the first differences of prices. Prices may cross zero,
// so differences are used instead of log returns.
func Changes(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		out[i-1] = prices[i] - prices[i-1]
	}
	return out
}

// Autocorrelation returns the sample autocorrelation of xs at lag, or 0
// when it is undefined.
func Autocorrelation(xs []float64, lag int) float64 {
	if lag <= 0 || len(xs) <= lag {
		return 0
	}
	dev := make([]float64, len(xs))
	copy(dev, xs)
	floats.AddConst(-stat.Mean(xs, nil), dev)

	den := floats.Dot(dev, dev)
	if den == 0 {
		return 0
	}
	return floats.Dot(dev[:len(dev)-lag], dev[lag:]) / den
}

// MaxDrawdown returns the largest fall from a running peak, in price units.
func MaxDrawdown(prices []float64) float64 {
	if len(prices) == 0 {
		return 0
	}
	peak, dd := prices[0], 0.0
	for _, p := range prices {
		peak = math.Max(peak, p)
		dd = math.Max(dd, peak-p)
	}
	return dd
}

// moments returns the mean, sample standard deviation and sample excess
// kurtosis of xs. A moment the sample is too small or too flat to define is 0.
func moments(xs []float64) (mean, sd, kurtosis float64) {
	if len(xs) == 0 {
		return 0, 0, 0
	}
	if len(xs) < 2 {
		return xs[0], 0, 0
	}
	mean, sd = stat.MeanStdDev(xs, nil)
	if sd == 0 || len(xs) < 4 {
		return mean, sd, 0
	}
	return mean, sd, stat.ExKurtosis(xs, nil)
}
