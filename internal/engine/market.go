package engine

// Market holds the price history and the order counters for the tick in progress.
// Prices are never clamped; the history always holds the seed price plus one
// entry per completed tick.
type Market struct {
	prices []float64
	bids   int
	offers int

	lastBids   int
	lastOffers int

	alpha float64
	noise bool
	rng   RandomSource

	// EMA values for the current history length, keyed by span.
	emaCache map[int]float64
}

// NewMarket creates a market seeded with initialPrice. When noise is set each
// price update adds a draw from N(0, alpha/2).
func NewMarket(initialPrice, alpha float64, noise bool, rng RandomSource) *Market {
	return &Market{
		prices:   []float64{initialPrice},
		alpha:    alpha,
		noise:    noise,
		rng:      rng,
		emaCache: make(map[int]float64),
	}
}

// RecordOrder adds one order to this tick's counters. ActionNothing is ignored.
func (m *Market) RecordOrder(action Action) {
	switch action {
	case ActionBid:
		m.bids++
	case ActionOffer:
		m.offers++
	}
}

// PendingOrders returns the counters for the tick in progress.
func (m *Market) PendingOrders() (bids, offers int) {
	return m.bids, m.offers
}

// LastOrders returns the counters consumed by the most recent price update.
func (m *Market) LastOrders() (bids, offers int) {
	return m.lastBids, m.lastOffers
}

// AdvancePrice appends current + alpha*(bids-offers) [+ noise] to the history
// and resets the counters. It returns the new price.
func (m *Market) AdvancePrice() float64 {
	next := m.CurrentPrice() + m.alpha*float64(m.bids-m.offers)
	if m.noise {
		next += m.rng.Gaussian(0, m.alpha/2)
	}

	m.prices = append(m.prices, next)
	m.lastBids, m.lastOffers = m.bids, m.offers
	m.bids, m.offers = 0, 0
	clear(m.emaCache)

	return next
}

func (m *Market) CurrentPrice() float64 {
	return m.prices[len(m.prices)-1]
}

// PreviousPrice returns the second-to-last price. ok is false while only the
// seed price exists.
func (m *Market) PreviousPrice() (price float64, ok bool) {
	if len(m.prices) < 2 {
		return 0, false
	}
	return m.prices[len(m.prices)-2], true
}

// Prices returns a copy of the full history.
func (m *Market) Prices() []float64 {
	out := make([]float64, len(m.prices))
	copy(out, m.prices)
	return out
}

func (m *Market) Len() int {
	return len(m.prices)
}

// ExponentialMovingAverage runs an EMA with weight 2/(span+1) over the whole
// history, seeded with the first price. Spans below 1 are treated as 1.
func (m *Market) ExponentialMovingAverage(span int) float64 {
	if span < 1 {
		span = 1
	}
	if v, ok := m.emaCache[span]; ok {
		return v
	}

	k := 2.0 / float64(span+1)
	ema := m.prices[0]
	for _, p := range m.prices[1:] {
		ema = k*p + (1-k)*ema
	}

	m.emaCache[span] = ema
	return ema
}

// SimpleMovingAverage averages the last min(k, len) prices. k below 1 is treated as 1.
func (m *Market) SimpleMovingAverage(k int) float64 {
	if k < 1 {
		k = 1
	}
	if k > len(m.prices) {
		k = len(m.prices)
	}

	var sum float64
	for _, p := range m.prices[len(m.prices)-k:] {
		sum += p
	}
	return sum / float64(k)
}
