package engine

import (
	"fmt"
	"math"
)

const (
	// maxMemory bounds the fitness window drawn each tick.
	maxMemory = 5

	reactionMean = 0.5
	reactionStd  = 0.1
)

// TraderParams are the per-agent constants fixed at creation.
type TraderParams struct {
	Horizon int
	Beta    float64
	Rho     float64
}

// Trader is one agent. Its per-tick series are pre-sized to the run length
// and written in place; the agent is the only writer.
type Trader struct {
	id     int
	market *Market
	rng    RandomSource

	types   []Strategy
	actions []Action
	returns []float64

	horizon int
	beta    float64
	rho     float64
	memory  int

	expected   float64
	quotePrice float64
	fitness    float64

	neighbors     []int
	optimistMean  float64
	pessimistMean float64

	switchProb float64
	switchDraw float64
	switched   bool
}

// NewTrader creates an agent holding initial for the whole run until it switches.
// RANDOM agents keep their pre-filled type series forever.
func NewTrader(id int, initial Strategy, steps int, params TraderParams, market *Market, rng RandomSource) *Trader {
	types := make([]Strategy, steps)
	if initial == StrategyRandom {
		for i := range types {
			types[i] = StrategyRandom
		}
	} else if steps > 0 {
		types[0] = initial
	}

	return &Trader{
		id:      id,
		market:  market,
		rng:     rng,
		types:   types,
		actions: make([]Action, steps),
		returns: make([]float64, steps),
		horizon: params.Horizon,
		beta:    params.Beta,
		rho:     params.Rho,
		memory:  maxMemory,
	}
}

func (tr *Trader) ID() int { return tr.id }

func (tr *Trader) Horizon() int { return tr.horizon }

func (tr *Trader) Fitness() float64 { return tr.fitness }

func (tr *Trader) Expectation() float64 { return tr.expected }

func (tr *Trader) Memory() int { return tr.memory }

// Means returns the smoothed neighbor fitness estimates per type.
func (tr *Trader) Means() (optimist, pessimist float64) {
	return tr.optimistMean, tr.pessimistMean
}

// TypeAt returns the strategy held at tick t.
func (tr *Trader) TypeAt(t int) Strategy { return tr.types[t] }

// ActionAt returns the action taken at tick t.
func (tr *Trader) ActionAt(t int) Action { return tr.actions[t] }

// ReturnAt returns the return realized at tick t.
func (tr *Trader) ReturnAt(t int) float64 { return tr.returns[t] }

// IsRandom reports whether the agent is a noise trader. Noise traders never
// switch and have no neighbors.
func (tr *Trader) IsRandom() bool {
	return len(tr.types) > 0 && tr.types[0] == StrategyRandom
}

// Neighbors returns the cached neighbor ids.
func (tr *Trader) Neighbors() []int {
	out := make([]int, len(tr.neighbors))
	copy(out, tr.neighbors)
	return out
}

// SnapshotNeighbors caches the agent's neighbors once, at tick 0.
func (tr *Trader) SnapshotNeighbors(topo Topology) {
	if tr.IsRandom() || topo == nil || tr.id >= topo.Size() {
		tr.neighbors = nil
		return
	}
	tr.neighbors = topo.Neighbors(tr.id)
}

// Switch runs the discrete-choice transition for tick t >= 1 against the
// prior-tick peer snapshot. When convergence is set, a type change also
// adopts the horizon of the fittest neighbor that held the adopted type.
func (tr *Trader) Switch(t int, peers []PeerState, convergence bool) {
	tr.switched = false
	tr.switchProb, tr.switchDraw = 0, 0
	if tr.IsRandom() {
		return
	}

	prev := tr.types[t-1]
	tr.types[t] = prev
	if len(tr.neighbors) == 0 {
		return
	}

	switch prev {
	case StrategyOptimist:
		tr.optimistMean = (tr.fitness + tr.optimistMean) / 2
	case StrategyPessimist:
		tr.pessimistMean = (tr.fitness + tr.pessimistMean) / 2
	}

	p := logistic(tr.rho * (tr.optimistMean - tr.pessimistMean))
	r := tr.rng.Uniform()
	tr.switchProb, tr.switchDraw = p, r

	if tr.optimistMean == 0 && tr.pessimistMean == 0 {
		return
	}

	next := StrategyPessimist
	if p > r {
		next = StrategyOptimist
	}
	tr.types[t] = next

	if next != prev {
		tr.switched = true
		if convergence {
			tr.adoptHorizon(next, peers)
		}
	}
}

func (tr *Trader) adoptHorizon(adopted Strategy, peers []PeerState) {
	best := -1
	for _, id := range tr.neighbors {
		if id < 0 || id >= len(peers) || peers[id].Type != adopted {
			continue
		}
		if best < 0 || peers[id].Fitness > peers[best].Fitness {
			best = id
		}
	}
	if best >= 0 {
		tr.horizon = peers[best].Horizon
	}
}

// GenerateExpectation forms this tick's expected price from the current
// price and its deviation from the agent's EMA.
func (tr *Trader) GenerateExpectation(t int) error {
	price := tr.market.CurrentPrice()
	coeff := tr.rng.Gaussian(reactionMean, reactionStd)
	change := price - tr.market.ExponentialMovingAverage(tr.horizon)

	raw := behaviorFor(tr.types[t]).expectation(price, change, coeff)
	tr.expected = raw + tr.rng.Gaussian(0, tr.beta)
	tr.quotePrice = price

	if !finite(tr.expected) {
		return fmt.Errorf("agent %d tick %d: expectation is %v", tr.id, t, tr.expected)
	}
	return nil
}

// GenerateAction decides and stores the action for tick t.
func (tr *Trader) GenerateAction(t int) Action {
	a := behaviorFor(tr.types[t]).action(tr.expected, tr.market.CurrentPrice(), tr.rng)
	tr.actions[t] = a
	return a
}

// SubmitOrder forwards the tick's action to the market.
func (tr *Trader) SubmitOrder(t int) {
	tr.market.RecordOrder(tr.actions[t])
}

// UpdateReturn realizes the return of the action taken at tick t.
func (tr *Trader) UpdateReturn(t int, after, before float64) {
	var r float64
	switch tr.actions[t] {
	case ActionBid:
		r = after - before
	case ActionOffer:
		r = before - after
	}
	tr.returns[t] = r
}

// GenerateFitness averages the most recent returns earned at ticks before t
// while the agent held its tick-t type. The window size is redrawn in
// [1, maxMemory] whenever there is at least one matching return.
func (tr *Trader) GenerateFitness(t int) error {
	current := tr.types[t]

	matched := make([]float64, 0, maxMemory)
	for i := t - 1; i >= 0 && len(matched) < maxMemory; i-- {
		if tr.types[i] == current {
			matched = append(matched, tr.returns[i])
		}
	}

	if len(matched) == 0 {
		tr.fitness = 0
		return nil
	}

	tr.memory = tr.rng.Intn(maxMemory) + 1
	window := min(tr.memory, len(matched))

	var sum float64
	for _, r := range matched[:window] {
		sum += r
	}
	tr.fitness = sum / float64(window)

	if !finite(tr.fitness) {
		return fmt.Errorf("agent %d tick %d: fitness is %v", tr.id, t, tr.fitness)
	}
	return nil
}

// UpdateNeighborMeans folds the neighbors' just-computed fitness, grouped by
// their tick type, into the smoothed means. A type with no neighbor present
// keeps its previous mean.
func (tr *Trader) UpdateNeighborMeans(peers []PeerState) {
	if tr.IsRandom() || len(tr.neighbors) == 0 {
		return
	}

	var optSum, pessSum float64
	var optN, pessN int
	for _, id := range tr.neighbors {
		if id < 0 || id >= len(peers) {
			continue
		}
		switch peers[id].Type {
		case StrategyOptimist:
			optSum += peers[id].Fitness
			optN++
		case StrategyPessimist:
			pessSum += peers[id].Fitness
			pessN++
		}
	}

	if optN > 0 {
		tr.optimistMean = (optSum/float64(optN) + tr.optimistMean) / 2
	}
	if pessN > 0 {
		tr.pessimistMean = (pessSum/float64(pessN) + tr.pessimistMean) / 2
	}
}

// Record captures the agent's state at the end of tick t.
func (tr *Trader) Record(t int) AgentRecord {
	return AgentRecord{
		Step:           t,
		AgentID:        tr.id,
		Type:           tr.types[t],
		Horizon:        tr.horizon,
		Action:         tr.actions[t],
		Price:          tr.quotePrice,
		Expectation:    tr.expected,
		ExpectedReturn: tr.expected - tr.quotePrice,
		Return:         tr.returns[t],
		Fitness:        tr.fitness,
		OptimistMean:   tr.optimistMean,
		PessimistMean:  tr.pessimistMean,
		SwitchProb:     tr.switchProb,
		SwitchDraw:     tr.switchDraw,
		Switched:       tr.switched,
	}
}

func (tr *Trader) peerState(t int) PeerState {
	return PeerState{Type: tr.types[t], Fitness: tr.fitness, Horizon: tr.horizon}
}

// PeerState is the read-only view of an agent that other agents consume
// between phases.
type PeerState struct {
	Type    Strategy
	Fitness float64
	Horizon int
}

// logistic is 1/(1+exp(-x)) evaluated without overflow.
func logistic(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	z := math.Exp(x)
	return z / (1 + z)
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
