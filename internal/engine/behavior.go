package engine

// behavior is the per-strategy part of an agent's decision. The agent looks
// up the behavior for its current-tick strategy every tick, so switching
// strategy never rebuilds the agent.
type behavior interface {
	// expectation maps the current price, the price change versus the
	// agent's EMA and a N(0.5, 0.1) coefficient to an expected price,
	// before the agent adds its own noise.
	expectation(price, change, coeff float64) float64
	// action decides the order given the noisy expectation.
	action(expected, price float64, rng RandomSource) Action
}

// optimist extrapolates the trend and buys when it expects a higher price.
type optimist struct{}

func (optimist) expectation(price, change, coeff float64) float64 {
	return price + coeff*change
}

func (optimist) action(expected, price float64, _ RandomSource) Action {
	if expected > price {
		return ActionBid
	}
	return ActionNothing
}

// pessimist expects reversion and sells when it expects a lower price.
type pessimist struct{}

func (pessimist) expectation(price, change, coeff float64) float64 {
	return price - coeff*change
}

func (pessimist) action(expected, price float64, _ RandomSource) Action {
	if expected < price {
		return ActionOffer
	}
	return ActionNothing
}

// noise traders share the pessimist's expectation but act uniformly at random.
type noise struct{}

func (noise) expectation(price, change, coeff float64) float64 {
	return price - coeff*change
}

func (noise) action(_, _ float64, rng RandomSource) Action {
	switch rng.Intn(3) {
	case 0:
		return ActionBid
	case 1:
		return ActionOffer
	default:
		return ActionNothing
	}
}

var behaviors = [...]behavior{
	StrategyOptimist:  optimist{},
	StrategyPessimist: pessimist{},
	StrategyRandom:    noise{},
}

func behaviorFor(s Strategy) behavior {
	if int(s) < len(behaviors) {
		return behaviors[s]
	}
	return noise{}
}
