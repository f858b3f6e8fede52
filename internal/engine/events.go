package engine

// ModelRecord is the market-level outcome of one tick. The population and
// switch counts are derived from the agent records of the same tick.
type ModelRecord struct {
	Step       int     `json:"step"`
	Price      float64 `json:"price"`
	Bids       int     `json:"bids"`
	Offers     int     `json:"offers"`
	Optimists  int     `json:"optimists"`
	Pessimists int     `json:"pessimists"`
	Randoms    int     `json:"randoms"`
	Switches   int     `json:"switches"`
}

// ExcessDemand is executed bids minus executed offers.
func (m ModelRecord) ExcessDemand() int {
	return m.Bids - m.Offers
}

// AgentRecord is one agent's state at the end of a tick. Price is the
// price the agent quoted against, before the tick's update.
type AgentRecord struct {
	Step           int      `json:"step"`
	AgentID        int      `json:"agent_id"`
	Type           Strategy `json:"type"`
	Horizon        int      `json:"horizon"`
	Action         Action   `json:"action"`
	Price          float64  `json:"price"`
	Expectation    float64  `json:"expectation"`
	ExpectedReturn float64  `json:"expected_return"`
	Return         float64  `json:"return"`
	Fitness        float64  `json:"fitness"`
	OptimistMean   float64  `json:"optimist_mean"`
	PessimistMean  float64  `json:"pessimist_mean"`
	SwitchProb     float64  `json:"switch_prob"`
	SwitchDraw     float64  `json:"switch_draw"`
	Switched       bool     `json:"switched"`
}

// StepRecord is everything one tick produced. Records are immutable once
// handed to a Sink.
type StepRecord struct {
	Model  ModelRecord   `json:"model"`
	Agents []AgentRecord `json:"agents"`
}

func newStepRecord(step int, price float64, bids, offers int, agents []AgentRecord) *StepRecord {
	rec := &StepRecord{
		Model: ModelRecord{
			Step:   step,
			Price:  price,
			Bids:   bids,
			Offers: offers,
		},
		Agents: agents,
	}

	for _, a := range agents {
		switch a.Type {
		case StrategyOptimist:
			rec.Model.Optimists++
		case StrategyPessimist:
			rec.Model.Pessimists++
		case StrategyRandom:
			rec.Model.Randoms++
		}
		if a.Switched {
			rec.Model.Switches++
		}
	}
	return rec
}
