package engine

import (
	"fmt"
	"strings"
)

// Strategy is the trading persona an agent holds during one tick.
// It is time-varying data: agents store one Strategy per tick.
type Strategy uint8

const (
	StrategyOptimist Strategy = iota
	StrategyPessimist
	StrategyRandom
)

func (s Strategy) String() string {
	switch s {
	case StrategyOptimist:
		return "OPTIMIST"
	case StrategyPessimist:
		return "PESSIMIST"
	case StrategyRandom:
		return "RANDOM"
	default:
		return "UNKNOWN"
	}
}

// MarshalText lets strategies travel as names in JSON and CSV.
func (s Strategy) MarshalText() ([]byte, error) {
	if s > StrategyRandom {
		return nil, fmt.Errorf("invalid strategy %d", s)
	}
	return []byte(s.String()), nil
}

func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStrategy accepts the names produced by String, case-insensitively.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "OPTIMIST":
		return StrategyOptimist, nil
	case "PESSIMIST":
		return StrategyPessimist, nil
	case "RANDOM":
		return StrategyRandom, nil
	default:
		return 0, fmt.Errorf("unknown strategy %q", name)
	}
}

// Action is what an agent does in the market during one tick.
type Action uint8

const (
	ActionNothing Action = iota
	ActionBid
	ActionOffer
)

func (a Action) String() string {
	switch a {
	case ActionNothing:
		return "NOTHING"
	case ActionBid:
		return "BID"
	case ActionOffer:
		return "OFFER"
	default:
		return "UNKNOWN"
	}
}

func (a Action) MarshalText() ([]byte, error) {
	if a > ActionOffer {
		return nil, fmt.Errorf("invalid action %d", a)
	}
	return []byte(a.String()), nil
}

func (a *Action) UnmarshalText(text []byte) error {
	parsed, err := ParseAction(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAction accepts the names produced by String, case-insensitively.
func ParseAction(name string) (Action, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "NOTHING":
		return ActionNothing, nil
	case "BID":
		return ActionBid, nil
	case "OFFER":
		return ActionOffer, nil
	default:
		return 0, fmt.Errorf("unknown action %q", name)
	}
}
