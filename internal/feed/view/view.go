package view

import (
	"sync"

	"github.com/zappabad/herdmarket/internal/engine"
)

// StepEvent carries one completed tick to subscribers.
type StepEvent struct {
	Record *engine.StepRecord
}

// SwitchEvent is one agent changing strategy.
type SwitchEvent struct {
	Step        int
	AgentID     int
	From        engine.Strategy
	To          engine.Strategy
	Probability float64
	Draw        float64
}

// StepView keeps bounded tapes of recent steps and strategy switches.
type StepView struct {
	mu       sync.RWMutex
	steps    *Tape[*engine.StepRecord]
	switches *Tape[SwitchEvent]
	types    map[int]engine.Strategy
	total    int
}

// NewStepView creates a view holding up to capacity steps and capacity switches.
func NewStepView(capacity int) *StepView {
	if capacity <= 0 {
		capacity = 512
	}
	return &StepView{
		steps:    NewTape[*engine.StepRecord](capacity),
		switches: NewTape[SwitchEvent](capacity),
		types:    make(map[int]engine.Strategy),
	}
}

// Apply adds a step to the view.
func (v *StepView) Apply(ev StepEvent) {
	if ev.Record == nil {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.steps.Append(ev.Record)
	v.total++

	for _, a := range ev.Record.Agents {
		if a.Switched {
			v.switches.Append(SwitchEvent{
				Step:        a.Step,
				AgentID:     a.AgentID,
				From:        v.types[a.AgentID],
				To:          a.Type,
				Probability: a.SwitchProb,
				Draw:        a.SwitchDraw,
			})
		}
		v.types[a.AgentID] = a.Type
	}
}

// Latest returns the last n steps in chronological order (oldest first).
func (v *StepView) Latest(n int) []*engine.StepRecord {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.steps.Last(n)
}

// LatestModels returns the model records of the last n steps.
func (v *StepView) LatestModels(n int) []engine.ModelRecord {
	v.mu.RLock()
	defer v.mu.RUnlock()

	steps := v.steps.Last(n)
	out := make([]engine.ModelRecord, len(steps))
	for i, s := range steps {
		out[i] = s.Model
	}
	return out
}

// Last returns the most recent step.
func (v *StepView) Last() (*engine.StepRecord, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	last := v.steps.Last(1)
	if len(last) == 0 {
		return nil, false
	}
	return last[0], true
}

// Switches returns the last n strategy switches in chronological order.
func (v *StepView) Switches(n int) []SwitchEvent {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.switches.Last(n)
}

// Count returns the number of steps currently held.
func (v *StepView) Count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.steps.Count()
}

// Total returns the number of steps ever applied.
func (v *StepView) Total() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.total
}
