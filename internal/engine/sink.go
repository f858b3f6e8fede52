package engine

import (
	"context"
	"errors"
)

// Sink receives every StepRecord in tick order. Publish runs on the
// simulation goroutine, so implementations must not call back into the
// Simulation.
type Sink interface {
	Publish(ctx context.Context, rec *StepRecord) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rec *StepRecord) error

func (f SinkFunc) Publish(ctx context.Context, rec *StepRecord) error {
	return f(ctx, rec)
}

type multiSink []Sink

// MultiSink fans a record out to every non-nil sink in order. All sinks see
// the record; their errors are joined.
func MultiSink(sinks ...Sink) Sink {
	out := make(multiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m multiSink) Publish(ctx context.Context, rec *StepRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
