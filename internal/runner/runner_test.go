package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zappabad/herdmarket/internal/engine"
)

type fakeStepper struct {
	mu     sync.Mutex
	tick   int
	total  int
	failAt int
}

func (f *fakeStepper) Step(_ context.Context) (*engine.StepRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAt > 0 && f.tick == f.failAt {
		return nil, errors.New("boom")
	}
	f.tick++
	return &engine.StepRecord{Model: engine.ModelRecord{Step: f.tick - 1}}, nil
}

func (f *fakeStepper) Finished() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tick >= f.total
}

func waitDone(t *testing.T, r *Runner) {
	t.Helper()
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestRunnerRunsToCompletion(t *testing.T) {
	st := &fakeStepper{total: 25}
	r := NewRunner(context.Background(), Config{TickInterval: 0}, st)
	defer r.Close()

	waitDone(t, r)
	if r.Steps() != 25 {
		t.Fatalf("expected 25 steps, got %d", r.Steps())
	}
	if r.Err() != nil {
		t.Fatalf("unexpected error: %v", r.Err())
	}
}

func TestRunnerPacedBatches(t *testing.T) {
	st := &fakeStepper{total: 10}
	r := NewRunner(context.Background(), Config{TickInterval: time.Millisecond, StepsPerTick: 4}, st)
	defer r.Close()

	waitDone(t, r)
	if r.Steps() != 10 {
		t.Fatalf("expected 10 steps, got %d", r.Steps())
	}
}

func TestRunnerStopsOnError(t *testing.T) {
	st := &fakeStepper{total: 10, failAt: 3}
	r := NewRunner(context.Background(), Config{}, st)
	defer r.Close()

	waitDone(t, r)
	if r.Err() == nil {
		t.Fatal("expected step error")
	}
	if r.Steps() != 3 {
		t.Errorf("expected 3 steps before failure, got %d", r.Steps())
	}
}

func TestRunnerPauseResume(t *testing.T) {
	st := &fakeStepper{total: 5}
	r := NewRunner(context.Background(), Config{TickInterval: time.Millisecond, StartPaused: true}, st)
	defer r.Close()

	time.Sleep(20 * time.Millisecond)
	if r.Steps() != 0 {
		t.Fatalf("paused runner stepped %d times", r.Steps())
	}
	if !r.Paused() {
		t.Fatal("expected paused")
	}

	if r.Toggle() {
		t.Fatal("toggle must resume")
	}
	waitDone(t, r)
	if r.Steps() != 5 {
		t.Fatalf("expected 5 steps, got %d", r.Steps())
	}
}

func TestRunnerClose(t *testing.T) {
	st := &fakeStepper{total: 1 << 30}
	r := NewRunner(context.Background(), Config{TickInterval: time.Millisecond}, st)

	r.Close()
	r.Close()
	waitDone(t, r)
	if r.Err() != nil {
		t.Fatalf("close must not record an error, got %v", r.Err())
	}
}
