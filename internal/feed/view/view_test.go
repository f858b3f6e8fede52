package view

import (
	"testing"

	"github.com/zappabad/herdmarket/internal/engine"
)

func TestTapeKeepsMostRecent(t *testing.T) {
	tape := NewTape[int](3)
	for i := 1; i <= 5; i++ {
		tape.Append(i)
	}

	got := tape.Last(10)
	want := []int{3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if tape.Count() != 3 {
		t.Errorf("expected count 3, got %d", tape.Count())
	}
	if tape.Last(0) != nil {
		t.Errorf("expected nil for n=0")
	}
}

func TestStepViewLatestModels(t *testing.T) {
	v := NewStepView(2)
	for step := 0; step < 3; step++ {
		v.Apply(StepEvent{Record: &engine.StepRecord{Model: engine.ModelRecord{Step: step}}})
	}
	v.Apply(StepEvent{})

	models := v.LatestModels(5)
	if len(models) != 2 || models[0].Step != 1 || models[1].Step != 2 {
		t.Fatalf("unexpected models: %+v", models)
	}

	last, ok := v.Last()
	if !ok || last.Model.Step != 2 {
		t.Fatalf("unexpected last step: %+v", last)
	}
	if v.Total() != 3 {
		t.Errorf("expected total 3, got %d", v.Total())
	}
}
