package service

import (
	"context"
	"testing"
	"time"

	"github.com/zappabad/herdmarket/internal/engine"
)

func record(step int, agents ...engine.AgentRecord) *engine.StepRecord {
	return &engine.StepRecord{
		Model:  engine.ModelRecord{Step: step, Price: 100 + float64(step)},
		Agents: agents,
	}
}

func nextEvent(t *testing.T, svc *FeedService) *engine.StepRecord {
	t.Helper()
	select {
	case ev := <-svc.Events():
		return ev.Record
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestFeedServiceDeliversInOrder(t *testing.T) {
	svc := NewFeedService(DefaultConfig())
	defer svc.Close()

	ctx := context.Background()
	for step := 0; step < 3; step++ {
		if err := svc.Publish(ctx, record(step)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	for step := 0; step < 3; step++ {
		rec := nextEvent(t, svc)
		if rec.Model.Step != step {
			t.Fatalf("expected step %d, got %d", step, rec.Model.Step)
		}
	}

	latest := svc.Latest(10)
	if len(latest) != 3 {
		t.Fatalf("expected 3 steps in view, got %d", len(latest))
	}
	if latest[2].Model.Price != 102 {
		t.Errorf("expected latest price 102, got %v", latest[2].Model.Price)
	}
}

func TestFeedServiceDropsWhenSubscriberIsSlow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExternalEventBuffer = 1
	svc := NewFeedService(cfg)
	defer svc.Close()

	ctx := context.Background()
	for step := 0; step < 5; step++ {
		if err := svc.Publish(ctx, record(step)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	deadline := time.Now().Add(time.Second)
	for svc.DroppedEvents() < 4 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if svc.View().Total() != 5 {
		t.Fatalf("view must see every step, got %d", svc.View().Total())
	}
	if svc.DroppedEvents() != 4 {
		t.Errorf("expected 4 dropped events, got %d", svc.DroppedEvents())
	}
}

func TestFeedServiceTracksSwitches(t *testing.T) {
	svc := NewFeedService(DefaultConfig())
	defer svc.Close()

	ctx := context.Background()
	_ = svc.Publish(ctx, record(0, engine.AgentRecord{AgentID: 4, Type: engine.StrategyPessimist}))
	_ = svc.Publish(ctx, record(1, engine.AgentRecord{
		Step: 1, AgentID: 4, Type: engine.StrategyOptimist, Switched: true, SwitchProb: 0.8, SwitchDraw: 0.3,
	}))
	nextEvent(t, svc)
	nextEvent(t, svc)

	switches := svc.View().Switches(10)
	if len(switches) != 1 {
		t.Fatalf("expected 1 switch, got %d", len(switches))
	}
	sw := switches[0]
	if sw.From != engine.StrategyPessimist || sw.To != engine.StrategyOptimist || sw.Step != 1 {
		t.Errorf("unexpected switch: %+v", sw)
	}
}

func TestFeedServicePublishAfterClose(t *testing.T) {
	svc := NewFeedService(DefaultConfig())
	svc.Close()
	svc.Close()

	if err := svc.Publish(context.Background(), record(0)); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, ok := <-svc.Events(); ok {
		t.Fatal("events channel must be closed")
	}
}
