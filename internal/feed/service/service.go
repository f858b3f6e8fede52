package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/zappabad/herdmarket/internal/engine"
	feedview "github.com/zappabad/herdmarket/internal/feed/view"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("feed closed")

// FeedService fans completed steps out to a bounded view and one external
// subscriber. It implements engine.Sink.
type FeedService struct {
	cfg  Config
	view *feedview.StepView

	internalEvents chan feedview.StepEvent
	externalEvents chan feedview.StepEvent
	droppedEvents  atomic.Int64

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ engine.Sink = (*FeedService)(nil)

// NewFeedService creates a new FeedService.
func NewFeedService(cfg Config) *FeedService {
	if cfg.TapeSize <= 0 {
		cfg.TapeSize = DefaultConfig().TapeSize
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultConfig().EventBuffer
	}
	if cfg.ExternalEventBuffer <= 0 {
		cfg.ExternalEventBuffer = DefaultConfig().ExternalEventBuffer
	}

	s := &FeedService{
		cfg:            cfg,
		view:           feedview.NewStepView(cfg.TapeSize),
		internalEvents: make(chan feedview.StepEvent, cfg.EventBuffer),
		externalEvents: make(chan feedview.StepEvent, cfg.ExternalEventBuffer),
		closed:         make(chan struct{}),
	}

	s.wg.Add(1)
	go s.runEventDispatcher()

	return s
}

func (s *FeedService) runEventDispatcher() {
	defer s.wg.Done()
	defer close(s.externalEvents)

	for {
		select {
		case <-s.closed:
			return
		case ev := <-s.internalEvents:
			// Always update view (authoritative)
			s.view.Apply(ev)

			if s.cfg.DropExternalEvents {
				select {
				case s.externalEvents <- ev:
				default:
					s.droppedEvents.Add(1)
				}
			} else {
				select {
				case s.externalEvents <- ev:
				case <-s.closed:
					return
				}
			}
		}
	}
}

// Publish hands a step to the dispatcher. It blocks while the internal
// buffer is full.
func (s *FeedService) Publish(ctx context.Context, rec *engine.StepRecord) error {
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}

	select {
	case s.internalEvents <- feedview.StepEvent{Record: rec}:
		return nil
	case <-s.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// View exposes the read side of the feed.
func (s *FeedService) View() *feedview.StepView {
	return s.view
}

// Latest returns the last n steps (from view).
func (s *FeedService) Latest(n int) []*engine.StepRecord {
	return s.view.Latest(n)
}

// Events returns the external events channel for subscribers.
func (s *FeedService) Events() <-chan feedview.StepEvent {
	return s.externalEvents
}

// DroppedEvents returns the count of dropped external events.
func (s *FeedService) DroppedEvents() int64 {
	return s.droppedEvents.Load()
}

// Close shuts down the feed. Steps still queued internally are discarded.
func (s *FeedService) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
	s.wg.Wait()
}
