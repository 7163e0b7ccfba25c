package events

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/countrysync/internal/model"
)

// memoryBuffer is the per-subscriber backlog before events are dropped.
const memoryBuffer = 64

// MemoryBus is an in-process Bus for single-binary deployments and tests.
// Events published with no subscribers are dropped, matching Redis.
type MemoryBus struct {
	mu     sync.Mutex
	subs   map[*memorySub]struct{}
	closed bool
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[*memorySub]struct{})}
}

// Publish hands ev to each subscriber without blocking. A subscriber whose
// backlog is full misses the event.
func (b *MemoryBus) Publish(_ context.Context, ev model.ChangeEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return eris.New("events: bus closed")
	}
	for s := range b.subs {
		select {
		case s.ch <- ev:
		default:
			zap.L().Warn("events: subscriber backlog full, dropping event",
				zap.String("event", string(ev.Kind)),
				zap.String("id", ev.RecordID),
			)
		}
	}
	return nil
}

// Subscribe registers a new subscriber. The subscription ends when ctx is
// done or Close is called.
func (b *MemoryBus) Subscribe(ctx context.Context) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, eris.New("events: bus closed")
	}
	s := &memorySub{bus: b, ch: make(chan model.ChangeEvent, memoryBuffer), stop: make(chan struct{})}
	b.subs[s] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.stop:
		}
	}()
	return s, nil
}

// Close ends every subscription.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for s := range b.subs {
		s.closeLocked()
	}
	return nil
}

type memorySub struct {
	bus  *MemoryBus
	ch   chan model.ChangeEvent
	stop chan struct{}
	done bool
}

func (s *memorySub) Events() <-chan model.ChangeEvent { return s.ch }

func (s *memorySub) Close() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	s.closeLocked()
	return nil
}

// closeLocked requires bus.mu.
func (s *memorySub) closeLocked() {
	if s.done {
		return
	}
	s.done = true
	delete(s.bus.subs, s)
	close(s.stop)
	close(s.ch)
}
