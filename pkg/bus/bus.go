package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"avaneesh/md3-go/pkg/internal/logger"
	"avaneesh/md3-go/pkg/types"
)

var ErrBusClosed = errors.New("bus closed")

// DefaultBuffer is the queue length of a subscription when none is given
const DefaultBuffer = 256

// Filter selects the events a subscriber receives
type Filter func(Event) bool

// Handler consumes events on the subscription's own goroutine
type Handler func(Event)

// Kinds returns a filter accepting the listed point types
func Kinds(kinds ...types.PointType) Filter {
	return func(e Event) bool {
		for _, k := range kinds {
			if e.Kind == k {
				return true
			}
		}
		return false
	}
}

// NotFrom returns a filter rejecting events published by source
func NotFrom(source string) Filter {
	return func(e Event) bool { return e.Source != source }
}

// All combines filters
func All(filters ...Filter) Filter {
	return func(e Event) bool {
		for _, f := range filters {
			if f != nil && !f(e) {
				return false
			}
		}
		return true
	}
}

type subscription struct {
	id      uint64
	name    string
	filter  Filter
	queue   chan Event
	dropped atomic.Uint64
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

// offer queues e without blocking; false means it was not queued.
func (s *subscription) offer(e Event) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.queue <- e:
		return true
	default:
		return false
	}
}

func (s *subscription) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
}

// Bus fans events out to subscribers without blocking the publisher. A
// subscriber whose queue is full loses the event.
type Bus struct {
	subs   *xsync.MapOf[uint64, *subscription]
	nextID atomic.Uint64
	closed atomic.Bool
	wg     sync.WaitGroup
	logger logger.Logger

	published atomic.Uint64
	dropped   atomic.Uint64
}

// New creates a bus
func New(log logger.Logger) *Bus {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Bus{
		subs:   xsync.NewMapOf[uint64, *subscription](),
		logger: log.With("component", "bus"),
	}
}

// Subscribe registers handler for events accepted by filter (nil accepts
// everything). The returned function cancels the subscription and waits
// for its handler to return.
func (b *Bus) Subscribe(name string, filter Filter, buffer int, handler Handler) (func(), error) {
	if b.closed.Load() {
		return nil, ErrBusClosed
	}
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	s := &subscription{
		id:     b.nextID.Add(1),
		name:   name,
		filter: filter,
		queue:  make(chan Event, buffer),
		done:   make(chan struct{}),
	}
	b.subs.Store(s.id, s)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer close(s.done)
		for e := range s.queue {
			handler(e)
		}
	}()

	b.logger.Debug("subscribed", "subscriber", name)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.subs.Delete(s.id)
			s.stop()
			<-s.done
		})
	}
	return cancel, nil
}

// Publish delivers e to every matching subscriber and returns how many
// accepted it.
func (b *Bus) Publish(e Event) int {
	if b.closed.Load() {
		e.Respond(types.CommandStatusUndefined)
		return 0
	}
	b.published.Add(1)

	delivered := 0
	b.subs.Range(func(_ uint64, s *subscription) bool {
		if s.filter != nil && !s.filter(e) {
			return true
		}
		if s.offer(e) {
			delivered++
		} else {
			s.dropped.Add(1)
			b.dropped.Add(1)
			b.logger.Warn("subscriber queue full, event dropped", "subscriber", s.name, "event", e.String())
		}
		return true
	})
	return delivered
}

// Request publishes a control and waits for the first answer. It returns
// CommandStatusNotSupported when no subscriber takes the control and
// CommandStatusTimeout when ctx ends first.
func (b *Bus) Request(ctx context.Context, source string, ctl types.Control) types.CommandStatus {
	answer := make(chan types.CommandStatus, 1)
	respond := func(status types.CommandStatus) {
		select {
		case answer <- status:
		default:
		}
	}

	if b.Publish(ControlEvent(source, ctl, respond)) == 0 {
		return types.CommandStatusNotSupported
	}

	select {
	case status := <-answer:
		return status
	case <-ctx.Done():
		return types.CommandStatusTimeout
	}
}

// Published returns the number of events published
func (b *Bus) Published() uint64 { return b.published.Load() }

// Dropped returns the number of deliveries lost to full queues
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Subscribers returns the number of live subscriptions
func (b *Bus) Subscribers() int { return b.subs.Size() }

// Close stops every subscription after its queued events are handled
func (b *Bus) Close() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}
	b.subs.Range(func(id uint64, s *subscription) bool {
		b.subs.Delete(id)
		s.stop()
		return true
	})
	b.wg.Wait()
}
