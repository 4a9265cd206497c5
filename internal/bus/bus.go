package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/schema"
)

var (
	ErrQueueFull  = errors.New("event queue full")
	ErrBusClosed  = errors.New("event bus closed")
	ErrNotStarted = errors.New("event bus not started")
)

// EventKind routes events to their subscribers.
type EventKind uint16

const (
	EventUnknown EventKind = iota
	EventOrderCommitted
	EventEmergency
)

// String returns the wire name of the kind.
func (k EventKind) String() string {
	switch k {
	case EventOrderCommitted:
		return "ORDER_COMMITTED"
	case EventEmergency:
		return "EMERGENCY"
	default:
		return "UNKNOWN"
	}
}

// Event is the unit published on the bus. Handlers must treat it as
// immutable.
type Event struct {
	Kind   EventKind
	Order  schema.Order
	Entry  schema.LogEntry
	Reason string
}

// Handler consumes one event. Panics are recovered per handler and never
// reach the publisher or other handlers.
type Handler func(Event)

// Bus fans events out asynchronously: Publish hands the event to a bounded
// queue drained by one worker goroutine, so producer latency is independent
// of consumer processing time.
type Bus struct {
	mu       sync.Mutex
	handlers map[EventKind][]Handler

	ch      chan Event
	wg      sync.WaitGroup
	started uint32
	closed  uint32
	drops   uint64
}

// New allocates a bus with the given queue capacity.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 1
	}
	return &Bus{
		handlers: make(map[EventKind][]Handler),
		ch:       make(chan Event, capacity),
	}
}

// Subscribe registers a handler for one event kind.
func (b *Bus) Subscribe(kind EventKind, handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], handler)
}

// Publish enqueues an event without blocking. Events published while the
// queue is full are dropped and counted; the publisher never waits on a
// slow consumer.
func (b *Bus) Publish(event Event) error {
	if atomic.LoadUint32(&b.closed) != 0 {
		return ErrBusClosed
	}
	if atomic.LoadUint32(&b.started) == 0 {
		return ErrNotStarted
	}
	select {
	case b.ch <- event:
		return nil
	default:
		atomic.AddUint64(&b.drops, 1)
		return ErrQueueFull
	}
}

// Drops returns the number of events dropped on a full queue.
func (b *Bus) Drops() uint64 {
	return atomic.LoadUint64(&b.drops)
}

// Start runs the dispatch worker until the context is done or the bus is
// closed.
func (b *Bus) Start(ctx context.Context) {
	if !atomic.CompareAndSwapUint32(&b.started, 0, 1) {
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.run(ctx)
	}()
}

// Close stops intake and waits for the worker to drain buffered events.
func (b *Bus) Close() {
	if atomic.CompareAndSwapUint32(&b.closed, 0, 1) {
		close(b.ch)
	}
	b.wg.Wait()
}

func (b *Bus) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-b.ch:
			if !ok {
				return
			}
			b.dispatch(event)
		}
	}
}

func (b *Bus) dispatch(event Event) {
	b.mu.Lock()
	handlers := make([]Handler, len(b.handlers[event.Kind]))
	copy(handlers, b.handlers[event.Kind])
	b.mu.Unlock()

	for _, handler := range handlers {
		invoke(handler, event)
	}
}

// invoke isolates one handler: a panic is logged and delivery to the
// remaining handlers continues.
func invoke(handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			logs.Errorf("event handler panic, kind: %s, recovered: %v", event.Kind, r)
		}
	}()
	handler(event)
}
