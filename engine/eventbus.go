package engine

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"

	"gradekit/core"
)

type DispatchMode int

const (
	DispatchSync DispatchMode = iota
	DispatchAsync
)

type subscription struct {
	id int64
	fn func(context.Context, core.Event)
}

const (
	asyncWorkers = 4
	queueSize    = 256
)

// EventBus provides thread-safe pub/sub of score events with sync or async dispatch.
// In async mode each student's events go to the same worker queue, so handlers
// see one student's events in publish order.
type EventBus struct {
	mode   DispatchMode
	mu     sync.RWMutex
	subs   map[core.EventType]map[int64]subscription
	nextID int64
	queues []chan core.Event
	wg     sync.WaitGroup
	done   chan struct{}
	once   sync.Once
	log    *slog.Logger
}

func NewEventBus(mode DispatchMode) *EventBus {
	eb := &EventBus{
		mode: mode,
		subs: make(map[core.EventType]map[int64]subscription),
		done: make(chan struct{}),
		log:  slog.Default(),
	}
	if mode == DispatchAsync {
		eb.startWorkers()
	}
	return eb
}

// WithLogger sets the logger used to report dropped events.
func (e *EventBus) WithLogger(l *slog.Logger) *EventBus {
	if l != nil {
		e.log = l
	}
	return e
}

func (e *EventBus) startWorkers() {
	e.queues = make([]chan core.Event, asyncWorkers)
	for i := range e.queues {
		q := make(chan core.Event, queueSize)
		e.queues[i] = q
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for {
				select {
				case ev := <-q:
					e.dispatch(context.Background(), ev)
				case <-e.done:
					e.drain(q)
					return
				}
			}
		}()
	}
}

func (e *EventBus) drain(q chan core.Event) {
	for {
		select {
		case ev := <-q:
			e.dispatch(context.Background(), ev)
		default:
			return
		}
	}
}

// queueFor picks the worker queue owning the event's student.
func (e *EventBus) queueFor(ev core.Event) chan core.Event {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ev.Student))
	return e.queues[h.Sum32()%uint32(len(e.queues))]
}

// Close stops async workers after the queued events are delivered.
func (e *EventBus) Close() {
	e.once.Do(func() {
		close(e.done)
		e.wg.Wait()
	})
}

// Subscribe registers a handler for an event type. Returns unsubscribe func.
func (e *EventBus) Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	if e.subs[typ] == nil {
		e.subs[typ] = make(map[int64]subscription)
	}
	e.subs[typ][id] = subscription{id: id, fn: handler}
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if m := e.subs[typ]; m != nil {
			delete(m, id)
		}
	}
}

// SubscribeAll registers handler for every event type the services publish.
func (e *EventBus) SubscribeAll(handler func(context.Context, core.Event)) func() {
	unsubs := make([]func(), 0, len(core.AllEventTypes))
	for _, typ := range core.AllEventTypes {
		unsubs = append(unsubs, e.Subscribe(typ, handler))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Publish sends an event to subscribers. In async mode a full queue drops the event.
func (e *EventBus) Publish(ctx context.Context, ev core.Event) {
	if e.mode == DispatchAsync {
		select {
		case e.queueFor(ev) <- ev:
		default:
			e.log.WarnContext(ctx, "event queue full, dropping event", "type", ev.Type, "student_id", ev.Student)
		}
		return
	}
	e.dispatch(ctx, ev)
}

func (e *EventBus) dispatch(ctx context.Context, ev core.Event) {
	e.mu.RLock()
	subs := e.subs[ev.Type]
	handlers := make([]func(context.Context, core.Event), 0, len(subs))
	for _, s := range subs {
		handlers = append(handlers, s.fn)
	}
	e.mu.RUnlock()
	for _, h := range handlers {
		e.call(ctx, h, ev)
	}
}

// call runs one handler. A panicking handler is logged and does not stop the others.
func (e *EventBus) call(ctx context.Context, h func(context.Context, core.Event), ev core.Event) {
	defer func() {
		if r := recover(); r != nil {
			e.log.ErrorContext(ctx, "event handler panicked", "type", ev.Type, "student_id", ev.Student, "panic", r)
		}
	}()
	h(ctx, ev)
}
