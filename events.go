package docdb

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

type EventType int

const (
	EventInsert EventType = iota + 1
	EventUpdate
	EventRemove
	EventIndexStart
	EventIndexEnd
)

func (v EventType) String() string {
	switch v {
	case EventInsert:
		return "insert"
	case EventUpdate:
		return "update"
	case EventRemove:
		return "remove"
	case EventIndexStart:
		return "index-start"
	case EventIndexEnd:
		return "index-end"
	default:
		return fmt.Sprintf("invalid event %d", int(v))
	}
}

// Event describes a change to a collection. Documents holds copies of the
// affected documents for data events; Fields names the index for index
// events.
type Event struct {
	Type       EventType
	Collection string
	Documents  []*Document
	Fields     []string
}

type Listener func(ev Event)

type SubscriptionID uuid.UUID

func (id SubscriptionID) String() string {
	return uuid.UUID(id).String()
}

// eventBus delivers events to each subscriber on its own goroutine, in
// order. Publishing never blocks on a slow listener.
type eventBus struct {
	mu     sync.Mutex
	subs   map[SubscriptionID]*subscriber
	logger *slog.Logger
	closed bool
}

type subscriber struct {
	listener Listener
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []Event
	stopped  bool
}

func newEventBus(logger *slog.Logger) *eventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &eventBus{subs: make(map[SubscriptionID]*subscriber), logger: logger}
}

func (bus *eventBus) subscribe(l Listener) SubscriptionID {
	id := SubscriptionID(uuid.New())
	sub := &subscriber{listener: l}
	sub.cond = sync.NewCond(&sub.mu)

	bus.mu.Lock()
	if bus.closed {
		bus.mu.Unlock()
		return id
	}
	bus.subs[id] = sub
	bus.mu.Unlock()

	go sub.run(bus.logger)
	return id
}

func (bus *eventBus) unsubscribe(id SubscriptionID) {
	bus.mu.Lock()
	sub := bus.subs[id]
	delete(bus.subs, id)
	bus.mu.Unlock()
	if sub != nil {
		sub.stop()
	}
}

func (bus *eventBus) hasSubscribers() bool {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	return len(bus.subs) > 0
}

func (bus *eventBus) publish(ev Event) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	for _, sub := range bus.subs {
		sub.push(ev)
	}
}

// close stops every subscriber once its queued events are delivered.
func (bus *eventBus) close() {
	bus.mu.Lock()
	subs := bus.subs
	bus.subs = make(map[SubscriptionID]*subscriber)
	bus.closed = true
	bus.mu.Unlock()
	for _, sub := range subs {
		sub.stop()
	}
}

func (sub *subscriber) push(ev Event) {
	sub.mu.Lock()
	if !sub.stopped {
		sub.queue = append(sub.queue, ev)
		sub.cond.Signal()
	}
	sub.mu.Unlock()
}

func (sub *subscriber) stop() {
	sub.mu.Lock()
	sub.stopped = true
	sub.cond.Signal()
	sub.mu.Unlock()
}

func (sub *subscriber) run(logger *slog.Logger) {
	for {
		sub.mu.Lock()
		for len(sub.queue) == 0 && !sub.stopped {
			sub.cond.Wait()
		}
		if len(sub.queue) == 0 {
			sub.mu.Unlock()
			return
		}
		ev := sub.queue[0]
		sub.queue[0] = Event{}
		sub.queue = sub.queue[1:]
		sub.mu.Unlock()

		sub.deliver(ev, logger)
	}
}

func (sub *subscriber) deliver(ev Event, logger *slog.Logger) {
	defer func() {
		if e := recover(); e != nil {
			logger.Error("docdb: event listener panicked", "collection", ev.Collection, "event", ev.Type.String(), "panic", e)
		}
	}()
	sub.listener(ev)
}
