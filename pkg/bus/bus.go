// Package bus delivers converted events to the rest of the host system.
package bus

import (
	"context"
	"sync"
	"time"

	"github.com/erisforge/onebridge/pkg/logger"
	"github.com/erisforge/onebridge/pkg/onebot"
)

// BusEvent wraps one emitted event with its origin for observers.
type BusEvent struct {
	Account string        `json:"account"`
	Event   *onebot.Event `json:"event"`
	Time    time.Time     `json:"time"`
}

// EventBus fans events out to one consumer plus any number of observers.
// Emit never blocks on a slow observer.
type EventBus struct {
	events    chan BusEvent
	observers []chan BusEvent
	obsMu     sync.RWMutex
	closeOnce sync.Once
}

func NewEventBus() *EventBus {
	return &EventBus{
		events:    make(chan BusEvent, 100),
		observers: make([]chan BusEvent, 0),
	}
}

// Emit queues one event for the host consumer and notifies observers. It
// never blocks: with no consumer draining the bus, the incoming event is
// dropped with a warning.
func (b *EventBus) Emit(account string, evt *onebot.Event) {
	event := BusEvent{Account: account, Event: evt, Time: time.Now()}
	select {
	case b.events <- event:
	default:
		logger.WarnCF("bus", "Event buffer full, dropping event", map[string]interface{}{
			"account": account,
			"type":    evt.Type,
		})
	}
	b.notifyObservers(event)
}

// Consume blocks until an event is available or ctx is done.
func (b *EventBus) Consume(ctx context.Context) (BusEvent, bool) {
	select {
	case event := <-b.events:
		return event, true
	case <-ctx.Done():
		return BusEvent{}, false
	}
}

// Subscribe returns a channel that receives copies of all bus events.
func (b *EventBus) Subscribe() chan BusEvent {
	ch := make(chan BusEvent, 50)
	b.obsMu.Lock()
	b.observers = append(b.observers, ch)
	b.obsMu.Unlock()
	return ch
}

// Unsubscribe removes an observer channel.
func (b *EventBus) Unsubscribe(ch chan BusEvent) {
	b.obsMu.Lock()
	defer b.obsMu.Unlock()
	for i, obs := range b.observers {
		if obs == ch {
			b.observers = append(b.observers[:i], b.observers[i+1:]...)
			close(ch)
			return
		}
	}
}

func (b *EventBus) notifyObservers(event BusEvent) {
	b.obsMu.RLock()
	defer b.obsMu.RUnlock()
	for _, obs := range b.observers {
		select {
		case obs <- event:
		default:
			// Non-blocking: skip slow observers
		}
	}
}

func (b *EventBus) Close() {
	b.closeOnce.Do(func() {
		close(b.events)
		logger.DebugC("bus", "Event bus closed")
	})
}
