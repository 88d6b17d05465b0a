// Package page models the browser surface the tracker runs against: the
// document, event listeners, the history API and the window.
package page

import (
	"sync"

	"golang.org/x/net/html"
)

// EventType names a window-level event.
type EventType string

const (
	EventClick      EventType = "click"
	EventMouseMove  EventType = "mousemove"
	EventKeyPress   EventType = "keypress"
	EventScroll     EventType = "scroll"
	EventTouchStart EventType = "touchstart"
	EventFunnel     EventType = "funnel-event"
	EventPageHide   EventType = "pagehide"
)

// Event is dispatched to listeners of its Type.
type Event struct {
	Type   EventType
	Target *html.Node
	X, Y   int
	Detail map[string]any
}

// Listener handles one event.
type Listener func(Event)

// EventTarget holds window-level listeners.
type EventTarget struct {
	mu        sync.Mutex
	next      uint64
	listeners map[EventType]map[uint64]Listener
	order     map[EventType][]uint64
}

func NewEventTarget() *EventTarget {
	return &EventTarget{
		listeners: make(map[EventType]map[uint64]Listener),
		order:     make(map[EventType][]uint64),
	}
}

// AddListener registers fn and returns a func that removes it again.
func (t *EventTarget) AddListener(eventType EventType, fn Listener) (remove func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.next++
	id := t.next

	if t.listeners[eventType] == nil {
		t.listeners[eventType] = make(map[uint64]Listener)
	}

	t.listeners[eventType][id] = fn
	t.order[eventType] = append(t.order[eventType], id)

	var once sync.Once

	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()

			delete(t.listeners[eventType], id)

			ids := t.order[eventType]
			for i, v := range ids {
				if v == id {
					t.order[eventType] = append(ids[:i:i], ids[i+1:]...)

					break
				}
			}
		})
	}
}

// Dispatch calls every listener of the event type in registration order.
// Listeners run on the caller's goroutine.
func (t *EventTarget) Dispatch(event Event) {
	t.mu.Lock()

	ids := t.order[event.Type]
	listeners := make([]Listener, 0, len(ids))

	for _, id := range ids {
		listeners = append(listeners, t.listeners[event.Type][id])
	}

	t.mu.Unlock()

	for _, fn := range listeners {
		fn(event)
	}
}

// ListenerCount returns the number of listeners for the event type.
func (t *EventTarget) ListenerCount(eventType EventType) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.listeners[eventType])
}

// TotalListeners returns the number of listeners across all event types.
func (t *EventTarget) TotalListeners() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	total := 0
	for _, l := range t.listeners {
		total += len(l)
	}

	return total
}
