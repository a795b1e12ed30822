package guard

import "sync"

// Event names published by the watchdog.
const (
	EventMemoryUpdate     = "memory_update"
	EventThresholdRaised  = "threshold_triggered"
	EventThresholdCleared = "threshold_cleared"
	EventAlertCreated     = "alert_created"
	EventCleanupCompleted = "emergency_cleanup_completed"
	EventModelUnloaded    = "model_unloaded"
)

// Event represents a watchdog lifecycle event.
// Minimal and stable: name + category and optional fields via key/values.
type Event struct {
	Name     string         `json:"name"`
	Category string         `json:"category,omitempty"`
	ModelID  string         `json:"model_id,omitempty"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// EventPublisher receives events from the watchdog. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// multiPublisher fans out to several publishers.
type multiPublisher []EventPublisher

func (m multiPublisher) Publish(e Event) {
	for _, p := range m {
		p.Publish(e)
	}
}

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// stops draining loses events rather than blocking the tick loop.
const subscriberBuffer = 64

// Bus fans events out to dynamic subscribers (the GUI event stream).
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	next   int
	closed bool
}

// NewBus returns an empty subscription bus.
func NewBus() *Bus { return &Bus{subs: make(map[int]chan Event)} }

// Subscribe registers a new listener. The returned cancel func releases it;
// calling cancel more than once is safe.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
			b.mu.Unlock()
		})
	}
	return ch, cancel
}

// Publish delivers e to every subscriber without blocking. Full subscriber
// buffers drop the event.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Close releases all subscribers. Publish after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
