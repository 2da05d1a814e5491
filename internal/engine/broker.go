package engine

import (
	"sync"

	"github.com/seantiz/relay/internal/model"
)

// subscriberBufferSize is the channel buffer for each event subscriber.
// Events are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 64

// Broker fans out lifecycle events to live subscribers of one execution.
// It is safe for concurrent use.
//
// Closed topics are kept as markers until the execution is evicted so that a
// subscriber arriving after the execution finished receives a closed channel
// instead of blocking forever.
type Broker struct {
	mu     sync.Mutex
	topics map[string]*topic
}

type topic struct {
	subs   map[int]chan model.Event
	nextID int
	closed bool
}

// NewBroker creates an empty event broker.
func NewBroker() *Broker {
	return &Broker{
		topics: make(map[string]*topic),
	}
}

// Subscribe returns a channel that receives events for the given execution
// and an unsubscribe function. If the execution's stream is already closed
// the returned channel is closed.
func (b *Broker) Subscribe(executionID string) (<-chan model.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[executionID]
	if !ok {
		t = &topic{subs: make(map[int]chan model.Event)}
		b.topics[executionID] = t
	}

	ch := make(chan model.Event, subscriberBufferSize)
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(c)
		}
	}
}

// Publish sends an event to every subscriber of its execution. Subscribers
// with full buffers miss the event.
func (b *Broker) Publish(ev model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[ev.ExecutionID]
	if !ok || t.closed {
		return
	}

	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close ends the stream for an execution. Subscriber channels are closed and
// later Subscribe calls get a closed channel.
func (b *Broker) Close(executionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[executionID]
	if !ok {
		b.topics[executionID] = &topic{subs: make(map[int]chan model.Event), closed: true}
		return
	}

	t.closed = true
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
}

// Remove drops the topic for an evicted execution.
func (b *Broker) Remove(executionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t, ok := b.topics[executionID]; ok {
		for id, ch := range t.subs {
			close(ch)
			delete(t.subs, id)
		}
		delete(b.topics, executionID)
	}
}
