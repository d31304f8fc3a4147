package eventstore

import (
	"guardian-amm/internal/domain"
)

// subscriberBufferSize bounds each subscriber's outgoing queue. A
// subscriber that cannot keep up is disconnected rather than allowed
// to block Append — per spec.md §9's WebSocket backpressure design
// note, it resyncs via ByIDRange on reconnect.
const subscriberBufferSize = 256

// subscriber is a single bus listener. Events arrives via deliver;
// Closed is set once the subscriber has been dropped for backpressure
// or explicit Unsubscribe.
type subscriber struct {
	id     int
	events chan domain.Event
	closed chan struct{}
}

func (sub *subscriber) deliver(e domain.Event) {
	select {
	case sub.events <- e:
	default:
		// buffer full: this subscriber is too slow. Drop it rather than
		// block the append path or every other subscriber.
		sub.drop()
	}
}

func (sub *subscriber) drop() {
	select {
	case <-sub.closed:
		// already closed
	default:
		close(sub.closed)
	}
}

// Subscription is the handle a caller (typically an HTTP/WebSocket
// handler) uses to consume the live event stream.
type Subscription struct {
	store *Store
	sub   *subscriber
}

// Events returns the channel of newly appended events. The channel is
// never closed by normal operation; Closed() reports disconnection.
func (s *Subscription) Events() <-chan domain.Event { return s.sub.events }

// Closed reports whether this subscription has been dropped for
// backpressure. Callers should stop reading Events and, if they want
// to keep serving the client, resync via ByIDRange and re-Subscribe.
func (s *Subscription) Closed() <-chan struct{} { return s.sub.closed }

// Unsubscribe removes this subscription from the bus. Safe to call
// more than once.
func (s *Subscription) Unsubscribe() {
	s.store.mu.Lock()
	delete(s.store.subscribers, s.sub.id)
	s.store.mu.Unlock()
	s.sub.drop()
}

// Subscribe registers a new live subscriber and returns its handle.
func (s *Store) Subscribe() *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSubID++
	sub := &subscriber{
		id:     s.nextSubID,
		events: make(chan domain.Event, subscriberBufferSize),
		closed: make(chan struct{}),
	}
	s.subscribers[sub.id] = sub
	return &Subscription{store: s, sub: sub}
}
