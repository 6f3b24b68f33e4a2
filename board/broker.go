package board

import "sync"

// Subscription receives values published by a broker until Close is called.
type Subscription[T any] struct {
	C      <-chan T
	ch     chan T
	broker *broker[T]
}

// Close detaches the subscription. Pending values are dropped.
func (s *Subscription[T]) Close() {
	s.broker.unsubscribe(s.ch)
}

// broker fans values out to subscribers without ever blocking the publisher.
// A subscriber whose buffer is full misses the value.
type broker[T any] struct {
	mu   sync.Mutex
	subs map[chan T]struct{}
}

func newBroker[T any]() *broker[T] {
	return &broker[T]{subs: make(map[chan T]struct{})}
}

func (b *broker[T]) subscribe(buffer int) *Subscription[T] {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan T, buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return &Subscription[T]{C: ch, ch: ch, broker: b}
}

func (b *broker[T]) unsubscribe(ch chan T) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

func (b *broker[T]) publish(v T) {
	b.mu.Lock()
	for ch := range b.subs {
		select {
		case ch <- v:
		default:
		}
	}
	b.mu.Unlock()
}
