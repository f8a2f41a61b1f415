package marionette

import "sync"

// DropPolicy selects what happens when a subscriber's buffer is full at
// publish time. Publication never blocks the worker either way.
type DropPolicy uint8

const (
	// DropOldest evicts the oldest buffered update to make room for the
	// new one, so a slow subscriber always converges on the latest values.
	DropOldest DropPolicy = iota

	// DropNewest discards the incoming update, preserving the buffered
	// history a slow subscriber has not consumed yet.
	DropNewest
)

// PropertyUpdate is one observed property change. Seq is strictly
// increasing per (Target, Property) key; there is no ordering relationship
// between different keys.
type PropertyUpdate struct {
	Target   Handle
	Property string
	Value    PropertyValue
	Seq      uint64
}

// busKey identifies one subscription stream.
type busKey struct {
	target   Handle
	property string
}

// Subscription is one subscriber's view of a (handle, property) stream.
// Receive from C; call Close to unsubscribe. C is closed on unsubscribe
// and on queue teardown.
type Subscription struct {
	// C delivers updates in publish order. Its buffer is bounded; see
	// DropPolicy for full-buffer behavior.
	C <-chan PropertyUpdate

	ch  chan PropertyUpdate
	key busKey
	bus *bus
}

// Close unsubscribes and closes C. Safe to call once; updates already
// buffered remain readable until C drains.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s)
}

// Dropped reports how many updates this subscriber lost to its drop
// policy.
func (s *Subscription) Dropped() uint64 {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	return s.bus.dropped[s]
}

// bus is the property subscription fan-out. Callers subscribe and
// unsubscribe from any goroutine; only the worker publishes.
type bus struct {
	mu      sync.Mutex
	subs    map[busKey][]*Subscription
	seq     map[busKey]uint64
	dropped map[*Subscription]uint64
	buffer  int
	policy  DropPolicy
	closed  bool
}

func newBus(buffer int, policy DropPolicy) *bus {
	return &bus{
		subs:    make(map[busKey][]*Subscription),
		seq:     make(map[busKey]uint64),
		dropped: make(map[*Subscription]uint64),
		buffer:  buffer,
		policy:  policy,
	}
}

func (b *bus) subscribe(target Handle, property string) *Subscription {
	s := &Subscription{
		ch:  make(chan PropertyUpdate, b.buffer),
		key: busKey{target: target, property: property},
		bus: b,
	}
	s.C = s.ch

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.ch)
		return s
	}
	b.subs[s.key] = append(b.subs[s.key], s)
	return s
}

func (b *bus) unsubscribe(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	subs := b.subs[s.key]
	for i, other := range subs {
		if other == s {
			b.subs[s.key] = append(subs[:i], subs[i+1:]...)
			delete(b.dropped, s)
			close(s.ch)
			return
		}
	}
}

// publish fans one update out to every subscriber of (target, property).
// Worker-only. A full subscriber buffer is resolved by the drop policy;
// publication never blocks.
func (b *bus) publish(target Handle, property string, value PropertyValue) {
	key := busKey{target: target, property: property}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	subs := b.subs[key]
	if len(subs) == 0 {
		return
	}

	b.seq[key]++
	update := PropertyUpdate{Target: target, Property: property, Value: value, Seq: b.seq[key]}

	for _, s := range subs {
		select {
		case s.ch <- update:
			continue
		default:
		}

		switch b.policy {
		case DropOldest:
			select {
			case <-s.ch:
				b.dropped[s]++
			default:
			}
			select {
			case s.ch <- update:
			default:
				b.dropped[s]++
			}
		case DropNewest:
			b.dropped[s]++
		}
	}
}

// closeAll closes every subscription channel. Called once during teardown,
// after the worker has stopped publishing.
func (b *bus) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for key, subs := range b.subs {
		for _, s := range subs {
			close(s.ch)
		}
		delete(b.subs, key)
	}
}
