package bridge

import "sync"

// State is the lifecycle position of a subscription.
type State int

const (
	// StateIdle is the zero value; a subscription returned by Subscribe
	// has already moved past it.
	StateIdle State = iota
	// StateListening means the subscription is registered and waiting
	// for its first event.
	StateListening
	// StateDelivering means at least one event has been delivered.
	StateDelivering
	// StateClosed means teardown happened; no further events or errors
	// are delivered.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateDelivering:
		return "delivering"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Subscription is one consumer's handle on a channel. Events and errors
// are consumed from the Events and Errs channels; Close releases the
// subscription. The event buffer holds a single in-flight payload:
// when the consumer is not keeping up, newer events are dropped rather
// than queued without bound.
type Subscription struct {
	bridge  *Bridge
	channel string
	id      int64

	mu     sync.Mutex
	state  State
	events chan Event
	errs   chan error
	done   chan struct{}
}

// Channel returns the channel name this subscription listens on.
func (s *Subscription) Channel() string {
	return s.channel
}

// Events is the consumable event sequence. It is closed on teardown.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Errs surfaces per-event validation failures. Errors here are local to
// the offending event; the subscription keeps delivering.
func (s *Subscription) Errs() <-chan error {
	return s.errs
}

// Done is closed when the subscription is torn down. Useful for racing
// teardown against other signals.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// State reports the current lifecycle state.
func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close unsubscribes and tears the handle down. Safe to call more than
// once; no callbacks or deliveries happen after it returns.
func (s *Subscription) Close() {
	s.bridge.remove(s)
	s.shutdown()
}

// deliver hands an event to the consumer without blocking. Returns
// false when the event was dropped (closed subscription or full
// buffer).
func (s *Subscription) deliver(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return false
	}
	select {
	case s.events <- ev:
		s.state = StateDelivering
		return true
	default:
		// Slow consumer: one in-flight payload max, drop the rest.
		return false
	}
}

// fail surfaces a validation error without blocking.
func (s *Subscription) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return
	}
	select {
	case s.errs <- err:
	default:
	}
}

// shutdown closes the handle's channels exactly once.
func (s *Subscription) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return
	}
	s.state = StateClosed
	close(s.done)
	close(s.events)
	close(s.errs)
}
