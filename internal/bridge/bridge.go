// Package bridge is the typed publish/subscribe layer between the
// capture path and live consumers. It owns no persistent state: events
// are validated, fanned out to the subscribers registered at emission
// time, and discarded. A subscriber that arrives late never sees
// earlier events, and a subscriber that cannot keep up loses events
// rather than queueing them without bound - delivery is at-least-once,
// best-effort.
package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/relic/internal/audit"
)

var (
	// ErrUnknownChannel means the channel name is not one of the fixed
	// notification channels.
	ErrUnknownChannel = errors.New("unknown notification channel")
	// ErrValidationFailed means an event's payload did not satisfy the
	// channel's contract. The event is dropped; the subscription
	// survives.
	ErrValidationFailed = errors.New("event payload failed channel contract")
	// ErrSubscriptionClosed means a subscribe or delivery was attempted
	// after teardown.
	ErrSubscriptionClosed = errors.New("subscription closed")
)

// Event is one validated, typed notification. Exactly one of the
// payload fields is set, determined by the channel.
type Event struct {
	Channel string

	Post    *audit.Post
	Comment *audit.Comment
	Change  *audit.Entry
}

// Options configures a subscription.
type Options struct {
	// OnListen, if set, is invoked exactly once when the subscription
	// is registered and active, before any event is delivered.
	OnListen func()
}

// Bridge routes raw change events to subscribers. Registry mutations
// happen under an exclusive lock; event delivery never holds it.
type Bridge struct {
	registry  *audit.Registry
	contracts *audit.Contracts

	mu     sync.Mutex
	subs   map[string][]*Subscription
	nextID int64
	closed bool
}

// New creates a bridge over the fixed channel set.
func New(registry *audit.Registry, contracts *audit.Contracts) *Bridge {
	return &Bridge{
		registry:  registry,
		contracts: contracts,
		subs:      make(map[string][]*Subscription),
	}
}

// Subscribe registers a consumer on a channel and returns its handle.
// Multiple subscribers may listen to the same channel; each receives
// events independently.
func (b *Bridge) Subscribe(channel string, opts Options) (*Subscription, error) {
	if !b.validChannel(channel) {
		return nil, fmt.Errorf("subscribe: %w: %q", ErrUnknownChannel, channel)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("subscribe: %w", ErrSubscriptionClosed)
	}
	b.nextID++
	sub := &Subscription{
		bridge:  b,
		channel: channel,
		id:      b.nextID,
		state:   StateListening,
		events:  make(chan Event, 1),
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
	}
	b.subs[channel] = append(b.subs[channel], sub)
	b.mu.Unlock()

	// The subscription is active from here; confirm outside the lock.
	if opts.OnListen != nil {
		opts.OnListen()
	}

	return sub, nil
}

// Publish validates a raw snake_case keyed event against the channel's
// contract and fans the typed payload out to current subscribers. A
// validation failure is surfaced on each subscriber's error path and
// returned; it never tears the subscriptions down.
func (b *Bridge) Publish(channel string, raw map[string]any) error {
	if !b.validChannel(channel) {
		return fmt.Errorf("publish: %w: %q", ErrUnknownChannel, channel)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("publish: %w", ErrSubscriptionClosed)
	}
	targets := make([]*Subscription, len(b.subs[channel]))
	copy(targets, b.subs[channel])
	b.mu.Unlock()

	ev, err := b.decode(channel, raw)
	if err != nil {
		verr := fmt.Errorf("%w: channel %s: %v", ErrValidationFailed, channel, err)
		for _, sub := range targets {
			sub.fail(verr)
		}
		return verr
	}

	for _, sub := range targets {
		sub.deliver(ev)
	}
	return nil
}

// Close tears down every subscription. Further Subscribe and Publish
// calls fail with ErrSubscriptionClosed.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var all []*Subscription
	for _, subs := range b.subs {
		all = append(all, subs...)
	}
	b.subs = make(map[string][]*Subscription)
	b.mu.Unlock()

	for _, sub := range all {
		sub.shutdown()
	}
}

func (b *Bridge) validChannel(channel string) bool {
	for _, c := range b.registry.Channels() {
		if c == channel {
			return true
		}
	}
	return false
}

// decode turns a raw snake_case event into a typed one: key
// translation, contract validation, then exhaustive per-channel
// decoding.
func (b *Bridge) decode(channel string, raw map[string]any) (Event, error) {
	camel := audit.CamelizeKeys(raw)

	if t, ok := b.registry.TableForChannel(channel); ok {
		if err := b.contracts.ValidateRow(t.Name, camel); err != nil {
			return Event{}, err
		}
		typed, err := audit.DecodeRow(t.Name, camel)
		if err != nil {
			return Event{}, err
		}
		ev := Event{Channel: channel}
		switch row := typed.(type) {
		case audit.Post:
			ev.Post = &row
		case audit.Comment:
			ev.Comment = &row
		default:
			return Event{}, fmt.Errorf("channel %s has no typed payload for table %s", channel, t.Name)
		}
		return ev, nil
	}

	// The remaining channel carries full version entries.
	if err := b.contracts.ValidateWireEntry(camel); err != nil {
		return Event{}, err
	}
	entry, err := decodeEntry(camel)
	if err != nil {
		return Event{}, err
	}
	if err := b.contracts.ValidateEntry(entry); err != nil {
		return Event{}, err
	}
	return Event{Channel: channel, Change: &entry}, nil
}

func decodeEntry(camel map[string]any) (audit.Entry, error) {
	data, err := json.Marshal(camel)
	if err != nil {
		return audit.Entry{}, fmt.Errorf("decode entry: %w", err)
	}
	var e audit.Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return audit.Entry{}, fmt.Errorf("decode entry: %w", err)
	}
	// The round trip decodes snapshot integers as float64; restore them
	// so contract validation sees the types the capture side wrote.
	e.Record = normalizeRow(e.Record)
	e.OldRecord = normalizeRow(e.OldRecord)
	return e, nil
}

func normalizeRow(row map[string]any) map[string]any {
	for k, v := range row {
		switch val := v.(type) {
		case float64:
			if val == float64(int64(val)) {
				row[k] = int64(val)
			}
		case map[string]any:
			row[k] = normalizeRow(val)
		}
	}
	return row
}

// remove detaches a subscription from the registry.
func (b *Bridge) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[sub.channel]
	for i, s := range subs {
		if s.id == sub.id {
			b.subs[sub.channel] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}
