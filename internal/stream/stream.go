// Package stream bridges one notification subscription to one external
// consumer over a chunked HTTP response. Each delivered event becomes
// one chunk; between chunks the handler suspends, racing the next event
// against the idle timeout and the consumer disconnecting.
package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/roach88/relic/internal/audit"
	"github.com/roach88/relic/internal/bridge"
)

// DefaultIdleTimeout ends a stream that has seen no events for this
// long.
const DefaultIdleTimeout = 100 * time.Second

// DefaultGreeting is the first line written on connect.
const DefaultGreeting = "hello, listening for new db events"

// Config tunes the adapter.
type Config struct {
	// IdleTimeout ends the stream after this long without an event.
	// Zero means DefaultIdleTimeout.
	IdleTimeout time.Duration

	// Greeting is the first line written to the consumer. Empty means
	// DefaultGreeting.
	Greeting string

	// OnAbort runs exactly once per connection when the consumer
	// disconnects. It does not run on idle timeout (that is a clean
	// termination, not an abort).
	OnAbort func()

	// Logf receives connection lifecycle diagnostics. Nil disables.
	Logf func(format string, args ...any)
}

// Adapter serves GET /stream. One request maps to one subscription;
// the subscription is released when the handler returns, whatever the
// reason.
type Adapter struct {
	bridge *bridge.Bridge
	cfg    Config
}

// New builds the streaming adapter over a bridge.
func New(b *bridge.Bridge, cfg Config) *Adapter {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Greeting == "" {
		cfg.Greeting = DefaultGreeting
	}
	return &Adapter{bridge: b, cfg: cfg}
}

func (a *Adapter) logf(format string, args ...any) {
	if a.cfg.Logf != nil {
		a.cfg.Logf(format, args...)
	}
}

// ServeHTTP implements the streaming endpoint. The channel defaults to
// audit_changes and can be overridden with ?channel=.
func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	channel := r.URL.Query().Get("channel")
	if channel == "" {
		channel = audit.ChannelAuditChanges
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub, err := a.bridge.Subscribe(channel, bridge.Options{
		OnListen: func() { a.logf("stream: listening on %s", channel) },
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer sub.Close()

	var abortOnce sync.Once
	abort := func() {
		abortOnce.Do(func() {
			a.logf("stream: consumer on %s disconnected", channel)
			if a.cfg.OnAbort != nil {
				a.cfg.OnAbort()
			}
		})
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	fmt.Fprintln(w, a.cfg.Greeting)
	flusher.Flush()

	idle := time.NewTimer(a.cfg.IdleTimeout)
	defer idle.Stop()

	events := sub.Events()
	errs := sub.Errs()

	for {
		select {
		case <-r.Context().Done():
			abort()
			return

		case <-idle.C:
			fmt.Fprintln(w, "idle timeout, closing stream")
			flusher.Flush()
			return

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			a.logf("stream: dropped invalid event on %s: %v", channel, err)

		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				abort()
				return
			}
			flusher.Flush()

			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(a.cfg.IdleTimeout)
		}
	}
}

// writeEvent renders one event as a labelled, pretty-printed chunk.
func writeEvent(w http.ResponseWriter, ev bridge.Event) error {
	var (
		label   string
		payload any
	)
	switch {
	case ev.Post != nil:
		label, payload = "new post:", ev.Post
	case ev.Comment != nil:
		label, payload = "new comment:", ev.Comment
	case ev.Change != nil:
		label, payload = "audit change:", ev.Change
	default:
		return nil
	}

	pretty, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, label); err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(pretty))
	return err
}
