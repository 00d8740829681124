// Package eventbus implements the Event Bus / Audit Sink (spec.md
// §4.8): an append-only, in-process fan-out of domain events to a
// bounded set of subscribers, plus NATS publication so out-of-process
// consumers (the WebSocket gateway, external dashboards) can observe
// the same stream. A slow subscriber never back-pressures producers:
// its channel is bounded and full sends are dropped, with a counter
// kept per subscriber.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/cryptoctl/tradeengine/internal/domain"
)

// PersistStore appends one Event to the durable audit log.
// internal/audit provides the Postgres-backed implementation.
type PersistStore interface {
	AppendEvent(ctx context.Context, event domain.Event) error
}

// subscriber is one bounded fan-out destination.
type subscriber struct {
	name    string
	ch      chan domain.Event
	dropped atomic.Uint64
}

// Bus is the Event Bus. Publish is safe for concurrent use; subscriber
// delivery for a given subscriber preserves publish order, matching
// the ordering guarantee in spec.md §5.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	nc          *nats.Conn
	subjectPfx  string
	log         zerolog.Logger
}

// Config configures the optional NATS bridge. NATSURL may be empty to
// run purely in-process (useful for tests and for the backtest
// engine, which has no external consumers to reach).
type Config struct {
	NATSURL    string
	SubjectPfx string // default "events."
}

// New builds a Bus. If cfg.NATSURL is set, Publish also mirrors every
// event to NATS subject {SubjectPfx}{event.Type} so external
// dashboards and the /ws/events gateway can subscribe independently
// of in-process subscribers.
func New(cfg Config, log zerolog.Logger) (*Bus, error) {
	b := &Bus{
		subscribers: make(map[string]*subscriber),
		subjectPfx:  cfg.SubjectPfx,
		log:         log.With().Str("component", "eventbus").Logger(),
	}
	if b.subjectPfx == "" {
		b.subjectPfx = "events."
	}
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL,
			nats.Name("tradeengine-eventbus"),
			nats.ReconnectWait(2_000_000_000),
			nats.MaxReconnects(-1),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err != nil {
					b.log.Warn().Err(err).Msg("nats disconnected")
				}
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("eventbus: connect nats: %w", err)
		}
		b.nc = nc
	}
	return b, nil
}

// Subscribe registers a new bounded subscriber. bufferSize must be
// positive; once full, further Publish calls to this subscriber are
// dropped rather than blocking the producer.
func (b *Bus) Subscribe(name string, bufferSize int) <-chan domain.Event {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	sub := &subscriber{name: name, ch: make(chan domain.Event, bufferSize)}

	b.mu.Lock()
	b.subscribers[name] = sub
	b.mu.Unlock()

	return sub.ch
}

// Unsubscribe removes and closes a subscriber's channel.
func (b *Bus) Unsubscribe(name string) {
	b.mu.Lock()
	sub, ok := b.subscribers[name]
	delete(b.subscribers, name)
	b.mu.Unlock()
	if ok {
		close(sub.ch)
	}
}

// Publish fans the event out to every subscriber (non-blocking, drop
// on full buffer) and, if configured, mirrors it to NATS.
func (b *Bus) Publish(event domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		select {
		case sub.ch <- event:
		default:
			n := sub.dropped.Add(1)
			b.log.Warn().
				Str("subscriber", sub.name).
				Str("event_type", string(event.Type)).
				Uint64("total_dropped", n).
				Msg("subscriber buffer full, dropping event")
		}
	}

	if b.nc != nil {
		data, err := json.Marshal(event)
		if err != nil {
			b.log.Error().Err(err).Msg("failed to marshal event for nats bridge")
			return
		}
		subject := b.subjectPfx + string(event.Type)
		if err := b.nc.Publish(subject, data); err != nil {
			b.log.Error().Err(err).Str("subject", subject).Msg("failed to publish event to nats")
		}
	}
}

// DroppedCount returns the number of events dropped for a given
// subscriber since it was registered.
func (b *Bus) DroppedCount(name string) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if sub, ok := b.subscribers[name]; ok {
		return sub.dropped.Load()
	}
	return 0
}

// Close closes the NATS connection, if any. In-process subscriber
// channels are left to the caller to Unsubscribe.
func (b *Bus) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
}

// RunPersistSubscriber drains the named subscriber channel and writes
// every event to store with best-effort delivery, except for
// safety-relevant events (RISK_BLOCKED, BREAKER_TRIGGERED): a
// persistence failure there is fatal, since losing one silently would
// mean a risk decision left no audit trail (spec.md §4.8). Intended to
// be run in its own goroutine for the lifetime of the process.
func (b *Bus) RunPersistSubscriber(ctx context.Context, store PersistStore, bufferSize int) {
	events := b.Subscribe("audit-persist", bufferSize)
	defer b.Unsubscribe("audit-persist")

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := store.AppendEvent(ctx, event); err != nil {
				if event.Safety() {
					b.log.Fatal().Err(err).Str("event_type", string(event.Type)).
						Msg("failed to persist safety-relevant event, exiting")
				}
				b.log.Warn().Err(err).Str("event_type", string(event.Type)).
					Msg("failed to persist event, continuing best-effort")
			}
		}
	}
}
