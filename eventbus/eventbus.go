// Package eventbus layers a live fan-out channel over the durable event log.
//
// Emission is durable-first: the row is appended and its id obtained before
// anything is broadcast, so a subscriber can always resume from the last id
// it saw. Subscribers are admitted up to a fixed cap and receive events on a
// bounded buffer; a slow consumer loses events rather than stalling emitters.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chainweave/forge/storage"
)

// Type tags an event. The set is closed; Emit rejects anything else.
type Type string

// Event types.
const (
	TypeExecution             Type = "execution"
	TypePublish               Type = "publish"
	TypeDeploy                Type = "deploy"
	TypeDiscovery             Type = "discovery"
	TypePipelineStarted       Type = "pipeline_started"
	TypePipelineStepStarted   Type = "pipeline_step_started"
	TypePipelineStepCompleted Type = "pipeline_step_completed"
	TypePipelineStepFailed    Type = "pipeline_step_failed"
	TypePipelineCompleted     Type = "pipeline_completed"
	TypePipelineFailed        Type = "pipeline_failed"

	// TypeSystem is the greeting frame sent to a fresh subscription. It is
	// never persisted and carries id 0.
	TypeSystem Type = "system"
)

// Valid reports whether t may be emitted onto the bus.
func (t Type) Valid() bool {
	switch t {
	case TypeExecution, TypePublish, TypeDeploy, TypeDiscovery,
		TypePipelineStarted, TypePipelineStepStarted,
		TypePipelineStepCompleted, TypePipelineStepFailed,
		TypePipelineCompleted, TypePipelineFailed:
		return true
	}
	return false
}

// Capacity and buffer bounds.
const (
	// MaxSubscribers caps concurrent SSE clients.
	MaxSubscribers = 50

	// ReplayLimit caps how many rows a reconnecting client can catch up on.
	// A backlog beyond the cap is silently skipped.
	ReplayLimit = 100

	// liveBuffer is the per-subscriber buffer for live events beyond the
	// replay allowance.
	liveBuffer = 64
)

// ErrCapacity is returned by Subscribe when MaxSubscribers are connected.
var ErrCapacity = errors.New("eventbus: subscriber capacity reached")

// Envelope is one delivered event. ID is the durable row id, or 0 for the
// system greeting.
type Envelope struct {
	ID   int64           `json:"id"`
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Store is the durable side of the bus, satisfied by *storage.Store.
type Store interface {
	AppendEvent(ctx context.Context, eventType string, data []byte) (int64, error)
	EventsAfter(ctx context.Context, after int64, limit int) ([]storage.Event, error)
}

type subscriber struct {
	id int64
	ch chan Envelope
}

// Bus is the process-wide event fabric.
type Bus struct {
	store  Store
	logger *slog.Logger

	// emitMu serializes append+broadcast so every subscriber observes row
	// ids in ascending order, and spans Subscribe's replay+attach so the
	// replay prefix is gapless against the live stream.
	emitMu sync.Mutex

	mu     sync.RWMutex
	subs   map[int64]*subscriber
	nextID int64
}

// New creates a bus over the given durable store.
func New(store Store, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		store:  store,
		logger: logger.With("component", "eventbus"),
		subs:   make(map[int64]*subscriber),
	}
}

// Emit appends the event durably and broadcasts it to live subscribers. The
// returned id is the durable row id. If the append fails nothing is
// broadcast and the error is returned; a full subscriber buffer never fails
// the emit.
func (b *Bus) Emit(ctx context.Context, typ Type, data any) (int64, error) {
	return b.emit(ctx, typ, data, false)
}

// EmitSilent appends the event durably without broadcasting.
func (b *Bus) EmitSilent(ctx context.Context, typ Type, data any) (int64, error) {
	return b.emit(ctx, typ, data, true)
}

func (b *Bus) emit(ctx context.Context, typ Type, data any, silent bool) (int64, error) {
	if !typ.Valid() {
		return 0, fmt.Errorf("eventbus: unknown event type %q", typ)
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return 0, fmt.Errorf("eventbus: encode event data: %w", err)
	}

	b.emitMu.Lock()
	defer b.emitMu.Unlock()

	id, err := b.store.AppendEvent(ctx, string(typ), payload)
	if err != nil {
		return 0, fmt.Errorf("eventbus: append event: %w", err)
	}
	if silent {
		return id, nil
	}

	b.broadcast(Envelope{ID: id, Type: typ, Data: payload})
	return id, nil
}

func (b *Bus) broadcast(env Envelope) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		select {
		case sub.ch <- env:
		default:
			b.logger.Warn("subscriber buffer full, dropping event",
				"subscriber", sub.id,
				"event_id", env.ID,
				"type", env.Type)
		}
	}
}

// Subscription is a live attachment to the bus. Read from C until it is
// closed; call Close exactly once when done (it is idempotent).
type Subscription struct {
	// C delivers replayed events, then the system greeting, then live
	// events in row-id order.
	C <-chan Envelope

	id   int64
	bus  *Bus
	ch   chan Envelope
	once sync.Once
}

// Close detaches the subscription and closes C.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		s.bus.mu.Unlock()
		close(s.ch)
	})
}

// Subscribe attaches a new subscriber. When lastEventID is positive, rows
// with id > lastEventID are replayed first, capped at ReplayLimit, followed
// by a system greeting and then the live stream. Returns ErrCapacity when
// MaxSubscribers are already attached.
func (b *Bus) Subscribe(ctx context.Context, lastEventID int64) (*Subscription, error) {
	b.emitMu.Lock()
	defer b.emitMu.Unlock()

	b.mu.Lock()
	if len(b.subs) >= MaxSubscribers {
		b.mu.Unlock()
		return nil, ErrCapacity
	}
	b.nextID++
	id := b.nextID
	b.mu.Unlock()

	var replay []storage.Event
	if lastEventID > 0 {
		events, err := b.store.EventsAfter(ctx, lastEventID, ReplayLimit)
		if err != nil {
			return nil, fmt.Errorf("eventbus: replay after %d: %w", lastEventID, err)
		}
		replay = events
	}

	// The buffer holds the full replay plus the greeting, so the pushes
	// below can never block.
	ch := make(chan Envelope, ReplayLimit+liveBuffer+1)
	sub := &subscriber{id: id, ch: ch}

	for _, e := range replay {
		ch <- Envelope{ID: e.ID, Type: Type(e.Type), Data: json.RawMessage(e.Data)}
	}

	greeting, _ := json.Marshal(map[string]any{
		"message":  "connected",
		"replayed": len(replay),
	})
	ch <- Envelope{ID: 0, Type: TypeSystem, Data: greeting}

	b.mu.Lock()
	b.subs[id] = sub
	b.mu.Unlock()

	b.logger.Debug("subscriber attached", "subscriber", id, "replayed", len(replay))

	return &Subscription{C: ch, id: id, bus: b, ch: ch}, nil
}

// Subscribers reports the number of attached subscribers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
