package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/noah-isme/cart-engine/internal/obs"
)

// Listener handles a lifecycle event. Returning false from a cancellable phase stops
// the cart operation.
type Listener func(ctx context.Context, name string, payload any) bool

// Notifier observes events after listeners ran. It cannot cancel anything; errors
// are logged.
type Notifier interface {
	Notify(ctx context.Context, name string, payload []byte) error
}

// Bus dispatches cart lifecycle events synchronously to the listeners subscribed
// to their name.
type Bus struct {
	mu        sync.RWMutex
	listeners map[string][]Listener
	notifiers []Notifier
	logger    zerolog.Logger
	counter   metric.Int64Counter
}

// Config configures a Bus.
type Config struct {
	Logger    *zerolog.Logger
	Meter     metric.Meter
	Notifiers []Notifier
}

// NewBus constructs a Bus. Without a Meter the global otel provider is used.
func NewBus(cfg Config) *Bus {
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	meter := cfg.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter("github.com/noah-isme/cart-engine/internal/events")
	}
	counter, err := meter.Int64Counter("cart.events.dispatched",
		metric.WithDescription("Cart lifecycle events dispatched"),
	)
	if err != nil {
		logger.Warn().Err(err).Msg("events counter unavailable")
	}
	return &Bus{
		listeners: make(map[string][]Listener),
		notifiers: append([]Notifier(nil), cfg.Notifiers...),
		logger:    logger,
		counter:   counter,
	}
}

// Subscribe registers fn for name. Use Wildcard to receive every event.
func (b *Bus) Subscribe(name string, fn Listener) {
	name = strings.TrimSpace(name)
	if fn == nil || name == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listeners == nil {
		b.listeners = make(map[string][]Listener)
	}
	b.listeners[name] = append(b.listeners[name], fn)
}

// Dispatch calls the listeners of name, then the wildcard listeners, in
// subscription order. It stops at the first listener returning false and reports
// whether every listener agreed.
func (b *Bus) Dispatch(ctx context.Context, name string, payload any) bool {
	if b == nil {
		return true
	}
	b.mu.RLock()
	listeners := append(append([]Listener(nil), b.listeners[name]...), b.listeners[Wildcard]...)
	notifiers := b.notifiers
	b.mu.RUnlock()

	proceed := true
	for _, fn := range listeners {
		if !fn(ctx, name, payload) {
			proceed = false
			break
		}
	}

	result := "ok"
	if !proceed {
		result = "vetoed"
		b.logger.Info().Str("event", name).Msg("cart_event_vetoed")
	}
	obs.ObserveCartEvent(name, result)
	if b.counter != nil {
		b.counter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("event", name),
			attribute.String("result", result),
		))
	}

	if proceed && len(notifiers) > 0 {
		b.notify(ctx, name, payload, notifiers)
	}
	return proceed
}

func (b *Bus) notify(ctx context.Context, name string, payload any, notifiers []Notifier) {
	encoded, err := encodePayload(payload)
	if err != nil {
		b.logger.Error().Err(err).Str("event", name).Msg("encode event payload")
		return
	}
	var joined error
	for _, n := range notifiers {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, name, encoded); err != nil {
			joined = errors.Join(joined, fmt.Errorf("events: notifier: %w", err))
		}
	}
	if joined != nil {
		b.logger.Warn().Err(joined).Str("event", name).Msg("cart event notifier failed")
	}
}

// LogNotifier writes every event with its payload to a zerolog logger at debug level.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, name string, payload []byte) error {
	n.Logger.Debug().Str("event", name).RawJSON("payload", payload).Msg("cart_event")
	return nil
}

func encodePayload(payload any) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	switch v := payload.(type) {
	case []byte:
		if len(v) == 0 {
			return []byte("{}"), nil
		}
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid json")
		}
		return append([]byte(nil), v...), nil
	case json.RawMessage:
		if len(v) == 0 {
			return []byte("{}"), nil
		}
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid json")
		}
		return append([]byte(nil), v...), nil
	default:
		return json.Marshal(v)
	}
}
