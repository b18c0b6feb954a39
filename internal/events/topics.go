package events

import (
	"strings"

	"github.com/noah-isme/cart-engine/internal/cart"
)

// Wildcard subscribes a listener to every event name.
const Wildcard = "*"

// Name builds the event name dispatched for phase on the instance cart.
func Name(instance, phase string) string {
	return instance + "." + phase
}

// Split breaks an event name into its instance and phase.
func Split(name string) (instance, phase string) {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return "", name
	}
	return name[:idx], name[idx+1:]
}

// Phases returns every lifecycle phase in the order a cart goes through them.
func Phases() []string {
	return []string{
		cart.PhaseCreated,
		cart.PhaseAdding,
		cart.PhaseAdded,
		cart.PhaseUpdating,
		cart.PhaseUpdated,
		cart.PhaseRemoving,
		cart.PhaseRemoved,
		cart.PhaseClearing,
		cart.PhaseCleared,
	}
}

// Cancellable reports whether a false listener result stops the operation.
func Cancellable(phase string) bool {
	switch phase {
	case cart.PhaseAdding, cart.PhaseUpdating, cart.PhaseRemoving:
		return true
	}
	return false
}

// CartEvent extracts the cart payload of a dispatched event.
func CartEvent(payload any) (cart.Event, bool) {
	switch v := payload.(type) {
	case cart.Event:
		return v, true
	case *cart.Event:
		if v == nil {
			return cart.Event{}, false
		}
		return *v, true
	}
	return cart.Event{}, false
}
