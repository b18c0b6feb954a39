package cart

import (
	"context"
	"time"
)

// Store persists cart state under session scoped keys.
type Store interface {
	// Get decodes the value stored under key into dst and reports whether it existed.
	Get(ctx context.Context, key string, dst any) (bool, error)
	// Put replaces the value stored under key.
	Put(ctx context.Context, key string, value any) error
}

// Dispatcher receives lifecycle events. Returning false from a "before" event
// (adding, updating, removing) cancels the operation.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, payload any) bool
}

// Locker serialises read-modify-write cycles on the same session.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// ModelResolver resolves the opaque model name an item may be associated with.
type ModelResolver interface {
	Exists(model string) bool
	Instantiate(ctx context.Context, model string, item Item) (any, error)
}

// Phases of the cart lifecycle. Event names are "<instance>.<phase>".
const (
	PhaseCreated  = "created"
	PhaseAdding   = "adding"
	PhaseAdded    = "added"
	PhaseUpdating = "updating"
	PhaseUpdated  = "updated"
	PhaseRemoving = "removing"
	PhaseRemoved  = "removed"
	PhaseClearing = "clearing"
	PhaseCleared  = "cleared"
)

// Event is the payload handed to the Dispatcher.
type Event struct {
	Instance   string `json:"instance"`
	SessionKey string `json:"sessionKey"`
	Phase      string `json:"phase"`
	ItemID     string `json:"itemId,omitempty"`
	Item       *Item  `json:"item,omitempty"`
	Data       any    `json:"data,omitempty"`
}
