package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/cart-engine/internal/cart"
)

// Factory builds the model instance an item is associated with.
type Factory func(ctx context.Context, item cart.Item) (any, error)

// Registry resolves the model names items can be associated with.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	cache     *Cache
	logger    zerolog.Logger
}

// RegistryConfig groups Registry dependencies.
type RegistryConfig struct {
	Cache  *Cache
	Logger *zerolog.Logger
}

// NewRegistry constructs an empty Registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Registry{factories: make(map[string]Factory), cache: cfg.Cache, logger: logger}
}

// Register binds name to factory, replacing any previous binding.
func (r *Registry) Register(name string, factory Factory) error {
	name = strings.TrimSpace(name)
	if name == "" || factory == nil {
		return fmt.Errorf("catalog: model name and factory are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
	return nil
}

// Exists reports whether name is registered.
func (r *Registry) Exists(name string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[strings.TrimSpace(name)]
	return ok
}

// Names lists the registered model names in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Instantiate builds the model called name for item. When a cache is configured the
// JSON form of a previously built instance is returned instead.
func (r *Registry) Instantiate(ctx context.Context, name string, item cart.Item) (any, error) {
	if r == nil {
		return nil, fmt.Errorf("the supplied model %s does not exist: %w", name, cart.ErrUnknownModel)
	}
	name = strings.TrimSpace(name)
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("the supplied model %s does not exist: %w", name, cart.ErrUnknownModel)
	}

	key := name + ":" + item.ID
	if cached, hit, err := r.cache.GetJSON(ctx, key); err != nil {
		r.logger.Warn().Err(err).Str("model", name).Msg("catalog cache read failed")
	} else if hit {
		return cached, nil
	}

	model, err := factory(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("instantiate %s: %w", name, err)
	}
	if err := r.cache.SetJSON(ctx, key, model); err != nil {
		r.logger.Warn().Err(err).Str("model", name).Msg("catalog cache write failed")
	}
	return model, nil
}
