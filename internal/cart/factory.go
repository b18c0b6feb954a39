package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Factory opens carts that share the same collaborators and differ by session key.
type Factory struct {
	opts Options
}

// FactoryConfig groups Factory dependencies.
type FactoryConfig struct {
	Store        Store
	Events       Dispatcher
	Locker       Locker
	Models       ModelResolver
	Logger       *zerolog.Logger
	InstanceName string
	Config       Config
	LockTTL      time.Duration
}

// NewFactory constructs a Factory.
func NewFactory(cfg FactoryConfig) *Factory {
	return &Factory{opts: Options{
		Store:        cfg.Store,
		Events:       cfg.Events,
		Locker:       cfg.Locker,
		Models:       cfg.Models,
		Logger:       cfg.Logger,
		InstanceName: cfg.InstanceName,
		Config:       cfg.Config,
		LockTTL:      cfg.LockTTL,
	}}
}

// Open returns the cart bound to sessionKey.
func (f *Factory) Open(ctx context.Context, sessionKey string) (*Cart, error) {
	opts := f.opts
	opts.SessionKey = sessionKey
	return New(ctx, opts)
}

// Instance returns a factory for another instance name sharing the same collaborators.
func (f *Factory) Instance(name string) *Factory {
	opts := f.opts
	opts.InstanceName = name
	return &Factory{opts: opts}
}

// NewSessionKey generates a random session key.
func NewSessionKey() string {
	return uuid.NewString()
}
