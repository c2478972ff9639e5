package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sgl-project/fallible/pkg/logging"
)

// ProviderFunc builds a facade for one backend family from a validated Config.
type ProviderFunc func(ctx context.Context, cfg Config, logger logging.Interface) (Facade, error)

// Registration binds a ProviderFunc to the family it serves. Backend
// modules contribute registrations to the fx group "storage_providers".
type Registration struct {
	Provider Provider
	New      ProviderFunc
}

// DefaultFactory creates facades by dispatching on Config.Provider.
type DefaultFactory struct {
	mu        sync.RWMutex
	providers map[Provider]ProviderFunc
	logger    logging.Interface
}

// NewDefaultFactory creates a factory with the given registrations.
// Backends live in their own packages and register themselves here to avoid
// import cycles.
func NewDefaultFactory(logger logging.Interface, regs ...Registration) *DefaultFactory {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	f := &DefaultFactory{
		providers: make(map[Provider]ProviderFunc),
		logger:    logger,
	}
	for _, r := range regs {
		f.RegisterProvider(r.Provider, r.New)
	}
	return f
}

// RegisterProvider registers a backend. A later registration for the same
// provider replaces the earlier one.
func (f *DefaultFactory) RegisterProvider(provider Provider, fn ProviderFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.providers[provider] = fn
}

// Providers returns the registered backend families, sorted.
func (f *DefaultFactory) Providers() []Provider {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Provider, 0, len(f.providers))
	for p := range f.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Create validates cfg and binds a facade to the store it names.
func (f *DefaultFactory) Create(ctx context.Context, cfg Config) (Facade, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	f.mu.RLock()
	fn, ok := f.providers[cfg.Provider]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unsupported storage provider %q", ErrNotSupported, cfg.Provider)
	}

	f.logger.WithField("provider", cfg.Provider).
		WithField("store", cfg.StoreName()).
		Info("Creating storage facade")

	return fn(ctx, cfg, f.logger)
}
