// Package registry builds and caches provider adapters from configuration and
// assigns them primary/fallback roles. The set of constructable kinds is
// closed; dispatch goes through a table populated at startup.
package registry

import (
	"fmt"
	"log/slog"
	"sync"

	"skiptrace/internal/skiptrace/providers"
)

// BuildFunc constructs a validated provider adapter.
type BuildFunc func() (providers.Provider, error)

// Config selects which provider serves each role.
type Config struct {
	Primary  providers.Kind
	Fallback providers.Kind
}

// Registry hands out provider instances by role. Instances are built once and
// reused; adapters hold no per-request state.
type Registry struct {
	cfg      Config
	builders map[providers.Kind]BuildFunc
	log      *slog.Logger

	mu        sync.Mutex
	instances map[providers.Kind]providers.Provider
}

// New creates a registry over the given constructor table.
func New(cfg Config, builders map[providers.Kind]BuildFunc, log *slog.Logger) (*Registry, error) {
	if cfg.Primary == "" {
		return nil, fmt.Errorf("registry: primary provider is required")
	}
	if _, ok := builders[cfg.Primary]; !ok {
		return nil, fmt.Errorf("registry: no builder for primary provider %q", cfg.Primary)
	}
	if cfg.Fallback != "" {
		if cfg.Fallback == cfg.Primary {
			return nil, fmt.Errorf("registry: fallback provider must differ from primary")
		}
		if _, ok := builders[cfg.Fallback]; !ok {
			return nil, fmt.Errorf("registry: no builder for fallback provider %q", cfg.Fallback)
		}
	}
	return &Registry{
		cfg:       cfg,
		builders:  builders,
		log:       log,
		instances: make(map[providers.Kind]providers.Provider),
	}, nil
}

// Primary returns the provider that serves first attempts.
func (r *Registry) Primary() (providers.Provider, error) {
	return r.get(r.cfg.Primary)
}

// Fallback returns the provider tried after the primary fails, or
// ErrNotConfigured when no fallback is set.
func (r *Registry) Fallback() (providers.Provider, error) {
	if r.cfg.Fallback == "" {
		return nil, providers.ErrNotConfigured
	}
	return r.get(r.cfg.Fallback)
}

// HasFallback reports whether a fallback role is configured.
func (r *Registry) HasFallback() bool {
	return r.cfg.Fallback != ""
}

// Chain returns the providers in attempt order.
func (r *Registry) Chain() ([]providers.Provider, error) {
	primary, err := r.Primary()
	if err != nil {
		return nil, err
	}
	chain := []providers.Provider{primary}
	if r.cfg.Fallback != "" {
		fallback, err := r.get(r.cfg.Fallback)
		if err != nil {
			return nil, err
		}
		chain = append(chain, fallback)
	}
	return chain, nil
}

func (r *Registry) get(kind providers.Kind) (providers.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.instances[kind]; ok {
		return p, nil
	}

	build, ok := r.builders[kind]
	if !ok {
		return nil, fmt.Errorf("provider %q: %w", kind, providers.ErrNotConfigured)
	}
	p, err := build()
	if err != nil {
		return nil, fmt.Errorf("build provider %q: %w", kind, err)
	}
	if err := p.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("provider %q config: %w", kind, err)
	}

	r.instances[kind] = p
	r.log.Info("provider initialized", "provider", p.Name())
	return p, nil
}
