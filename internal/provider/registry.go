package provider

import (
	"fmt"
	"log/slog"

	"github.com/me/desipipe/pkg/model"
)

// Registry maps ProviderKind values to their Provider implementations.
// Registration happens at startup before concurrent access, so no mutex
// is needed, matching the teacher's executor.Registry.
type Registry struct {
	providers map[model.ProviderKind]Provider
	logger    *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		providers: make(map[model.ProviderKind]Provider),
		logger:    logger.With("component", "provider-registry"),
	}
}

func (r *Registry) Register(p Provider) {
	r.providers[p.Kind()] = p
	r.logger.Info("provider registered", "kind", p.Kind())
}

func (r *Registry) Get(kind model.ProviderKind) (Provider, error) {
	p, ok := r.providers[kind]
	if !ok {
		return nil, fmt.Errorf("no provider registered for kind %q", kind)
	}
	return p, nil
}
