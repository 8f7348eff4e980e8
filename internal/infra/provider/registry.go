package provider

import (
	"github.com/arklim/identity-token-service/internal/core/port"
	"github.com/arklim/identity-token-service/internal/infra/config"
)

// Provider names accepted by the external grant and registration flows.
const (
	Google   = "Google"
	Facebook = "Facebook"
)

// Registry maps provider names to resolvers.
type Registry struct {
	resolvers map[string]port.IdentityResolver
}

// NewRegistry builds the registry from configured provider credentials.
// Providers with no credentials configured are left out, so the matching
// grant requests fail with an unsupported-provider error instead of
// calling out with an empty audience.
func NewRegistry(cfg config.ProviderSettings) *Registry {
	resolvers := make(map[string]port.IdentityResolver)

	if cfg.GoogleClientID != "" {
		resolvers[Google] = NewGoogleResolver(cfg.GoogleClientID)
	}
	if cfg.FacebookAppID != "" && cfg.FacebookAppSecret != "" {
		resolvers[Facebook] = NewFacebookResolver(cfg.FacebookAppID, cfg.FacebookAppSecret)
	}

	return &Registry{resolvers: resolvers}
}

// NewRegistryWith builds a registry from explicit resolvers, used by tests.
func NewRegistryWith(resolvers map[string]port.IdentityResolver) *Registry {
	return &Registry{resolvers: resolvers}
}

// Resolver implements port.IdentityResolverRegistry.
func (r *Registry) Resolver(provider string) (port.IdentityResolver, bool) {
	resolver, ok := r.resolvers[provider]
	return resolver, ok
}
