package port

import (
	"context"
	"errors"
)

// ErrIdentityNotResolved indicates the provider rejected the supplied
// access token (expired, forged, or issued for a different audience).
// Transport failures are returned as ordinary errors instead.
var ErrIdentityNotResolved = errors.New("external identity not resolved")

// IdentityResolver turns an opaque provider access token into a stable
// external user id.
type IdentityResolver interface {
	Resolve(ctx context.Context, accessToken string) (string, error)
}

// IdentityResolverRegistry selects a resolver by provider name.
type IdentityResolverRegistry interface {
	Resolver(provider string) (IdentityResolver, bool)
}
