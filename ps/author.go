package ps

import (
	"context"

	"github.com/nickyhof/AtlasDB/core"
)

type authorKey struct{}

// WithAuthor returns a context whose writes are committed by identity
// instead of the engine's default. Engines that keep no history ignore it.
func WithAuthor(ctx context.Context, identity core.Identity) context.Context {
	return context.WithValue(ctx, authorKey{}, identity)
}

func authorFrom(ctx context.Context, fallback core.Identity) core.Identity {
	if identity, ok := ctx.Value(authorKey{}).(core.Identity); ok && (identity.Name != "" || identity.Email != "") {
		return identity
	}
	return fallback
}
