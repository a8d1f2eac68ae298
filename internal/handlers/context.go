package handlers

import (
	"context"

	"github.com/paloma-health/paloma-server/internal/service/auth"
)

type ctxKey string

const identityKey ctxKey = "identity"

func NewContextWithIdentity(ctx context.Context, id auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFromContext(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityKey).(auth.Identity)
	return id, ok
}
