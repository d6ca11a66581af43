package identity

import "context"

type ctxKey string

const principalKey ctxKey = "confcore_principal"

// NewContext stores the principal in the context.
func NewContext(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// FromContext extracts the principal attached by Middleware. Returns nil if
// no principal was resolved, which HasPermission treats as "no access".
func FromContext(ctx context.Context) *Principal {
	v, _ := ctx.Value(principalKey).(*Principal)
	return v
}
