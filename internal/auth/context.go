package auth

import (
	"context"

	"github.com/vyrodovalexey/authguard/internal/principal"
)

type principalKey struct{}

// ContextWithPrincipal returns a context carrying p.
func ContextWithPrincipal(ctx context.Context, p *principal.Info) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (*principal.Info, bool) {
	p, ok := ctx.Value(principalKey{}).(*principal.Info)
	return p, ok && p != nil
}
