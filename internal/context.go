package internal

import (
	"context"
	"time"
)

// Principal is the authenticated caller reconstructed from a validated access token.
type Principal struct {
	Username string
	Roles    []string
	JTI      string
}

// HasRole reports whether the principal carries the given role code.
func (p *Principal) HasRole(code string) bool {
	if p == nil || code == "" {
		return false
	}
	for _, r := range p.Roles {
		if r == code {
			return true
		}
	}
	return false
}

type ctxKey string

const ContextPrincipalKey ctxKey = "principal"

func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ContextPrincipalKey, p)
}

func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	if ctx == nil {
		return nil, false
	}
	p, ok := ctx.Value(ContextPrincipalKey).(*Principal)
	return p, ok && p != nil
}

// WithTimeout returns a context with timeout, defaulting to 5 seconds if duration is zero or negative.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	return context.WithTimeout(ctx, duration)
}
