package middleware

import (
	"context"
	"net/http"

	"github.com/frahmantamala/rbac-admin/internal"
	"github.com/frahmantamala/rbac-admin/internal/transport"
	"github.com/frahmantamala/rbac-admin/pkg/logger"
)

// Authenticator turns a bearer token into a principal whose session is still active.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*internal.Principal, error)
}

// Authenticate rejects requests without a usable token and session. The 401
// body carries the session reason so clients can tell a kick from an expiry.
func Authenticate(authenticator Authenticator, base *transport.BaseHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := base.ExtractTokenFromHeader(r)
			if token == "" {
				base.WriteAppError(w, internal.ErrMissingToken)
				return
			}

			p, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				base.HandleServiceError(w, err)
				return
			}

			ctx := internal.ContextWithPrincipal(r.Context(), p)
			ctx = logger.With(ctx, "username", p.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
