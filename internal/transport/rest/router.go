package rest

import (
	"database/sql"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi"
	"github.com/go-chi/cors"

	"github.com/frahmantamala/rbac-admin/internal/auth"
	"github.com/frahmantamala/rbac-admin/internal/core/metrics"
	"github.com/frahmantamala/rbac-admin/internal/realtime"
	"github.com/frahmantamala/rbac-admin/internal/session"
	"github.com/frahmantamala/rbac-admin/internal/transport"
	"github.com/frahmantamala/rbac-admin/internal/transport/middleware"
	"github.com/frahmantamala/rbac-admin/internal/transport/swagger"
	"github.com/frahmantamala/rbac-admin/internal/user"
)

// Routes carries everything the HTTP surface is built from. Nil handlers
// leave their routes unregistered.
type Routes struct {
	DB             *sql.DB
	Logger         *slog.Logger
	AllowedOrigins string
	TrustedProxies []*net.IPNet
	MetricsPath    string
	Spec           *swagger.Spec

	Authenticator middleware.Authenticator
	RBAC          *auth.RBACAuthorization
	LoginLimiter  *middleware.IPRateLimiter

	AuthHandler     *auth.Handler
	UserHandler     *user.Handler
	SessionHandler  *session.Handler
	RealtimeHandler *realtime.Handler
	Connections     ConnectionCounter
}

func DefaultCORSOptions(allowed string) cors.Options {
	origins := []string{"*"}
	if strings.TrimSpace(allowed) != "" {
		origins = origins[:0]
		for _, o := range strings.Split(allowed, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.TraceHeader},
		ExposedHeaders:   []string{middleware.TraceHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}
}

func RegisterAllRoutes(router chi.Router, deps Routes) {
	base := transport.NewBaseHandler(deps.Logger)

	healthHandler := NewHealthHandler(deps.DB, deps.Connections)

	router.Use(cors.Handler(DefaultCORSOptions(deps.AllowedOrigins)))
	router.Use(middleware.TrustedRealIP(deps.TrustedProxies))
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(base))
	router.Use(middleware.LoggingMiddleware(deps.Logger))
	router.Use(metrics.Instrument)

	if deps.Spec != nil {
		router.Get(swagger.SpecURL, deps.Spec.ServeHTTP)
		router.Handle("/swagger/*", swagger.Handler())
	}
	if deps.MetricsPath != "" {
		router.Handle(deps.MetricsPath, metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		// the channel authenticates from its query token so it can answer with a close frame
		if deps.RealtimeHandler != nil {
			r.Get("/ws/notice", deps.RealtimeHandler.ServeNotice)
		}

		if deps.AuthHandler != nil {
			r.With(middleware.RateLimit(deps.LoginLimiter, base)).Post("/auth/login", deps.AuthHandler.Login)
		}

		if deps.Authenticator == nil {
			return
		}

		r.Group(func(pr chi.Router) {
			pr.Use(middleware.Authenticate(deps.Authenticator, base))

			if deps.AuthHandler != nil {
				pr.Post("/auth/logout", deps.AuthHandler.Logout)
				pr.Get("/auth/codes", deps.AuthHandler.Codes)
			}

			if deps.UserHandler != nil {
				pr.Get("/user/info", deps.UserHandler.GetCurrentUser)
			}

			if deps.RBAC == nil {
				return
			}

			if deps.SessionHandler != nil {
				pr.Route("/system/session", func(sr chi.Router) {
					sr.With(deps.RBAC.Middleware(auth.PermSessionList)).Get("/list", deps.SessionHandler.ListSessions)
					sr.Group(func(kr chi.Router) {
						kr.Use(deps.RBAC.Middleware(auth.PermSessionKick))
						kr.Delete("/{id}", deps.SessionHandler.KickSession)
						kr.Post("/batch-kick", deps.SessionHandler.BatchKickSessions)
					})
				})
			}

			if deps.RealtimeHandler != nil {
				pr.With(deps.RBAC.Middleware(auth.PermNoticeSend)).Post("/system/notice/push", deps.RealtimeHandler.PushNotice)
			}
		})
	})
}
