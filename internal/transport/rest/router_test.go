package rest_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/gorilla/websocket"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/rbac-admin/internal"
	"github.com/frahmantamala/rbac-admin/internal/auth"
	"github.com/frahmantamala/rbac-admin/internal/core/events"
	"github.com/frahmantamala/rbac-admin/internal/realtime"
	"github.com/frahmantamala/rbac-admin/internal/session"
	"github.com/frahmantamala/rbac-admin/internal/transport"
	"github.com/frahmantamala/rbac-admin/internal/transport/middleware"
	"github.com/frahmantamala/rbac-admin/internal/transport/rest"
)

func TestRest(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Rest Suite")
}

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeAuth struct{}

func (fakeAuth) Authenticate(ctx context.Context, token string) (*internal.Principal, error) {
	switch token {
	case "alice":
		return &internal.Principal{Username: "alice", Roles: []string{"auditor"}, JTI: "ja"}, nil
	case "bob":
		return &internal.Principal{Username: "bob", Roles: []string{"common"}, JTI: "jb"}, nil
	case "kicked":
		return nil, internal.NewSessionRejectedError(session.ReasonKicked)
	}
	return nil, internal.ErrInvalidToken
}

func (f fakeAuth) Login(ctx context.Context, dto auth.LoginDTO, meta session.ClientMeta) (*auth.LoginResult, error) {
	return &auth.LoginResult{AccessToken: "token-for-" + dto.Username}, nil
}

func (fakeAuth) Logout(ctx context.Context, p *internal.Principal) error { return nil }

func (fakeAuth) AccessCodes(ctx context.Context, p *internal.Principal) ([]string, error) {
	return []string{"code-of-" + p.Username}, nil
}

// only auditors may list sessions; nobody may kick
type fakeAuthorizer struct{}

func (fakeAuthorizer) HasPermission(ctx context.Context, p *internal.Principal, permission string) (bool, error) {
	return permission == auth.PermSessionList && p.HasRole("auditor"), nil
}

type fakeSessions struct{}

func (fakeSessions) List(ctx context.Context, caller *internal.Principal, q session.ListQuery) (*session.ListResult, error) {
	return &session.ListResult{Items: []session.SessionView{}, Page: q.Page, PageSize: 20}, nil
}

func (fakeSessions) Kick(ctx context.Context, caller *internal.Principal, id int64, reason string) (int, error) {
	return 1, nil
}

func (fakeSessions) BatchKick(ctx context.Context, caller *internal.Principal, ids []int64, reason string) (int, error) {
	return len(ids), nil
}

type rejectAllTokens struct{}

func (rejectAllTokens) Validate(token string) (*internal.Principal, error) {
	return nil, internal.ErrInvalidToken
}

type sessionCheck struct{}

func (sessionCheck) Validate(ctx context.Context, username, jti string) error { return nil }

type discardPublisher struct{}

func (discardPublisher) Publish(ctx context.Context, e events.Event) error { return nil }

type fixedCounter int

func (c fixedCounter) ConnectionCount() int { return int(c) }

var _ = Describe("RegisterAllRoutes", func() {
	var router *chi.Mux

	do := func(method, path, token, body string) *httptest.ResponseRecorder {
		var reader io.Reader
		if body != "" {
			reader = strings.NewReader(body)
		}
		req := httptest.NewRequest(method, path, reader)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	errorOf := func(rec *httptest.ResponseRecorder) transport.ErrorResponse {
		var body transport.ErrorResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		return body
	}

	BeforeEach(func() {
		router = chi.NewRouter()
		base := transport.NewBaseHandler(quietLogger)
		rest.RegisterAllRoutes(router, rest.Routes{
			Logger:         quietLogger,
			MetricsPath:    "/metrics",
			Authenticator:  fakeAuth{},
			RBAC:           auth.NewRBACAuthorization(fakeAuthorizer{}, quietLogger),
			LoginLimiter:   middleware.NewIPRateLimiter(0.001, 2),
			AuthHandler:    auth.NewHandler(fakeAuth{}, quietLogger),
			SessionHandler: session.NewHandler(base, fakeSessions{}),
		})
	})

	It("answers ping and tags responses with a trace id", func() {
		rec := do(http.MethodGet, "/api/v1/ping", "", "")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Header().Get(middleware.TraceHeader)).NotTo(BeEmpty())
	})

	It("echoes a caller supplied trace id", func() {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
		req.Header.Set(middleware.TraceHeader, "trace-123")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		Expect(rec.Header().Get(middleware.TraceHeader)).To(Equal("trace-123"))
	})

	It("reports unhealthy without a database", func() {
		rec := do(http.MethodGet, "/api/v1/health", "", "")
		Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))

		var body rest.HealthResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body.Components).To(HaveKey("postgres"))
	})

	It("serves metrics", func() {
		Expect(do(http.MethodGet, "/metrics", "", "").Code).To(Equal(http.StatusOK))
	})

	Describe("authentication", func() {
		It("requires a token", func() {
			rec := do(http.MethodGet, "/api/v1/auth/codes", "", "")
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			Expect(errorOf(rec).Code).To(Equal(string(internal.ErrCodeMissingToken)))
		})

		It("reports invalid tokens generically", func() {
			rec := do(http.MethodGet, "/api/v1/auth/codes", "forged", "")
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			Expect(errorOf(rec).Message).To(Equal("invalid or expired token"))
		})

		It("reports the session reason for revoked sessions", func() {
			rec := do(http.MethodGet, "/api/v1/auth/codes", "kicked", "")
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			Expect(errorOf(rec).Code).To(Equal(string(internal.ErrCodeSessionInvalid)))
			Expect(errorOf(rec).Message).To(Equal(session.ReasonKicked))
		})

		It("passes the principal to handlers", func() {
			rec := do(http.MethodGet, "/api/v1/auth/codes", "alice", "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring("code-of-alice"))
		})

		It("logs out with 204", func() {
			Expect(do(http.MethodPost, "/api/v1/auth/logout", "alice", "").Code).To(Equal(http.StatusNoContent))
		})
	})

	Describe("authorization", func() {
		It("lets a permitted caller list sessions", func() {
			Expect(do(http.MethodGet, "/api/v1/system/session/list", "alice", "").Code).To(Equal(http.StatusOK))
		})

		It("forbids callers without the permission", func() {
			rec := do(http.MethodGet, "/api/v1/system/session/list", "bob", "")
			Expect(rec.Code).To(Equal(http.StatusForbidden))
			Expect(errorOf(rec).Code).To(Equal(string(internal.ErrCodePermissionDenied)))
		})

		It("guards kicks with their own permission", func() {
			Expect(do(http.MethodDelete, "/api/v1/system/session/7", "alice", "").Code).To(Equal(http.StatusForbidden))
			Expect(do(http.MethodPost, "/api/v1/system/session/batch-kick", "alice", `{"ids":[1]}`).Code).To(Equal(http.StatusForbidden))
		})
	})

	Describe("login", func() {
		It("rate limits per client address", func() {
			body := `{"username":"alice","password":"pw"}`
			Expect(do(http.MethodPost, "/api/v1/auth/login", "", body).Code).To(Equal(http.StatusOK))
			Expect(do(http.MethodPost, "/api/v1/auth/login", "", body).Code).To(Equal(http.StatusOK))

			rec := do(http.MethodPost, "/api/v1/auth/login", "", body)
			Expect(rec.Code).To(Equal(http.StatusTooManyRequests))
			Expect(errorOf(rec).Code).To(Equal(string(internal.ErrCodeTooManyAttempts)))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
			req.RemoteAddr = "198.51.100.7:4000"
			other := httptest.NewRecorder()
			router.ServeHTTP(other, req)
			Expect(other.Code).To(Equal(http.StatusOK))
		})

		It("ignores forwarding headers from untrusted peers", func() {
			body := `{"username":"alice","password":"pw"}`
			Expect(do(http.MethodPost, "/api/v1/auth/login", "", body).Code).To(Equal(http.StatusOK))
			Expect(do(http.MethodPost, "/api/v1/auth/login", "", body).Code).To(Equal(http.StatusOK))

			for _, spoofed := range []string{"203.0.113.9", "203.0.113.10"} {
				req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
				req.Header.Set("X-Forwarded-For", spoofed)
				req.Header.Set("X-Real-IP", spoofed)
				rec := httptest.NewRecorder()
				router.ServeHTTP(rec, req)
				Expect(rec.Code).To(Equal(http.StatusTooManyRequests))
			}
		})

		It("honours forwarding headers from a trusted proxy", func() {
			_, proxies, err := net.ParseCIDR("192.0.2.0/24")
			Expect(err).NotTo(HaveOccurred())
			router = chi.NewRouter()
			rest.RegisterAllRoutes(router, rest.Routes{
				Logger:         quietLogger,
				TrustedProxies: []*net.IPNet{proxies},
				LoginLimiter:   middleware.NewIPRateLimiter(0.001, 1),
				AuthHandler:    auth.NewHandler(fakeAuth{}, quietLogger),
			})

			login := func(forwardedFor string) int {
				req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"username":"alice","password":"pw"}`))
				req.Header.Set("X-Forwarded-For", forwardedFor)
				rec := httptest.NewRecorder()
				router.ServeHTTP(rec, req)
				return rec.Code
			}

			Expect(login("203.0.113.9")).To(Equal(http.StatusOK))
			Expect(login("203.0.113.9")).To(Equal(http.StatusTooManyRequests))
			Expect(login("203.0.113.10")).To(Equal(http.StatusOK))
		})

		It("returns the access token", func() {
			rec := do(http.MethodPost, "/api/v1/auth/login", "", `{"username":"alice","password":"pw"}`)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`"accessToken":"token-for-alice"`))
		})
	})
})

var _ = Describe("HealthHandler", func() {
	It("includes realtime connection counts", func() {
		router := chi.NewRouter()
		rest.RegisterAllRoutes(router, rest.Routes{Logger: quietLogger, Connections: fixedCounter(3)})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

		var body rest.HealthResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body.Components).To(HaveKey("realtime"))
		Expect(body.Components["realtime"].Details).To(HaveKeyWithValue("connections", BeNumerically("==", 3)))
	})
})

var _ = Describe("realtime channel", func() {
	var server *httptest.Server

	BeforeEach(func() {
		router := chi.NewRouter()
		base := transport.NewBaseHandler(quietLogger)
		notifier := realtime.NewNotifier(quietLogger)
		rest.RegisterAllRoutes(router, rest.Routes{
			Logger:          quietLogger,
			Authenticator:   fakeAuth{},
			RealtimeHandler: realtime.NewHandler(base, notifier, rejectAllTokens{}, sessionCheck{}, discardPublisher{}, realtime.HandlerConfig{WriteTimeout: time.Second}),
			Connections:     notifier,
		})
		server = httptest.NewServer(router)
		DeferCleanup(server.Close)
	})

	It("is served under /api/v1 without the bearer middleware", func() {
		u := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/ws/notice?token=forged"
		ws, _, err := websocket.DefaultDialer.Dial(u, nil)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(ws.Close)

		Expect(ws.SetReadDeadline(time.Now().Add(2 * time.Second))).To(Succeed())
		_, _, err = ws.ReadMessage()
		Expect(websocket.IsCloseError(err, websocket.ClosePolicyViolation)).To(BeTrue())
	})

	It("is not mounted at the root", func() {
		resp, err := http.Get(server.URL + "/ws/notice?token=forged")
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
	})
})
