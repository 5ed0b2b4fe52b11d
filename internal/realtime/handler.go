package realtime

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/frahmantamala/rbac-admin/internal"
	"github.com/frahmantamala/rbac-admin/internal/core/events"
	"github.com/frahmantamala/rbac-admin/internal/transport"
	"github.com/frahmantamala/rbac-admin/pkg/strutil"
)

type TokenValidator interface {
	Validate(token string) (*internal.Principal, error)
}

type SessionValidator interface {
	Validate(ctx context.Context, username, jti string) error
}

type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type HandlerConfig struct {
	WriteTimeout   time.Duration
	ReadLimit      int64
	AllowedOrigins string
}

type Handler struct {
	*transport.BaseHandler
	notifier  *Notifier
	tokens    TokenValidator
	sessions  SessionValidator
	publisher Publisher
	upgrader  websocket.Upgrader
	cfg       HandlerConfig
}

func NewHandler(baseHandler *transport.BaseHandler, notifier *Notifier, tokens TokenValidator, sessions SessionValidator, publisher Publisher, cfg HandlerConfig) *Handler {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = 4096
	}
	h := &Handler{
		BaseHandler: baseHandler,
		notifier:    notifier,
		tokens:      tokens,
		sessions:    sessions,
		publisher:   publisher,
		cfg:         cfg,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return h
}

// ServeNotice upgrades the request and keeps the connection registered until the
// client goes away. Authentication failures close the socket with 1008.
func (h *Handler) ServeNotice(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	conn := NewConn(ws, h.cfg.WriteTimeout)

	token := transport.StripBearer(r.URL.Query().Get("token"))
	if token == "" {
		_ = conn.ClosePolicyViolation(internal.ErrMissingToken.Message)
		return
	}
	principal, err := h.tokens.Validate(token)
	if err != nil {
		_ = conn.ClosePolicyViolation(internal.ErrInvalidToken.Message)
		return
	}
	if h.sessions != nil {
		if err := h.sessions.Validate(r.Context(), principal.Username, principal.JTI); err != nil {
			_ = conn.ClosePolicyViolation(closeReason(err))
			return
		}
	}

	h.notifier.Connect(principal.Username, principal.JTI, conn)
	h.Logger.Debug("realtime client connected", "username", principal.Username)
	defer func() {
		h.notifier.Disconnect(principal.Username, principal.JTI, conn)
		_ = conn.Close()
		h.Logger.Debug("realtime client disconnected", "username", principal.Username)
	}()

	ws.SetReadLimit(h.cfg.ReadLimit)
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

type NoticePushRequest struct {
	Usernames []string `json:"usernames"`
	Count     int      `json:"count"`
}

type NoticePushResponse struct {
	Queued int `json:"queued"`
}

// PushNotice announces new notices to the listed users through the event bus.
func (h *Handler) PushNotice(w http.ResponseWriter, r *http.Request) {
	var req NoticePushRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.WriteAppError(w, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed))
		return
	}

	usernames := make([]string, 0, len(req.Usernames))
	seen := make(map[string]struct{}, len(req.Usernames))
	for _, u := range req.Usernames {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		usernames = append(usernames, u)
	}
	if len(usernames) == 0 {
		h.WriteAppError(w, internal.NewValidationFieldError("usernames", "usernames must not be empty", internal.ErrCodeValidationFailed))
		return
	}
	if req.Count < 0 {
		h.WriteAppError(w, internal.NewValidationFieldError("count", "count must not be negative", internal.ErrCodeValidationFailed))
		return
	}

	if err := h.publisher.Publish(r.Context(), events.NewNoticePublishedEvent(usernames, req.Count)); err != nil {
		h.HandleServiceError(w, internal.NewInternalError("failed to publish notice", err))
		return
	}
	h.WriteJSON(w, http.StatusAccepted, NoticePushResponse{Queued: len(usernames)})
}

func closeReason(err error) string {
	reason := internal.ErrInvalidToken.Message
	if appErr, ok := internal.IsAppError(err); ok && appErr.StatusCode == http.StatusUnauthorized {
		reason = appErr.Message
	}
	// close frame payloads are limited to 125 bytes including the status code
	return strutil.TruncateBytes(reason, 123)
}

func originChecker(allowed string) func(r *http.Request) bool {
	allowed = strings.TrimSpace(allowed)
	if allowed == "" || allowed == "*" {
		return func(r *http.Request) bool { return true }
	}
	hosts := make(map[string]struct{})
	for _, origin := range strings.Split(allowed, ",") {
		origin = strings.TrimSpace(origin)
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			hosts[strings.ToLower(u.Host)] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := hosts[strings.ToLower(u.Host)]
		return ok
	}
}
