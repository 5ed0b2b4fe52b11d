package session

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/rbac-admin/internal"
	"github.com/frahmantamala/rbac-admin/internal/transport"
)

type ServiceAPI interface {
	List(ctx context.Context, caller *internal.Principal, q ListQuery) (*ListResult, error)
	Kick(ctx context.Context, caller *internal.Principal, id int64, reason string) (int, error)
	BatchKick(ctx context.Context, caller *internal.Principal, ids []int64, reason string) (int, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
	}
}

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	caller, ok := internal.PrincipalFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrMissingToken)
		return
	}

	page, err := h.QueryInt(r, "page", 1)
	if err != nil {
		h.WriteAppError(w, internal.NewValidationError(err.Error(), internal.ErrCodeInvalidPage))
		return
	}
	pageSize, err := h.QueryInt(r, "pageSize", 0)
	if err != nil {
		h.WriteAppError(w, internal.NewValidationError(err.Error(), internal.ErrCodeInvalidPage))
		return
	}

	q := ListQuery{
		Page:     page,
		PageSize: pageSize,
		Username: strings.TrimSpace(r.URL.Query().Get("username")),
		IP:       strings.TrimSpace(r.URL.Query().Get("ip")),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := strconv.Atoi(raw)
		if err != nil {
			h.WriteAppError(w, internal.NewValidationError("status must be 0 or 1", internal.ErrCodeValidationFailed))
			return
		}
		q.Status = &status
	}

	result, err := h.Service.List(r.Context(), caller, q)
	if err != nil {
		h.Logger.Error("ListSessions: service error", "error", err, "caller", caller.Username)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) KickSession(w http.ResponseWriter, r *http.Request) {
	caller, ok := internal.PrincipalFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrMissingToken)
		return
	}

	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		h.Logger.Debug("KickSession: invalid session ID", "id", idStr)
		h.WriteAppError(w, internal.NewValidationError("invalid session ID", internal.ErrCodeInvalidIDs))
		return
	}

	revoked, err := h.Service.Kick(r.Context(), caller, id, r.URL.Query().Get("reason"))
	if err != nil {
		h.Logger.Warn("KickSession: service error", "error", err, "session_id", id, "caller", caller.Username)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, KickResponse{Revoked: revoked})
}

func (h *Handler) BatchKickSessions(w http.ResponseWriter, r *http.Request) {
	caller, ok := internal.PrincipalFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrMissingToken)
		return
	}

	var req BatchKickRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.WriteAppError(w, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed))
		return
	}

	revoked, err := h.Service.BatchKick(r.Context(), caller, req.IDs, req.Reason)
	if err != nil {
		h.Logger.Warn("BatchKickSessions: service error", "error", err, "caller", caller.Username)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, KickResponse{Revoked: revoked})
}
