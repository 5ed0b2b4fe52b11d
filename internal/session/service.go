package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/frahmantamala/rbac-admin/internal"
	"github.com/frahmantamala/rbac-admin/internal/core/common/validation"
	sessionDatamodel "github.com/frahmantamala/rbac-admin/internal/core/datamodel/session"
	"github.com/frahmantamala/rbac-admin/internal/core/events"
	"github.com/frahmantamala/rbac-admin/internal/core/metrics"
	"github.com/frahmantamala/rbac-admin/pkg/idset"
	"github.com/frahmantamala/rbac-admin/pkg/strutil"
)

type Config struct {
	// LoginMode overrides the persisted setting when it holds a valid mode.
	LoginMode        string
	LastSeenThrottle time.Duration
}

type Service struct {
	repo      RepositoryAPI
	settings  SettingStore
	publisher Publisher
	scope     ScopeResolver
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(repo RepositoryAPI, settings SettingStore, publisher Publisher, scope ScopeResolver, cfg Config, logger *slog.Logger) *Service {
	if cfg.LastSeenThrottle <= 0 {
		cfg.LastSeenThrottle = internal.DefaultLastSeenThrottle
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		settings:  settings,
		publisher: publisher,
		scope:     scope,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) LoginMode(ctx context.Context) Mode {
	if m, ok := ParseMode(s.cfg.LoginMode); ok {
		return m
	}
	if s.settings != nil {
		value, ok, err := s.settings.GetEnabledValue(ctx, LoginModeSettingKey)
		if err != nil {
			s.logger.Warn("failed to read login mode setting", "error", err)
		} else if ok {
			if m, valid := ParseMode(value); valid {
				return m
			}
			s.logger.Warn("ignoring unrecognized login mode setting", "value", value)
		}
	}
	return ModeMulti
}

// Create records a new session. In single mode the owner's other active sessions
// are revoked in the same transaction and a revocation event is published after commit.
func (s *Service) Create(ctx context.Context, owner Owner, jti string, expiresAt time.Time, meta ClientMeta) (*sessionDatamodel.UserSession, error) {
	now := s.now()
	browser, os := ParseUserAgent(meta.UserAgent)
	row := &sessionDatamodel.UserSession{
		UserID:     owner.ID,
		Username:   owner.Username,
		JTI:        jti,
		IP:         meta.IP,
		UserAgent:  strutil.TruncateRunes(meta.UserAgent, maxUserAgentLength),
		Browser:    browser,
		OS:         os,
		CreatedAt:  now,
		LastSeenAt: &now,
		ExpiresAt:  expiresAt,
		Status:     sessionDatamodel.StatusActive,
	}

	mode := s.LoginMode(ctx)
	if mode == ModeSingle {
		evicted, err := s.repo.ReplaceActive(ctx, row, Revocation{Actor: ActorSystem, Reason: ReasonEvicted, At: now})
		if err != nil {
			return nil, internal.NewInternalError("failed to create session", err)
		}
		if len(evicted) > 0 {
			s.logger.Info("evicted previous sessions",
				"username", owner.Username,
				"count", len(evicted))
			metrics.SessionsRevoked.WithLabelValues(metrics.CauseEviction).Add(float64(len(evicted)))
			s.publishRevoked(ctx, evicted, ActorSystem, ReasonEvicted)
		}
	} else {
		if err := s.repo.Create(ctx, row); err != nil {
			return nil, internal.NewInternalError("failed to create session", err)
		}
	}

	metrics.SessionsCreated.WithLabelValues(string(mode)).Inc()
	return row, nil
}

// Validate returns nil when the session is usable. Rejections are unauthorized
// AppErrors whose message is the reason shown to the client.
func (s *Service) Validate(ctx context.Context, username, jti string) error {
	if jti == "" {
		return s.reject(ReasonNoSession)
	}

	row, err := s.repo.GetByJTI(ctx, username, jti)
	if err != nil {
		metrics.SessionValidations.WithLabelValues("error").Inc()
		return internal.NewInternalError("failed to load session", err)
	}
	if row == nil {
		return s.reject(ReasonNoSession)
	}

	now := s.now()
	if row.Status != sessionDatamodel.StatusActive {
		reason := row.RevokeReason
		if reason == "" {
			reason = ReasonRevoked
		}
		return s.reject(reason)
	}
	if !row.ExpiresAt.After(now) {
		return s.reject(ReasonExpired)
	}

	if row.LastSeenAt == nil || now.Sub(*row.LastSeenAt) >= s.cfg.LastSeenThrottle {
		if err := s.repo.TouchLastSeen(ctx, row.ID, now); err != nil {
			s.logger.Warn("failed to update session last seen", "session_id", row.ID, "error", err)
		}
	}

	metrics.SessionValidations.WithLabelValues(metrics.ResultValid).Inc()
	return nil
}

func (s *Service) reject(reason string) error {
	metrics.SessionValidations.WithLabelValues(metrics.ResultRejected).Inc()
	return internal.NewSessionRejectedError(reason)
}

// RevokeSessions revokes the listed sessions and returns how many actually
// transitioned from active to revoked.
func (s *Service) RevokeSessions(ctx context.Context, ids []int64, actor, reason string) (int, error) {
	ids = idset.New(ids...).Slice()
	if len(ids) == 0 {
		return 0, nil
	}
	reason = truncateReason(reason)
	if reason == "" {
		reason = ReasonKicked
	}

	revoked, err := s.repo.Revoke(ctx, ids, Revocation{Actor: actor, Reason: reason, At: s.now()})
	if err != nil {
		return 0, internal.NewInternalError("failed to revoke sessions", err)
	}
	if len(revoked) == 0 {
		return 0, nil
	}

	s.logger.Info("sessions revoked", "actor", actor, "count", len(revoked), "reason", reason)
	metrics.SessionsRevoked.WithLabelValues(metrics.CauseKick).Add(float64(len(revoked)))
	s.publishRevoked(ctx, revoked, actor, reason)
	return len(revoked), nil
}

// RevokeByJTI is the self-logout path: it reports whether the session exists and
// never pushes a kickout.
func (s *Service) RevokeByJTI(ctx context.Context, username, jti, actor, reason string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	row, err := s.repo.GetByJTI(ctx, username, jti)
	if err != nil {
		return false, internal.NewInternalError("failed to load session", err)
	}
	if row == nil {
		return false, nil
	}
	if row.Status != sessionDatamodel.StatusActive {
		return true, nil
	}

	if reason = truncateReason(reason); reason == "" {
		reason = ReasonLoggedOut
	}
	revoked, err := s.repo.Revoke(ctx, []int64{row.ID}, Revocation{Actor: actor, Reason: reason, At: s.now()})
	if err != nil {
		return false, internal.NewInternalError("failed to revoke session", err)
	}
	metrics.SessionsRevoked.WithLabelValues(metrics.CauseLogout).Add(float64(len(revoked)))
	return true, nil
}

func (s *Service) List(ctx context.Context, caller *internal.Principal, q ListQuery) (*ListResult, error) {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.PageSize == 0 {
		q.PageSize = validation.DefaultPageSize
	}
	if appErr := validation.ValidatePagination(q.Page, q.PageSize); appErr != nil {
		return nil, appErr
	}
	if q.Status != nil && *q.Status != sessionDatamodel.StatusActive && *q.Status != sessionDatamodel.StatusRevoked {
		return nil, internal.NewValidationError("status must be 0 or 1", internal.ErrCodeValidationFailed)
	}

	allowed, err := s.allowedUsers(ctx, caller)
	if err != nil {
		return nil, err
	}

	now := s.now()
	rows, total, err := s.repo.List(ctx, ListFilter{
		Username: q.Username,
		IP:       q.IP,
		Status:   q.Status,
		UserIDs:  allowed,
		Now:      now,
		Offset:   (q.Page - 1) * q.PageSize,
		Limit:    q.PageSize,
	})
	if err != nil {
		return nil, internal.NewInternalError("failed to list sessions", err)
	}

	items := make([]SessionView, 0, len(rows))
	for i := range rows {
		items = append(items, toView(&rows[i], caller, now))
	}
	return &ListResult{Items: items, Total: total, Page: q.Page, PageSize: q.PageSize}, nil
}

func (s *Service) Kick(ctx context.Context, caller *internal.Principal, id int64, reason string) (int, error) {
	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return 0, internal.NewInternalError("failed to load session", err)
	}
	if row == nil {
		return 0, internal.ErrSessionNotFound
	}
	allowed, err := s.allowedUsers(ctx, caller)
	if err != nil {
		return 0, err
	}
	if allowed != nil && !allowed.Has(row.UserID) {
		return 0, internal.ErrScopeDenied
	}
	return s.RevokeSessions(ctx, []int64{id}, caller.Username, reason)
}

// BatchKick revokes the listed sessions. Ids that do not exist are skipped; any
// target outside the caller's scope rejects the whole batch.
func (s *Service) BatchKick(ctx context.Context, caller *internal.Principal, ids []int64, reason string) (int, error) {
	if appErr := validation.ValidateSessionIDs(ids); appErr != nil {
		return 0, appErr
	}
	rows, err := s.repo.FindByIDs(ctx, ids)
	if err != nil {
		return 0, internal.NewInternalError("failed to load sessions", err)
	}
	allowed, err := s.allowedUsers(ctx, caller)
	if err != nil {
		return 0, err
	}

	found := make([]int64, 0, len(rows))
	for _, row := range rows {
		if allowed != nil && !allowed.Has(row.UserID) {
			return 0, internal.ErrScopeDenied
		}
		found = append(found, row.ID)
	}
	return s.RevokeSessions(ctx, found, caller.Username, reason)
}

func (s *Service) allowedUsers(ctx context.Context, caller *internal.Principal) (idset.Set, error) {
	if caller == nil {
		return nil, internal.ErrMissingToken
	}
	allowed, err := s.scope.AllowedUserIDs(ctx, caller)
	if err != nil {
		return nil, internal.NewInternalError("failed to resolve data scope", err)
	}
	return allowed, nil
}

func (s *Service) publishRevoked(ctx context.Context, rows []sessionDatamodel.UserSession, actor, reason string) {
	if s.publisher == nil {
		return
	}
	refs := make([]events.SessionRef, 0, len(rows))
	for _, row := range rows {
		refs = append(refs, events.SessionRef{Username: row.Username, JTI: row.JTI})
	}
	if err := s.publisher.Publish(ctx, events.NewSessionRevokedEvent(refs, actor, reason)); err != nil {
		s.logger.Warn("failed to publish session revocation", "error", err)
	}
}

func toView(row *sessionDatamodel.UserSession, caller *internal.Principal, now time.Time) SessionView {
	view := SessionView{
		ID:           row.ID,
		UserID:       row.UserID,
		Username:     row.Username,
		IP:           row.IP,
		Browser:      row.Browser,
		OS:           row.OS,
		UserAgent:    row.UserAgent,
		CreatedAt:    row.CreatedAt,
		LastSeenAt:   row.LastSeenAt,
		ExpiresAt:    row.ExpiresAt,
		Status:       EffectiveStatus(row, now),
		RevokedAt:    row.RevokedAt,
		RevokeReason: row.RevokeReason,
		RevokedBy:    row.RevokedBy,
		IsCurrent:    caller != nil && row.JTI == caller.JTI && row.Username == caller.Username,
	}
	if view.Status == sessionDatamodel.StatusRevoked && view.RevokeReason == "" && row.Status == sessionDatamodel.StatusActive {
		view.RevokeReason = ReasonExpired
	}
	return view
}

func (m Mode) String() string {
	return string(m)
}
