package auth

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/frahmantamala/rbac-admin/internal"
	"github.com/frahmantamala/rbac-admin/internal/core/metrics"
	"github.com/frahmantamala/rbac-admin/internal/session"
)

type ServiceAPI interface {
	Login(ctx context.Context, dto LoginDTO, meta session.ClientMeta) (*LoginResult, error)
	Logout(ctx context.Context, p *internal.Principal) error
	AccessCodes(ctx context.Context, p *internal.Principal) ([]string, error)
	Authenticate(ctx context.Context, token string) (*internal.Principal, error)
}

// Service is the main auth service with dependencies
type Service struct {
	repo          RepositoryAPI
	codec         *TokenCodec
	sessions      SessionManager
	tokenTTL      time.Duration
	superuserRole string
	logger        *slog.Logger
}

func NewService(repo RepositoryAPI, codec *TokenCodec, sessions SessionManager, tokenTTL time.Duration, superuserRole string, logger *slog.Logger) *Service {
	if tokenTTL <= 0 {
		tokenTTL = internal.DefaultAccessTokenTTL
	}
	if superuserRole == "" {
		superuserRole = internal.DefaultSuperuserRoleCode
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:          repo,
		codec:         codec,
		sessions:      sessions,
		tokenTTL:      tokenTTL,
		superuserRole: superuserRole,
		logger:        logger,
	}
}

// Login checks credentials, issues an access token and records the session
// behind it. Unknown users and wrong passwords are indistinguishable.
func (s *Service) Login(ctx context.Context, dto LoginDTO, meta session.ClientMeta) (*LoginResult, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	user, err := s.repo.GetUserByUsername(ctx, dto.Username)
	if err != nil {
		return nil, internal.NewInternalError("failed to load user", err)
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(dto.Password)) != nil {
		metrics.LoginAttempts.WithLabelValues(metrics.ResultFailure).Inc()
		s.logger.Info("login rejected", "username", dto.Username, "ip", meta.IP)
		return nil, internal.ErrInvalidCredentials
	}
	if !user.IsActive {
		metrics.LoginAttempts.WithLabelValues(metrics.ResultFailure).Inc()
		return nil, internal.ErrUserInactive
	}

	roles, err := s.repo.GetEnabledRoleCodes(ctx, user.ID)
	if err != nil {
		return nil, internal.NewInternalError("failed to load roles", err)
	}

	issued, err := s.codec.Issue(user.Username, roles, s.tokenTTL)
	if err != nil {
		return nil, internal.NewInternalError("failed to issue token", err)
	}

	owner := session.Owner{ID: user.ID, Username: user.Username}
	if _, err := s.sessions.Create(ctx, owner, issued.JTI, issued.ExpiresAt, meta); err != nil {
		return nil, err
	}

	metrics.LoginAttempts.WithLabelValues(metrics.ResultSuccess).Inc()
	s.logger.Info("user logged in", "username", user.Username, "ip", meta.IP)
	return &LoginResult{AccessToken: issued.Token, ExpiresAt: issued.ExpiresAt}, nil
}

// Logout revokes the caller's own session. Logging out twice is not an error.
func (s *Service) Logout(ctx context.Context, p *internal.Principal) error {
	if p == nil {
		return internal.ErrMissingToken
	}
	if _, err := s.sessions.RevokeByJTI(ctx, p.Username, p.JTI, p.Username, session.ReasonLoggedOut); err != nil {
		return err
	}
	return nil
}

// AccessCodes lists the permission codes granted through the caller's enabled roles.
func (s *Service) AccessCodes(ctx context.Context, p *internal.Principal) ([]string, error) {
	if p == nil {
		return nil, internal.ErrMissingToken
	}
	if p.HasRole(s.superuserRole) {
		return []string{AllCodes}, nil
	}
	if len(p.Roles) == 0 {
		return []string{}, nil
	}
	codes, err := s.repo.GetAccessCodes(ctx, p.Roles)
	if err != nil {
		return nil, internal.NewInternalError("failed to load access codes", err)
	}
	if codes == nil {
		codes = []string{}
	}
	return codes, nil
}

// Authenticate validates the token and then the session it names.
func (s *Service) Authenticate(ctx context.Context, token string) (*internal.Principal, error) {
	if token == "" {
		return nil, internal.ErrMissingToken
	}
	p, err := s.codec.Validate(token)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Validate(ctx, p.Username, p.JTI); err != nil {
		return nil, err
	}
	return p, nil
}

// HashPassword creates a bcrypt hash of the password
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
