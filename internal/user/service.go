package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/rbac-admin/internal"
	userDatamodel "github.com/frahmantamala/rbac-admin/internal/core/datamodel/user"
)

var ErrNotFound = internal.NewNotFoundError("user not found", internal.ErrCodeUserNotFound)

type Repository interface {
	GetByUsername(ctx context.Context, username string) (*userDatamodel.User, error)
	GetDeptName(ctx context.Context, deptID int64) (string, error)
}

type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// GetProfile loads the caller's profile. Roles come from the token so the
// answer matches what the rest of the request was authorized with.
func (s *Service) GetProfile(ctx context.Context, p *internal.Principal) (*Profile, error) {
	if p == nil {
		return nil, internal.ErrMissingToken
	}

	u, err := s.repo.GetByUsername(ctx, p.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}
	if u == nil {
		return nil, ErrNotFound
	}

	profile := FromDataModel(u)
	if p.Roles != nil {
		profile.Roles = append(profile.Roles, p.Roles...)
	}

	if u.DeptID != nil {
		name, err := s.repo.GetDeptName(ctx, *u.DeptID)
		if err != nil {
			s.logger.Warn("failed to load department name", "dept_id", *u.DeptID, "error", err)
		} else {
			profile.DeptName = name
		}
	}

	return profile, nil
}
