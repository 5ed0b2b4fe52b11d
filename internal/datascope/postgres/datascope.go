package postgres

import (
	"context"
	"errors"

	userDatamodel "github.com/frahmantamala/rbac-admin/internal/core/datamodel/user"
	"github.com/frahmantamala/rbac-admin/internal/datascope"
	"gorm.io/gorm"
)

type ScopeRepository struct {
	db *gorm.DB
}

func NewScopeRepository(db *gorm.DB) datascope.RepositoryAPI {
	return &ScopeRepository{db: db}
}

func (r *ScopeRepository) GetUserByUsername(ctx context.Context, username string) (*userDatamodel.User, error) {
	var u userDatamodel.User
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *ScopeRepository) GetEnabledRolesByCodes(ctx context.Context, codes []string) ([]userDatamodel.Role, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	var roles []userDatamodel.Role
	err := r.db.WithContext(ctx).
		Where("code IN ? AND status = ?", codes, userDatamodel.RoleStatusEnabled).
		Order("id ASC").
		Find(&roles).Error
	return roles, err
}

func (r *ScopeRepository) GetRoleDeptIDs(ctx context.Context, roleIDs []int64) ([]int64, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&userDatamodel.RoleDept{}).
		Where("role_id IN ?", roleIDs).
		Distinct().
		Pluck("dept_id", &ids).Error
	return ids, err
}
