package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/frahmantamala/rbac-admin/internal/auth"
	"github.com/frahmantamala/rbac-admin/internal/core/datamodel/user"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) auth.RepositoryAPI {
	return &Repository{db: db}
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*user.User, error) {
	var u user.User
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repository) GetEnabledRoleCodes(ctx context.Context, userID int64) ([]string, error) {
	var codes []string
	err := r.db.WithContext(ctx).
		Table("sys_role AS r").
		Joins("JOIN sys_user_role ur ON ur.role_id = r.id").
		Where("ur.user_id = ? AND r.status = ?", userID, user.RoleStatusEnabled).
		Order("r.code").
		Pluck("r.code", &codes).Error
	if err != nil {
		return nil, err
	}
	return codes, nil
}

// GetAccessCodes returns the distinct non-empty menu auth codes reachable
// through the enabled roles among roleCodes.
func (r *Repository) GetAccessCodes(ctx context.Context, roleCodes []string) ([]string, error) {
	if len(roleCodes) == 0 {
		return []string{}, nil
	}
	var codes []string
	query := `SELECT DISTINCT m.auth_code
	          FROM sys_menu m
	          JOIN sys_role_menu rm ON rm.menu_id = m.id
	          JOIN sys_role r ON r.id = rm.role_id
	          WHERE r.code IN ? AND r.status = ? AND m.status = ? AND m.auth_code <> ''
	          ORDER BY m.auth_code`
	err := r.db.WithContext(ctx).
		Raw(query, roleCodes, user.RoleStatusEnabled, user.MenuStatusEnabled).
		Scan(&codes).Error
	if err != nil {
		return nil, err
	}
	return codes, nil
}
