package auth

import (
	"context"

	"github.com/frahmantamala/rbac-admin/internal"
)

// CodeSource resolves the permission codes of a set of role codes.
type CodeSource interface {
	GetAccessCodes(ctx context.Context, roleCodes []string) ([]string, error)
}

type PermissionChecker struct {
	codes         CodeSource
	superuserRole string
}

func NewPermissionChecker(codes CodeSource, superuserRole string) *PermissionChecker {
	if superuserRole == "" {
		superuserRole = internal.DefaultSuperuserRoleCode
	}
	return &PermissionChecker{codes: codes, superuserRole: superuserRole}
}

// HasPermission reports whether any enabled role of the principal grants
// permission. The superuser role grants everything without a lookup.
func (c *PermissionChecker) HasPermission(ctx context.Context, p *internal.Principal, permission string) (bool, error) {
	if p == nil {
		return false, nil
	}
	if p.HasRole(c.superuserRole) {
		return true, nil
	}
	if len(p.Roles) == 0 {
		return false, nil
	}
	codes, err := c.codes.GetAccessCodes(ctx, p.Roles)
	if err != nil {
		return false, err
	}
	return HasAnyPermission(codes, []string{permission}), nil
}

func HasAnyPermission(userPermissions []string, requiredPermissions []string) bool {
	for _, userPerm := range userPermissions {
		if userPerm == AllCodes {
			return true
		}
		for _, requiredPerm := range requiredPermissions {
			if userPerm == requiredPerm {
				return true
			}
		}
	}
	return false
}
