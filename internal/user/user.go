package user

import (
	userDatamodel "github.com/frahmantamala/rbac-admin/internal/core/datamodel/user"
)

// Profile is what the current user sees about themselves.
type Profile struct {
	ID       int64    `json:"userId"`
	Username string   `json:"username"`
	RealName string   `json:"realName"`
	Roles    []string `json:"roles"`
	DeptID   *int64   `json:"deptId,omitempty"`
	DeptName string   `json:"deptName,omitempty"`
}

func FromDataModel(u *userDatamodel.User) *Profile {
	return &Profile{
		ID:       u.ID,
		Username: u.Username,
		RealName: u.RealName,
		Roles:    []string{},
		DeptID:   u.DeptID,
	}
}
