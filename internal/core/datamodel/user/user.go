package user

import "time"

type User struct {
	ID           int64     `gorm:"primaryKey"`
	Username     string    `gorm:"column:username;size:50;uniqueIndex;not null"`
	PasswordHash string    `gorm:"column:password_hash;not null"`
	RealName     string    `gorm:"column:real_name;size:50"`
	IsActive     bool      `gorm:"column:is_active;not null"`
	DeptID       *int64    `gorm:"column:dept_id;index"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (User) TableName() string { return "sys_user" }

type Role struct {
	ID        int64     `gorm:"primaryKey"`
	Code      string    `gorm:"column:code;size:50;uniqueIndex;not null"`
	Name      string    `gorm:"column:name;size:50;not null"`
	Status    int       `gorm:"column:status;not null"`
	DataScope string    `gorm:"column:data_scope;size:32;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Role) TableName() string { return "sys_role" }

const (
	RoleStatusDisabled = 0
	RoleStatusEnabled  = 1
)

type UserRole struct {
	UserID int64 `gorm:"column:user_id;primaryKey"`
	RoleID int64 `gorm:"column:role_id;primaryKey"`
}

func (UserRole) TableName() string { return "sys_user_role" }

// RoleDept holds the department set of a role with the custom data scope.
type RoleDept struct {
	RoleID int64 `gorm:"column:role_id;primaryKey"`
	DeptID int64 `gorm:"column:dept_id;primaryKey"`
}

func (RoleDept) TableName() string { return "sys_role_dept" }

type Menu struct {
	ID       int64  `gorm:"primaryKey"`
	ParentID *int64 `gorm:"column:parent_id"`
	Name     string `gorm:"column:name;size:64;not null"`
	AuthCode string `gorm:"column:auth_code;size:128;index"`
	Status   int    `gorm:"column:status;not null"`
}

func (Menu) TableName() string { return "sys_menu" }

const (
	MenuStatusDisabled = 0
	MenuStatusEnabled  = 1
)

type RoleMenu struct {
	RoleID int64 `gorm:"column:role_id;primaryKey"`
	MenuID int64 `gorm:"column:menu_id;primaryKey"`
}

func (RoleMenu) TableName() string { return "sys_role_menu" }
