package datascope

import (
	"context"
	"strings"

	userDatamodel "github.com/frahmantamala/rbac-admin/internal/core/datamodel/user"
	"github.com/frahmantamala/rbac-admin/pkg/idset"
)

// Kind is the data-scope setting of a role.
type Kind string

const (
	KindAll             Kind = "all"
	KindCustom          Kind = "custom"
	KindDept            Kind = "dept"
	KindDeptAndChildren Kind = "dept_and_children"
	KindSelf            Kind = "self"
)

// ParseKind maps a persisted value to a Kind. Unknown values fall back to KindDept
// and report ok=false so the caller can log them.
func ParseKind(v string) (Kind, bool) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(v))); k {
	case KindAll, KindCustom, KindDept, KindDeptAndChildren, KindSelf:
		return k, true
	default:
		return KindDept, false
	}
}

func (k Kind) String() string {
	return string(k)
}

// Result is the resolved visibility of a principal.
//
// AllowAll wins over everything else. Otherwise a row is visible when its
// department is in DeptIDs, or when AllowSelf is set and the row is owned by UserID.
type Result struct {
	AllowAll  bool
	AllowSelf bool
	UserID    int64
	DeptID    int64
	DeptIDs   idset.Set
}

func denyAll() Result {
	return Result{DeptIDs: idset.New()}
}

// IsDenyAll reports whether the result grants nothing at all.
func (r Result) IsDenyAll() bool {
	return !r.AllowAll && !r.AllowSelf && r.DeptIDs.Len() == 0
}

type RepositoryAPI interface {
	GetUserByUsername(ctx context.Context, username string) (*userDatamodel.User, error)
	GetEnabledRolesByCodes(ctx context.Context, codes []string) ([]userDatamodel.Role, error)
	GetRoleDeptIDs(ctx context.Context, roleIDs []int64) ([]int64, error)
}

// DeptTree is the part of the department hierarchy the resolver needs.
type DeptTree interface {
	Descendants(ctx context.Context, start []int64) (idset.Set, error)
	UserIDsInDepts(ctx context.Context, deptIDs idset.Set) (idset.Set, error)
}
