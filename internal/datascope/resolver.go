package datascope

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/rbac-admin/internal"
	"github.com/frahmantamala/rbac-admin/internal/core/metrics"
	"github.com/frahmantamala/rbac-admin/pkg/idset"
)

type Resolver struct {
	repo                   RepositoryAPI
	tree                   DeptTree
	superuserRole          string
	customIncludesChildren bool
	logger                 *slog.Logger
}

type Option func(*Resolver)

// WithCustomIncludesChildren controls whether departments granted through a
// custom scope also grant their descendants.
func WithCustomIncludesChildren(include bool) Option {
	return func(r *Resolver) { r.customIncludesChildren = include }
}

func NewResolver(repo RepositoryAPI, tree DeptTree, superuserRole string, logger *slog.Logger, opts ...Option) *Resolver {
	if superuserRole == "" {
		superuserRole = internal.DefaultSuperuserRoleCode
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		repo:                   repo,
		tree:                   tree,
		superuserRole:          superuserRole,
		customIncludesChildren: true,
		logger:                 logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) IsSuperuser(p *internal.Principal) bool {
	return p.HasRole(r.superuserRole)
}

func (r *Resolver) Resolve(ctx context.Context, p *internal.Principal) (Result, error) {
	res, err := r.resolve(ctx, p)
	if err != nil {
		metrics.DataScopeResolutions.WithLabelValues("error").Inc()
		return denyAll(), err
	}
	metrics.DataScopeResolutions.WithLabelValues(outcome(res)).Inc()
	return res, nil
}

func (r *Resolver) resolve(ctx context.Context, p *internal.Principal) (Result, error) {
	if p == nil {
		return denyAll(), nil
	}
	if r.IsSuperuser(p) {
		return Result{AllowAll: true, DeptIDs: idset.New()}, nil
	}

	user, err := r.repo.GetUserByUsername(ctx, p.Username)
	if err != nil {
		return denyAll(), fmt.Errorf("load user %q: %w", p.Username, err)
	}
	if user == nil || !user.IsActive {
		return denyAll(), nil
	}

	res := Result{UserID: user.ID, DeptIDs: idset.New()}
	if user.DeptID != nil {
		res.DeptID = *user.DeptID
	}

	roles, err := r.repo.GetEnabledRolesByCodes(ctx, p.Roles)
	if err != nil {
		return denyAll(), fmt.Errorf("load roles: %w", err)
	}
	if len(roles) == 0 {
		res.AllowSelf = true
		return res, nil
	}

	var expandFrom []int64
	var customRoleIDs []int64
	for _, role := range roles {
		kind, ok := ParseKind(role.DataScope)
		if !ok {
			r.logger.Warn("unknown data scope, treating as dept",
				"role", role.Code,
				"data_scope", role.DataScope)
		}
		switch kind {
		case KindAll:
			return Result{AllowAll: true, UserID: res.UserID, DeptID: res.DeptID, DeptIDs: idset.New()}, nil
		case KindSelf:
			res.AllowSelf = true
		case KindDept:
			if res.DeptID > 0 {
				res.DeptIDs.Add(res.DeptID)
			}
		case KindDeptAndChildren:
			if res.DeptID > 0 {
				expandFrom = append(expandFrom, res.DeptID)
			}
		case KindCustom:
			customRoleIDs = append(customRoleIDs, role.ID)
		}
	}

	if len(customRoleIDs) > 0 {
		deptIDs, err := r.repo.GetRoleDeptIDs(ctx, customRoleIDs)
		if err != nil {
			return denyAll(), fmt.Errorf("load custom scope departments: %w", err)
		}
		if r.customIncludesChildren {
			expandFrom = append(expandFrom, deptIDs...)
		} else {
			for _, id := range deptIDs {
				if id > 0 {
					res.DeptIDs.Add(id)
				}
			}
		}
	}

	if len(expandFrom) > 0 {
		expanded, err := r.tree.Descendants(ctx, expandFrom)
		if err != nil {
			return denyAll(), err
		}
		res.DeptIDs.Union(expanded)
	}

	return res, nil
}

// BuildFilter resolves the principal and renders the result against the given columns.
func (r *Resolver) BuildFilter(ctx context.Context, p *internal.Principal, deptColumn, userColumn string) (*Filter, error) {
	res, err := r.Resolve(ctx, p)
	if err != nil {
		return nil, err
	}
	return RenderFilter(res, deptColumn, userColumn), nil
}

// AllowedUserIDs returns nil when every user is visible. Otherwise the set holds the
// users of the scoped departments plus the caller when self-scoped, and may be empty.
func (r *Resolver) AllowedUserIDs(ctx context.Context, p *internal.Principal) (idset.Set, error) {
	res, err := r.Resolve(ctx, p)
	if err != nil {
		return nil, err
	}
	if res.AllowAll {
		return nil, nil
	}

	allowed, err := r.tree.UserIDsInDepts(ctx, res.DeptIDs)
	if err != nil {
		return nil, err
	}
	if res.AllowSelf && res.UserID > 0 {
		allowed.Add(res.UserID)
	}
	return allowed, nil
}

func outcome(res Result) string {
	switch {
	case res.AllowAll:
		return "all"
	case res.DeptIDs.Len() > 0:
		return "dept"
	case res.AllowSelf:
		return "self"
	default:
		return "deny"
	}
}
