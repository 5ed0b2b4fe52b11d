package postgres

import (
	"context"

	"github.com/frahmantamala/rbac-admin/internal/dept"
	"github.com/jmoiron/sqlx"
)

type DeptRepository struct {
	db *sqlx.DB
}

func NewDeptRepository(db *sqlx.DB) dept.RepositoryAPI {
	return &DeptRepository{db: db}
}

func (r *DeptRepository) ListNodes(ctx context.Context) ([]dept.Node, error) {
	var nodes []dept.Node
	err := r.db.SelectContext(ctx, &nodes, `SELECT id, parent_id FROM sys_dept`)
	return nodes, err
}

func (r *DeptRepository) ListUserIDsByDeptIDs(ctx context.Context, deptIDs []int64) ([]int64, error) {
	if len(deptIDs) == 0 {
		return []int64{}, nil
	}
	query, args, err := sqlx.In(`SELECT id FROM sys_user WHERE dept_id IN (?)`, deptIDs)
	if err != nil {
		return nil, err
	}
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return ids, nil
}
