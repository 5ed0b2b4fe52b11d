package datascope

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/frahmantamala/rbac-admin/pkg/idset"
)

// Filter restricts a query to the rows a principal may see. A nil *Filter means
// unrestricted, and every method accepts a nil receiver.
type Filter struct {
	deptColumn string
	userColumn string
	deptIDs    idset.Set
	allowSelf  bool
	userID     int64
}

// RenderFilter turns a Result into a Filter. It returns nil for allow-all results.
// An empty userColumn disables the self branch.
func RenderFilter(res Result, deptColumn, userColumn string) *Filter {
	if res.AllowAll {
		return nil
	}
	f := &Filter{
		deptColumn: deptColumn,
		userColumn: userColumn,
		deptIDs:    idset.New(),
	}
	if deptColumn != "" && res.DeptIDs != nil {
		f.deptIDs.Union(res.DeptIDs)
	}
	if userColumn != "" && res.AllowSelf && res.UserID > 0 {
		f.allowSelf = true
		f.userID = res.UserID
	}
	return f
}

// DenyAll reports whether the filter matches no row.
func (f *Filter) DenyAll() bool {
	return f != nil && f.deptIDs.Len() == 0 && !f.allowSelf
}

func (f *Filter) Expression() clause.Expression {
	if f == nil {
		return nil
	}
	var exprs []clause.Expression
	if f.deptIDs.Len() > 0 {
		ids := f.deptIDs.Slice()
		values := make([]interface{}, len(ids))
		for i, id := range ids {
			values[i] = id
		}
		exprs = append(exprs, clause.IN{Column: clause.Column{Name: f.deptColumn}, Values: values})
	}
	if f.allowSelf {
		exprs = append(exprs, clause.Eq{Column: clause.Column{Name: f.userColumn}, Value: f.userID})
	}

	switch len(exprs) {
	case 0:
		return clause.Expr{SQL: "1 = 0"}
	case 1:
		return exprs[0]
	default:
		return clause.Or(exprs...)
	}
}

// Scope is meant for gorm's Scopes: db.Scopes(filter.Scope).
func (f *Filter) Scope(db *gorm.DB) *gorm.DB {
	if f == nil {
		return db
	}
	return db.Where(f.Expression())
}

// Matches evaluates the filter for one row in memory.
func (f *Filter) Matches(deptID *int64, ownerID int64) bool {
	if f == nil {
		return true
	}
	if deptID != nil && f.deptIDs.Has(*deptID) {
		return true
	}
	return f.allowSelf && ownerID == f.userID
}
