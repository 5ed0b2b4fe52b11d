package dept

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/rbac-admin/internal/core/metrics"
	"github.com/frahmantamala/rbac-admin/pkg/idset"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

const childrenIndexKey = "children"

// Hierarchy serves the department children index from a short-lived cache.
type Hierarchy struct {
	repo   RepositoryAPI
	cache  *expirable.LRU[string, ChildrenIndex]
	sf     singleflight.Group
	logger *slog.Logger
}

func NewHierarchy(repo RepositoryAPI, ttl time.Duration, logger *slog.Logger) *Hierarchy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hierarchy{
		repo:   repo,
		cache:  expirable.NewLRU[string, ChildrenIndex](1, nil, ttl),
		logger: logger,
	}
}

func (h *Hierarchy) ChildrenIndex(ctx context.Context) (ChildrenIndex, error) {
	if idx, ok := h.cache.Get(childrenIndexKey); ok {
		return idx, nil
	}

	// The load is shared by every waiter, so one caller's cancellation must not fail the rest.
	loadCtx := context.WithoutCancel(ctx)
	result, err, _ := h.sf.Do(childrenIndexKey, func() (interface{}, error) {
		if idx, ok := h.cache.Get(childrenIndexKey); ok {
			return idx, nil
		}
		nodes, err := h.repo.ListNodes(loadCtx)
		if err != nil {
			return nil, err
		}
		idx := BuildChildrenIndex(nodes)
		h.cache.Add(childrenIndexKey, idx)
		metrics.DeptIndexLoads.Inc()
		h.logger.Debug("department children index rebuilt", "departments", len(nodes))
		return idx, nil
	})
	if err != nil {
		return nil, fmt.Errorf("load department index: %w", err)
	}
	return result.(ChildrenIndex), nil
}

// Descendants expands the start departments through the cached index.
func (h *Hierarchy) Descendants(ctx context.Context, start []int64) (idset.Set, error) {
	idx, err := h.ChildrenIndex(ctx)
	if err != nil {
		return nil, err
	}
	return ExpandDescendants(start, idx), nil
}

// Invalidate drops the cached index. Department mutations must call it.
func (h *Hierarchy) Invalidate() {
	h.cache.Purge()
}

func (h *Hierarchy) UserIDsInDepts(ctx context.Context, deptIDs idset.Set) (idset.Set, error) {
	if deptIDs.Len() == 0 {
		return idset.New(), nil
	}
	ids, err := h.repo.ListUserIDsByDeptIDs(ctx, deptIDs.Slice())
	if err != nil {
		return nil, fmt.Errorf("list users by department: %w", err)
	}
	return idset.New(ids...), nil
}
