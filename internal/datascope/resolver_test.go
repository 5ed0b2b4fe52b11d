package datascope_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/frahmantamala/rbac-admin/internal"
	userDatamodel "github.com/frahmantamala/rbac-admin/internal/core/datamodel/user"
	"github.com/frahmantamala/rbac-admin/internal/datascope"
	"github.com/frahmantamala/rbac-admin/internal/dept"
	"github.com/frahmantamala/rbac-admin/pkg/idset"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestDataScope(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "DataScope Suite")
}

func deptID(id int64) *int64 { return &id }

type mockScopeRepository struct {
	users     map[string]*userDatamodel.User
	roles     map[string]userDatamodel.Role
	roleDepts map[int64][]int64
	userCalls int
	err       error
}

func (m *mockScopeRepository) GetUserByUsername(ctx context.Context, username string) (*userDatamodel.User, error) {
	m.userCalls++
	if m.err != nil {
		return nil, m.err
	}
	return m.users[username], nil
}

func (m *mockScopeRepository) GetEnabledRolesByCodes(ctx context.Context, codes []string) ([]userDatamodel.Role, error) {
	var out []userDatamodel.Role
	for _, c := range codes {
		if r, ok := m.roles[c]; ok && r.Status == userDatamodel.RoleStatusEnabled {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockScopeRepository) GetRoleDeptIDs(ctx context.Context, roleIDs []int64) ([]int64, error) {
	var out []int64
	for _, id := range roleIDs {
		out = append(out, m.roleDepts[id]...)
	}
	return out, nil
}

type mockTree struct {
	index       dept.ChildrenIndex
	users       map[int64][]int64
	expandCalls int
}

func (m *mockTree) Descendants(ctx context.Context, start []int64) (idset.Set, error) {
	m.expandCalls++
	return dept.ExpandDescendants(start, m.index), nil
}

func (m *mockTree) UserIDsInDepts(ctx context.Context, deptIDs idset.Set) (idset.Set, error) {
	out := idset.New()
	for id := range deptIDs {
		for _, u := range m.users[id] {
			out.Add(u)
		}
	}
	return out, nil
}

var _ = Describe("ParseKind", func() {
	DescribeTable("maps persisted values",
		func(raw string, want datascope.Kind, known bool) {
			k, ok := datascope.ParseKind(raw)
			Expect(k).To(Equal(want))
			Expect(ok).To(Equal(known))
		},
		Entry("all", "all", datascope.KindAll, true),
		Entry("custom", "custom", datascope.KindCustom, true),
		Entry("dept", "dept", datascope.KindDept, true),
		Entry("dept and children", "dept_and_children", datascope.KindDeptAndChildren, true),
		Entry("self with padding and case", " Self ", datascope.KindSelf, true),
		Entry("unknown falls back to dept", "region", datascope.KindDept, false),
		Entry("empty falls back to dept", "", datascope.KindDept, false),
	)
})

var _ = Describe("Resolver", func() {
	var (
		repo     *mockScopeRepository
		tree     *mockTree
		resolver *datascope.Resolver
		ctx      context.Context
	)

	role := func(id int64, code, scope string) userDatamodel.Role {
		return userDatamodel.Role{ID: id, Code: code, Status: userDatamodel.RoleStatusEnabled, DataScope: scope}
	}

	BeforeEach(func() {
		ctx = context.Background()
		repo = &mockScopeRepository{
			users: map[string]*userDatamodel.User{
				"alice":  {ID: 11, Username: "alice", IsActive: true, DeptID: deptID(5)},
				"bob":    {ID: 12, Username: "bob", IsActive: true, DeptID: deptID(1)},
				"nodept": {ID: 13, Username: "nodept", IsActive: true},
				"gone":   {ID: 14, Username: "gone", IsActive: false, DeptID: deptID(1)},
			},
			roles: map[string]userDatamodel.Role{
				"all":      role(1, "all", "all"),
				"dept":     role(2, "dept", "dept"),
				"self":     role(3, "self", "self"),
				"tree":     role(4, "tree", "dept_and_children"),
				"custom":   role(5, "custom", "custom"),
				"weird":    role(6, "weird", "region"),
				"disabled": {ID: 7, Code: "disabled", Status: userDatamodel.RoleStatusDisabled, DataScope: "all"},
			},
			roleDepts: map[int64][]int64{5: {7}},
		}
		tree = &mockTree{
			index: dept.ChildrenIndex{0: {1}, 1: {2, 5}, 5: {6}, 7: {8}},
			users: map[int64][]int64{1: {12, 14}, 2: {20}, 5: {11}, 6: {30}, 7: {40}, 8: {41}},
		}
		resolver = datascope.NewResolver(repo, tree, "super", slog.New(slog.NewTextHandler(io.Discard, nil)))
	})

	resolve := func(username string, roles ...string) datascope.Result {
		res, err := resolver.Resolve(ctx, &internal.Principal{Username: username, Roles: roles})
		Expect(err).NotTo(HaveOccurred())
		return res
	}

	It("short-circuits the superuser role without touching the database", func() {
		res := resolve("nobody", "dept", "super")
		Expect(res.AllowAll).To(BeTrue())
		Expect(repo.userCalls).To(BeZero())
	})

	It("denies everything for unknown or inactive users", func() {
		Expect(resolve("ghost", "all").IsDenyAll()).To(BeTrue())
		Expect(resolve("gone", "all").IsDenyAll()).To(BeTrue())
	})

	It("denies everything for a nil principal", func() {
		res, err := resolver.Resolve(ctx, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.IsDenyAll()).To(BeTrue())
	})

	It("falls back to self when no enabled role matches", func() {
		res := resolve("alice", "disabled", "missing")
		Expect(res.AllowAll).To(BeFalse())
		Expect(res.AllowSelf).To(BeTrue())
		Expect(res.UserID).To(Equal(int64(11)))
		Expect(res.DeptIDs.Len()).To(BeZero())
	})

	It("lets any all-scoped role win", func() {
		res := resolve("alice", "dept", "all", "self")
		Expect(res.AllowAll).To(BeTrue())
	})

	It("unions dept and self roles", func() {
		res := resolve("alice", "dept", "self")
		Expect(res.AllowAll).To(BeFalse())
		Expect(res.AllowSelf).To(BeTrue())
		Expect(res.DeptIDs.Slice()).To(Equal([]int64{5}))
		Expect(tree.expandCalls).To(BeZero())
	})

	It("expands dept_and_children through the hierarchy", func() {
		res := resolve("bob", "tree")
		Expect(res.DeptIDs.Slice()).To(Equal([]int64{1, 2, 5, 6}))
		Expect(tree.expandCalls).To(Equal(1))
	})

	It("expands custom departments with their descendants by default", func() {
		res := resolve("alice", "custom")
		Expect(res.DeptIDs.Slice()).To(Equal([]int64{7, 8}))
	})

	It("keeps custom departments flat when configured", func() {
		flat := datascope.NewResolver(repo, tree, "super", nil, datascope.WithCustomIncludesChildren(false))
		res, err := flat.Resolve(ctx, &internal.Principal{Username: "alice", Roles: []string{"custom"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.DeptIDs.Slice()).To(Equal([]int64{7}))
		Expect(tree.expandCalls).To(BeZero())
	})

	It("treats unknown scope values as dept", func() {
		res := resolve("alice", "weird")
		Expect(res.DeptIDs.Slice()).To(Equal([]int64{5}))
		Expect(res.AllowSelf).To(BeFalse())
	})

	It("renders a deny-all filter for a dept-scoped user without department", func() {
		res := resolve("nodept", "dept")
		Expect(res.IsDenyAll()).To(BeTrue())

		f := datascope.RenderFilter(res, "dept_id", "owner_id")
		Expect(f).NotTo(BeNil())
		Expect(f.DenyAll()).To(BeTrue())
		Expect(f.Matches(deptID(1), 13)).To(BeFalse())
	})

	It("fails closed on repository errors", func() {
		repo.err = errors.New("connection refused")
		res, err := resolver.Resolve(ctx, &internal.Principal{Username: "alice", Roles: []string{"dept"}})
		Expect(err).To(MatchError(ContainSubstring("connection refused")))
		Expect(res.IsDenyAll()).To(BeTrue())

		f, err := resolver.BuildFilter(ctx, &internal.Principal{Username: "alice", Roles: []string{"dept"}}, "dept_id", "owner_id")
		Expect(err).To(HaveOccurred())
		Expect(f).To(BeNil())
	})

	Describe("AllowedUserIDs", func() {
		It("returns nil for allow-all", func() {
			ids, err := resolver.AllowedUserIDs(ctx, &internal.Principal{Username: "alice", Roles: []string{"super"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(BeNil())
		})

		It("returns the users of scoped departments plus self", func() {
			ids, err := resolver.AllowedUserIDs(ctx, &internal.Principal{Username: "bob", Roles: []string{"tree", "self"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(ids.Slice()).To(Equal([]int64{11, 12, 14, 20, 30}))
		})

		It("returns an empty non-nil set for deny-all", func() {
			ids, err := resolver.AllowedUserIDs(ctx, &internal.Principal{Username: "ghost", Roles: []string{"dept"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).NotTo(BeNil())
			Expect(ids.Len()).To(BeZero())
		})
	})
})

var _ = Describe("Filter", func() {
	It("is unrestricted when nil", func() {
		f := datascope.RenderFilter(datascope.Result{AllowAll: true}, "dept_id", "owner_id")
		Expect(f).To(BeNil())
		Expect(f.Matches(nil, 0)).To(BeTrue())
		Expect(f.DenyAll()).To(BeFalse())
		Expect(f.Expression()).To(BeNil())
	})

	It("matches department members or the owner", func() {
		f := datascope.RenderFilter(datascope.Result{AllowSelf: true, UserID: 42, DeptIDs: idset.New(5)}, "dept_id", "owner_id")
		Expect(f.Matches(deptID(5), 99)).To(BeTrue())
		Expect(f.Matches(deptID(7), 42)).To(BeTrue())
		Expect(f.Matches(deptID(7), 1)).To(BeFalse())
		Expect(f.Matches(nil, 1)).To(BeFalse())
	})

	It("drops the self branch without a user column", func() {
		f := datascope.RenderFilter(datascope.Result{AllowSelf: true, UserID: 42, DeptIDs: idset.New()}, "dept_id", "")
		Expect(f.DenyAll()).To(BeTrue())
	})
})
