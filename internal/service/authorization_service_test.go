package service

import (
	"errors"
	"testing"

	"sppg/internal/apperror"
	"sppg/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func role(name string, priority int, active bool, route string, perms ...string) model.Role {
	r := model.Role{
		ID:          uuid.New(),
		Name:        name,
		Priority:    priority,
		IsActive:    active,
		Permissions: datatypes.JSONSlice[string](perms),
	}
	if route != "" {
		r.Metadata = datatypes.JSONMap{model.MetadataDashboardRoute: route}
	}
	return r
}

func TestEvaluate(t *testing.T) {
	catalog := map[string]bool{"menus.read": true, "menus.approve": true}

	tests := []struct {
		name       string
		roles      []model.Role
		permission string
		want       bool
	}{
		{"listed on active role", []model.Role{role("A", 1, true, "", "menus.read")}, "menus.read", true},
		{"union across roles", []model.Role{role("A", 1, true, "", "menus.read"), role("B", 1, true, "", "menus.approve")}, "menus.approve", true},
		{"inactive role ignored", []model.Role{role("A", 1, false, "", "menus.read")}, "menus.read", false},
		{"not in catalog", []model.Role{role("A", 1, true, "", "finance.manage")}, "finance.manage", false},
		{"no wildcard matching", []model.Role{role("A", 1, true, "", "menus.*")}, "menus.read", false},
		{"no roles", nil, "menus.read", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.roles, catalog, tt.permission))
		})
	}
}

func TestResolveDashboard(t *testing.T) {
	assert.Equal(t, DefaultDashboardRoute, ResolveDashboard(nil))

	roles := []model.Role{
		role("DRIVER", 20, true, "/deliveries"),
		role("CHEF", 50, true, "/kitchen"),
		role("SUPER_ADMIN", 100, false, "/admin"),
	}
	assert.Equal(t, "/kitchen", ResolveDashboard(roles), "inactive roles do not count")

	tied := []model.Role{
		role("FINANCE_STAFF", 50, true, "/finance"),
		role("CHEF", 50, true, "/kitchen"),
	}
	assert.Equal(t, "/kitchen", ResolveDashboard(tied), "ties resolve to the lower name")

	noRoute := []model.Role{role("CUSTOM", 10, true, "")}
	assert.Equal(t, DefaultDashboardRoute, ResolveDashboard(noRoute))
}

func TestChefPermissions(t *testing.T) {
	h := newHarness(t)
	h.seedCatalog()
	chef := h.userWithRoles("CHEF")

	ok, err := h.authz.HasPermission(h.ctx, chef, "finance.manage")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = h.authz.HasPermission(h.ctx, chef, "production.manage")
	require.NoError(t, err)
	assert.True(t, ok)

	err = h.authz.Require(h.ctx, chef, "finance.manage")
	var denied *apperror.PermissionDeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, "finance.manage", denied.Permission)

	access, err := h.authz.ResolveAccess(h.ctx, chef)
	require.NoError(t, err)
	assert.Equal(t, "/kitchen", access.DashboardRoute)
	assert.True(t, access.Has("production.create"))
	assert.IsNonDecreasing(t, access.Permissions)
}

func TestDeactivatedPermissionIsDeniedEverywhere(t *testing.T) {
	h := newHarness(t)
	h.seedCatalog()
	chef := h.userWithRoles("CHEF")
	qc := h.userWithRoles("QUALITY_CONTROL")

	// warm the cache
	ok, err := h.authz.HasPermission(h.ctx, chef, "quality.manage")
	require.NoError(t, err)
	require.True(t, ok)

	perms, err := h.roles.FindPermissionsByNames(h.ctx, []string{"quality.manage"})
	require.NoError(t, err)
	require.Len(t, perms, 1)
	_, err = h.roleSvc.SetPermissionActive(h.ctx, perms[0].ID, false)
	require.NoError(t, err)

	for _, user := range []uuid.UUID{chef, qc} {
		ok, err := h.authz.HasPermission(h.ctx, user, "quality.manage")
		require.NoError(t, err)
		assert.False(t, ok)
	}

	chefRole, err := h.roles.FindByName(h.ctx, "CHEF")
	require.NoError(t, err)
	assert.Contains(t, []string(chefRole.Permissions), "quality.manage", "role list is left untouched")

	_, err = h.roleSvc.SetPermissionActive(h.ctx, perms[0].ID, true)
	require.NoError(t, err)
	ok, err = h.authz.HasPermission(h.ctx, chef, "quality.manage")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInactiveRoleAndUserAreDenied(t *testing.T) {
	h := newHarness(t)
	h.seedCatalog()

	custom, err := h.roleSvc.CreateRole(h.ctx, CreateRoleRequest{Name: "menu_reviewer", Permissions: []string{"menus.approve"}})
	require.NoError(t, err)
	reviewer := h.userWithRoles("MENU_REVIEWER")

	ok, err := h.authz.HasPermission(h.ctx, reviewer, "menus.approve")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = h.roleSvc.SetRoleActive(h.ctx, custom.ID, false)
	require.NoError(t, err)
	ok, err = h.authz.HasPermission(h.ctx, reviewer, "menus.approve")
	require.NoError(t, err)
	assert.False(t, ok)

	driver := h.userWithRoles("DRIVER")
	active := false
	_, err = h.userSvc.UpdateUser(h.ctx, driver, UpdateUserRequest{IsActive: &active})
	require.NoError(t, err)
	ok, err = h.authz.HasPermission(h.ctx, driver, "delivery.update")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = h.authz.HasPermission(h.ctx, uuid.New(), "dashboard.read")
	require.NoError(t, err)
	assert.False(t, ok, "unknown users are denied without an error")
}

func TestUnknownPermissionNameIsDenied(t *testing.T) {
	h := newHarness(t)
	h.seedCatalog()
	admin := h.userWithRoles("SUPER_ADMIN")

	ok, err := h.authz.HasPermission(h.ctx, admin, "rockets.launch")
	require.NoError(t, err)
	assert.False(t, ok)
}
