package service

import (
	"errors"
	"testing"

	"sppg/internal/apperror"
	"sppg/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestSeedDefaultsIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.seedCatalog()

	chef, err := h.roles.FindByName(h.ctx, "CHEF")
	require.NoError(t, err)
	_, err = h.roleSvc.UpdateRolePermissions(h.ctx, chef.ID, UpdateRolePermissionsRequest{Permissions: []string{"dashboard.read"}})
	require.NoError(t, err)

	h.seedCatalog()

	perms, err := h.roleSvc.ListPermissions(h.ctx)
	require.NoError(t, err)
	assert.Len(t, perms, len(DefaultPermissions))

	roles, err := h.roleSvc.ListRoles(h.ctx)
	require.NoError(t, err)
	assert.Len(t, roles, len(DefaultRoles))

	chef, err = h.roles.FindByName(h.ctx, "CHEF")
	require.NoError(t, err)
	assert.Equal(t, []string{"dashboard.read"}, []string(chef.Permissions), "edited roles survive a re-seed")
	assert.True(t, chef.IsSystemRole)
	assert.Equal(t, "/kitchen", chef.DashboardRoute())
}

func TestRolePermissionsMustBeKnownAndActive(t *testing.T) {
	h := newHarness(t)
	h.seedCatalog()

	_, err := h.roleSvc.CreateRole(h.ctx, CreateRoleRequest{
		Name:        "auditor",
		Permissions: []string{"zeta.read", "audit.read", "alpha.write"},
	})
	var unknown *apperror.UnknownPermissionError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, []string{"alpha.write", "zeta.read"}, unknown.Names)

	_, err = h.roles.FindByName(h.ctx, "AUDITOR")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound, "nothing persisted on failure")

	perms, err := h.roles.FindPermissionsByNames(h.ctx, []string{"reports.read"})
	require.NoError(t, err)
	_, err = h.roleSvc.SetPermissionActive(h.ctx, perms[0].ID, false)
	require.NoError(t, err)

	_, err = h.roleSvc.CreateRole(h.ctx, CreateRoleRequest{Name: "auditor", Permissions: []string{"reports.read"}})
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, []string{"reports.read"}, unknown.Names)

	role, err := h.roleSvc.CreateRole(h.ctx, CreateRoleRequest{
		Name:        " auditor ",
		Permissions: []string{"audit.read", "dashboard.read", "audit.read"},
	})
	require.NoError(t, err)
	assert.Equal(t, "AUDITOR", role.Name)
	assert.Equal(t, []string{"audit.read", "dashboard.read"}, []string(role.Permissions))
	assert.Contains(t, h.auditActions(role.ID), model.ActionCreateRole)

	_, err = h.roleSvc.CreateRole(h.ctx, CreateRoleRequest{Name: "Auditor"})
	var invalid *apperror.ValidationError
	assert.True(t, errors.As(err, &invalid), "duplicate names are rejected")
}

func TestSystemRoleGuards(t *testing.T) {
	h := newHarness(t)
	h.seedCatalog()
	admin, err := h.roles.FindByName(h.ctx, "SUPER_ADMIN")
	require.NoError(t, err)

	var sysErr *apperror.SystemRoleError

	_, err = h.roleSvc.UpdateRolePermissions(h.ctx, admin.ID, UpdateRolePermissionsRequest{Permissions: []string{}})
	require.True(t, errors.As(err, &sysErr))
	assert.Equal(t, "SUPER_ADMIN", sysErr.Role)

	_, err = h.roleSvc.SetRoleActive(h.ctx, admin.ID, false)
	assert.True(t, errors.As(err, &sysErr))

	err = h.roleSvc.DeleteRole(h.ctx, admin.ID)
	assert.True(t, errors.As(err, &sysErr))

	_, err = h.roleSvc.UpdateRolePermissions(h.ctx, admin.ID, UpdateRolePermissionsRequest{Permissions: []string{"dashboard.read"}})
	assert.NoError(t, err, "narrowing a system role is allowed")

	custom, err := h.roleSvc.CreateRole(h.ctx, CreateRoleRequest{Name: "temp"})
	require.NoError(t, err)
	require.NoError(t, h.roleSvc.DeleteRole(h.ctx, custom.ID))
	_, err = h.roleSvc.GetRole(h.ctx, custom.ID)
	var notFound *apperror.NotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestCreatePermission(t *testing.T) {
	h := newHarness(t)
	h.seedCatalog()

	perm, err := h.roleSvc.CreatePermission(h.ctx, CreatePermissionRequest{
		Name:        "suppliers.approve",
		DisplayName: "Approve suppliers",
		Category:    "Procurement",
	})
	require.NoError(t, err)
	assert.Equal(t, "suppliers", perm.Module)
	assert.Equal(t, "approve", perm.Action)
	assert.True(t, perm.IsActive)

	_, err = h.roleSvc.CreatePermission(h.ctx, CreatePermissionRequest{Name: "suppliers.approve", DisplayName: "x", Category: "x"})
	var invalid *apperror.ValidationError
	assert.True(t, errors.As(err, &invalid))

	for _, bad := range []string{"suppliers", "Suppliers.Read", "a.b.c", ".read"} {
		_, err = h.roleSvc.CreatePermission(h.ctx, CreatePermissionRequest{Name: bad, DisplayName: "x", Category: "x"})
		assert.True(t, errors.As(err, &invalid), bad)
	}
}

func TestCheckConsistencyReportsDrift(t *testing.T) {
	h := newHarness(t)
	h.seedCatalog()

	reports, err := h.roleSvc.CheckConsistency(h.ctx)
	require.NoError(t, err)
	assert.Empty(t, reports)

	perms, err := h.roles.FindPermissionsByNames(h.ctx, []string{"finance.manage"})
	require.NoError(t, err)
	_, err = h.roleSvc.SetPermissionActive(h.ctx, perms[0].ID, false)
	require.NoError(t, err)

	finance, err := h.roles.FindByName(h.ctx, "FINANCE_STAFF")
	require.NoError(t, err)
	finance.Permissions = append(finance.Permissions, "legacy.export")
	require.NoError(t, h.roles.Update(h.ctx, finance))

	reports, err = h.roleSvc.CheckConsistency(h.ctx)
	require.NoError(t, err)

	byRole := map[string]RoleConsistencyReport{}
	for _, r := range reports {
		byRole[r.RoleName] = r
	}
	require.Contains(t, byRole, "FINANCE_STAFF")
	assert.Equal(t, []string{"legacy.export"}, byRole["FINANCE_STAFF"].Unknown)
	assert.Equal(t, []string{"finance.manage"}, byRole["FINANCE_STAFF"].Inactive)
	assert.Contains(t, byRole, "SUPER_ADMIN")
	assert.NotContains(t, byRole, "CHEF")
}
