package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"sppg/internal/apperror"
	"sppg/internal/model"
	"sppg/internal/repository"
	"sppg/pkg/validation"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreatePermissionRequest struct {
	Name        string `json:"name" binding:"required,permission_name"`
	DisplayName string `json:"display_name" binding:"required"`
	Description string `json:"description"`
	Category    string `json:"category" binding:"required"`
}

type UpdatePermissionRequest struct {
	DisplayName *string `json:"display_name"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
}

type SetActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

type CreateRoleRequest struct {
	Name        string                 `json:"name" binding:"required"`
	Description string                 `json:"description"`
	Color       string                 `json:"color"`
	Priority    int                    `json:"priority"`
	Permissions []string               `json:"permissions"`
	Metadata    map[string]interface{} `json:"metadata"`
}

type UpdateRoleRequest struct {
	Description *string                `json:"description"`
	Color       *string                `json:"color"`
	Priority    *int                   `json:"priority"`
	Metadata    map[string]interface{} `json:"metadata"`
}

type UpdateRolePermissionsRequest struct {
	Permissions []string `json:"permissions" binding:"required"`
}

// RoleConsistencyReport lists names on a role that no longer resolve to an active permission.
type RoleConsistencyReport struct {
	RoleID   uuid.UUID `json:"role_id"`
	RoleName string    `json:"role_name"`
	Unknown  []string  `json:"unknown"`
	Inactive []string  `json:"inactive"`
}

// PermissionCacheInvalidator is notified after any write that changes effective permissions.
type PermissionCacheInvalidator interface {
	InvalidatePermissionCache()
}

// --- Interface ---

type RoleService interface {
	ListRoles(ctx context.Context) ([]model.Role, error)
	GetRole(ctx context.Context, id uuid.UUID) (*model.Role, error)
	CreateRole(ctx context.Context, req CreateRoleRequest) (*model.Role, error)
	UpdateRole(ctx context.Context, id uuid.UUID, req UpdateRoleRequest) (*model.Role, error)
	UpdateRolePermissions(ctx context.Context, id uuid.UUID, req UpdateRolePermissionsRequest) (*model.Role, error)
	SetRoleActive(ctx context.Context, id uuid.UUID, active bool) (*model.Role, error)
	DeleteRole(ctx context.Context, id uuid.UUID) error

	ListPermissions(ctx context.Context) ([]model.Permission, error)
	CreatePermission(ctx context.Context, req CreatePermissionRequest) (*model.Permission, error)
	UpdatePermission(ctx context.Context, id uuid.UUID, req UpdatePermissionRequest) (*model.Permission, error)
	SetPermissionActive(ctx context.Context, id uuid.UUID, active bool) (*model.Permission, error)

	CheckConsistency(ctx context.Context) ([]RoleConsistencyReport, error)
	SeedDefaults(ctx context.Context) error
}

type roleService struct {
	deps  Deps
	roles repository.RoleRepository
	cache PermissionCacheInvalidator
}

func NewRoleService(deps Deps, roles repository.RoleRepository, cache PermissionCacheInvalidator) RoleService {
	return &roleService{deps: deps, roles: roles, cache: cache}
}

// --- Implementation ---

func (s *roleService) invalidate() {
	if s.cache != nil {
		s.cache.InvalidatePermissionCache()
	}
}

func (s *roleService) ListRoles(ctx context.Context) ([]model.Role, error) {
	roles, err := s.roles.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch roles: %w", err)
	}
	return roles, nil
}

func (s *roleService) GetRole(ctx context.Context, id uuid.UUID) (*model.Role, error) {
	role, err := s.roles.FindByID(ctx, id)
	if err != nil {
		return nil, loadErr(err, model.EntityRole, id)
	}
	return role, nil
}

// validatePermissionNames enforces that every listed name is a known, active permission.
// It returns the deduplicated, sorted set.
func (s *roleService) validatePermissionNames(ctx context.Context, names []string) ([]string, error) {
	seen := make(map[string]struct{}, len(names))
	unique := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		unique = append(unique, n)
	}

	perms, err := s.roles.FindPermissionsByNames(ctx, unique)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch permissions: %w", err)
	}
	active := make(map[string]bool, len(perms))
	for _, p := range perms {
		if p.IsActive {
			active[p.Name] = true
		}
	}

	var unknown []string
	for _, n := range unique {
		if !active[n] {
			unknown = append(unknown, n)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &apperror.UnknownPermissionError{Names: unknown}
	}

	sort.Strings(unique)
	return unique, nil
}

func (s *roleService) CreateRole(ctx context.Context, req CreateRoleRequest) (*model.Role, error) {
	name := strings.ToUpper(strings.TrimSpace(req.Name))
	if name == "" {
		return nil, apperror.Invalid("name", "must not be empty")
	}

	var role *model.Role
	err := s.deps.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.roles.FindByName(txCtx, name); err == nil {
			return apperror.Invalid("name", fmt.Sprintf("role %s already exists", name))
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check role name: %w", err)
		}

		perms, err := s.validatePermissionNames(txCtx, req.Permissions)
		if err != nil {
			return err
		}

		role = &model.Role{
			Name:        name,
			Description: req.Description,
			Color:       req.Color,
			Priority:    req.Priority,
			IsActive:    true,
			Permissions: datatypes.JSONSlice[string](perms),
			Metadata:    datatypes.JSONMap(req.Metadata),
		}
		if err := s.roles.Create(txCtx, role); err != nil {
			return fmt.Errorf("failed to create role: %w", err)
		}
		return s.deps.audits().record(txCtx, model.ActionCreateRole, model.EntityRole, role.ID, role.Name,
			map[string]interface{}{"permissions": perms, "priority": role.Priority})
	})
	if err != nil {
		return nil, err
	}

	s.invalidate()
	return role, nil
}

func (s *roleService) UpdateRole(ctx context.Context, id uuid.UUID, req UpdateRoleRequest) (*model.Role, error) {
	var role *model.Role
	err := s.deps.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		role, err = s.roles.FindByID(txCtx, id)
		if err != nil {
			return loadErr(err, model.EntityRole, id)
		}

		if req.Description != nil {
			role.Description = *req.Description
		}
		if req.Color != nil {
			role.Color = *req.Color
		}
		if req.Priority != nil {
			role.Priority = *req.Priority
		}
		if req.Metadata != nil {
			role.Metadata = datatypes.JSONMap(req.Metadata)
		}

		if err := s.roles.Update(txCtx, role); err != nil {
			return fmt.Errorf("failed to update role: %w", err)
		}
		return s.deps.audits().record(txCtx, model.ActionUpdateRole, model.EntityRole, role.ID, role.Name, req)
	})
	if err != nil {
		return nil, err
	}

	s.invalidate()
	return role, nil
}

func (s *roleService) UpdateRolePermissions(ctx context.Context, id uuid.UUID, req UpdateRolePermissionsRequest) (*model.Role, error) {
	var role *model.Role
	err := s.deps.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		role, err = s.roles.FindByID(txCtx, id)
		if err != nil {
			return loadErr(err, model.EntityRole, id)
		}

		perms, err := s.validatePermissionNames(txCtx, req.Permissions)
		if err != nil {
			return err
		}
		if role.IsSystemRole && len(perms) == 0 {
			return &apperror.SystemRoleError{Role: role.Name, Reason: "cannot remove every permission"}
		}

		before := []string(role.Permissions)
		role.Permissions = datatypes.JSONSlice[string](perms)
		if err := s.roles.Update(txCtx, role); err != nil {
			return fmt.Errorf("failed to update permissions: %w", err)
		}
		return s.deps.audits().record(txCtx, model.ActionUpdateRole, model.EntityRole, role.ID, role.Name,
			map[string]interface{}{"before": before, "after": perms})
	})
	if err != nil {
		return nil, err
	}

	s.invalidate()
	return role, nil
}

func (s *roleService) SetRoleActive(ctx context.Context, id uuid.UUID, active bool) (*model.Role, error) {
	var role *model.Role
	err := s.deps.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		role, err = s.roles.FindByID(txCtx, id)
		if err != nil {
			return loadErr(err, model.EntityRole, id)
		}
		if role.IsSystemRole && !active {
			return &apperror.SystemRoleError{Role: role.Name, Reason: "cannot be deactivated"}
		}

		role.IsActive = active
		if err := s.roles.Update(txCtx, role); err != nil {
			return fmt.Errorf("failed to update role: %w", err)
		}
		return s.deps.audits().record(txCtx, model.ActionUpdateRole, model.EntityRole, role.ID, role.Name,
			map[string]interface{}{"is_active": active})
	})
	if err != nil {
		return nil, err
	}

	s.invalidate()
	return role, nil
}

func (s *roleService) DeleteRole(ctx context.Context, id uuid.UUID) error {
	err := s.deps.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		role, err := s.roles.FindByID(txCtx, id)
		if err != nil {
			return loadErr(err, model.EntityRole, id)
		}
		if role.IsSystemRole {
			return &apperror.SystemRoleError{Role: role.Name, Reason: "cannot be deleted"}
		}

		if err := s.roles.Delete(txCtx, id); err != nil {
			return fmt.Errorf("failed to delete role: %w", err)
		}
		return s.deps.audits().record(txCtx, model.ActionDeleteRole, model.EntityRole, role.ID, role.Name,
			map[string]interface{}{"permissions": []string(role.Permissions)})
	})
	if err != nil {
		return err
	}

	s.invalidate()
	return nil
}

func (s *roleService) ListPermissions(ctx context.Context) ([]model.Permission, error) {
	perms, err := s.roles.ListPermissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch permissions: %w", err)
	}
	return perms, nil
}

func (s *roleService) CreatePermission(ctx context.Context, req CreatePermissionRequest) (*model.Permission, error) {
	name := strings.TrimSpace(req.Name)
	if !validation.IsPermissionName(name) {
		return nil, apperror.Invalid("name", "must have the form module.action")
	}
	module, action, _ := strings.Cut(name, ".")

	perm := &model.Permission{
		Name:        name,
		DisplayName: req.DisplayName,
		Description: req.Description,
		Category:    req.Category,
		Module:      module,
		Action:      action,
		IsActive:    true,
	}

	err := s.deps.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		existing, err := s.roles.FindPermissionsByNames(txCtx, []string{name})
		if err != nil {
			return fmt.Errorf("failed to check permission name: %w", err)
		}
		if len(existing) > 0 {
			return apperror.Invalid("name", fmt.Sprintf("permission %s already exists", name))
		}
		if err := s.roles.CreatePermission(txCtx, perm); err != nil {
			return fmt.Errorf("failed to create permission: %w", err)
		}
		return s.deps.audits().record(txCtx, model.ActionCreatePermission, model.EntityPermission, perm.ID, perm.Name, req)
	})
	if err != nil {
		return nil, err
	}
	return perm, nil
}

func (s *roleService) UpdatePermission(ctx context.Context, id uuid.UUID, req UpdatePermissionRequest) (*model.Permission, error) {
	var perm *model.Permission
	err := s.deps.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		perm, err = s.roles.FindPermissionByID(txCtx, id)
		if err != nil {
			return loadErr(err, model.EntityPermission, id)
		}
		if req.DisplayName != nil {
			perm.DisplayName = *req.DisplayName
		}
		if req.Description != nil {
			perm.Description = *req.Description
		}
		if req.Category != nil {
			perm.Category = *req.Category
		}
		if err := s.roles.UpdatePermission(txCtx, perm); err != nil {
			return fmt.Errorf("failed to update permission: %w", err)
		}
		return s.deps.audits().record(txCtx, model.ActionUpdatePermission, model.EntityPermission, perm.ID, perm.Name, req)
	})
	if err != nil {
		return nil, err
	}
	return perm, nil
}

// SetPermissionActive toggles a catalog entry. Deactivation revokes it from every role at once
// because the evaluator cross-checks the catalog.
func (s *roleService) SetPermissionActive(ctx context.Context, id uuid.UUID, active bool) (*model.Permission, error) {
	var perm *model.Permission
	err := s.deps.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		perm, err = s.roles.FindPermissionByID(txCtx, id)
		if err != nil {
			return loadErr(err, model.EntityPermission, id)
		}
		perm.IsActive = active
		if err := s.roles.UpdatePermission(txCtx, perm); err != nil {
			return fmt.Errorf("failed to update permission: %w", err)
		}
		return s.deps.audits().record(txCtx, model.ActionUpdatePermission, model.EntityPermission, perm.ID, perm.Name,
			map[string]interface{}{"is_active": active})
	})
	if err != nil {
		return nil, err
	}

	s.invalidate()
	return perm, nil
}

func (s *roleService) CheckConsistency(ctx context.Context) ([]RoleConsistencyReport, error) {
	roles, err := s.roles.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch roles: %w", err)
	}
	perms, err := s.roles.ListPermissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch permissions: %w", err)
	}

	catalog := make(map[string]bool, len(perms))
	for _, p := range perms {
		catalog[p.Name] = p.IsActive
	}

	reports := make([]RoleConsistencyReport, 0)
	for _, r := range roles {
		report := RoleConsistencyReport{RoleID: r.ID, RoleName: r.Name, Unknown: []string{}, Inactive: []string{}}
		for _, name := range r.Permissions {
			active, known := catalog[name]
			switch {
			case !known:
				report.Unknown = append(report.Unknown, name)
			case !active:
				report.Inactive = append(report.Inactive, name)
			}
		}
		if len(report.Unknown) > 0 || len(report.Inactive) > 0 {
			reports = append(reports, report)
		}
	}

	if len(reports) > 0 {
		s.deps.logger().WithField("roles", len(reports)).Warn("role permission lists drifted from the catalog")
	}
	return reports, nil
}

// SeedDefaults creates missing catalog entries and system roles. Existing rows are left as edited.
func (s *roleService) SeedDefaults(ctx context.Context) error {
	err := s.deps.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		for _, seed := range DefaultPermissions {
			module, action, _ := strings.Cut(seed.Name, ".")
			perm := &model.Permission{
				Name:        seed.Name,
				DisplayName: seed.DisplayName,
				Category:    seed.Category,
				Module:      module,
				Action:      action,
				IsActive:    true,
			}
			if err := s.roles.FindOrCreatePermission(txCtx, perm); err != nil {
				return fmt.Errorf("failed to seed permission '%s': %w", seed.Name, err)
			}
		}

		for _, seed := range DefaultRoles {
			_, err := s.roles.FindByName(txCtx, seed.Name)
			if err == nil {
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("failed to look up role '%s': %w", seed.Name, err)
			}

			perms := append([]string(nil), seed.Permissions...)
			sort.Strings(perms)
			role := &model.Role{
				Name:         seed.Name,
				Description:  seed.Description,
				Color:        seed.Color,
				Priority:     seed.Priority,
				IsSystemRole: true,
				IsActive:     true,
				Permissions:  datatypes.JSONSlice[string](perms),
				Metadata:     datatypes.JSONMap{model.MetadataDashboardRoute: seed.DashboardRoute},
			}
			if err := s.roles.Create(txCtx, role); err != nil {
				return fmt.Errorf("failed to seed role '%s': %w", seed.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidate()
	return nil
}
