package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"sppg/internal/apperror"
	"sppg/internal/model"
	"sppg/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const DefaultDashboardRoute = "/dashboard"

// Access is a user's resolved authority.
type Access struct {
	UserID         uuid.UUID `json:"user_id"`
	Permissions    []string  `json:"permissions"`
	Roles          []string  `json:"roles"`
	DashboardRoute string    `json:"dashboard_route"`
}

// Has reports exact membership; there is no wildcard or hierarchy matching.
func (a Access) Has(permission string) bool {
	i := sort.SearchStrings(a.Permissions, permission)
	return i < len(a.Permissions) && a.Permissions[i] == permission
}

// Evaluate answers the permission question from already loaded data. A name is granted only when
// an active role lists it and the catalog holds it as active.
func Evaluate(roles []model.Role, activeCatalog map[string]bool, permission string) bool {
	if !activeCatalog[permission] {
		return false
	}
	for _, role := range roles {
		if !role.IsActive {
			continue
		}
		for _, name := range role.Permissions {
			if name == permission {
				return true
			}
		}
	}
	return false
}

// ResolveDashboard picks the route of the highest priority active role; ties go to the lower name.
func ResolveDashboard(roles []model.Role) string {
	var best *model.Role
	for i := range roles {
		r := &roles[i]
		if !r.IsActive {
			continue
		}
		if best == nil || r.Priority > best.Priority || (r.Priority == best.Priority && r.Name < best.Name) {
			best = r
		}
	}
	if best == nil || best.DashboardRoute() == "" {
		return DefaultDashboardRoute
	}
	return best.DashboardRoute()
}

type AuthorizationService interface {
	HasPermission(ctx context.Context, userID uuid.UUID, permission string) (bool, error)
	// Require returns a PermissionDeniedError unless the user holds the permission.
	Require(ctx context.Context, userID uuid.UUID, permission string) error
	ResolveAccess(ctx context.Context, userID uuid.UUID) (Access, error)
	InvalidatePermissionCache()
}

type accessCacheEntry struct {
	access    Access
	expiresAt time.Time
}

type authorizationService struct {
	users repository.UserRepository
	roles repository.RoleRepository
	ttl   time.Duration
	cache sync.Map // userID -> accessCacheEntry
}

// NewAuthorizationService builds the evaluator. A zero ttl disables caching.
func NewAuthorizationService(users repository.UserRepository, roles repository.RoleRepository, ttl time.Duration) AuthorizationService {
	return &authorizationService{users: users, roles: roles, ttl: ttl}
}

func (s *authorizationService) HasPermission(ctx context.Context, userID uuid.UUID, permission string) (bool, error) {
	access, err := s.ResolveAccess(ctx, userID)
	if err != nil {
		return false, err
	}
	return access.Has(permission), nil
}

func (s *authorizationService) Require(ctx context.Context, userID uuid.UUID, permission string) error {
	ok, err := s.HasPermission(ctx, userID, permission)
	if err != nil {
		return err
	}
	if !ok {
		return &apperror.PermissionDeniedError{UserID: userID.String(), Permission: permission}
	}
	return nil
}

// ResolveAccess computes the effective permission set. Unknown or disabled users resolve to an
// empty set rather than an error.
func (s *authorizationService) ResolveAccess(ctx context.Context, userID uuid.UUID) (Access, error) {
	if s.ttl > 0 {
		if entry, ok := s.cache.Load(userID); ok {
			cached := entry.(accessCacheEntry)
			if time.Now().Before(cached.expiresAt) {
				return cached.access, nil
			}
		}
	}

	access, err := s.loadAccess(ctx, userID)
	if err != nil {
		return Access{}, err
	}

	if s.ttl > 0 {
		s.cache.Store(userID, accessCacheEntry{access: access, expiresAt: time.Now().Add(s.ttl)})
	}
	return access, nil
}

func (s *authorizationService) loadAccess(ctx context.Context, userID uuid.UUID) (Access, error) {
	denied := Access{UserID: userID, Permissions: []string{}, Roles: []string{}, DashboardRoute: DefaultDashboardRoute}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return denied, nil
		}
		return Access{}, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.IsActive {
		return denied, nil
	}

	roles, err := s.users.ListRoles(ctx, userID)
	if err != nil {
		return Access{}, fmt.Errorf("failed to load user roles: %w", err)
	}

	listed := make(map[string]struct{})
	roleNames := make([]string, 0, len(roles))
	for _, r := range roles {
		if !r.IsActive {
			continue
		}
		roleNames = append(roleNames, r.Name)
		for _, name := range r.Permissions {
			listed[name] = struct{}{}
		}
	}

	names := make([]string, 0, len(listed))
	for name := range listed {
		names = append(names, name)
	}
	perms, err := s.roles.FindPermissionsByNames(ctx, names)
	if err != nil {
		return Access{}, fmt.Errorf("failed to load permission catalog: %w", err)
	}

	active := make(map[string]bool, len(perms))
	for _, p := range perms {
		if p.IsActive {
			active[p.Name] = true
		}
	}

	effective := make([]string, 0, len(active))
	for name := range listed {
		if Evaluate(roles, active, name) {
			effective = append(effective, name)
		}
	}
	sort.Strings(effective)

	return Access{
		UserID:         userID,
		Permissions:    effective,
		Roles:          roleNames,
		DashboardRoute: ResolveDashboard(roles),
	}, nil
}

func (s *authorizationService) InvalidatePermissionCache() {
	s.cache.Range(func(key, _ interface{}) bool {
		s.cache.Delete(key)
		return true
	})
}
