package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sppg/internal/apperror"
	"sppg/internal/auth"
	"sppg/internal/model"
	"sppg/internal/repository"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

// DTOs for Request validation
type CreateUserRequest struct {
	Username string   `json:"username" binding:"required"`
	Email    string   `json:"email" binding:"required,email"`
	Phone    string   `json:"phone"`
	Password string   `json:"password" binding:"required,min=6"`
	RoleIDs  []string `json:"role_ids"`
}

type UpdateUserRequest struct {
	Username *string `json:"username"`
	Email    *string `json:"email" binding:"omitempty,email"`
	Phone    *string `json:"phone"`
	IsActive *bool   `json:"is_active"`
}

type AssignRolesRequest struct {
	RoleIDs []string `json:"role_ids" binding:"required"`
}

type LoginUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DTO for returning User without exposing sensitive data (e.g. password)
type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	IsActive  bool      `json:"is_active"`
	Roles     []string  `json:"roles"`
	CreatedAt string    `json:"created_at"`
	UpdatedAt string    `json:"updated_at"`
}

// MeResponse is the profile plus resolved authority returned after login.
type MeResponse struct {
	User   UserResponse `json:"user"`
	Access Access       `json:"access"`
}

// UserService defines the interface for business logic related to User
type UserService interface {
	CreateUser(ctx context.Context, req CreateUserRequest) (*UserResponse, error)
	Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error)
	GetUser(ctx context.Context, id uuid.UUID) (*UserResponse, error)
	ListUsers(ctx context.Context, page, limit int) ([]UserResponse, int64, error)
	UpdateUser(ctx context.Context, id uuid.UUID, req UpdateUserRequest) (*UserResponse, error)
	AssignRoles(ctx context.Context, id uuid.UUID, req AssignRolesRequest) (*UserResponse, error)
	Me(ctx context.Context, id uuid.UUID) (*MeResponse, error)
	EnsureAdmin(ctx context.Context, email, password string) error
}

type userService struct {
	deps   Deps
	users  repository.UserRepository
	roles  repository.RoleRepository
	authz  AuthorizationService
	tokens *auth.Issuer
}

// NewUserService returns a new instance of UserService
func NewUserService(deps Deps, users repository.UserRepository, roles repository.RoleRepository, authz AuthorizationService, tokens *auth.Issuer) UserService {
	return &userService{deps: deps, users: users, roles: roles, authz: authz, tokens: tokens}
}

// Helper: parse model to standard json API response
func mapToResponse(user *model.User, roles []model.Role) *UserResponse {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	return &UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Phone:     user.Phone,
		IsActive:  user.IsActive,
		Roles:     names,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
		UpdatedAt: user.UpdatedAt.Format(time.RFC3339),
	}
}

func (s *userService) response(ctx context.Context, user *model.User) (*UserResponse, error) {
	roles, err := s.users.ListRoles(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user roles: %w", err)
	}
	return mapToResponse(user, roles), nil
}

func parseRoleIDs(raw []string) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]struct{}, len(raw))
	ids := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := ParseID("role_ids", r)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// resolveAssignableRoles loads the roles and rejects missing or inactive ones.
func (s *userService) resolveAssignableRoles(ctx context.Context, ids []uuid.UUID) ([]model.Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	roles, err := s.roles.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch roles: %w", err)
	}
	found := make(map[uuid.UUID]model.Role, len(roles))
	for _, r := range roles {
		found[r.ID] = r
	}
	for _, id := range ids {
		r, ok := found[id]
		if !ok {
			return nil, apperror.NotFound(model.EntityRole, id.String())
		}
		if !r.IsActive {
			return nil, apperror.Invalid("role_ids", fmt.Sprintf("role %s is inactive", r.Name))
		}
	}
	return roles, nil
}

func (s *userService) CreateUser(ctx context.Context, req CreateUserRequest) (*UserResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	username := strings.TrimSpace(req.Username)

	roleIDs, err := parseRoleIDs(req.RoleIDs)
	if err != nil {
		return nil, err
	}

	// Hash password automatically
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Username: username,
		Email:    email,
		Phone:    req.Phone,
		Password: string(hashedPassword),
		IsActive: true,
	}

	err = s.deps.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		// Double check username/email uniqueness via repo directly
		if _, err := s.users.GetByUsername(txCtx, username); err == nil {
			return apperror.Invalid("username", "already exists")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check username: %w", err)
		}
		if _, err := s.users.GetByEmail(txCtx, email); err == nil {
			return apperror.Invalid("email", "already exists")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check email: %w", err)
		}

		if _, err := s.resolveAssignableRoles(txCtx, roleIDs); err != nil {
			return err
		}
		if err := s.users.Create(txCtx, user); err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		if err := s.users.ReplaceRoles(txCtx, user.ID, roleIDs, ActorFrom(ctx)); err != nil {
			return fmt.Errorf("failed to assign roles: %w", err)
		}
		return s.deps.audits().record(txCtx, model.ActionAssignRoles, model.EntityUser, user.ID, user.Username,
			map[string]interface{}{"role_ids": roleIDs})
	})
	if err != nil {
		return nil, err
	}

	return s.response(ctx, user)
}

func (s *userService) Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	return &TokenResponse{Token: token, ExpiresAt: expiresAt}, nil
}

func (s *userService) GetUser(ctx context.Context, id uuid.UUID) (*UserResponse, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, loadErr(err, model.EntityUser, id)
	}
	return s.response(ctx, user)
}

func (s *userService) ListUsers(ctx context.Context, page, limit int) ([]UserResponse, int64, error) {
	users, total, err := s.users.List(ctx, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch users: %w", err)
	}

	var responses []UserResponse
	for i := range users {
		roles := make([]model.Role, 0, len(users[i].Roles))
		for _, ur := range users[i].Roles {
			roles = append(roles, ur.Role)
		}
		responses = append(responses, *mapToResponse(&users[i], roles))
	}
	return responses, total, nil
}

func (s *userService) UpdateUser(ctx context.Context, id uuid.UUID, req UpdateUserRequest) (*UserResponse, error) {
	var user *model.User
	err := s.deps.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		user, err = s.users.GetByID(txCtx, id)
		if err != nil {
			return loadErr(err, model.EntityUser, id)
		}

		if req.Username != nil && *req.Username != user.Username {
			if _, err := s.users.GetByUsername(txCtx, *req.Username); err == nil {
				return apperror.Invalid("username", "already exists")
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("failed to check username: %w", err)
			}
			user.Username = *req.Username
		}
		if req.Email != nil {
			email := strings.ToLower(strings.TrimSpace(*req.Email))
			if email != user.Email {
				if _, err := s.users.GetByEmail(txCtx, email); err == nil {
					return apperror.Invalid("email", "already exists")
				} else if !errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("failed to check email: %w", err)
				}
				user.Email = email
			}
		}
		if req.Phone != nil {
			user.Phone = *req.Phone
		}
		if req.IsActive != nil {
			user.IsActive = *req.IsActive
		}

		if err := s.users.Update(txCtx, user); err != nil {
			return fmt.Errorf("failed to update user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if req.IsActive != nil {
		s.authz.InvalidatePermissionCache()
	}
	return s.response(ctx, user)
}

// AssignRoles replaces the user's role set.
func (s *userService) AssignRoles(ctx context.Context, id uuid.UUID, req AssignRolesRequest) (*UserResponse, error) {
	roleIDs, err := parseRoleIDs(req.RoleIDs)
	if err != nil {
		return nil, err
	}

	var user *model.User
	err = s.deps.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		found, err := s.users.GetByID(txCtx, id)
		if err != nil {
			return loadErr(err, model.EntityUser, id)
		}
		user = found

		before, err := s.users.ListRoles(txCtx, id)
		if err != nil {
			return fmt.Errorf("failed to load user roles: %w", err)
		}
		roles, err := s.resolveAssignableRoles(txCtx, roleIDs)
		if err != nil {
			return err
		}

		if err := s.users.ReplaceRoles(txCtx, id, roleIDs, ActorFrom(ctx)); err != nil {
			return fmt.Errorf("failed to assign roles: %w", err)
		}
		return s.deps.audits().record(txCtx, model.ActionAssignRoles, model.EntityUser, user.ID, user.Username,
			transition(roleNames(before), roleNames(roles)))
	})
	if err != nil {
		return nil, err
	}

	s.authz.InvalidatePermissionCache()
	return s.response(ctx, user)
}

func roleNames(roles []model.Role) []string {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	return names
}

func (s *userService) Me(ctx context.Context, id uuid.UUID) (*MeResponse, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	access, err := s.authz.ResolveAccess(ctx, id)
	if err != nil {
		return nil, err
	}
	return &MeResponse{User: *user, Access: access}, nil
}

// EnsureAdmin creates the bootstrap SUPER_ADMIN account when no user owns the email yet.
func (s *userService) EnsureAdmin(ctx context.Context, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to look up admin: %w", err)
	}

	role, err := s.roles.FindByName(ctx, "SUPER_ADMIN")
	if err != nil {
		return fmt.Errorf("SUPER_ADMIN role missing, seed roles first: %w", err)
	}

	username, _, _ := strings.Cut(email, "@")
	_, err = s.CreateUser(ctx, CreateUserRequest{
		Username: username,
		Email:    email,
		Password: password,
		RoleIDs:  []string{role.ID.String()},
	})
	if err != nil {
		return err
	}
	s.deps.logger().WithField("email", email).Info("bootstrap admin created")
	return nil
}
