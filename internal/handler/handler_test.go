package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sppg/internal/apperror"
	"sppg/internal/auth"
	"sppg/internal/cache"
	"sppg/internal/event"
	"sppg/internal/logger"
	"sppg/internal/middleware"
	"sppg/internal/repository"
	"sppg/internal/service"
	"sppg/internal/testutil"
	"sppg/pkg/response"
	"sppg/pkg/validation"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type api struct {
	t      *testing.T
	router *gin.Engine
	users  service.UserService
	roles  repository.RoleRepository
}

func newAPI(t *testing.T) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)
	_ = validation.Register()

	db := testutil.NewDB(t)
	userRepo := repository.NewUserRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	productionRepo := repository.NewProductionRepository(db)
	deps := service.Deps{
		DB:        db,
		Tx:        repository.NewTransactionManager(db),
		Audit:     repository.NewAuditRepository(db),
		Publisher: event.NopPublisher{},
		Queue:     cache.NewMemoryDriverStatsQueue(),
		Log:       logger.Discard(),
		Now:       time.Now,
	}
	tokens := auth.NewIssuer("handler-secret", time.Hour)

	authz := service.NewAuthorizationService(userRepo, roleRepo, time.Minute)
	roleSvc := service.NewRoleService(deps, roleRepo, authz)
	userSvc := service.NewUserService(deps, userRepo, roleRepo, authz, tokens)
	require.NoError(t, roleSvc.SeedDefaults(context.Background()))

	guard := middleware.NewGuard(tokens, authz, false)
	router := gin.New()
	group := router.Group("")
	NewUserHandler(userSvc, guard).RegisterRoutes(group)
	NewRoleHandler(roleSvc, guard).RegisterRoutes(group)
	NewProductionHandler(service.NewProductionService(deps, productionRepo), guard).RegisterRoutes(group)

	return &api{t: t, router: router, users: userSvc, roles: roleRepo}
}

// login creates a user holding roleName and returns a bearer token.
func (a *api) login(roleName string) string {
	a.t.Helper()
	ctx := context.Background()
	role, err := a.roles.FindByName(ctx, roleName)
	require.NoError(a.t, err)
	email := fmt.Sprintf("%s@sppg.test", roleName)
	_, err = a.users.CreateUser(ctx, service.CreateUserRequest{
		Username: roleName,
		Email:    email,
		Password: "secret123",
		RoleIDs:  []string{role.ID.String()},
	})
	require.NoError(a.t, err)

	rec := a.do(http.MethodPost, "/login", "", map[string]string{"email": email, "password": "secret123"})
	require.Equal(a.t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Data service.TokenResponse `json:"data"`
	}
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(a.t, body.Data.Token)
	return body.Data.Token
}

func (a *api) do(method, path, token string, payload interface{}) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if payload != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(payload))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func TestLoginSetsCookieAndMeResolvesAccess(t *testing.T) {
	a := newAPI(t)
	token := a.login("CHEF")

	rec := a.do(http.MethodGet, "/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data service.MeResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Data.Access.Permissions, "production.manage")
	assert.NotContains(t, body.Data.Access.Permissions, "finance.manage")

	login := a.do(http.MethodPost, "/login", "", map[string]string{"email": "CHEF@sppg.test", "password": "secret123"})
	require.Equal(t, http.StatusOK, login.Code)
	var found bool
	for _, c := range login.Result().Cookies() {
		if c.Name == "access_token" {
			found = true
			assert.True(t, c.HttpOnly)
		}
	}
	assert.True(t, found, "login sets the access_token cookie")
}

func TestWrongPasswordIsUnauthorized(t *testing.T) {
	a := newAPI(t)
	a.login("CHEF")

	rec := a.do(http.MethodPost, "/login", "", map[string]string{"email": "CHEF@sppg.test", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGuardRejectsMissingTokenAndPermission(t *testing.T) {
	a := newAPI(t)

	rec := a.do(http.MethodGet, "/api/roles", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(http.MethodGet, "/api/roles", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token := a.login("CHEF")
	rec = a.do(http.MethodGet, "/api/roles", token, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	var body response.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Access denied: missing permission 'roles.manage'", body.Error)
}

func TestRoleEndpointsMapDomainErrors(t *testing.T) {
	a := newAPI(t)
	token := a.login("SUPER_ADMIN")

	rec := a.do(http.MethodPost, "/api/roles", token, map[string]interface{}{
		"name":        "AUDITOR",
		"permissions": []string{"audit.read", "audit.*"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	rec = a.do(http.MethodPost, "/api/permissions", token, map[string]interface{}{
		"name":         "Bad Name",
		"display_name": "x",
		"category":     "x",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	admin, err := a.roles.FindByName(context.Background(), "SUPER_ADMIN")
	require.NoError(t, err)
	rec = a.do(http.MethodDelete, "/api/roles/"+admin.ID.String(), token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(http.MethodGet, "/api/roles/not-a-uuid", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBatchLifecycleOverHTTP(t *testing.T) {
	a := newAPI(t)
	token := a.login("CHEF")

	rec := a.do(http.MethodPost, "/api/production/batches", token, map[string]interface{}{
		"recipe_id":        "0b6f2a0e-6f1c-4d7e-9d1e-1c3c8f0f5a11",
		"planned_quantity": 120,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = a.do(http.MethodPost, "/api/production/batches/"+created.Data.ID+"/complete", token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "a pending batch cannot skip IN_PROGRESS")

	rec = a.do(http.MethodPost, "/api/production/batches/"+created.Data.ID+"/start", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = a.do(http.MethodPost, "/api/production/batches/"+created.Data.ID+"/complete", token, map[string]int{"actual_quantity": 118})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(http.MethodPost, "/api/production/batches/"+created.Data.ID+"/cancel", token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"credentials", service.ErrInvalidCredentials, http.StatusUnauthorized},
		{"denied", &apperror.PermissionDeniedError{Permission: "finance.manage"}, http.StatusForbidden},
		{"terminal", &apperror.TerminalStateError{Entity: "delivery", State: "DELIVERED"}, http.StatusConflict},
		{"wrapped transition", fmt.Errorf("advance: %w", &apperror.InvalidTransitionError{}), http.StatusConflict},
		{"gate", &apperror.QualityGateError{Status: "FAIL"}, http.StatusUnprocessableEntity},
		{"over allocation", &apperror.OverAllocationError{Requested: 181, Limit: 180}, http.StatusUnprocessableEntity},
		{"not found", apperror.NotFound("batch", "x"), http.StatusNotFound},
		{"validation", apperror.Invalid("reason", "required"), http.StatusBadRequest},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
