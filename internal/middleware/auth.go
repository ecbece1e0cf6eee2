package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"sppg/internal/apperror"
	"sppg/internal/auth"
	"sppg/internal/service"
	"sppg/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	accessTokenCookie = "access_token"
	userIDKey         = "userID"
)

// Guard authenticates requests and checks permissions against the live role registry.
type Guard struct {
	tokens        *auth.Issuer
	authz         service.AuthorizationService
	secureCookies bool
}

func NewGuard(tokens *auth.Issuer, authz service.AuthorizationService, secureCookies bool) *Guard {
	return &Guard{tokens: tokens, authz: authz, secureCookies: secureCookies}
}

func (g *Guard) cookieMode() (http.SameSite, bool) {
	// Production (cross-origin): SameSiteNoneMode + Secure=true
	// Development (same-site):   SameSiteLaxMode  + Secure=false
	if g.secureCookies {
		return http.SameSiteNoneMode, true
	}
	return http.SameSiteLaxMode, false
}

// SetTokenCookie stores the access token as an HttpOnly cookie.
func (g *Guard) SetTokenCookie(c *gin.Context, token string, expiresAt time.Time) {
	sameSite, secure := g.cookieMode()
	c.SetSameSite(sameSite)
	maxAge := int(time.Until(expiresAt).Seconds())
	c.SetCookie(accessTokenCookie, token, maxAge, "/", "", secure, true)
}

func (g *Guard) ClearTokenCookie(c *gin.Context) {
	sameSite, secure := g.cookieMode()
	c.SetSameSite(sameSite)
	c.SetCookie(accessTokenCookie, "", -1, "/", "", secure, true)
}

// tokenFrom tries the cookie first, then the Authorization header, then the token query
// parameter used by websocket clients.
func tokenFrom(c *gin.Context) (string, string) {
	if token, err := c.Cookie(accessTokenCookie); err == nil && token != "" {
		return token, ""
	}
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.Split(header, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return "", "Invalid authorization format. Expected 'Bearer <token>'"
		}
		return parts[1], ""
	}
	if token := c.Query("token"); token != "" {
		return token, ""
	}
	return "", "Authorization is missing"
}

// RequireAuth validates the JWT and puts the caller's id on the request context.
func (g *Guard) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, problem := tokenFrom(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, problem))
			return
		}

		userID, err := g.tokens.Parse(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid token"))
			return
		}

		c.Set(userIDKey, userID)
		c.Request = c.Request.WithContext(service.WithActor(c.Request.Context(), userID))
		c.Next()
	}
}

// RequirePermission must run after RequireAuth. Every listed permission is required.
func (g *Guard) RequirePermission(permissions ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := UserID(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
			return
		}

		for _, permission := range permissions {
			err := g.authz.Require(c.Request.Context(), userID, permission)
			if err == nil {
				continue
			}
			var denied *apperror.PermissionDeniedError
			if errors.As(err, &denied) {
				c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: missing permission '"+denied.Permission+"'"))
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to verify permissions"))
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated caller set by RequireAuth.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
