package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/envault/envault/internal/services"
	"github.com/envault/envault/pkg/errors"
	"github.com/envault/envault/pkg/metrics"
	"github.com/envault/envault/pkg/response"
)

// CtxScopeKey is the gin context key holding the request's AuthScope.
const CtxScopeKey = "authScope"

// APIKeyAuth is the access gate: it resolves the presented API key to a user,
// loads that user's permission set and attaches the resulting immutable scope
// to the request. Every failure mode collapses to the same 401.
func APIKeyAuth(users *services.UserService, perms *services.PermissionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := extractKey(c)
		if key == "" {
			metrics.AuthAttempts.WithLabelValues("failure").Inc()
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		ctx := c.Request.Context()

		user, err := users.AuthenticateKey(ctx, key)
		if err != nil {
			metrics.AuthAttempts.WithLabelValues("failure").Inc()
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		permissions, err := perms.ForUser(ctx, user.ID)
		if err != nil {
			// a gate that cannot load permissions denies, it never distinguishes
			metrics.AuthAttempts.WithLabelValues("failure").Inc()
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		metrics.AuthAttempts.WithLabelValues("success").Inc()

		c.Set(CtxScopeKey, services.AuthScope{
			User:        *user,
			Permissions: permissions,
		})

		c.Next()
	}
}

// ScopeFromContext returns the AuthScope attached by APIKeyAuth.
func ScopeFromContext(c *gin.Context) (services.AuthScope, bool) {
	v, ok := c.Get(CtxScopeKey)
	if !ok {
		return services.AuthScope{}, false
	}
	scope, ok := v.(services.AuthScope)
	return scope, ok
}

// extractKey reads the API key from the Authorization header, falling back to
// the ?key= query parameter for dotenv-style tooling.
func extractKey(c *gin.Context) string {
	authz := c.GetHeader("Authorization")
	if len(authz) >= 8 && strings.EqualFold(authz[:7], "Bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return strings.TrimSpace(c.Query("key"))
}
