package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-results-api/internal/models"
	appErrors "github.com/noah-isme/sma-results-api/pkg/errors"
	"github.com/noah-isme/sma-results-api/pkg/response"
)

// SelfRole lets a caller through when the route's user parameter is their own id.
const SelfRole = "SELF"

// selfParams are the route parameters compared against the caller's id.
var selfParams = []string{"studentId", "id"}

// RBAC enforces role-based access control for routes.
func RBAC(allowed ...string) gin.HandlerFunc {
	allowSelf := false
	allowedRoles := make(map[models.UserRole]struct{})
	for _, a := range allowed {
		if a == SelfRole {
			allowSelf = true
			continue
		}
		allowedRoles[models.UserRole(a)] = struct{}{}
	}

	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims, ok := claimsValue.(*models.JWTClaims)
		if !ok || claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if _, ok := allowedRoles[claims.Role]; ok {
			c.Next()
			return
		}

		if allowSelf {
			for _, param := range selfParams {
				if targetID := c.Param(param); targetID != "" && targetID == claims.UserID {
					c.Next()
					return
				}
			}
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}

// RequireRoles is a helper that accepts a list of roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make([]string, len(roles))
	for i, r := range roles {
		allowed[i] = string(r)
	}
	return RBAC(allowed...)
}

// RequireStaff admits SUPERADMIN, ADMIN and TEACHER.
func RequireStaff() gin.HandlerFunc {
	return RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleTeacher)
}

// RequireAdmin admits SUPERADMIN and ADMIN.
func RequireAdmin() gin.HandlerFunc {
	return RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)
}
