package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/meritrack/backend/internal/models"
	"github.com/meritrack/backend/pkg/response"
)

// Role returns the authenticated caller's role, or "" before JWT ran.
func Role(c *gin.Context) models.Role {
	return models.Role(c.GetString(ContextUserRole))
}

// IsAdmin reports whether the authenticated user holds the ADMIN role.
func IsAdmin(c *gin.Context) bool {
	return Role(c) == models.RoleAdmin
}

// RequireRole rejects callers whose role is not one of roles with 403.
// msg is the error shown to them.
func RequireRole(msg string, roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *gin.Context) {
		if _, ok := c.Get(ContextUserRole); !ok {
			response.Unauthorized(c, "Unauthorized")
			c.Abort()
			return
		}
		if !allowed[Role(c)] {
			response.Forbidden(c, msg)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAdmin guards staff-only routes.
func RequireAdmin() gin.HandlerFunc {
	return RequireRole("Admin access required", models.RoleAdmin)
}

// RequireStudent guards routes that act on the caller's own student record.
func RequireStudent() gin.HandlerFunc {
	return RequireRole("Only students can register for events", models.RoleStudent)
}
