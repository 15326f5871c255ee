// internal/middleware/auth_middleware.go
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"bloom-payments/internal/pkg/jwt"
	"bloom-payments/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

type TokenVerifier interface {
	VerifyAccessToken(token string) (*jwt.Claims, error)
}

type AuthMiddleware struct {
	verifier TokenVerifier
}

func NewAuthMiddleware(verifier TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// Auth validates the staff bearer token and stores the employee on the context.
func (m *AuthMiddleware) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.Error(c, http.StatusUnauthorized, "missing authorization token", nil)
			return
		}

		claims, err := m.verifier.VerifyAccessToken(token)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "invalid or expired token", err)
			return
		}

		// Set employee context
		c.Set("employee_id", claims.EmployeeID)
		c.Set("employee_name", claims.Name)
		c.Set("jti", claims.ID)
		c.Set("roles", claims.Roles)

		c.Next()
	}
}

// RequireRole requires at least one of roles. MUST be used after Auth().
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRoles, exists := c.Get("roles")
		if !exists {
			response.Error(c, http.StatusForbidden, "no roles found - authentication required", nil)
			return
		}

		userRolesList, ok := userRoles.([]string)
		if !ok {
			response.Error(c, http.StatusInternalServerError, "invalid roles format", nil)
			return
		}

		hasRole := false
		for _, userRole := range userRolesList {
			for _, requiredRole := range roles {
				if userRole == requiredRole {
					hasRole = true
					break
				}
			}
			if hasRole {
				break
			}
		}

		if !hasRole {
			err := errors.New("employee does not have required role")
			response.Error(c, http.StatusForbidden, "insufficient permissions", err, map[string]interface{}{
				"required_roles": roles,
				"user_roles":     userRolesList,
			})
			return
		}

		c.Next()
	}
}

// ManagerOnly returns middlewares for refund and settings routes (Auth + RequireRole)
func (m *AuthMiddleware) ManagerOnly() []gin.HandlerFunc {
	return []gin.HandlerFunc{
		m.Auth(),
		m.RequireRole(jwt.RoleManager, jwt.RoleAdmin),
	}
}

// extractToken extracts Bearer token from Authorization header
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	return ""
}
