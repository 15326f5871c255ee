// internal/middleware/helpers.go
package middleware

import "github.com/gin-gonic/gin"

// GetEmployeeID gets the authenticated employee from context
func GetEmployeeID(c *gin.Context) (string, bool) {
	v, exists := c.Get("employee_id")
	if !exists {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

// GetRoles gets employee roles from context
func GetRoles(c *gin.Context) []string {
	roles, exists := c.Get("roles")
	if !exists {
		return []string{}
	}

	rolesList, ok := roles.([]string)
	if !ok {
		return []string{}
	}
	return rolesList
}

// HasRole checks if the employee has role
func HasRole(c *gin.Context, role string) bool {
	for _, r := range GetRoles(c) {
		if r == role {
			return true
		}
	}
	return false
}
