package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const lecturerKey = "lecturer_id"

// LecturerAuth enforces bearer JWT tokens carrying the lecturer role.
func LecturerAuth(s *Signer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := s.Parse(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if claims.Role != RoleLecturer || claims.Subject == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "lecturer token required"})
			return
		}
		c.Set("claims", claims)
		c.Set(lecturerKey, claims.Subject)
		c.Next()
	}
}

// LecturerID returns the authenticated lecturer, or "" outside LecturerAuth.
func LecturerID(c *gin.Context) string {
	return c.GetString(lecturerKey)
}
