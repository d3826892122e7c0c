package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/usta-app/usta-server/internal/auth"
	"github.com/usta-app/usta-server/internal/data"
)

// Context keys under which Auth stores the verified identity.
const (
	ContextUserID = "userID"
	ContextRole   = "userRole"
)

// Auth verifies the Bearer token and stores the caller's identity on
// the gin context. Requests without a valid token are rejected with 401.
func Auth(jwtManager *auth.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header is required"})
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header must be a Bearer token"})
			return
		}

		claims, err := jwtManager.VerifyToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		if _, err := claims.SubjectID(); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token subject"})
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}

// RequireRole rejects callers whose token role is not one of the given
// roles. Admins pass every check.
func RequireRole(roles ...data.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := data.Role(c.GetString(ContextRole))
		if role == data.RoleAdmin {
			c.Next()
			return
		}
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
	}
}

// UserID returns the authenticated caller's id from the gin context.
func UserID(c *gin.Context) (bson.ObjectID, bool) {
	id, err := bson.ObjectIDFromHex(c.GetString(ContextUserID))
	if err != nil {
		return bson.ObjectID{}, false
	}
	return id, true
}

// Role returns the authenticated caller's role from the gin context.
func Role(c *gin.Context) data.Role {
	return data.Role(c.GetString(ContextRole))
}
