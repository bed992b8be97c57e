package middleware

import (
	"strings"

	"stock-chat/backend/pkg/errors"
	"stock-chat/backend/pkg/jwt"

	"github.com/gin-gonic/gin"
)

// IdentityKey is the gin context key holding the authenticated identity
const IdentityKey = "identity"

// bearerToken reads the token from the Authorization header, falling back to
// the token query parameter since browsers cannot set headers on WebSocket upgrades
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("token")
}

// JWTAuth validates the bearer token and stores the claims and identity in the context
func JWTAuth(jwtService *jwt.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			_ = c.Error(errors.NewUnauthorizedError("Missing or invalid Authorization header"))
			c.Abort()
			return
		}

		claims, err := jwtService.ValidateToken(token)
		if err != nil {
			_ = c.Error(errors.NewUnauthorizedError("Invalid or expired token"))
			c.Abort()
			return
		}

		c.Set("claims", claims)
		c.Set(IdentityKey, claims.Identity())
		c.Next()
	}
}
