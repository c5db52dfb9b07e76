package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const accessTokenKey = "__x_access_token__"

// RequireBearer rejects requests without an "Authorization: Bearer <token>"
// header and stores the token for AccessToken.
func RequireBearer() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader("Authorization"))
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No authorization token provided"})
			return
		}
		scheme, token, found := strings.Cut(raw, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header must use the Bearer scheme"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No authorization token provided"})
			return
		}
		c.Set(accessTokenKey, token)
		c.Next()
	}
}

// AccessToken returns the token stored by RequireBearer.
func AccessToken(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(accessTokenKey)
}
