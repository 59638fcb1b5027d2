package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"authsvc/internal/token"
)

// UserEmailKey is the gin context key holding the authenticated email.
const UserEmailKey = "user_email"

// CookieName is the session cookie set on login and cleared on logout.
const CookieName = "access_token"

// Auth resolves the session token from the access_token cookie, falling back
// to an Authorization bearer header, and puts the verified email on the
// context. Missing, tampered and expired tokens all get the same 401.
func Auth(tokens *token.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := fromCookie(c)
		if tokenStr == "" {
			tokenStr = fromHeader(c)
		}
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}
		email, err := tokens.Verify(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}
		c.Set(UserEmailKey, email)
		c.Next()
	}
}

func fromCookie(c *gin.Context) string {
	v, err := c.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return v
}

func fromHeader(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}
