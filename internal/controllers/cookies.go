package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"authsvc/internal/middleware"
)

func setAuthCookie(c *gin.Context, tokenStr string, ttl time.Duration, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.CookieName, tokenStr, int(ttl.Seconds()), "/", "", secure, true)
}

func clearAuthCookie(c *gin.Context, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.CookieName, "", -1, "/", "", secure, true)
}
