package http

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/service"
)

const claimsKey = "claims"

// sessionToken reads the access token from the session cookie, falling back
// to a bearer Authorization header
func sessionToken(c *gin.Context) string {
	if token := cookie(c, SessionCookie); token != "" {
		return token
	}
	auth := c.GetHeader("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return auth[7:]
	}
	return ""
}

// AuthMiddleware creates middleware that requires a valid session
func AuthMiddleware(validator *service.SessionValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := validator.Validate(c.Request.Context(), sessionToken(c))
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// claimsFrom returns the claims stored by AuthMiddleware
func claimsFrom(c *gin.Context) *core.Claims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*core.Claims)
	return claims
}

// ProtectPrefix redirects requests under prefix without a valid session to
// loginPath, remembering the original target in the next query parameter.
// An invalid session cookie is cleared.
func ProtectPrefix(prefix, loginPath string, validator *service.SessionValidator, cookies CookieConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path != prefix && !strings.HasPrefix(path, prefix+"/") {
			c.Next()
			return
		}

		token := cookie(c, SessionCookie)
		if token != "" && validator.Validate(c.Request.Context(), token) != nil {
			c.Next()
			return
		}

		next := path
		if c.Request.URL.RawQuery != "" {
			next += "?" + c.Request.URL.RawQuery
		}
		if token != "" {
			cookies.clear(c, SessionCookie)
		}
		c.Redirect(http.StatusFound, loginPath+"?next="+url.QueryEscape(next))
		c.Abort()
	}
}

// RequestLogger logs one line per request
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}
