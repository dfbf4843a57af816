package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/walletauth/core"
)

const (
	SessionCookie = "session"
	RefreshCookie = "refresh_token"
	NonceCookie   = "siwe_nonce"
)

// CookieConfig controls the attributes of the auth cookies
type CookieConfig struct {
	Secure     bool // Set in production
	Domain     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	NonceTTL   time.Duration
}

func (cc CookieConfig) set(c *gin.Context, name, value string, ttl time.Duration) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   cc.Domain,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   cc.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (cc CookieConfig) clear(c *gin.Context, names ...string) {
	for _, name := range names {
		http.SetCookie(c.Writer, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Domain:   cc.Domain,
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   cc.Secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func (cc CookieConfig) setSession(c *gin.Context, pair *core.TokenPair) {
	cc.set(c, SessionCookie, pair.AccessToken, cc.AccessTTL)
	cc.set(c, RefreshCookie, pair.RefreshToken, cc.RefreshTTL)
}

func (cc CookieConfig) setAccess(c *gin.Context, pair *core.TokenPair) {
	cc.set(c, SessionCookie, pair.AccessToken, cc.AccessTTL)
}

func cookie(c *gin.Context, name string) string {
	value, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	return value
}
