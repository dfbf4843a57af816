package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/walletauth/service"
)

// RouterConfig holds transport settings
type RouterConfig struct {
	Cookies CookieConfig
	// ProtectedPrefix is redirected to LoginPath without a session
	ProtectedPrefix string
	LoginPath       string
	// DashboardDir, when set, is served under ProtectedPrefix
	DashboardDir string
}

// SetupRouter sets up the Gin router
func SetupRouter(authService *service.AuthService, validator *service.SessionValidator, cfg RouterConfig, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))

	if cfg.ProtectedPrefix != "" {
		router.Use(ProtectPrefix(cfg.ProtectedPrefix, cfg.LoginPath, validator, cfg.Cookies))
		if cfg.DashboardDir != "" {
			router.Static(cfg.ProtectedPrefix, cfg.DashboardDir)
		}
	}

	// Create handlers
	authHandlers := NewAuthHandlers(authService, cfg.Cookies, logger)
	accountHandlers := NewAccountHandlers(authService, cfg.Cookies, logger)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Auth routes
	auth := router.Group("/auth")
	{
		auth.GET("/nonce", authHandlers.Nonce)
		auth.POST("/verify-or-link", authHandlers.VerifyOrLink)
		auth.POST("/signup", authHandlers.Signup)
		auth.GET("/me", authHandlers.Me)
		auth.POST("/refresh", authHandlers.Refresh)
		auth.POST("/signout", authHandlers.SignOut)
	}

	// Protected account routes
	account := router.Group("/")
	account.Use(AuthMiddleware(validator))
	{
		account.GET("/wallets", accountHandlers.Wallets)
		account.DELETE("/wallets/:id", accountHandlers.RemoveWallet)
		account.PUT("/profile/username", accountHandlers.UpdateUsername)
		account.GET("/activity", accountHandlers.Activity)
	}

	return router
}
