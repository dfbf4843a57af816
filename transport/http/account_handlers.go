package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/walletauth/service"
)

// AccountHandlers serves the authenticated account endpoints
type AccountHandlers struct {
	authService *service.AuthService
	cookies     CookieConfig
	logger      *slog.Logger
}

// NewAccountHandlers creates new account handlers
func NewAccountHandlers(authService *service.AuthService, cookies CookieConfig, logger *slog.Logger) *AccountHandlers {
	return &AccountHandlers{
		authService: authService,
		cookies:     cookies,
		logger:      logger,
	}
}

// Wallets lists the wallets linked to the current account
func (h *AccountHandlers) Wallets(c *gin.Context) {
	claims := claimsFrom(c)

	wallets, err := h.authService.ListWallets(c.Request.Context(), claims.AccountID)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wallets": wallets})
}

// RemoveWallet unlinks one of the current account's wallets
func (h *AccountHandlers) RemoveWallet(c *gin.Context) {
	claims := claimsFrom(c)

	if err := h.authService.RemoveWallet(c.Request.Context(), claims.AccountID, c.Param("id")); err != nil {
		status, msg := statusFor(err)
		if status == http.StatusInternalServerError {
			abortWithError(c, h.logger, err)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// UpdateUsername renames the current account
func (h *AccountHandlers) UpdateUsername(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	pair, err := h.authService.UpdateUsername(c.Request.Context(), claimsFrom(c), req.Username)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}

	h.cookies.setSession(c, pair)
	c.JSON(http.StatusOK, gin.H{"user": pair.Session.Claims().User()})
}

// Activity returns one page of the account's activity log
func (h *AccountHandlers) Activity(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	rawLimit, limitSet := c.GetQuery("limit")
	limit, _ := strconv.Atoi(rawLimit)
	page, limit = service.ActivityPage(page, limit, limitSet)

	logs, err := h.authService.ActivityLogs(c.Request.Context(), claimsFrom(c).AccountID, page, limit)
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "failed to load activity", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load activity"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}
