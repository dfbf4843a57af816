package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/service"
)

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	authService *service.AuthService
	cookies     CookieConfig
	logger      *slog.Logger
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService, cookies CookieConfig, logger *slog.Logger) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		cookies:     cookies,
		logger:      logger,
	}
}

// Nonce issues a sign-in nonce bound to the caller's nonce cookie
func (h *AuthHandlers) Nonce(c *gin.Context) {
	clientKey := cookie(c, NonceCookie)
	if _, err := uuid.Parse(clientKey); err != nil {
		clientKey = uuid.NewString()
	}

	nonce, err := h.authService.IssueNonce(c.Request.Context(), clientKey)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}

	h.cookies.set(c, NonceCookie, clientKey, h.cookies.NonceTTL)
	c.JSON(http.StatusOK, gin.H{"nonce": nonce.Value})
}

// VerifyOrLink handles a signed sign-in message
func (h *AuthHandlers) VerifyOrLink(c *gin.Context) {
	start := time.Now()

	var req struct {
		Message   *string `json:"message"`
		Signature *string `json:"signature"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
		return
	}
	if req.Message == nil || req.Signature == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing message or signature"})
		return
	}

	res, err := h.authService.VerifyOrLink(c.Request.Context(), service.VerifyRequest{
		ClientKey:    cookie(c, NonceCookie),
		Message:      *req.Message,
		Signature:    *req.Signature,
		AccessToken:  sessionToken(c),
		RefreshToken: cookie(c, RefreshCookie),
	})
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}

	// The nonce has been spent either way
	h.cookies.clear(c, NonceCookie)

	if res.Outcome == core.OutcomeNeedsSignup {
		c.JSON(http.StatusOK, gin.H{
			"type":    res.Outcome,
			"siwe":    siweView(res.Message),
			"pending": res.PendingToken,
		})
		return
	}

	h.cookies.setSession(c, res.Tokens)

	body := gin.H{
		"type":   res.Outcome,
		"user":   res.User,
		"tookMs": time.Since(start).Milliseconds(),
	}
	if res.Wallet != nil {
		body["wallet"] = res.Wallet
	}
	c.JSON(http.StatusOK, body)
}

// Signup completes a deferred signup
func (h *AuthHandlers) Signup(c *gin.Context) {
	var req struct {
		Pending  string `json:"pending" binding:"required"`
		Username string `json:"username"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	res, err := h.authService.CompleteSignup(c.Request.Context(), req.Pending, req.Username)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}

	h.cookies.setSession(c, res.Tokens)
	c.JSON(http.StatusOK, gin.H{"type": res.Outcome, "user": res.User})
}

// Me returns the current user or null
func (h *AuthHandlers) Me(c *gin.Context) {
	res := h.authService.Me(c.Request.Context(), cookie(c, SessionCookie), cookie(c, RefreshCookie))

	switch {
	case res.Renewed != nil:
		h.cookies.setAccess(c, res.Renewed)
	case res.ClearRefresh:
		h.cookies.clear(c, SessionCookie, RefreshCookie)
	case res.ClearSession:
		h.cookies.clear(c, SessionCookie)
	}

	c.JSON(http.StatusOK, gin.H{"user": res.User})
}

// Refresh renews the access token from the refresh cookie
func (h *AuthHandlers) Refresh(c *gin.Context) {
	refreshToken := cookie(c, RefreshCookie)
	if refreshToken == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing refresh token"})
		return
	}

	pair, err := h.authService.Refresh(c.Request.Context(), refreshToken)
	if err != nil {
		status, msg := statusFor(err)
		if status == http.StatusInternalServerError {
			abortWithError(c, h.logger, err)
			return
		}
		h.cookies.clear(c, SessionCookie, RefreshCookie)
		c.JSON(http.StatusUnauthorized, gin.H{"error": msg})
		return
	}

	h.cookies.setAccess(c, pair)
	c.JSON(http.StatusOK, gin.H{"user": pair.Session.Claims().User()})
}

// SignOut ends the session and clears every auth cookie
func (h *AuthHandlers) SignOut(c *gin.Context) {
	err := h.authService.SignOut(c.Request.Context(), sessionToken(c), cookie(c, RefreshCookie))
	if err != nil {
		// The cookies are dropped regardless
		h.logger.WarnContext(c.Request.Context(), "failed to revoke session", "error", err)
	}

	h.cookies.clear(c, SessionCookie, RefreshCookie, NonceCookie)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func siweView(m *core.SignInMessage) gin.H {
	if m == nil {
		return nil
	}
	return gin.H{
		"domain":   m.Domain,
		"address":  m.Address,
		"uri":      m.URI,
		"version":  m.Version,
		"chainId":  m.ChainID,
		"nonce":    m.Nonce,
		"issuedAt": m.IssuedAt,
	}
}
