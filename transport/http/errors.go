package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/walletauth/core"
)

// statusFor maps domain errors to a status code and a client-safe message
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrInvalidChainID):
		return http.StatusBadRequest, "Invalid chainId"
	case errors.Is(err, core.ErrInvalidNonce):
		return http.StatusBadRequest, "Invalid nonce"
	case errors.Is(err, core.ErrMalformedMessage):
		return http.StatusBadRequest, "Invalid SIWE message"
	case errors.Is(err, core.ErrMalformedSignature):
		return http.StatusBadRequest, "Invalid signature format"
	case errors.Is(err, core.ErrInvalidDomain):
		return http.StatusBadRequest, "Invalid domain"
	case errors.Is(err, core.ErrInvalidAddress):
		return http.StatusBadRequest, "Invalid address"
	case errors.Is(err, core.ErrInvalidUsername):
		return http.StatusBadRequest, "Username must be between 3 and 64 characters"
	case errors.Is(err, core.ErrUsernameTaken):
		return http.StatusBadRequest, "Username already taken"
	case errors.Is(err, core.ErrWalletAlreadyLinked):
		return http.StatusConflict, "Wallet already linked"
	case errors.Is(err, core.ErrWalletNotFound):
		return http.StatusBadRequest, "Wallet not found"
	case errors.Is(err, core.ErrInvalidToken):
		return http.StatusBadRequest, "Invalid token"
	case errors.Is(err, core.ErrInvalidSignature):
		return http.StatusUnauthorized, "Invalid signature"
	case errors.Is(err, core.ErrTokenExpired):
		return http.StatusUnauthorized, "Token expired"
	case errors.Is(err, core.ErrTokenInvalidated):
		return http.StatusUnauthorized, "Token has been invalidated"
	case errors.Is(err, core.ErrUnauthenticated), errors.Is(err, core.ErrAccountNotFound):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, core.ErrUsernameExhausted):
		return http.StatusConflict, "Could not allocate a username, please choose one"
	}
	return http.StatusInternalServerError, "Internal Server Error"
}

// abortWithError writes the mapped error response. Server-side failures are
// logged with their cause; the client only sees a generic message.
func abortWithError(c *gin.Context, logger *slog.Logger, err error) {
	status, msg := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
