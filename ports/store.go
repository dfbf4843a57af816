package ports

import (
	"context"
	"time"

	"github.com/layer-3/walletauth/core"
)

// NonceStore issues and consumes single-use sign-in nonces bound to a client key
type NonceStore interface {
	// Issue creates a nonce for clientKey, replacing any outstanding one
	Issue(ctx context.Context, clientKey string) (core.Nonce, error)
	// Consume removes the outstanding nonce for clientKey and reports whether
	// it matched candidate and had not expired
	Consume(ctx context.Context, clientKey, candidate string) (bool, error)
	// Clear drops any outstanding nonce for clientKey
	Clear(ctx context.Context, clientKey string) error
}

// RevocationStore interface for token invalidation
type RevocationStore interface {
	InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error
	IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error)
}
