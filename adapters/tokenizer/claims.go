package tokenizer

import "github.com/golang-jwt/jwt/v5"

// IdentityClaims carry the cached identity of a session
type IdentityClaims struct {
	Username      string `json:"username,omitempty"`
	WalletAddress string `json:"wallet_address"`
	ChainID       int64  `json:"chain_id"`
}

// AccessClaims combines standard claims with access-specific ones
type AccessClaims struct {
	jwt.RegisteredClaims
	IdentityClaims
	RefreshID string `json:"rid"` // ID of the refresh token
}

// RefreshClaims carry enough identity to re-derive an access token
type RefreshClaims struct {
	jwt.RegisteredClaims
	IdentityClaims
}

// PendingSignupClaims bind a verified wallet awaiting account creation
type PendingSignupClaims struct {
	jwt.RegisteredClaims
	ChainID int64 `json:"chain_id"`
}
