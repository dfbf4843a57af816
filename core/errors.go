package core

import "errors"

var (
	// Input errors
	ErrMalformedMessage   = errors.New("malformed sign-in message")
	ErrMalformedSignature = errors.New("malformed signature")
	ErrInvalidChainID     = errors.New("invalid chainId")
	ErrInvalidDomain      = errors.New("invalid domain")
	ErrInvalidAddress     = errors.New("invalid ethereum address")
	ErrInvalidUsername    = errors.New("invalid username")

	// Authentication errors
	ErrInvalidNonce     = errors.New("invalid nonce")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrUnauthenticated  = errors.New("unauthenticated")

	// Token errors
	ErrTokenExpired     = errors.New("token has expired")
	ErrTokenInvalidated = errors.New("token has been invalidated")
	ErrInvalidToken     = errors.New("invalid token")

	// Storage errors
	ErrAccountNotFound     = errors.New("account not found")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrWalletAlreadyLinked = errors.New("wallet already linked")
	ErrUsernameTaken       = errors.New("username already taken")
	ErrUsernameExhausted   = errors.New("could not allocate a unique username")
)
