package core

import "time"

// Nonce is a single-use challenge value embedded in a sign-in message
type Nonce struct {
	Value     string    // Random alphanumeric value
	IssuedAt  time.Time // When the nonce was issued
	ExpiresAt time.Time // When the nonce stops being accepted
}

// Expired reports whether the nonce is no longer accepted at t
func (n Nonce) Expired(t time.Time) bool {
	return !t.Before(n.ExpiresAt)
}

// Session represents an authenticated user session
type Session struct {
	ID            string    // Unique session identifier (access token jti)
	RefreshID     string    // Unique identifier for the refresh token
	AccountID     string    // Account the session belongs to
	Username      string    // Cached username claim
	Address       string    // Lowercased wallet address the session was opened with
	ChainID       int64     // Chain of that wallet
	IssuedAt      time.Time // When the session was created
	AccessExpiry  time.Time // When the access capability expires
	RefreshExpiry time.Time // When the refresh capability expires
}

// Claims returns the identity claims carried by the session's access token
func (s *Session) Claims() *Claims {
	return &Claims{
		AccountID: s.AccountID,
		Username:  s.Username,
		Address:   s.Address,
		ChainID:   s.ChainID,
		SessionID: s.ID,
		RefreshID: s.RefreshID,
		IssuedAt:  s.IssuedAt,
		ExpiresAt: s.AccessExpiry,
	}
}

// Claims are the verified identity claims extracted from an access token
type Claims struct {
	AccountID string
	Username  string
	Address   string
	ChainID   int64
	SessionID string
	RefreshID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// User returns the public view of the claims
func (c *Claims) User() User {
	return User{
		ID:            c.AccountID,
		Username:      c.Username,
		WalletAddress: c.Address,
		ChainID:       c.ChainID,
	}
}

// TokenPair is the result of a successful session issuance
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	Session      *Session
}

// PendingSignup is a verified wallet whose account creation has been deferred
type PendingSignup struct {
	ID        string // Single-use token id
	Address   string
	ChainID   int64
	IssuedAt  time.Time
	ExpiresAt time.Time
}
