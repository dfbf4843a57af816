package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

const (
	DefaultAccessTTL  = time.Hour
	DefaultRefreshTTL = 7 * 24 * time.Hour

	// revokedGrace keeps a revocation record for tokens that already expired
	revokedGrace = time.Hour
)

// SessionIssuer mints, renews and revokes session tokens
type SessionIssuer struct {
	tokenizer   ports.Tokenizer
	revocations ports.RevocationStore

	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewSessionIssuer creates a new session issuer
func NewSessionIssuer(tokenizer ports.Tokenizer, revocations ports.RevocationStore, accessTTL, refreshTTL time.Duration) *SessionIssuer {
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	return &SessionIssuer{
		tokenizer:   tokenizer,
		revocations: revocations,
		accessTTL:   accessTTL,
		refreshTTL:  refreshTTL,
		now:         time.Now,
	}
}

// AccessTTL is the lifetime of issued access tokens
func (i *SessionIssuer) AccessTTL() time.Duration { return i.accessTTL }

// RefreshTTL is the lifetime of issued refresh tokens
func (i *SessionIssuer) RefreshTTL() time.Duration { return i.refreshTTL }

// Issue creates a new session and its access and refresh tokens
func (i *SessionIssuer) Issue(_ context.Context, accountID, username, address string, chainID int64) (*core.TokenPair, error) {
	now := i.now()
	session := &core.Session{
		ID:            uuid.NewString(),
		RefreshID:     uuid.NewString(),
		AccountID:     accountID,
		Username:      username,
		Address:       address,
		ChainID:       chainID,
		IssuedAt:      now,
		AccessExpiry:  now.Add(i.accessTTL),
		RefreshExpiry: now.Add(i.refreshTTL),
	}

	accessToken, err := i.tokenizer.SessionToAccessToken(session)
	if err != nil {
		return nil, fmt.Errorf("failed to create access token: %w", err)
	}

	refreshToken, err := i.tokenizer.SessionToRefreshToken(session)
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh token: %w", err)
	}

	return &core.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken, Session: session}, nil
}

// Renew derives a fresh access token from a valid refresh token. The refresh
// token itself is kept.
func (i *SessionIssuer) Renew(ctx context.Context, refreshToken string) (*core.TokenPair, error) {
	session, err := i.tokenizer.RefreshTokenToSession(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh token: %w", err)
	}

	invalidated, err := i.revocations.IsTokenInvalidated(ctx, session.RefreshID)
	if err != nil {
		return nil, fmt.Errorf("failed to check token invalidation: %w", err)
	}
	if invalidated {
		return nil, core.ErrTokenInvalidated
	}

	now := i.now()
	session.ID = uuid.NewString()
	session.IssuedAt = now
	session.AccessExpiry = now.Add(i.accessTTL)
	if session.AccessExpiry.After(session.RefreshExpiry) {
		session.AccessExpiry = session.RefreshExpiry
	}

	accessToken, err := i.tokenizer.SessionToAccessToken(session)
	if err != nil {
		return nil, fmt.Errorf("failed to create access token: %w", err)
	}

	return &core.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken, Session: session}, nil
}

// Revoke invalidates a refresh token and, through its id, every access token
// derived from it. Expired tokens are still revoked.
func (i *SessionIssuer) Revoke(ctx context.Context, refreshToken string) (*core.Session, error) {
	session, err := i.tokenizer.RefreshTokenToSession(refreshToken)
	if err != nil {
		if !errors.Is(err, core.ErrTokenExpired) {
			return nil, fmt.Errorf("invalid refresh token: %w", err)
		}
		// Nothing left to revoke
		return nil, nil
	}

	return session, i.RevokeID(ctx, session.RefreshID, session.RefreshExpiry)
}

// RevokeID invalidates a refresh id until expiry
func (i *SessionIssuer) RevokeID(ctx context.Context, refreshID string, expiry time.Time) error {
	remaining := expiry.Sub(i.now())
	if remaining <= 0 {
		remaining = revokedGrace
	}
	if err := i.revocations.InvalidateToken(ctx, refreshID, remaining); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}
	return nil
}

// Revoked reports whether id has been revoked
func (i *SessionIssuer) Revoked(ctx context.Context, id string) (bool, error) {
	revoked, err := i.revocations.IsTokenInvalidated(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to check token invalidation: %w", err)
	}
	return revoked, nil
}

// UsernameSource resolves an account's username from durable storage
type UsernameSource interface {
	UsernameFor(ctx context.Context, accountID string) (string, error)
}

// SessionValidator turns a presented access token into trusted claims
type SessionValidator struct {
	tokenizer   ports.Tokenizer
	revocations ports.RevocationStore
	usernames   UsernameSource
	logger      *slog.Logger
}

// NewSessionValidator creates a new session validator
func NewSessionValidator(tokenizer ports.Tokenizer, revocations ports.RevocationStore, usernames UsernameSource, logger *slog.Logger) *SessionValidator {
	return &SessionValidator{
		tokenizer:   tokenizer,
		revocations: revocations,
		usernames:   usernames,
		logger:      logger,
	}
}

// Validate returns the claims of a valid access token, or nil. A malformed,
// tampered, expired or revoked token is the same as no session.
func (v *SessionValidator) Validate(ctx context.Context, accessToken string) *core.Claims {
	if accessToken == "" {
		return nil
	}

	session, err := v.tokenizer.AccessTokenToSession(accessToken)
	if err != nil {
		v.logger.Debug("rejected access token", "error", err)
		return nil
	}

	if session.RefreshID != "" {
		invalidated, err := v.revocations.IsTokenInvalidated(ctx, session.RefreshID)
		if err != nil {
			v.logger.Warn("failed to check token invalidation", "error", err)
			return nil
		}
		if invalidated {
			v.logger.Debug("access token belongs to a revoked session", "session_id", session.ID)
			return nil
		}
	}

	if session.Username == "" {
		username, err := v.usernames.UsernameFor(ctx, session.AccountID)
		if err != nil {
			v.logger.Debug("failed to resolve username", "account_id", session.AccountID, "error", err)
			return nil
		}
		session.Username = username
	}

	return session.Claims()
}
