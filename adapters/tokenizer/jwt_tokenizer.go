package tokenizer

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

const AudienceAccess = "session:access"
const AudienceRefresh = "session:refresh"
const AudienceSignup = "session:signup"

// JWTTokenizer implements the Tokenizer interface using HS256 JWTs
type JWTTokenizer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

var _ ports.Tokenizer = (*JWTTokenizer)(nil)

// Option configures a JWTTokenizer
type Option func(*JWTTokenizer)

// WithIssuer sets the iss claim
func WithIssuer(issuer string) Option {
	return func(j *JWTTokenizer) { j.issuer = issuer }
}

// WithClock sets the time source used to validate expiry
func WithClock(now func() time.Time) Option {
	return func(j *JWTTokenizer) { j.now = now }
}

// NewJWTTokenizer creates a new JWT tokenizer signing with secret
func NewJWTTokenizer(secret []byte, opts ...Option) *JWTTokenizer {
	j := &JWTTokenizer{secret: secret, issuer: "walletauth", now: time.Now}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// SessionToAccessToken converts a Session to an access JWT token
func (j *JWTTokenizer) SessionToAccessToken(session *core.Session) (string, error) {
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   session.AccountID,
			ID:        session.ID,
			ExpiresAt: jwt.NewNumericDate(session.AccessExpiry),
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceAccess},
		},
		IdentityClaims: identityOf(session),
		RefreshID:      session.RefreshID,
	}

	signedToken, err := j.sign(claims)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signedToken, nil
}

// SessionToRefreshToken converts a Session to a refresh JWT token
func (j *JWTTokenizer) SessionToRefreshToken(session *core.Session) (string, error) {
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   session.AccountID,
			ID:        session.RefreshID, // Use RefreshID as the JWT ID for the refresh token
			ExpiresAt: jwt.NewNumericDate(session.RefreshExpiry),
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceRefresh},
		},
		IdentityClaims: identityOf(session),
	}

	signedToken, err := j.sign(claims)
	if err != nil {
		return "", fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return signedToken, nil
}

// AccessTokenToSession parses an access token and returns the associated session
func (j *JWTTokenizer) AccessTokenToSession(tokenStr string) (*core.Session, error) {
	claims := &AccessClaims{}
	if err := j.parse(tokenStr, claims, AudienceAccess); err != nil {
		return nil, err
	}

	return &core.Session{
		ID:           claims.ID,
		RefreshID:    claims.RefreshID,
		AccountID:    claims.Subject,
		Username:     claims.Username,
		Address:      claims.WalletAddress,
		ChainID:      claims.ChainID,
		IssuedAt:     timeOf(claims.IssuedAt),
		AccessExpiry: timeOf(claims.ExpiresAt),
	}, nil
}

// RefreshTokenToSession parses a refresh token and returns the associated session.
// Only the refresh side of the session is populated.
func (j *JWTTokenizer) RefreshTokenToSession(tokenStr string) (*core.Session, error) {
	claims := &RefreshClaims{}
	if err := j.parse(tokenStr, claims, AudienceRefresh); err != nil {
		return nil, err
	}

	return &core.Session{
		RefreshID:     claims.ID,
		AccountID:     claims.Subject,
		Username:      claims.Username,
		Address:       claims.WalletAddress,
		ChainID:       claims.ChainID,
		IssuedAt:      timeOf(claims.IssuedAt),
		RefreshExpiry: timeOf(claims.ExpiresAt),
	}, nil
}

// PendingSignupToToken signs a deferred signup
func (j *JWTTokenizer) PendingSignupToToken(pending *core.PendingSignup) (string, error) {
	claims := PendingSignupClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        pending.ID,
			Issuer:    j.issuer,
			Subject:   pending.Address,
			ExpiresAt: jwt.NewNumericDate(pending.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(pending.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceSignup},
		},
		ChainID: pending.ChainID,
	}

	signedToken, err := j.sign(claims)
	if err != nil {
		return "", fmt.Errorf("failed to sign signup token: %w", err)
	}
	return signedToken, nil
}

// TokenToPendingSignup parses a deferred signup token
func (j *JWTTokenizer) TokenToPendingSignup(tokenStr string) (*core.PendingSignup, error) {
	claims := &PendingSignupClaims{}
	if err := j.parse(tokenStr, claims, AudienceSignup); err != nil {
		return nil, err
	}

	return &core.PendingSignup{
		ID:        claims.ID,
		Address:   claims.Subject,
		ChainID:   claims.ChainID,
		IssuedAt:  timeOf(claims.IssuedAt),
		ExpiresAt: timeOf(claims.ExpiresAt),
	}, nil
}

func (j *JWTTokenizer) sign(claims jwt.Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}

func (j *JWTTokenizer) parse(tokenStr string, claims jwt.Claims, audience string) error {
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	},
		jwt.WithAudience(audience),
		jwt.WithIssuer(j.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return core.ErrTokenExpired
		}
		return fmt.Errorf("failed to parse token: %v: %w", err, core.ErrInvalidToken)
	}

	if !token.Valid {
		return core.ErrInvalidToken
	}
	return nil
}

func identityOf(session *core.Session) IdentityClaims {
	return IdentityClaims{
		Username:      session.Username,
		WalletAddress: session.Address,
		ChainID:       session.ChainID,
	}
}

func timeOf(d *jwt.NumericDate) time.Time {
	if d == nil {
		return time.Time{}
	}
	return d.Time
}
