package store

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"time"

	"github.com/layer-3/walletauth/core"
)

const (
	// DefaultNonceTTL bounds how long an issued nonce is accepted
	DefaultNonceTTL = 5 * time.Minute

	nonceLength   = 24
	nonceAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// NewNonceValue returns a random alphanumeric nonce suitable for a sign-in message
func NewNonceValue() (string, error) {
	buf := make([]byte, nonceLength)
	max := big.NewInt(int64(len(nonceAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate nonce: %w", err)
		}
		buf[i] = nonceAlphabet[n.Int64()]
	}
	return string(buf), nil
}

func newNonce(now time.Time, ttl time.Duration) (core.Nonce, error) {
	value, err := NewNonceValue()
	if err != nil {
		return core.Nonce{}, err
	}
	return core.Nonce{Value: value, IssuedAt: now, ExpiresAt: now.Add(ttl)}, nil
}

// nonceMatches checks a consumed nonce against the candidate the client presented
func nonceMatches(n core.Nonce, candidate string, now time.Time) bool {
	if candidate == "" || n.Expired(now) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(n.Value), []byte(candidate)) == 1
}

// Option configures a store
type Option func(*options)

type options struct {
	ttl time.Duration
	now func() time.Time
}

// WithTTL overrides DefaultNonceTTL
func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

// WithClock sets the time source used for issuance and expiry checks
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{ttl: DefaultNonceTTL, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
