package store

import (
	"context"
	"fmt"
	"time"

	"github.com/layer-3/walletauth/ports"
	"github.com/redis/go-redis/v9"
)

const revokedPrefix = "walletauth:revoked:"

// RedisStore keeps revoked session ids in Redis until the session would
// have expired anyway
type RedisStore struct {
	client redis.Cmdable
}

var _ ports.RevocationStore = (*RedisStore)(nil)

// NewRedisStore creates a new Redis revocation store
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// InvalidateToken revokes tokenID for expiry. A later call can extend the
// revocation but never shorten it.
func (s *RedisStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	if expiry <= 0 {
		return nil
	}

	key := revokedPrefix + tokenID
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, key, time.Now().Add(expiry).Unix(), expiry)
		pipe.ExpireGT(ctx, key, expiry)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to revoke %s: %w", tokenID, err)
	}
	return nil
}

// IsTokenInvalidated reports whether tokenID has been revoked
func (s *RedisStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.client.Exists(ctx, revokedPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check revocation of %s: %w", tokenID, err)
	}
	return n > 0, nil
}
