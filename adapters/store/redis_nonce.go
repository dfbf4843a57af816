package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
	"github.com/redis/go-redis/v9"
)

// RedisNonceStore is a Redis implementation of the NonceStore interface
type RedisNonceStore struct {
	client redis.Cmdable
	prefix string
	opts   options
}

var _ ports.NonceStore = (*RedisNonceStore)(nil)

type nonceRecord struct {
	Value     string `json:"value"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// NewRedisNonceStore creates a new Redis nonce store
func NewRedisNonceStore(client redis.Cmdable, opts ...Option) *RedisNonceStore {
	return &RedisNonceStore{
		client: client,
		prefix: "walletauth:nonce:",
		opts:   buildOptions(opts),
	}
}

// Issue stores a fresh nonce under clientKey; SET replaces any outstanding one
func (s *RedisNonceStore) Issue(ctx context.Context, clientKey string) (core.Nonce, error) {
	n, err := newNonce(s.opts.now(), s.opts.ttl)
	if err != nil {
		return core.Nonce{}, err
	}

	payload, err := json.Marshal(nonceRecord{
		Value:     n.Value,
		IssuedAt:  n.IssuedAt.UnixMilli(),
		ExpiresAt: n.ExpiresAt.UnixMilli(),
	})
	if err != nil {
		return core.Nonce{}, fmt.Errorf("failed to marshal nonce: %w", err)
	}

	if err := s.client.Set(ctx, s.prefix+clientKey, payload, s.opts.ttl).Err(); err != nil {
		return core.Nonce{}, fmt.Errorf("failed to store nonce: %w", err)
	}

	return n, nil
}

// Consume atomically fetches and deletes the nonce, then compares it with candidate
func (s *RedisNonceStore) Consume(ctx context.Context, clientKey, candidate string) (bool, error) {
	payload, err := s.client.GetDel(ctx, s.prefix+clientKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to consume nonce: %w", err)
	}

	var rec nonceRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return false, nil
	}

	n := core.Nonce{
		Value:     rec.Value,
		IssuedAt:  time.UnixMilli(rec.IssuedAt),
		ExpiresAt: time.UnixMilli(rec.ExpiresAt),
	}

	return nonceMatches(n, candidate, s.opts.now()), nil
}

// Clear drops the outstanding nonce for clientKey
func (s *RedisNonceStore) Clear(ctx context.Context, clientKey string) error {
	if err := s.client.Del(ctx, s.prefix+clientKey).Err(); err != nil {
		return fmt.Errorf("failed to clear nonce: %w", err)
	}
	return nil
}
