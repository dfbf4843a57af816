package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/walletauth/ports"
)

// MemoryStore is an in-memory implementation of the RevocationStore interface
type MemoryStore struct {
	invalidatedTokens map[string]time.Time
	mu                sync.RWMutex
	now               func() time.Time
}

var _ ports.RevocationStore = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory revocation store
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	return &MemoryStore{
		invalidatedTokens: make(map[string]time.Time),
		now:               o.now,
	}
}

// InvalidateToken marks a token as invalidated until expiry has elapsed
func (s *MemoryStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, until := range s.invalidatedTokens {
		if !now.Before(until) {
			delete(s.invalidatedTokens, id)
		}
	}

	expiryTime := now.Add(expiry)
	// Only extend, never shorten, an existing invalidation
	if storedExpiry, exists := s.invalidatedTokens[tokenID]; exists && storedExpiry.After(expiryTime) {
		return nil
	}
	s.invalidatedTokens[tokenID] = expiryTime

	return nil
}

// IsTokenInvalidated checks if a token is invalidated
func (s *MemoryStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expiryTime, exists := s.invalidatedTokens[tokenID]
	if !exists {
		return false, nil
	}

	// The invalidation record outlives the token it guards
	return s.now().Before(expiryTime), nil
}
