package store

import (
	"context"
	"sync"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

// MemoryNonceStore is an in-memory implementation of the NonceStore interface.
// It is only suitable for a single instance.
type MemoryNonceStore struct {
	nonces map[string]core.Nonce
	mu     sync.Mutex
	opts   options
}

var _ ports.NonceStore = (*MemoryNonceStore)(nil)

// NewMemoryNonceStore creates a new in-memory nonce store
func NewMemoryNonceStore(opts ...Option) *MemoryNonceStore {
	return &MemoryNonceStore{
		nonces: make(map[string]core.Nonce),
		opts:   buildOptions(opts),
	}
}

// Issue creates a nonce for clientKey, overwriting any outstanding one
func (s *MemoryNonceStore) Issue(ctx context.Context, clientKey string) (core.Nonce, error) {
	n, err := newNonce(s.opts.now(), s.opts.ttl)
	if err != nil {
		return core.Nonce{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked()
	s.nonces[clientKey] = n
	return n, nil
}

// Consume removes the outstanding nonce and compares it with candidate
func (s *MemoryNonceStore) Consume(ctx context.Context, clientKey, candidate string) (bool, error) {
	s.mu.Lock()
	n, ok := s.nonces[clientKey]
	delete(s.nonces, clientKey)
	s.mu.Unlock()

	if !ok {
		return false, nil
	}
	return nonceMatches(n, candidate, s.opts.now()), nil
}

// Clear drops the outstanding nonce for clientKey
func (s *MemoryNonceStore) Clear(ctx context.Context, clientKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.nonces, clientKey)
	return nil
}

// pruneLocked drops expired nonces so abandoned attempts do not accumulate
func (s *MemoryNonceStore) pruneLocked() {
	now := s.opts.now()
	for k, n := range s.nonces {
		if n.Expired(now) {
			delete(s.nonces, k)
		}
	}
}
