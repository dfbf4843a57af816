package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

type walletKey struct {
	address string
	chainID int64
}

// MemoryRepository implements ports.Repository in process memory
type MemoryRepository struct {
	mu        sync.RWMutex
	accounts  map[string]core.Account
	usernames map[string]string // username -> account id
	wallets   map[string]core.WalletLink
	byKey     map[walletKey]string // (address, chain) -> wallet id
	activity  []core.ActivityLogEntry
}

var _ ports.Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates a new in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		accounts:  make(map[string]core.Account),
		usernames: make(map[string]string),
		wallets:   make(map[string]core.WalletLink),
		byKey:     make(map[walletKey]string),
	}
}

func (r *MemoryRepository) GetAccount(_ context.Context, id string) (*core.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[id]
	if !ok {
		return nil, core.ErrAccountNotFound
	}
	return &account, nil
}

func (r *MemoryRepository) UsernameExists(_ context.Context, username string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.usernames[username]
	return ok, nil
}

func (r *MemoryRepository) UpdateUsername(_ context.Context, accountID, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[accountID]
	if !ok {
		return core.ErrAccountNotFound
	}
	if owner, taken := r.usernames[username]; taken && owner != accountID {
		return core.ErrUsernameTaken
	}

	delete(r.usernames, account.Username)
	account.Username = username
	r.accounts[accountID] = account
	r.usernames[username] = accountID
	return nil
}

func (r *MemoryRepository) CreateAccountWithWallet(_ context.Context, account *core.Account, link *core.WalletLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byKey[walletKey{link.Address, link.ChainID}]; taken {
		return core.ErrWalletAlreadyLinked
	}
	if account.Username != "" {
		if _, taken := r.usernames[account.Username]; taken {
			return core.ErrUsernameTaken
		}
		r.usernames[account.Username] = account.ID
	}

	r.accounts[account.ID] = *account
	r.insertWallet(*link)
	return nil
}

func (r *MemoryRepository) FindWallet(_ context.Context, address string, chainID int64) (*core.WalletLink, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byKey[walletKey{address, chainID}]
	if !ok {
		return nil, core.ErrWalletNotFound
	}
	link := r.wallets[id]
	return &link, nil
}

func (r *MemoryRepository) CreateWallet(_ context.Context, link *core.WalletLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[link.AccountID]; !ok {
		return core.ErrAccountNotFound
	}
	if _, taken := r.byKey[walletKey{link.Address, link.ChainID}]; taken {
		return core.ErrWalletAlreadyLinked
	}
	r.insertWallet(*link)
	return nil
}

func (r *MemoryRepository) ListWallets(_ context.Context, accountID string) ([]core.WalletLink, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	links := []core.WalletLink{}
	for _, link := range r.wallets {
		if link.AccountID == accountID {
			links = append(links, link)
		}
	}
	sort.Slice(links, func(i, j int) bool {
		if links[i].CreatedAt.Equal(links[j].CreatedAt) {
			return links[i].ID < links[j].ID
		}
		return links[i].CreatedAt.Before(links[j].CreatedAt)
	})
	return links, nil
}

func (r *MemoryRepository) DeleteWallet(_ context.Context, accountID, walletID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	link, ok := r.wallets[walletID]
	if !ok || link.AccountID != accountID {
		return core.ErrWalletNotFound
	}
	delete(r.wallets, walletID)
	delete(r.byKey, walletKey{link.Address, link.ChainID})
	return nil
}

func (r *MemoryRepository) AppendActivity(_ context.Context, entry *core.ActivityLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.activity = append(r.activity, *entry)
	return nil
}

func (r *MemoryRepository) ListActivity(_ context.Context, accountID string, limit, offset int) ([]core.ActivityLogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Newest first; the log is append-only so walk it backwards
	entries := []core.ActivityLogEntry{}
	skipped := 0
	for i := len(r.activity) - 1; i >= 0 && len(entries) < limit; i-- {
		entry := r.activity[i]
		if entry.AccountID != accountID {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (r *MemoryRepository) insertWallet(link core.WalletLink) {
	r.wallets[link.ID] = link
	r.byKey[walletKey{link.Address, link.ChainID}] = link.ID
}
