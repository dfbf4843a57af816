package ports

import (
	"context"

	"github.com/layer-3/walletauth/core"
)

// AccountRepository stores accounts
type AccountRepository interface {
	GetAccount(ctx context.Context, id string) (*core.Account, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	// UpdateUsername returns core.ErrUsernameTaken on a uniqueness conflict
	UpdateUsername(ctx context.Context, accountID, username string) error
	// CreateAccountWithWallet atomically creates an account and its first wallet link.
	// It returns core.ErrWalletAlreadyLinked or core.ErrUsernameTaken on conflicts.
	CreateAccountWithWallet(ctx context.Context, account *core.Account, link *core.WalletLink) error
}

// WalletRepository stores wallet links
type WalletRepository interface {
	FindWallet(ctx context.Context, address string, chainID int64) (*core.WalletLink, error)
	// CreateWallet returns core.ErrWalletAlreadyLinked if (address, chain) is taken
	CreateWallet(ctx context.Context, link *core.WalletLink) error
	ListWallets(ctx context.Context, accountID string) ([]core.WalletLink, error)
	// DeleteWallet removes the link only if accountID owns it, else core.ErrWalletNotFound
	DeleteWallet(ctx context.Context, accountID, walletID string) error
}

// ActivityRepository stores the append-only activity log
type ActivityRepository interface {
	AppendActivity(ctx context.Context, entry *core.ActivityLogEntry) error
	ListActivity(ctx context.Context, accountID string, limit, offset int) ([]core.ActivityLogEntry, error)
}

// Repository is the full persistence surface used by the auth service
type Repository interface {
	AccountRepository
	WalletRepository
	ActivityRepository
}
