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

// DefaultUsernameAttempts bounds generated-username collision retries
const DefaultUsernameAttempts = 5

// AccountResolver maps a verified wallet to an account
type AccountResolver struct {
	repo        ports.Repository
	logger      *slog.Logger
	deferSignup bool
	maxAttempts int
	now         func() time.Time
}

// ResolverOption configures an AccountResolver
type ResolverOption func(*AccountResolver)

// WithDeferredSignup makes fresh wallets resolve to NeedsSignup instead of
// creating an account immediately
func WithDeferredSignup() ResolverOption {
	return func(r *AccountResolver) { r.deferSignup = true }
}

// WithUsernameAttempts overrides DefaultUsernameAttempts
func WithUsernameAttempts(n int) ResolverOption {
	return func(r *AccountResolver) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithResolverClock sets the time source for created records
func WithResolverClock(now func() time.Time) ResolverOption {
	return func(r *AccountResolver) { r.now = now }
}

// NewAccountResolver creates a new account resolver
func NewAccountResolver(repo ports.Repository, logger *slog.Logger, opts ...ResolverOption) *AccountResolver {
	r := &AccountResolver{
		repo:        repo,
		logger:      logger,
		maxAttempts: DefaultUsernameAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve decides between signin, link and signup for a verified wallet.
// address must already be normalized. currentAccountID is empty without a session.
func (r *AccountResolver) Resolve(ctx context.Context, address string, chainID int64, currentAccountID string) (core.Resolution, error) {
	link, err := r.repo.FindWallet(ctx, address, chainID)
	switch {
	case err == nil:
		return r.signin(ctx, link)
	case !errors.Is(err, core.ErrWalletNotFound):
		return nil, fmt.Errorf("failed to look up wallet: %w", err)
	}

	if currentAccountID != "" {
		return r.link(ctx, currentAccountID, address, chainID)
	}

	if r.deferSignup {
		return core.NeedsSignup{Address: address, ChainID: chainID}, nil
	}

	return r.Signup(ctx, address, chainID, "")
}

// Signup creates an account owning the wallet. An empty requestedUsername
// selects a generated one. If the wallet gets linked concurrently the result
// is a signin of its owner.
func (r *AccountResolver) Signup(ctx context.Context, address string, chainID int64, requestedUsername string) (core.Resolution, error) {
	if requestedUsername != "" {
		username, err := ValidateUsername(requestedUsername)
		if err != nil {
			return nil, err
		}
		return r.createAccount(ctx, address, chainID, username)
	}

	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		username := GenerateUsername(address, attempt)

		taken, err := r.repo.UsernameExists(ctx, username)
		if err != nil {
			return nil, fmt.Errorf("failed to check username: %w", err)
		}
		if taken {
			continue
		}

		res, err := r.createAccount(ctx, address, chainID, username)
		if errors.Is(err, core.ErrUsernameTaken) {
			continue
		}
		return res, err
	}

	return nil, core.ErrUsernameExhausted
}

// UsernameFor returns the account's username, backfilling a generated one
// when the account has none
func (r *AccountResolver) UsernameFor(ctx context.Context, accountID string) (string, error) {
	account, err := r.repo.GetAccount(ctx, accountID)
	if err != nil {
		return "", err
	}
	if err := r.ensureUsername(ctx, account); err != nil {
		return "", err
	}
	return account.Username, nil
}

func (r *AccountResolver) signin(ctx context.Context, link *core.WalletLink) (core.Resolution, error) {
	account, err := r.repo.GetAccount(ctx, link.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if err := r.ensureUsername(ctx, account); err != nil {
		return nil, err
	}
	return core.Signin{Account: *account, Wallet: *link}, nil
}

func (r *AccountResolver) link(ctx context.Context, accountID, address string, chainID int64) (core.Resolution, error) {
	account, err := r.repo.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, core.ErrAccountNotFound) {
			return nil, fmt.Errorf("session account %s: %w", accountID, core.ErrUnauthenticated)
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if err := r.ensureUsername(ctx, account); err != nil {
		return nil, err
	}

	link := &core.WalletLink{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		Address:   address,
		ChainID:   chainID,
		CreatedAt: r.now(),
	}
	if err := r.repo.CreateWallet(ctx, link); err != nil {
		if errors.Is(err, core.ErrWalletAlreadyLinked) {
			return r.resolveLinked(ctx, address, chainID)
		}
		return nil, fmt.Errorf("failed to link wallet: %w", err)
	}

	r.logger.Info("wallet linked", "account_id", account.ID, "address", address, "chain_id", chainID)
	return core.Link{Account: *account, Wallet: *link}, nil
}

func (r *AccountResolver) createAccount(ctx context.Context, address string, chainID int64, username string) (core.Resolution, error) {
	now := r.now()
	account := &core.Account{
		ID:        uuid.NewString(),
		Username:  username,
		CreatedAt: now,
	}
	link := &core.WalletLink{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		Address:   address,
		ChainID:   chainID,
		CreatedAt: now,
	}

	if err := r.repo.CreateAccountWithWallet(ctx, account, link); err != nil {
		switch {
		case errors.Is(err, core.ErrWalletAlreadyLinked):
			return r.resolveLinked(ctx, address, chainID)
		case errors.Is(err, core.ErrUsernameTaken):
			return nil, err
		default:
			return nil, fmt.Errorf("failed to create account: %w", err)
		}
	}

	r.logger.Info("account created", "account_id", account.ID, "username", username, "address", address, "chain_id", chainID)
	return core.Signup{Account: *account, Wallet: *link}, nil
}

// resolveLinked re-resolves a wallet that lost a uniqueness race
func (r *AccountResolver) resolveLinked(ctx context.Context, address string, chainID int64) (core.Resolution, error) {
	link, err := r.repo.FindWallet(ctx, address, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to re-resolve linked wallet: %w", err)
	}
	r.logger.Debug("wallet linked concurrently, signing in owner", "address", address, "account_id", link.AccountID)
	return r.signin(ctx, link)
}

func (r *AccountResolver) ensureUsername(ctx context.Context, account *core.Account) error {
	if account.Username != "" {
		return nil
	}

	seed := account.ID
	wallets, err := r.repo.ListWallets(ctx, account.ID)
	if err != nil {
		return fmt.Errorf("failed to list wallets: %w", err)
	}
	if len(wallets) > 0 {
		seed = wallets[0].Address
	}

	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		username := GenerateUsername(seed, attempt)
		err := r.repo.UpdateUsername(ctx, account.ID, username)
		if errors.Is(err, core.ErrUsernameTaken) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to backfill username: %w", err)
		}
		account.Username = username
		return nil
	}
	return core.ErrUsernameExhausted
}
