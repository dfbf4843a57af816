package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/layer-3/walletauth/core"
)

// ErrUserRejected is returned by a Wallet when the user declines to sign
var ErrUserRejected = errors.New("user rejected the signature request")

// WalletState is the connection status reported by the wallet layer
type WalletState struct {
	Connected bool
	Address   string
	ChainID   int64
}

// Wallet signs sign-in messages
type Wallet interface {
	SignMessage(ctx context.Context, address, message string) (string, error)
}

// API is the server surface the orchestrator drives
type API interface {
	Me(ctx context.Context) (*core.User, error)
	Nonce(ctx context.Context) (string, error)
	VerifyOrLink(ctx context.Context, message, signature string) (*VerifyResponse, error)
	CompleteSignup(ctx context.Context, pending, username string) (*VerifyResponse, error)
}

// Refresher reloads client-side data after the session changes
type Refresher interface {
	Refresh(ctx context.Context)
}

// RefresherFunc adapts a function to Refresher
type RefresherFunc func(ctx context.Context)

func (f RefresherFunc) Refresh(ctx context.Context) { f(ctx) }

// MessageConfig describes the sign-in messages the orchestrator builds
type MessageConfig struct {
	Domain    string
	URI       string
	Statement string
	TTL       time.Duration // Optional expiration of the message
}

// Orchestrator runs the wallet sign-in sequence. Each connected address is
// attempted at most once per connection until a failure clears its guard.
type Orchestrator struct {
	api       API
	wallet    Wallet
	refresher Refresher
	message   MessageConfig
	logger    *slog.Logger
	now       func() time.Time

	// SignupUsername is passed to CompleteSignup for deferred signups
	SignupUsername string
	// OnTransition observes every state change
	OnTransition func(from, to State)

	mu        sync.Mutex
	state     State
	user      *core.User
	connected string
	attempted map[string]bool
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(api API, wallet Wallet, refresher Refresher, message MessageConfig, logger *slog.Logger) *Orchestrator {
	if refresher == nil {
		refresher = RefresherFunc(func(context.Context) {})
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		api:       api,
		wallet:    wallet,
		refresher: refresher,
		message:   message,
		logger:    logger,
		now:       time.Now,
		state:     Idle,
		attempted: make(map[string]bool),
	}
}

// State returns the current state
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// User returns the authenticated user, if any
func (o *Orchestrator) User() *core.User {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.user
}

// AddressChanged records the newly connected address. Changing address resets
// the attempt guard; disconnecting (empty address) clears it entirely.
func (o *Orchestrator) AddressChanged(address string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.addressChangedLocked(strings.ToLower(address))
}

func (o *Orchestrator) addressChangedLocked(address string) {
	if address == o.connected {
		return
	}
	delete(o.attempted, o.connected)
	if address == "" {
		o.attempted = make(map[string]bool)
	}
	o.connected = address
}

// Run performs automatic sign-in for the connected wallet. It is a no-op when
// the wallet is disconnected or the address was already attempted.
func (o *Orchestrator) Run(ctx context.Context, ws WalletState) (State, error) {
	address, ok := o.claim(ws)
	if !ok {
		return o.State(), nil
	}

	o.transition(CheckingExistingSession)
	user, err := o.api.Me(ctx)
	if err != nil {
		o.logger.Debug("session check failed", "error", err)
	}
	if user != nil {
		o.authenticate(user)
		return Authenticated, nil
	}

	return o.signIn(ctx, address, ws)
}

// LinkWallet signs in with the connected wallet even when a session exists,
// which links the wallet to the current account
func (o *Orchestrator) LinkWallet(ctx context.Context, ws WalletState) (State, error) {
	address, ok := o.claim(ws)
	if !ok {
		return o.State(), nil
	}
	return o.signIn(ctx, address, ws)
}

// claim marks the wallet's address as attempted. It reports false when the
// sequence must not start.
func (o *Orchestrator) claim(ws WalletState) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	address := strings.ToLower(ws.Address)
	if !ws.Connected || address == "" {
		o.addressChangedLocked("")
		return "", false
	}

	o.addressChangedLocked(address)
	if o.attempted[address] {
		return "", false
	}
	o.attempted[address] = true
	return address, true
}

func (o *Orchestrator) signIn(ctx context.Context, address string, ws WalletState) (State, error) {
	o.transition(FetchingNonce)
	nonce, err := o.api.Nonce(ctx)
	if err != nil {
		return o.fail(address, fmt.Errorf("failed to fetch nonce: %w", err))
	}

	msg := o.buildMessage(ws, nonce)

	o.transition(AwaitingSignature)
	signature, err := o.wallet.SignMessage(ctx, ws.Address, msg)
	if err != nil {
		return o.fail(address, err)
	}
	if err := ctx.Err(); err != nil {
		return o.fail(address, err)
	}

	o.transition(Verifying)
	resp, err := o.api.VerifyOrLink(ctx, msg, signature)
	if err != nil {
		return o.fail(address, fmt.Errorf("verification failed: %w", err))
	}

	switch resp.Type {
	case core.OutcomeSignin, core.OutcomeSignup:
		o.authenticate(resp.User)
		o.refresher.Refresh(ctx)
	case core.OutcomeLink:
		o.mu.Lock()
		keep := o.user
		o.mu.Unlock()
		if keep == nil {
			keep = resp.User
		}
		o.authenticate(keep)
		o.refresher.Refresh(ctx)
	case core.OutcomeNeedsSignup:
		o.transition(CompletingSignup)
		done, err := o.api.CompleteSignup(ctx, resp.Pending, o.SignupUsername)
		if err != nil {
			return o.fail(address, fmt.Errorf("signup failed: %w", err))
		}
		o.authenticate(done.User)
		o.refresher.Refresh(ctx)
	default:
		return o.fail(address, fmt.Errorf("unexpected outcome %q", resp.Type))
	}

	return Authenticated, nil
}

func (o *Orchestrator) buildMessage(ws WalletState, nonce string) string {
	issued := o.now().UTC()
	msg := &core.SignInMessage{
		Domain:    o.message.Domain,
		Address:   ws.Address,
		Statement: o.message.Statement,
		URI:       o.message.URI,
		Version:   "1",
		ChainID:   ws.ChainID,
		Nonce:     nonce,
		IssuedAt:  issued,
	}
	if o.message.TTL > 0 {
		exp := issued.Add(o.message.TTL)
		msg.ExpirationTime = &exp
	}
	return msg.Format()
}

func (o *Orchestrator) authenticate(user *core.User) {
	o.mu.Lock()
	o.user = user
	o.mu.Unlock()
	o.transition(Authenticated)
}

// fail resets to the retryable unauthenticated state and clears the guard
func (o *Orchestrator) fail(address string, err error) (State, error) {
	o.mu.Lock()
	delete(o.attempted, address)
	o.mu.Unlock()

	if errors.Is(err, ErrUserRejected) || errors.Is(err, context.Canceled) {
		o.logger.Info("sign-in cancelled", "address", address)
	} else {
		o.logger.Warn("sign-in failed", "address", address, "error", err)
	}

	o.transition(Unauthenticated)
	return Unauthenticated, err
}

func (o *Orchestrator) transition(to State) {
	o.mu.Lock()
	from := o.state
	o.state = to
	hook := o.OnTransition
	o.mu.Unlock()

	if hook != nil {
		hook(from, to)
	}
}
