package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

// DefaultPendingSignupTTL bounds how long a deferred signup may be completed
const DefaultPendingSignupTTL = 10 * time.Minute

// Policy holds the request checks applied before signature verification
type Policy struct {
	// AllowedChains lists accepted chain ids; empty accepts any
	AllowedChains []int64
	// AllowedDomains lists accepted message domains; empty accepts any
	AllowedDomains   []string
	PendingSignupTTL time.Duration
}

// Dependencies are the collaborators of AuthService
type Dependencies struct {
	Nonces    ports.NonceStore
	Verifier  ports.SignatureVerifier
	Tokenizer ports.Tokenizer
	Repo      ports.Repository
	Events    ports.EventPublisher
	Resolver  *AccountResolver
	Issuer    *SessionIssuer
	Validator *SessionValidator
	Logger    *slog.Logger
}

// AuthService handles authentication business logic
type AuthService struct {
	nonces    ports.NonceStore
	verifier  ports.SignatureVerifier
	tokenizer ports.Tokenizer
	repo      ports.Repository
	eventPub  ports.EventPublisher
	resolver  *AccountResolver
	issuer    *SessionIssuer
	validator *SessionValidator
	logger    *slog.Logger

	chains     map[int64]bool
	domains    map[string]bool
	pendingTTL time.Duration
	now        func() time.Time
}

// NewAuthService creates a new authentication service
func NewAuthService(deps Dependencies, policy Policy) *AuthService {
	s := &AuthService{
		nonces:     deps.Nonces,
		verifier:   deps.Verifier,
		tokenizer:  deps.Tokenizer,
		repo:       deps.Repo,
		eventPub:   deps.Events,
		resolver:   deps.Resolver,
		issuer:     deps.Issuer,
		validator:  deps.Validator,
		logger:     deps.Logger,
		chains:     make(map[int64]bool),
		domains:    make(map[string]bool),
		pendingTTL: policy.PendingSignupTTL,
		now:        time.Now,
	}
	for _, id := range policy.AllowedChains {
		s.chains[id] = true
	}
	for _, d := range policy.AllowedDomains {
		s.domains[strings.ToLower(d)] = true
	}
	if s.pendingTTL <= 0 {
		s.pendingTTL = DefaultPendingSignupTTL
	}
	return s
}

// VerifyRequest is a signed sign-in message presented by a client
type VerifyRequest struct {
	ClientKey    string // Value of the nonce cookie
	Message      string
	Signature    string
	AccessToken  string // Current session cookie, if any
	RefreshToken string // Used when the access token has expired
}

// AuthResult is the outcome of a verification or a completed signup
type AuthResult struct {
	Outcome core.Outcome
	User    core.User
	Tokens  *core.TokenPair
	// Wallet is the newly linked wallet for OutcomeLink
	Wallet *core.WalletLink
	// Message and PendingToken are set for OutcomeNeedsSignup
	Message      *core.SignInMessage
	PendingToken string
}

// MeResult describes the current session
type MeResult struct {
	User *core.User
	// Renewed is set when an expired access token was replaced from the refresh token
	Renewed *core.TokenPair
	// ClearSession is set when the presented access token should be dropped
	ClearSession bool
	// ClearRefresh is set when the refresh token is invalid, expired or revoked
	ClearRefresh bool
}

// IssueNonce creates a fresh nonce bound to clientKey, replacing any outstanding one
func (s *AuthService) IssueNonce(ctx context.Context, clientKey string) (core.Nonce, error) {
	nonce, err := s.nonces.Issue(ctx, clientKey)
	if err != nil {
		return core.Nonce{}, fmt.Errorf("failed to issue nonce: %w", err)
	}
	return nonce, nil
}

// VerifyOrLink authenticates a signed sign-in message and resolves it to a
// signin, signup, link or deferred signup
func (s *AuthService) VerifyOrLink(ctx context.Context, req VerifyRequest) (*AuthResult, error) {
	if req.Message == "" || req.Signature == "" {
		return nil, core.ErrMalformedMessage
	}

	msg, err := core.ParseSignInMessage(req.Message)
	if err != nil {
		return nil, err
	}

	if len(s.chains) > 0 && !s.chains[msg.ChainID] {
		return nil, fmt.Errorf("chain %d: %w", msg.ChainID, core.ErrInvalidChainID)
	}
	if len(s.domains) > 0 && !s.domains[strings.ToLower(msg.Domain)] {
		return nil, fmt.Errorf("domain %q: %w", msg.Domain, core.ErrInvalidDomain)
	}

	// The nonce is spent before the signature is checked so a failed attempt
	// cannot be replayed
	ok, err := s.nonces.Consume(ctx, req.ClientKey, msg.Nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to consume nonce: %w", err)
	}
	if !ok {
		return nil, core.ErrInvalidNonce
	}

	ok, err = s.verifier.Verify(ctx, msg.Address, req.Message, req.Signature, msg.ChainID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, core.ErrInvalidSignature
	}

	address, err := core.NormalizeAddress(msg.Address)
	if err != nil {
		return nil, err
	}

	current := s.currentSession(ctx, req.AccessToken, req.RefreshToken)
	currentAccountID := ""
	if current != nil {
		currentAccountID = current.AccountID
	}

	res, err := s.resolver.Resolve(ctx, address, msg.ChainID, currentAccountID)
	if err != nil {
		return nil, err
	}

	switch r := res.(type) {
	case core.Signin:
		return s.authenticated(ctx, r.Outcome(), r.Account, r.Wallet, core.ActionSignin)
	case core.Signup:
		return s.authenticated(ctx, r.Outcome(), r.Account, r.Wallet, core.ActionSignup)
	case core.Link:
		return s.linked(ctx, current, r)
	case core.NeedsSignup:
		return s.pendingSignup(msg, r)
	default:
		core.UnknownResolution(res)
		return nil, nil
	}
}

// currentSession returns the claims of the presented session. An expired
// access token is re-derived from a live refresh token.
func (s *AuthService) currentSession(ctx context.Context, accessToken, refreshToken string) *core.Claims {
	if claims := s.validator.Validate(ctx, accessToken); claims != nil {
		return claims
	}
	if refreshToken == "" {
		return nil
	}

	pair, err := s.Refresh(ctx, refreshToken)
	if err != nil {
		s.logger.Debug("session renewal failed", "error", err)
		return nil
	}
	return pair.Session.Claims()
}

// CompleteSignup creates the account for a deferred signup. A pending token
// creates at most one account; once it has, the token is revoked.
func (s *AuthService) CompleteSignup(ctx context.Context, pendingToken, username string) (*AuthResult, error) {
	pending, err := s.tokenizer.TokenToPendingSignup(pendingToken)
	if err != nil {
		return nil, err
	}
	if pending.ID == "" {
		return nil, fmt.Errorf("signup token without id: %w", core.ErrInvalidToken)
	}

	revoked, err := s.issuer.Revoked(ctx, pending.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, core.ErrTokenInvalidated
	}

	res, err := s.resolver.Signup(ctx, pending.Address, pending.ChainID, username)
	if err != nil {
		return nil, err
	}

	switch r := res.(type) {
	case core.Signup:
		if err := s.issuer.RevokeID(ctx, pending.ID, pending.ExpiresAt); err != nil {
			s.logger.Warn("failed to revoke signup token", "account_id", r.Account.ID, "error", err)
		}
		return s.authenticated(ctx, r.Outcome(), r.Account, r.Wallet, core.ActionSignup)
	case core.Signin:
		// The wallet already has an account; signing in takes a fresh signature
		return nil, core.ErrWalletAlreadyLinked
	case core.Link, core.NeedsSignup:
		return nil, fmt.Errorf("unexpected signup outcome %s", r.Outcome())
	default:
		core.UnknownResolution(res)
		return nil, nil
	}
}

// Me returns the user behind the presented tokens, renewing an expired access
// token from the refresh token when possible
func (s *AuthService) Me(ctx context.Context, accessToken, refreshToken string) *MeResult {
	if claims := s.validator.Validate(ctx, accessToken); claims != nil {
		user := claims.User()
		return &MeResult{User: &user}
	}

	result := &MeResult{ClearSession: accessToken != ""}
	if refreshToken == "" {
		return result
	}

	pair, err := s.Refresh(ctx, refreshToken)
	if err != nil {
		s.logger.Debug("session renewal failed", "error", err)
		result.ClearRefresh = isTokenError(err)
		return result
	}

	user := pair.Session.Claims().User()
	return &MeResult{User: &user, Renewed: pair}
}

// Refresh derives a new access token from a refresh token
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*core.TokenPair, error) {
	pair, err := s.issuer.Renew(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	if pair.Session.Username == "" {
		username, err := s.resolver.UsernameFor(ctx, pair.Session.AccountID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve username: %w", err)
		}
		pair.Session.Username = username
		if pair.AccessToken, err = s.tokenizer.SessionToAccessToken(pair.Session); err != nil {
			return nil, fmt.Errorf("failed to create access token: %w", err)
		}
	}
	return pair, nil
}

// SignOut revokes the refresh token and every access token derived from it
func (s *AuthService) SignOut(ctx context.Context, accessToken, refreshToken string) error {
	var accountID, address, refreshID string

	if refreshToken != "" {
		session, err := s.issuer.Revoke(ctx, refreshToken)
		if err != nil && !errors.Is(err, core.ErrInvalidToken) {
			return err
		}
		if session != nil {
			accountID, address, refreshID = session.AccountID, session.Address, session.RefreshID
		}
	}

	if accountID == "" {
		claims := s.validator.Validate(ctx, accessToken)
		if claims == nil {
			return nil
		}
		accountID, address, refreshID = claims.AccountID, claims.Address, claims.RefreshID
		if refreshID != "" {
			if err := s.issuer.RevokeID(ctx, refreshID, claims.IssuedAt.Add(s.issuer.RefreshTTL())); err != nil {
				return err
			}
		}
	}

	s.record(ctx, accountID, core.ActionSignout, map[string]any{"walletAddress": address})
	s.publish(ctx, core.AuthEvent{Kind: core.ActionSignout, AccountID: accountID, Address: address, TokenID: refreshID})
	return nil
}

// ListWallets returns the wallets linked to the account
func (s *AuthService) ListWallets(ctx context.Context, accountID string) ([]core.WalletLink, error) {
	wallets, err := s.repo.ListWallets(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	return wallets, nil
}

// RemoveWallet unlinks one of the account's own wallets
func (s *AuthService) RemoveWallet(ctx context.Context, accountID, walletID string) error {
	wallets, err := s.repo.ListWallets(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to list wallets: %w", err)
	}

	var removed *core.WalletLink
	for i := range wallets {
		if wallets[i].ID == walletID {
			removed = &wallets[i]
			break
		}
	}
	if removed == nil {
		return core.ErrWalletNotFound
	}

	if err := s.repo.DeleteWallet(ctx, accountID, walletID); err != nil {
		return err
	}

	s.record(ctx, accountID, core.ActionWalletUnlinked, map[string]any{
		"walletAddress": removed.Address,
		"chainId":       removed.ChainID,
	})
	s.publish(ctx, core.AuthEvent{
		Kind:      core.ActionWalletUnlinked,
		AccountID: accountID,
		Address:   removed.Address,
		ChainID:   removed.ChainID,
	})
	return nil
}

// UpdateUsername renames the account and re-issues the session so the cached
// username claim follows. The previous refresh token is revoked.
func (s *AuthService) UpdateUsername(ctx context.Context, claims *core.Claims, username string) (*core.TokenPair, error) {
	username, err := ValidateUsername(username)
	if err != nil {
		return nil, err
	}

	if username != claims.Username {
		taken, err := s.repo.UsernameExists(ctx, username)
		if err != nil {
			return nil, fmt.Errorf("failed to check username: %w", err)
		}
		if taken {
			return nil, core.ErrUsernameTaken
		}
		if err := s.repo.UpdateUsername(ctx, claims.AccountID, username); err != nil {
			return nil, err
		}
	}

	pair, err := s.issuer.Issue(ctx, claims.AccountID, username, claims.Address, claims.ChainID)
	if err != nil {
		return nil, err
	}
	if claims.RefreshID != "" {
		if err := s.issuer.RevokeID(ctx, claims.RefreshID, claims.IssuedAt.Add(s.issuer.RefreshTTL())); err != nil {
			s.logger.Warn("failed to revoke previous session", "account_id", claims.AccountID, "error", err)
		}
	}

	s.record(ctx, claims.AccountID, core.ActionUsernameChanged, map[string]any{"username": username})
	s.publish(ctx, core.AuthEvent{Kind: core.ActionUsernameChanged, AccountID: claims.AccountID, At: s.now()})
	return pair, nil
}

// ActivityLogs returns one page of the account's activity, newest first
func (s *AuthService) ActivityLogs(ctx context.Context, accountID string, page, limit int) ([]ActivityView, error) {
	page, limit = ActivityPage(page, limit, true)
	entries, err := s.repo.ListActivity(ctx, accountID, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}

	views := make([]ActivityView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, ActivityView{ActivityLogEntry: entry, Summary: Summarize(entry)})
	}
	return views, nil
}

func (s *AuthService) authenticated(ctx context.Context, outcome core.Outcome, account core.Account, wallet core.WalletLink, action core.ActivityAction) (*AuthResult, error) {
	pair, err := s.issuer.Issue(ctx, account.ID, account.Username, wallet.Address, wallet.ChainID)
	if err != nil {
		return nil, err
	}

	s.record(ctx, account.ID, action, map[string]any{
		"walletAddress": wallet.Address,
		"chainId":       wallet.ChainID,
	})
	s.publish(ctx, core.AuthEvent{
		Kind:      action,
		AccountID: account.ID,
		Address:   wallet.Address,
		ChainID:   wallet.ChainID,
		TokenID:   pair.Session.RefreshID,
	})

	return &AuthResult{
		Outcome: outcome,
		User:    pair.Session.Claims().User(),
		Tokens:  pair,
	}, nil
}

// linked re-issues the current session identity after a wallet was attached
func (s *AuthService) linked(ctx context.Context, current *core.Claims, r core.Link) (*AuthResult, error) {
	pair, err := s.issuer.Issue(ctx, r.Account.ID, r.Account.Username, current.Address, current.ChainID)
	if err != nil {
		return nil, err
	}

	s.record(ctx, r.Account.ID, core.ActionLink, map[string]any{
		"walletAddress": r.Wallet.Address,
		"chainId":       r.Wallet.ChainID,
	})
	s.publish(ctx, core.AuthEvent{
		Kind:      core.ActionLink,
		AccountID: r.Account.ID,
		Address:   r.Wallet.Address,
		ChainID:   r.Wallet.ChainID,
	})

	wallet := r.Wallet
	return &AuthResult{
		Outcome: r.Outcome(),
		User:    pair.Session.Claims().User(),
		Tokens:  pair,
		Wallet:  &wallet,
	}, nil
}

func (s *AuthService) pendingSignup(msg *core.SignInMessage, r core.NeedsSignup) (*AuthResult, error) {
	now := s.now()
	token, err := s.tokenizer.PendingSignupToToken(&core.PendingSignup{
		ID:        uuid.NewString(),
		Address:   r.Address,
		ChainID:   r.ChainID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.pendingTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create signup token: %w", err)
	}

	return &AuthResult{
		Outcome:      r.Outcome(),
		Message:      msg,
		PendingToken: token,
	}, nil
}

func isTokenError(err error) bool {
	return errors.Is(err, core.ErrInvalidToken) ||
		errors.Is(err, core.ErrTokenExpired) ||
		errors.Is(err, core.ErrTokenInvalidated)
}

// record appends to the activity log. Failures are logged, not returned.
func (s *AuthService) record(ctx context.Context, accountID string, action core.ActivityAction, metadata map[string]any) {
	entry := &core.ActivityLogEntry{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Action:    action,
		Metadata:  metadata,
		CreatedAt: s.now(),
	}
	if err := s.repo.AppendActivity(ctx, entry); err != nil {
		s.logger.Warn("failed to record activity", "account_id", accountID, "action", action, "error", err)
	}
}

// publish notifies other instances. The durable write already happened, so
// failures are logged, not returned.
func (s *AuthService) publish(ctx context.Context, event core.AuthEvent) {
	if event.At.IsZero() {
		event.At = s.now()
	}
	if err := s.eventPub.PublishAuthEvent(ctx, event); err != nil {
		s.logger.Warn("failed to publish auth event", "kind", event.Kind, "error", err)
	}
}
