package service

import (
	"context"
	"crypto/ecdsa"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/layer-3/walletauth/adapters/events"
	"github.com/layer-3/walletauth/adapters/repository"
	"github.com/layer-3/walletauth/adapters/store"
	"github.com/layer-3/walletauth/adapters/tokenizer"
	"github.com/layer-3/walletauth/adapters/verifier"
	"github.com/layer-3/walletauth/core"
	"github.com/stretchr/testify/require"
)

const testDomain = "app.example.com"

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	clock       *testClock
	repo        *repository.MemoryRepository
	nonces      *store.MemoryNonceStore
	revocations *store.MemoryStore
	tokenizer   *tokenizer.JWTTokenizer
	resolver    *AccountResolver
	issuer      *SessionIssuer
	validator   *SessionValidator
	svc         *AuthService
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, opts ...ResolverOption) *harness {
	t.Helper()

	clock := &testClock{t: time.Now().UTC().Truncate(time.Second)}
	logger := discardLogger()

	repo := repository.NewMemoryRepository()
	revocations := store.NewMemoryStore(store.WithClock(clock.Now))
	nonces := store.NewMemoryNonceStore(store.WithClock(clock.Now))
	tok := tokenizer.NewJWTTokenizer([]byte("test-secret-test-secret-test-secret"), tokenizer.WithClock(clock.Now))

	resolver := NewAccountResolver(repo, logger, append(opts, WithResolverClock(clock.Now))...)
	issuer := NewSessionIssuer(tok, revocations, 0, 0)
	issuer.now = clock.Now
	validator := NewSessionValidator(tok, revocations, resolver, logger)

	svc := NewAuthService(Dependencies{
		Nonces:    nonces,
		Verifier:  verifier.NewEthVerifier(nil, logger),
		Tokenizer: tok,
		Repo:      repo,
		Events:    events.NopPublisher{},
		Resolver:  resolver,
		Issuer:    issuer,
		Validator: validator,
		Logger:    logger,
	}, Policy{
		AllowedChains:  []int64{1, 137},
		AllowedDomains: []string{testDomain},
	})
	svc.now = clock.Now

	return &harness{
		clock:       clock,
		repo:        repo,
		nonces:      nonces,
		revocations: revocations,
		tokenizer:   tok,
		resolver:    resolver,
		issuer:      issuer,
		validator:   validator,
		svc:         svc,
	}
}

type testWallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func newWallet(t *testing.T) testWallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return testWallet{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

// normalized is the stored form of the wallet address
func (w testWallet) normalized() string {
	addr, _ := core.NormalizeAddress(w.address.Hex())
	return addr
}

func (w testWallet) sign(t *testing.T, message string) string {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), w.key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig)
}

func (h *harness) message(w testWallet, chainID int64, nonce string) string {
	return (&core.SignInMessage{
		Domain:    testDomain,
		Address:   w.address.Hex(),
		Statement: "Sign in with Ethereum to the app.",
		URI:       "https://" + testDomain,
		Version:   "1",
		ChainID:   chainID,
		Nonce:     nonce,
		IssuedAt:  h.clock.Now(),
	}).Format()
}

// request issues a nonce for a fresh client and returns a signed verify request
func (h *harness) request(t *testing.T, w testWallet, chainID int64, accessToken string) VerifyRequest {
	t.Helper()
	clientKey := uuid.NewString()
	nonce, err := h.svc.IssueNonce(context.Background(), clientKey)
	require.NoError(t, err)

	msg := h.message(w, chainID, nonce.Value)
	return VerifyRequest{
		ClientKey:   clientKey,
		Message:     msg,
		Signature:   w.sign(t, msg),
		AccessToken: accessToken,
	}
}

func (h *harness) signIn(t *testing.T, w testWallet, accessToken string) *AuthResult {
	t.Helper()
	res, err := h.svc.VerifyOrLink(context.Background(), h.request(t, w, 1, accessToken))
	require.NoError(t, err)
	return res
}
