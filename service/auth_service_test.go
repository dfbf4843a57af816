package service

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/layer-3/walletauth/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyOrLink_SignupThenSignin(t *testing.T) {
	h := newHarness(t)
	w := newWallet(t)

	first := h.signIn(t, w, "")
	assert.Equal(t, core.OutcomeSignup, first.Outcome)
	assert.Equal(t, w.normalized(), first.User.WalletAddress)
	assert.Equal(t, int64(1), first.User.ChainID)
	assert.Equal(t, GenerateUsername(w.normalized(), 0), first.User.Username)
	require.NotNil(t, first.Tokens)
	assert.NotEmpty(t, first.Tokens.AccessToken)
	assert.NotEmpty(t, first.Tokens.RefreshToken)

	second := h.signIn(t, w, "")
	assert.Equal(t, core.OutcomeSignin, second.Outcome)
	assert.Equal(t, first.User.ID, second.User.ID)
	assert.Equal(t, first.User.Username, second.User.Username)

	wallets, err := h.svc.ListWallets(context.Background(), first.User.ID)
	require.NoError(t, err)
	assert.Len(t, wallets, 1)
}

func TestVerifyOrLink_NonceIsSingleUse(t *testing.T) {
	h := newHarness(t)
	w := newWallet(t)
	ctx := context.Background()

	req := h.request(t, w, 1, "")
	_, err := h.svc.VerifyOrLink(ctx, req)
	require.NoError(t, err)

	_, err = h.svc.VerifyOrLink(ctx, req)
	assert.ErrorIs(t, err, core.ErrInvalidNonce)
}

func TestVerifyOrLink_NonceBoundToClient(t *testing.T) {
	h := newHarness(t)
	w := newWallet(t)

	req := h.request(t, w, 1, "")
	req.ClientKey = "someone-else"
	_, err := h.svc.VerifyOrLink(context.Background(), req)
	assert.ErrorIs(t, err, core.ErrInvalidNonce)
}

func TestVerifyOrLink_NonceExpiry(t *testing.T) {
	ctx := context.Background()

	t.Run("accepted at 10s", func(t *testing.T) {
		h := newHarness(t)
		req := h.request(t, newWallet(t), 1, "")
		h.clock.Advance(10 * time.Second)
		_, err := h.svc.VerifyOrLink(ctx, req)
		assert.NoError(t, err)
	})

	t.Run("rejected at 400s", func(t *testing.T) {
		h := newHarness(t)
		req := h.request(t, newWallet(t), 1, "")
		h.clock.Advance(400 * time.Second)
		_, err := h.svc.VerifyOrLink(ctx, req)
		assert.ErrorIs(t, err, core.ErrInvalidNonce)
	})
}

func TestVerifyOrLink_InvalidSignatureSpendsNonce(t *testing.T) {
	h := newHarness(t)
	w := newWallet(t)
	impostor := newWallet(t)
	ctx := context.Background()

	req := h.request(t, w, 1, "")
	good := req.Signature
	req.Signature = impostor.sign(t, req.Message)

	_, err := h.svc.VerifyOrLink(ctx, req)
	assert.ErrorIs(t, err, core.ErrInvalidSignature)

	req.Signature = good
	_, err = h.svc.VerifyOrLink(ctx, req)
	assert.ErrorIs(t, err, core.ErrInvalidNonce)
}

func TestVerifyOrLink_InputErrors(t *testing.T) {
	h := newHarness(t)
	w := newWallet(t)
	ctx := context.Background()

	req := h.request(t, w, 10, "")
	_, err := h.svc.VerifyOrLink(ctx, req)
	assert.ErrorIs(t, err, core.ErrInvalidChainID)

	req = h.request(t, w, 1, "")
	req.Message = strings.Replace(req.Message, testDomain+" wants", "evil.example.com wants", 1)
	_, err = h.svc.VerifyOrLink(ctx, req)
	assert.ErrorIs(t, err, core.ErrInvalidDomain)

	req = h.request(t, w, 1, "")
	req.Message = "hello world"
	_, err = h.svc.VerifyOrLink(ctx, req)
	assert.ErrorIs(t, err, core.ErrMalformedMessage)

	req = h.request(t, w, 1, "")
	req.Signature = "not-hex"
	_, err = h.svc.VerifyOrLink(ctx, req)
	assert.ErrorIs(t, err, core.ErrMalformedSignature)

	_, err = h.svc.VerifyOrLink(ctx, VerifyRequest{})
	assert.ErrorIs(t, err, core.ErrMalformedMessage)
}

func TestVerifyOrLink_LinkKeepsSessionIdentity(t *testing.T) {
	h := newHarness(t)
	primary := newWallet(t)
	second := newWallet(t)
	ctx := context.Background()

	signup := h.signIn(t, primary, "")
	require.Equal(t, core.OutcomeSignup, signup.Outcome)

	link := h.signIn(t, second, signup.Tokens.AccessToken)
	assert.Equal(t, core.OutcomeLink, link.Outcome)
	assert.Equal(t, signup.User.ID, link.User.ID)
	assert.Equal(t, primary.normalized(), link.User.WalletAddress)
	require.NotNil(t, link.Wallet)
	assert.Equal(t, second.normalized(), link.Wallet.Address)

	wallets, err := h.svc.ListWallets(ctx, signup.User.ID)
	require.NoError(t, err)
	assert.Len(t, wallets, 2)

	// The linked wallet now signs in to the same account on its own
	again := h.signIn(t, second, "")
	assert.Equal(t, core.OutcomeSignin, again.Outcome)
	assert.Equal(t, signup.User.ID, again.User.ID)
}

func TestVerifyOrLink_LinkedWalletUnderOtherSessionSignsInOwner(t *testing.T) {
	h := newHarness(t)
	alice := newWallet(t)
	bob := newWallet(t)

	a := h.signIn(t, alice, "")
	b := h.signIn(t, bob, "")

	res := h.signIn(t, alice, b.Tokens.AccessToken)
	assert.Equal(t, core.OutcomeSignin, res.Outcome)
	assert.Equal(t, a.User.ID, res.User.ID)
}

func TestDeferredSignup(t *testing.T) {
	h := newHarness(t, WithDeferredSignup())
	w := newWallet(t)
	ctx := context.Background()

	res := h.signIn(t, w, "")
	assert.Equal(t, core.OutcomeNeedsSignup, res.Outcome)
	assert.NotEmpty(t, res.PendingToken)
	require.NotNil(t, res.Message)
	assert.Nil(t, res.Tokens)

	_, err := h.repo.FindWallet(ctx, w.normalized(), 1)
	assert.ErrorIs(t, err, core.ErrWalletNotFound)

	_, err = h.svc.CompleteSignup(ctx, res.PendingToken, "ab")
	assert.ErrorIs(t, err, core.ErrInvalidUsername)

	done, err := h.svc.CompleteSignup(ctx, res.PendingToken, "satoshi")
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeSignup, done.Outcome)
	assert.Equal(t, "satoshi", done.User.Username)
	assert.Equal(t, w.normalized(), done.User.WalletAddress)

	// A completed signup token cannot mint another session, even after sign-out
	_, err = h.svc.CompleteSignup(ctx, res.PendingToken, "")
	assert.ErrorIs(t, err, core.ErrTokenInvalidated)

	require.NoError(t, h.svc.SignOut(ctx, done.Tokens.AccessToken, done.Tokens.RefreshToken))
	_, err = h.svc.CompleteSignup(ctx, res.PendingToken, "")
	assert.ErrorIs(t, err, core.ErrTokenInvalidated)

	_, err = h.svc.CompleteSignup(ctx, "garbage", "")
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestDeferredSignup_SecondTokenForSameWallet(t *testing.T) {
	h := newHarness(t, WithDeferredSignup())
	w := newWallet(t)
	ctx := context.Background()

	first := h.signIn(t, w, "")
	second := h.signIn(t, w, "")
	require.Equal(t, core.OutcomeNeedsSignup, second.Outcome)

	_, err := h.svc.CompleteSignup(ctx, first.PendingToken, "")
	require.NoError(t, err)

	// The wallet has an account now; a leftover token must not sign it in
	res, err := h.svc.CompleteSignup(ctx, second.PendingToken, "")
	assert.ErrorIs(t, err, core.ErrWalletAlreadyLinked)
	assert.Nil(t, res)
}

func TestDeferredSignup_TokenWithoutID(t *testing.T) {
	h := newHarness(t, WithDeferredSignup())
	now := h.clock.Now()

	token, err := h.tokenizer.PendingSignupToToken(&core.PendingSignup{
		Address:   newWallet(t).normalized(),
		ChainID:   1,
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Minute),
	})
	require.NoError(t, err)

	_, err = h.svc.CompleteSignup(context.Background(), token, "")
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestMe(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.signIn(t, newWallet(t), "")

	me := h.svc.Me(ctx, res.Tokens.AccessToken, res.Tokens.RefreshToken)
	require.NotNil(t, me.User)
	assert.Equal(t, res.User, *me.User)
	assert.Nil(t, me.Renewed)

	me = h.svc.Me(ctx, "", "")
	assert.Nil(t, me.User)
	assert.False(t, me.ClearSession)

	me = h.svc.Me(ctx, res.Tokens.AccessToken+"x", "")
	assert.Nil(t, me.User)
	assert.True(t, me.ClearSession)
}

func TestMe_RenewsExpiredAccessToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.signIn(t, newWallet(t), "")

	h.clock.Advance(2 * time.Hour)

	assert.Nil(t, h.validator.Validate(ctx, res.Tokens.AccessToken))

	me := h.svc.Me(ctx, res.Tokens.AccessToken, res.Tokens.RefreshToken)
	require.NotNil(t, me.User)
	require.NotNil(t, me.Renewed)
	assert.Equal(t, res.User.ID, me.User.ID)
	assert.Equal(t, res.User.Username, me.User.Username)

	claims := h.validator.Validate(ctx, me.Renewed.AccessToken)
	require.NotNil(t, claims)
	assert.Equal(t, res.Tokens.Session.RefreshID, claims.RefreshID)

	h.clock.Advance(8 * 24 * time.Hour)
	me = h.svc.Me(ctx, me.Renewed.AccessToken, res.Tokens.RefreshToken)
	assert.Nil(t, me.User)
	assert.True(t, me.ClearSession)
	assert.True(t, me.ClearRefresh)
}

func TestMe_RevokedRefreshTokenIsCleared(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.signIn(t, newWallet(t), "")

	require.NoError(t, h.svc.SignOut(ctx, "", res.Tokens.RefreshToken))

	me := h.svc.Me(ctx, "", res.Tokens.RefreshToken)
	assert.Nil(t, me.User)
	assert.True(t, me.ClearRefresh)

	me = h.svc.Me(ctx, "", "not-a-token")
	assert.True(t, me.ClearRefresh)
}

func TestVerifyOrLink_ExpiredAccessLinksThroughRefresh(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	alice := h.signIn(t, newWallet(t), "")
	h.clock.Advance(2 * time.Hour)
	require.Nil(t, h.validator.Validate(ctx, alice.Tokens.AccessToken))

	second := newWallet(t)
	req := h.request(t, second, 1, alice.Tokens.AccessToken)
	req.RefreshToken = alice.Tokens.RefreshToken

	res, err := h.svc.VerifyOrLink(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeLink, res.Outcome)
	assert.Equal(t, alice.User.ID, res.User.ID)
	assert.Equal(t, alice.User.WalletAddress, res.User.WalletAddress)

	link, err := h.repo.FindWallet(ctx, second.normalized(), 1)
	require.NoError(t, err)
	assert.Equal(t, alice.User.ID, link.AccountID)

	// A revoked refresh token no longer carries the identity
	require.NoError(t, h.svc.SignOut(ctx, "", alice.Tokens.RefreshToken))
	req = h.request(t, newWallet(t), 1, alice.Tokens.AccessToken)
	req.RefreshToken = alice.Tokens.RefreshToken
	res, err = h.svc.VerifyOrLink(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeSignup, res.Outcome)
	assert.NotEqual(t, alice.User.ID, res.User.ID)
}

func TestSignOut_RevokesSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.signIn(t, newWallet(t), "")

	require.NoError(t, h.svc.SignOut(ctx, res.Tokens.AccessToken, res.Tokens.RefreshToken))

	assert.Nil(t, h.validator.Validate(ctx, res.Tokens.AccessToken))
	_, err := h.svc.Refresh(ctx, res.Tokens.RefreshToken)
	assert.ErrorIs(t, err, core.ErrTokenInvalidated)

	// Signing out without a session is a no-op
	assert.NoError(t, h.svc.SignOut(ctx, "", ""))
	assert.NoError(t, h.svc.SignOut(ctx, "junk", "junk"))
}

func TestSignOut_AccessTokenWithoutRefreshID(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.signIn(t, newWallet(t), "")

	session := *res.Tokens.Session
	session.RefreshID = ""
	access, err := h.tokenizer.SessionToAccessToken(&session)
	require.NoError(t, err)

	require.NoError(t, h.svc.SignOut(ctx, access, ""))

	revoked, err := h.revocations.IsTokenInvalidated(ctx, "")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRemoveWallet_OnlyOwnWallets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.signIn(t, newWallet(t), "")
	b := h.signIn(t, newWallet(t), "")

	aWallets, err := h.svc.ListWallets(ctx, a.User.ID)
	require.NoError(t, err)
	require.Len(t, aWallets, 1)

	err = h.svc.RemoveWallet(ctx, b.User.ID, aWallets[0].ID)
	assert.ErrorIs(t, err, core.ErrWalletNotFound)

	aWallets, err = h.svc.ListWallets(ctx, a.User.ID)
	require.NoError(t, err)
	assert.Len(t, aWallets, 1)

	require.NoError(t, h.svc.RemoveWallet(ctx, a.User.ID, aWallets[0].ID))
	aWallets, err = h.svc.ListWallets(ctx, a.User.ID)
	require.NoError(t, err)
	assert.Empty(t, aWallets)
}

func TestUpdateUsername(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.signIn(t, newWallet(t), "")
	b := h.signIn(t, newWallet(t), "")

	claims := h.validator.Validate(ctx, a.Tokens.AccessToken)
	require.NotNil(t, claims)

	_, err := h.svc.UpdateUsername(ctx, claims, b.User.Username)
	assert.ErrorIs(t, err, core.ErrUsernameTaken)

	_, err = h.svc.UpdateUsername(ctx, claims, " x ")
	assert.ErrorIs(t, err, core.ErrInvalidUsername)

	pair, err := h.svc.UpdateUsername(ctx, claims, "vitalik")
	require.NoError(t, err)

	renamed := h.validator.Validate(ctx, pair.AccessToken)
	require.NotNil(t, renamed)
	assert.Equal(t, "vitalik", renamed.Username)
	assert.Equal(t, a.User.ID, renamed.AccountID)

	// The session carrying the old username is revoked
	assert.Nil(t, h.validator.Validate(ctx, a.Tokens.AccessToken))

	username, err := h.resolver.UsernameFor(ctx, a.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "vitalik", username)
}

func TestActivityLogs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w := newWallet(t)

	res := h.signIn(t, w, "")
	h.clock.Advance(time.Second)
	h.signIn(t, w, "")

	logs, err := h.svc.ActivityLogs(ctx, res.User.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, core.ActionSignin, logs[0].Action)
	assert.Equal(t, core.ActionSignup, logs[1].Action)
	assert.Equal(t, "Created account with "+core.ShortAddress(w.normalized()), logs[1].Summary)

	logs, err = h.svc.ActivityLogs(ctx, res.User.ID, 2, 1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, core.ActionSignup, logs[0].Action)

	logs, err = h.svc.ActivityLogs(ctx, res.User.ID, math.MaxInt, 10)
	require.NoError(t, err)
	assert.Empty(t, logs)
}
