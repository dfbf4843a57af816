package http

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/layer-3/walletauth/adapters/events"
	"github.com/layer-3/walletauth/adapters/repository"
	"github.com/layer-3/walletauth/adapters/store"
	"github.com/layer-3/walletauth/adapters/tokenizer"
	"github.com/layer-3/walletauth/adapters/verifier"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	repo := repository.NewMemoryRepository()
	revocations := store.NewMemoryStore()
	tok := tokenizer.NewJWTTokenizer([]byte("router-test-secret-router-test-secret"))
	resolver := service.NewAccountResolver(repo, logger)
	issuer := service.NewSessionIssuer(tok, revocations, time.Hour, 7*24*time.Hour)
	validator := service.NewSessionValidator(tok, revocations, resolver, logger)

	svc := service.NewAuthService(service.Dependencies{
		Nonces:    store.NewMemoryNonceStore(),
		Verifier:  verifier.NewEthVerifier(nil, logger),
		Tokenizer: tok,
		Repo:      repo,
		Events:    events.NopPublisher{},
		Resolver:  resolver,
		Issuer:    issuer,
		Validator: validator,
		Logger:    logger,
	}, service.Policy{AllowedChains: []int64{1}})

	router := SetupRouter(svc, validator, RouterConfig{
		Cookies: CookieConfig{
			AccessTTL:  time.Hour,
			RefreshTTL: 7 * 24 * time.Hour,
			NonceTTL:   5 * time.Minute,
		},
		ProtectedPrefix: "/dashboard",
		LoginPath:       "/login",
	}, logger)
	router.GET("/dashboard/home", func(c *gin.Context) { c.String(http.StatusOK, "home") })
	return router
}

type client struct {
	t       *testing.T
	router  *gin.Engine
	cookies map[string]*http.Cookie
	headers http.Header
}

func newClient(t *testing.T, router *gin.Engine) *client {
	return &client{t: t, router: router, cookies: map[string]*http.Cookie{}, headers: http.Header{}}
}

func (cl *client) do(method, path string, body any) *httptest.ResponseRecorder {
	cl.t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		payload, err := json.Marshal(b)
		require.NoError(cl.t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cl.headers {
		req.Header[k] = v
	}
	for _, c := range cl.cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	cl.router.ServeHTTP(rec, req)

	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(cl.cookies, c.Name)
			continue
		}
		cl.cookies[c.Name] = c
	}
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

type wallet struct {
	key *ecdsa.PrivateKey
}

func newWallet(t *testing.T) wallet {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return wallet{key: key}
}

func (w wallet) signIn(t *testing.T, cl *client) (string, string) {
	t.Helper()
	rec := cl.do(http.MethodGet, "/auth/nonce", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	nonce := decode(t, rec)["nonce"].(string)

	msg := (&core.SignInMessage{
		Domain:   "app.example.com",
		Address:  crypto.PubkeyToAddress(w.key.PublicKey).Hex(),
		URI:      "https://app.example.com",
		Version:  "1",
		ChainID:  1,
		Nonce:    nonce,
		IssuedAt: time.Now().UTC(),
	}).Format()

	sig, err := crypto.Sign(accounts.TextHash([]byte(msg)), w.key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return msg, hexutil.Encode(sig)
}

func TestHealthz(t *testing.T) {
	cl := newClient(t, newTestRouter(t))
	rec := cl.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNonce_SetsClientCookie(t *testing.T) {
	cl := newClient(t, newTestRouter(t))

	rec := cl.do(http.MethodGet, "/auth/nonce", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	first := decode(t, rec)["nonce"].(string)
	assert.Regexp(t, `^[A-Za-z0-9]{8,}$`, first)

	c := cl.cookies[NonceCookie]
	require.NotNil(t, c)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, 300, c.MaxAge)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	key := c.Value

	rec = cl.do(http.MethodGet, "/auth/nonce", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, first, decode(t, rec)["nonce"])
	assert.Equal(t, key, cl.cookies[NonceCookie].Value)
}

func TestSessionLifecycle(t *testing.T) {
	cl := newClient(t, newTestRouter(t))
	w := newWallet(t)

	msg, sig := w.signIn(t, cl)
	rec := cl.do(http.MethodPost, "/auth/verify-or-link", gin.H{"message": msg, "signature": sig})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, "signup", body["type"])
	user := body["user"].(map[string]any)
	assert.Equal(t, float64(1), user["chainId"])
	assert.NotEmpty(t, user["username"])

	require.NotNil(t, cl.cookies[SessionCookie])
	require.NotNil(t, cl.cookies[RefreshCookie])
	assert.Equal(t, 3600, cl.cookies[SessionCookie].MaxAge)
	assert.Equal(t, 7*24*3600, cl.cookies[RefreshCookie].MaxAge)
	assert.Nil(t, cl.cookies[NonceCookie])

	rec = cl.do(http.MethodGet, "/auth/me", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode(t, rec)["user"].(map[string]any)
	assert.Equal(t, user["id"], me["id"])

	rec = cl.do(http.MethodGet, "/wallets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["wallets"], 1)

	rec = cl.do(http.MethodGet, "/activity?page=1&limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	logs := decode(t, rec)["logs"].([]any)
	require.Len(t, logs, 1)
	assert.Equal(t, "signup", logs[0].(map[string]any)["action"])
	assert.Contains(t, logs[0].(map[string]any)["summary"], "Created account with")

	rec = cl.do(http.MethodPost, "/auth/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = cl.do(http.MethodPut, "/profile/username", gin.H{"username": "satoshi"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "satoshi", decode(t, rec)["user"].(map[string]any)["username"])

	rec = cl.do(http.MethodPost, "/auth/signout", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["ok"])
	assert.Empty(t, cl.cookies)

	rec = cl.do(http.MethodGet, "/auth/me", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode(t, rec)["user"])
}

func TestVerifyOrLink_Errors(t *testing.T) {
	router := newTestRouter(t)
	w := newWallet(t)

	tests := []struct {
		name   string
		body   func(cl *client) any
		status int
		errMsg string
	}{
		{"invalid json", func(*client) any { return "{nope" }, http.StatusBadRequest, "Invalid JSON body"},
		{"missing signature", func(*client) any { return gin.H{"message": "x"} }, http.StatusBadRequest, "Missing message or signature"},
		{"malformed message", func(cl *client) any {
			_, sig := w.signIn(t, cl)
			return gin.H{"message": "hello", "signature": sig}
		}, http.StatusBadRequest, "Invalid SIWE message"},
		{"no nonce cookie", func(cl *client) any {
			msg, sig := w.signIn(t, cl)
			delete(cl.cookies, NonceCookie)
			return gin.H{"message": msg, "signature": sig}
		}, http.StatusBadRequest, "Invalid nonce"},
		{"wrong signer", func(cl *client) any {
			msg, _ := w.signIn(t, cl)
			_, sig := newWallet(t).signIn(t, newClient(t, router))
			return gin.H{"message": msg, "signature": sig}
		}, http.StatusUnauthorized, "Invalid signature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cl := newClient(t, router)
			rec := cl.do(http.MethodPost, "/auth/verify-or-link", tt.body(cl))
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.errMsg, decode(t, rec)["error"])
		})
	}
}

func TestRemoveWallet_ForeignWalletRejected(t *testing.T) {
	router := newTestRouter(t)
	alice, bob := newClient(t, router), newClient(t, router)

	for _, cl := range []*client{alice, bob} {
		msg, sig := newWallet(t).signIn(t, cl)
		rec := cl.do(http.MethodPost, "/auth/verify-or-link", gin.H{"message": msg, "signature": sig})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := alice.do(http.MethodGet, "/wallets", nil)
	wallets := decode(t, rec)["wallets"].([]any)
	require.Len(t, wallets, 1)
	walletID := wallets[0].(map[string]any)["id"].(string)

	rec = bob.do(http.MethodDelete, "/wallets/"+walletID, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, decode(t, rec)["error"])

	rec = alice.do(http.MethodGet, "/wallets", nil)
	assert.Len(t, decode(t, rec)["wallets"], 1)

	rec = alice.do(http.MethodDelete, "/wallets/"+walletID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["success"])
}

func TestAccountRoutesRequireSession(t *testing.T) {
	cl := newClient(t, newTestRouter(t))

	rec := cl.do(http.MethodGet, "/wallets", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = cl.do(http.MethodPost, "/auth/refresh", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProtectPrefix(t *testing.T) {
	router := newTestRouter(t)

	cl := newClient(t, router)
	rec := cl.do(http.MethodGet, "/dashboard/home?tab=1", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?next=%2Fdashboard%2Fhome%3Ftab%3D1", rec.Header().Get("Location"))

	cl.cookies[SessionCookie] = &http.Cookie{Name: SessionCookie, Value: "tampered"}
	rec = cl.do(http.MethodGet, "/dashboard/home", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Nil(t, cl.cookies[SessionCookie])

	msg, sig := newWallet(t).signIn(t, cl)
	rec = cl.do(http.MethodPost, "/auth/verify-or-link", gin.H{"message": msg, "signature": sig})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = cl.do(http.MethodGet, "/dashboard/home", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "home", rec.Body.String())

	// Other paths are untouched
	rec = newClient(t, router).do(http.MethodGet, "/dashboards", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMe_ClearsDeadRefreshCookie(t *testing.T) {
	cl := newClient(t, newTestRouter(t))
	cl.cookies[RefreshCookie] = &http.Cookie{Name: RefreshCookie, Value: "junk"}

	rec := cl.do(http.MethodGet, "/auth/me", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode(t, rec)["user"])
	assert.Nil(t, cl.cookies[RefreshCookie])
}

func TestVerifyOrLink_BearerSessionLinks(t *testing.T) {
	router := newTestRouter(t)

	browser := newClient(t, router)
	msg, sig := newWallet(t).signIn(t, browser)
	rec := browser.do(http.MethodPost, "/auth/verify-or-link", gin.H{"message": msg, "signature": sig})
	require.Equal(t, http.StatusOK, rec.Code)
	owner := decode(t, rec)["user"].(map[string]any)

	api := newClient(t, router)
	api.headers.Set("Authorization", "Bearer "+browser.cookies[SessionCookie].Value)

	msg, sig = newWallet(t).signIn(t, api)
	rec = api.do(http.MethodPost, "/auth/verify-or-link", gin.H{"message": msg, "signature": sig})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, "link", body["type"])
	assert.Equal(t, owner["id"], body["user"].(map[string]any)["id"])
	assert.NotNil(t, body["wallet"])
}
