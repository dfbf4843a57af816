package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/layer-3/walletauth/core"
)

// VerifyResponse is the body of a verify-or-link or signup call
type VerifyResponse struct {
	Type    core.Outcome     `json:"type"`
	User    *core.User       `json:"user,omitempty"`
	Wallet  *core.WalletLink `json:"wallet,omitempty"`
	Pending string           `json:"pending,omitempty"`
	TookMs  int64            `json:"tookMs,omitempty"`
}

// APIError is a non-2xx response from the server
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// HTTPAPI talks to the auth server and keeps its cookies
type HTTPAPI struct {
	baseURL string
	client  *http.Client
}

// NewHTTPAPI creates an API client for baseURL with its own cookie jar
func NewHTTPAPI(baseURL string) (*HTTPAPI, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return &HTTPAPI{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Jar: jar, Timeout: 30 * time.Second},
	}, nil
}

// Me returns the current user, or nil without a session
func (a *HTTPAPI) Me(ctx context.Context) (*core.User, error) {
	var out struct {
		User *core.User `json:"user"`
	}
	if err := a.do(ctx, http.MethodGet, "/auth/me", nil, &out); err != nil {
		return nil, err
	}
	return out.User, nil
}

// Nonce requests a fresh sign-in nonce
func (a *HTTPAPI) Nonce(ctx context.Context) (string, error) {
	var out struct {
		Nonce string `json:"nonce"`
	}
	if err := a.do(ctx, http.MethodGet, "/auth/nonce", nil, &out); err != nil {
		return "", err
	}
	return out.Nonce, nil
}

// VerifyOrLink submits a signed sign-in message
func (a *HTTPAPI) VerifyOrLink(ctx context.Context, message, signature string) (*VerifyResponse, error) {
	in := map[string]string{"message": message, "signature": signature}
	var out VerifyResponse
	if err := a.do(ctx, http.MethodPost, "/auth/verify-or-link", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CompleteSignup finishes a deferred signup
func (a *HTTPAPI) CompleteSignup(ctx context.Context, pending, username string) (*VerifyResponse, error) {
	in := map[string]string{"pending": pending, "username": username}
	var out VerifyResponse
	if err := a.do(ctx, http.MethodPost, "/auth/signup", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SignOut ends the server session
func (a *HTTPAPI) SignOut(ctx context.Context) error {
	return a.do(ctx, http.MethodPost, "/auth/signout", nil, nil)
}

func (a *HTTPAPI) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
