package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/identity"
)

// CSRFHeader carries the double-submit token.
const CSRFHeader = "X-CSRF-Token"

// Options configures a [Client].
type Options struct {
	// HTTPClient is used for every call. A cookie jar is attached when it
	// has none.
	HTTPClient *http.Client
	// RenewTimeout bounds each renewal round trip.
	RenewTimeout time.Duration
	// OnSessionEnded runs when the server ends the session (supersede or a
	// failed access renewal). It receives the wire code.
	OnSessionEnded func(code string)
}

// Client talks to an authgate API server.
type Client struct {
	base    *url.URL
	http    *http.Client
	coord   *Coordinator
	onEnded func(string)

	mu   sync.RWMutex
	csrf string
}

// New returns a client for the API rooted at baseURL.
func New(baseURL string, opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("client: parse base url: %w", err)
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	if hc.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("client: cookie jar: %w", err)
		}
		copied := *hc
		copied.Jar = jar
		hc = &copied
	}

	return &Client{
		base:    base,
		http:    hc,
		coord:   NewCoordinator(opts.RenewTimeout),
		onEnded: opts.OnSessionEnded,
	}, nil
}

// Coordinator exposes the renewal coordinator, mainly for inspection.
func (c *Client) Coordinator() *Coordinator { return c.coord }

// CSRFToken returns the token echoed on mutating requests.
func (c *Client) CSRFToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.csrf
}

func (c *Client) setCSRF(token string) {
	c.mu.Lock()
	c.csrf = token
	c.mu.Unlock()
}

/*
====================================
RESPONSES
====================================
*/

// LoginResponse is the body of POST /auth/login.
type LoginResponse struct {
	Identity  identity.Public      `json:"identity"`
	Session   authgate.SessionInfo `json:"session"`
	CSRFToken string               `json:"csrfToken"`
}

// MeResponse is the body of GET /auth/me.
type MeResponse struct {
	Identity identity.Public      `json:"identity"`
	Session  authgate.SessionInfo `json:"session"`
}

type VerifyResponse struct {
	Message  string           `json:"message"`
	Identity *identity.Public `json:"identity,omitempty"`
}

/*
====================================
OPERATIONS
====================================
*/

func (c *Client) Register(ctx context.Context, username, email, password string) error {
	return c.call(ctx, http.MethodPost, "/auth/register", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}, nil, callOptions{})
}

// CheckUsername reports whether username is free.
func (c *Client) CheckUsername(ctx context.Context, username string) (bool, error) {
	var out struct {
		Available bool `json:"available"`
	}
	path := "/auth/check-username?username=" + url.QueryEscape(username)
	if err := c.call(ctx, http.MethodGet, path, nil, &out, callOptions{}); err != nil {
		return false, err
	}
	return out.Available, nil
}

// VerifyEmail consumes a verification link token. AlreadyVerified replays
// return a nil Identity.
func (c *Client) VerifyEmail(ctx context.Context, token string) (*VerifyResponse, error) {
	var out VerifyResponse
	if err := c.call(ctx, http.MethodPost, "/auth/verify/"+url.PathEscape(token), nil, &out, callOptions{}); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login stores the session cookies and the CSRF token.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var out LoginResponse
	err := c.call(ctx, http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &out, callOptions{noRenew: true})
	if err != nil {
		return nil, err
	}
	c.setCSRF(out.CSRFToken)
	return &out, nil
}

// RefreshAccess renews the access token directly, outside the queue.
func (c *Client) RefreshAccess(ctx context.Context) error {
	err := c.call(ctx, http.MethodPost, "/auth/refresh-token", nil, nil, callOptions{noRenew: true})
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		c.endSession(apiErr.Code)
		return errors.Join(err, ErrSessionEnded)
	}
	return err
}

// RefreshCSRF fetches a new CSRF token directly, outside the queue.
func (c *Client) RefreshCSRF(ctx context.Context) error {
	var out struct {
		CSRFToken string `json:"csrfToken"`
	}
	if err := c.call(ctx, http.MethodPost, "/auth/refresh-csrf", nil, &out, callOptions{noRenew: true}); err != nil {
		return err
	}
	c.setCSRF(out.CSRFToken)
	return nil
}

func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.call(ctx, http.MethodPost, "/auth/forgot-password", map[string]string{"email": email}, nil, callOptions{})
}

func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) error {
	return c.call(ctx, http.MethodPost, "/auth/reset-password/"+url.PathEscape(token),
		map[string]string{"password": newPassword}, nil, callOptions{})
}

// Me returns the current identity and session.
func (c *Client) Me(ctx context.Context) (*MeResponse, error) {
	var out MeResponse
	if err := c.call(ctx, http.MethodGet, "/auth/me", nil, &out, callOptions{}); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout never renews: a failed logout is reported as is. Local CSRF state
// is dropped either way.
func (c *Client) Logout(ctx context.Context) error {
	err := c.call(ctx, http.MethodPost, "/auth/logout", nil, nil, callOptions{noRenew: true})
	c.setCSRF("")
	return err
}

// Do sends an arbitrary JSON request through the renewal machinery. body
// and out may be nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	return c.call(ctx, method, path, body, out, callOptions{})
}

/*
====================================
TRANSPORT
====================================
*/

type callOptions struct {
	noRenew bool
}

func (c *Client) call(ctx context.Context, method, path string, body, out any, opts callOptions) error {
	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encode request: %w", err)
		}
		payload = raw
	}

	accessGen := c.coord.AccessGeneration()
	csrfGen := c.coord.CSRFGeneration()

	err := c.send(ctx, method, path, payload, out)
	if opts.noRenew {
		return err
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err
	}

	switch {
	case apiErr.needsAccessRenewal():
		if rerr := c.coord.RenewAccess(ctx, accessGen, c.RefreshAccess); rerr != nil {
			return rerr
		}
	case apiErr.needsCSRFRenewal() && mutating(method):
		if rerr := c.coord.RenewCSRF(ctx, csrfGen, c.RefreshCSRF); rerr != nil {
			return rerr
		}
	case apiErr.endsSession():
		c.endSession(apiErr.Code)
		return errors.Join(err, ErrSessionEnded)
	default:
		return err
	}

	err = c.send(ctx, method, path, payload, out)
	if errors.As(err, &apiErr) && apiErr.endsSession() {
		c.endSession(apiErr.Code)
		return errors.Join(err, ErrSessionEnded)
	}
	return err
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if mutating(method) {
		if token := c.CSRFToken(); token != "" {
			req.Header.Set(CSRFHeader, token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("client: read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var eb struct {
			Message    string            `json:"message"`
			Code       string            `json:"code"`
			Details    map[string]string `json:"details"`
			RetryAfter int               `json:"retryAfter"`
		}
		if json.Unmarshal(raw, &eb) == nil {
			apiErr.Code = eb.Code
			apiErr.Message = eb.Message
			apiErr.Details = eb.Details
			apiErr.RetryAfter = eb.RetryAfter
		}
		return apiErr
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("client: decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) endSession(code string) {
	c.setCSRF("")
	if c.onEnded != nil {
		c.onEnded(code)
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}
