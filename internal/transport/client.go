// Package transport is the console's client for the REST backend: envelope
// decoding, error messages, bearer tokens with single-flight refresh and
// buffered multipart bodies.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"rocket-console/internal/logger"
	"rocket-console/internal/metrics"
)

// refreshTimeout bounds a shared refresh, which outlives its callers'
// contexts.
const refreshTimeout = 30 * time.Second

// errRefreshDenied marks a refresh the backend refused; only that ends the
// session.
var errRefreshDenied = errors.New("refresh denied")

// Config describes the backend.
type Config struct {
	BaseURL     string
	LoginPath   string
	RefreshPath string
	LogoutPath  string
	// RefreshSkew triggers a proactive refresh when the access token expires
	// within this window.
	RefreshSkew time.Duration
	HTTPClient  *http.Client
}

// Client talks to the backend on behalf of one operator.
type Client struct {
	cfg    Config
	http   *http.Client
	tokens *TokenStore
	group  singleflight.Group
	log    logger.Logger

	onExpired func()
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithOnExpired registers a callback run once per expired session.
func WithOnExpired(fn func()) Option {
	return func(c *Client) { c.onExpired = fn }
}

// NewClient builds a client. tokens may be nil for an anonymous client.
func NewClient(cfg Config, tokens *TokenStore, opts ...Option) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/api/auth/login"
	}
	if cfg.RefreshPath == "" {
		cfg.RefreshPath = "/api/auth/refresh"
	}
	if tokens == nil {
		tokens = &TokenStore{}
	}
	c := &Client{
		cfg:    cfg,
		http:   cfg.HTTPClient,
		tokens: tokens,
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Tokens returns the client's token store.
func (c *Client) Tokens() *TokenStore { return c.tokens }

func (c *Client) Get(ctx context.Context, path string, out any) (*Envelope, error) {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) (*Envelope, error) {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out any) (*Envelope, error) {
	return c.Do(ctx, http.MethodPut, path, body, out)
}

func (c *Client) Delete(ctx context.Context, path string, body, out any) (*Envelope, error) {
	return c.Do(ctx, http.MethodDelete, path, body, out)
}

// Do sends an authenticated request. body may be nil, a *Multipart or any
// JSON-encodable value. The response data is decoded into out.
//
// A 401 triggers one token refresh shared by every request that failed with
// the same token, then a single retry. A refresh the backend rejects, or a
// second 401, clears the session and returns ErrSessionExpired. A refresh
// that fails for any other reason (network, 5xx, cancelled caller) is
// returned as is and the session is kept.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) (*Envelope, error) {
	payload, contentType, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	if c.tokens.ExpiresWithin(c.cfg.RefreshSkew) && c.tokens.Pair().RefreshToken != "" {
		if err := c.refresh(ctx, c.tokens.Access()); err != nil {
			return nil, c.refreshFailed(err)
		}
	}

	used := c.tokens.Access()
	status, respBody, err := c.send(ctx, method, path, payload, contentType, used)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized && used != "" {
		if err := c.refresh(ctx, used); err != nil {
			return nil, c.refreshFailed(err)
		}
		status, respBody, err = c.send(ctx, method, path, payload, contentType, c.tokens.Access())
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized {
			return nil, c.expire(errors.New("unauthorized after refresh"))
		}
	}

	return decodeResponse(status, respBody, out)
}

// Login exchanges operator credentials for a token pair and stores it.
func (c *Client) Login(ctx context.Context, email, password string) (TokenPair, error) {
	payload, contentType, err := encodeBody(map[string]string{"email": email, "password": password})
	if err != nil {
		return TokenPair{}, err
	}
	status, body, err := c.send(ctx, http.MethodPost, c.cfg.LoginPath, payload, contentType, "")
	if err != nil {
		return TokenPair{}, err
	}
	var pair TokenPair
	if _, err := decodeResponse(status, body, &pair); err != nil {
		return TokenPair{}, err
	}
	if pair.AccessToken == "" {
		return TokenPair{}, &Error{Status: status, Message: "Login response did not include a token"}
	}
	c.tokens.Set(pair)
	return pair, nil
}

// Logout revokes the refresh token when the backend exposes a logout
// endpoint, then forgets both tokens.
func (c *Client) Logout(ctx context.Context) {
	pair := c.tokens.Pair()
	c.tokens.Clear()
	if c.cfg.LogoutPath == "" || pair.RefreshToken == "" {
		return
	}
	payload, contentType, err := encodeBody(map[string]string{"refresh_token": pair.RefreshToken})
	if err != nil {
		return
	}
	if _, _, err := c.send(ctx, http.MethodPost, c.cfg.LogoutPath, payload, contentType, pair.AccessToken); err != nil {
		c.log.Warnw("backend logout failed", "error", err)
	}
}

// refresh renews the token pair. Concurrent callers share one backend call,
// which runs detached from any single caller's context; a caller that gives
// up waiting gets its own context error. A caller whose token was already
// replaced returns without refreshing.
func (c *Client) refresh(ctx context.Context, used string) error {
	ch := c.group.DoChan("refresh", func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return nil, c.renew(shared, used)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) renew(ctx context.Context, used string) error {
	if current := c.tokens.Access(); current != used && current != "" {
		return nil
	}
	pair := c.tokens.Pair()
	if pair.RefreshToken == "" {
		metrics.TokenRefreshes.WithLabelValues("skipped").Inc()
		return fmt.Errorf("%w: no refresh token", errRefreshDenied)
	}

	payload, contentType, err := encodeBody(map[string]string{"refresh_token": pair.RefreshToken})
	if err != nil {
		return err
	}
	status, body, err := c.send(ctx, http.MethodPost, c.cfg.RefreshPath, payload, contentType, "")
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues(metrics.Result(false)).Inc()
		return err
	}
	var next TokenPair
	if _, err := decodeResponse(status, body, &next); err != nil {
		metrics.TokenRefreshes.WithLabelValues(metrics.Result(false)).Inc()
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return fmt.Errorf("%w: %v", errRefreshDenied, err)
		}
		return err
	}
	if next.AccessToken == "" {
		metrics.TokenRefreshes.WithLabelValues(metrics.Result(false)).Inc()
		return fmt.Errorf("%w: refresh response did not include a token", errRefreshDenied)
	}
	if next.RefreshToken == "" {
		next.RefreshToken = pair.RefreshToken
	}
	c.tokens.Set(next)
	metrics.TokenRefreshes.WithLabelValues(metrics.Result(true)).Inc()
	c.log.Debugw("access token refreshed")
	return nil
}

// refreshFailed expires the session only when the backend refused the
// refresh token.
func (c *Client) refreshFailed(err error) error {
	if errors.Is(err, errRefreshDenied) {
		return c.expire(err)
	}
	c.log.Warnw("token refresh failed", "error", err)
	return err
}

func (c *Client) expire(cause error) error {
	c.log.Infow("session expired", "cause", cause)
	c.tokens.Clear()
	if c.onExpired != nil {
		c.onExpired()
	}
	return fmt.Errorf("%w: %v", ErrSessionExpired, cause)
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, contentType, token string) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.BackendLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.BackendRequests.WithLabelValues(method, "network").Inc()
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(ctxErr, context.DeadlineExceeded) {
			return 0, nil, ctxErr
		}
		c.log.Warnw("backend unreachable", "method", method, "path", path, "error", err)
		return 0, nil, &Error{Message: MsgNetwork, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.BackendRequests.WithLabelValues(method, "network").Inc()
		return 0, nil, &Error{Message: MsgNetwork, Err: err}
	}
	metrics.BackendRequests.WithLabelValues(method, statusClass(resp.StatusCode)).Inc()
	c.log.Debugw("backend request", "method", method, "path", path, "status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())
	return resp.StatusCode, body, nil
}

func (c *Client) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

func encodeBody(body any) ([]byte, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case *Multipart:
		payload, err := b.Bytes()
		if err != nil {
			return nil, "", fmt.Errorf("encode multipart body: %w", err)
		}
		return payload, b.ContentType(), nil
	default:
		payload, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("encode json body: %w", err)
		}
		return payload, "application/json", nil
	}
}

func decodeResponse(status int, body []byte, out any) (*Envelope, error) {
	if status < 200 || status >= 300 {
		return nil, statusError(status, body)
	}
	env := &Envelope{}
	if len(bytes.TrimSpace(body)) == 0 {
		return env, nil
	}
	if err := json.Unmarshal(body, env); err != nil {
		return nil, &Error{Status: status, Message: MsgServer, Err: fmt.Errorf("decode envelope: %w", err)}
	}
	if !env.OK() {
		msg, fields := extractMessage(body)
		if msg == "" {
			msg = MsgServer
		}
		return env, &Error{Status: status, Message: msg, Fields: fields}
	}
	if err := env.Decode(out); err != nil {
		return env, &Error{Status: status, Message: MsgServer, Err: err}
	}
	return env, nil
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
