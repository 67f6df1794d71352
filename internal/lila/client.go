package lila

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const acceptV1 = "application/vnd.lichess.v1+json"

var ErrUnauthorized = errors.New("lila: invalid credentials")

// StatusError is a non-2xx response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("lila: status=%d body=%s", e.Status, e.Body)
}

// Client talks to the lichess website with a cookie-carrying session.
type Client struct {
	baseURL   string
	http      *fasthttp.Client
	jar       *CookieJar
	userAgent string
	log       *zap.Logger

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.defaultTimeout = d
		}
	}
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if strings.TrimSpace(ua) != "" {
			c.userAgent = ua
		}
	}
}

// WithCookieJar shares jar with the client, e.g. one restored from a cookie store.
func WithCookieJar(jar *CookieJar) Option {
	return func(c *Client) {
		if jar != nil {
			c.jar = jar
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		jar:            NewCookieJar(),
		userAgent:      "liru",
		log:            zap.NewNop(),
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Jar() *CookieJar { return c.jar }

// CookieHeader is what the socket handshake sends as Cookie.
func (c *Client) CookieHeader() string { return c.jar.Header() }

func (c *Client) UserAgent() string { return c.userAgent }

// SignIn posts the login form and keeps the returned session cookies.
func (c *Client) SignIn(ctx context.Context, username, password string) (*User, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	var u User
	err := c.do(ctx, fasthttp.MethodPost, "login", []byte(form.Encode()), "application/x-www-form-urlencoded", &u, false)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && (se.Status == fasthttp.StatusUnauthorized || se.Status == fasthttp.StatusBadRequest) {
			return nil, fmt.Errorf("%w: %s", ErrUnauthorized, username)
		}
		return nil, err
	}
	c.log.Info("lila_signed_in", zap.String("user", u.Username), zap.Int("cookies", c.jar.Len()))
	return &u, nil
}

// Account fetches the signed-in user, including the games in progress.
func (c *Client) Account(ctx context.Context) (*User, error) {
	var u User
	if err := c.do(ctx, fasthttp.MethodGet, "account/info", nil, "", &u, true); err != nil {
		return nil, err
	}
	return &u, nil
}

// FetchSnapshot returns the raw JSON round payload at path, e.g. "tv/best" or
// a game's full id.
func (c *Client) FetchSnapshot(ctx context.Context, path string) ([]byte, error) {
	var raw json.RawMessage
	if err := c.do(ctx, fasthttp.MethodGet, path, nil, "", &raw, true); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) url(path string) string {
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, contentType string, out any, retry bool) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.url(path))
	req.Header.Set(fasthttp.HeaderAccept, acceptV1)
	req.Header.SetUserAgent(c.userAgent)
	if contentType != "" {
		req.Header.SetContentType(contentType)
	}
	if h := c.jar.Header(); h != "" {
		req.Header.Set(fasthttp.HeaderCookie, h)
	}
	if body != nil {
		req.SetBody(body)
	}

	attempts := 1
	if retry && c.retryMax > 1 {
		attempts = c.retryMax
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err != nil {
			lastErr = fmt.Errorf("lila: %s %s: %w", method, path, err)
			if attempt == attempts {
				return lastErr
			}
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		c.jar.absorb(resp)

		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			lastErr = &StatusError{Status: status, Body: truncate(string(resp.Body()), 512)}
			if attempt == attempts || !shouldRetryStatus(status) {
				return lastErr
			}
			c.log.Debug("lila_retry", zap.String("path", path), zap.Int("status", status), zap.Int("attempt", attempt))
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		if out != nil {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return fmt.Errorf("lila: decode %s: %w", path, err)
			}
		}
		return nil
	}
	return lastErr
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
