// Package mensa talks to the my-mensa ordering backend: it loads the menu,
// looks up free pickup slots and places togo orders.
package mensa

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/m3rciful/mensabot/core/logger"
	"github.com/m3rciful/mensabot/core/netutil"
)

const (
	DefaultMensaID  = 2
	DefaultBaseURL  = "https://stwulm.my-mensa.de"
	DefaultSlotsURL = "https://togo.my-mensa.de/5ecb878c-9f58-4aa0-bb1b/ulm19c552/api/get_free_slots/"
	DefaultLanguage = "de"

	maxBodyBytes = 4 << 20
)

// Options configure a Client. Zero values select the defaults.
type Options struct {
	MensaID  int
	BaseURL  string
	SlotsURL string
	Language string

	// DryRun performs every lookup of SubmitOrder but skips the final POST.
	DryRun bool

	Timeout       time.Duration
	RetryAttempts uint
	RetryDelay    time.Duration

	// HTTPClient supplies the transport. Its Jar is never used; every menu
	// fetch gets a fresh one.
	HTTPClient *http.Client
	Logger     *slog.Logger
	Now        func() time.Time
}

// Client performs the remote calls. It is safe for concurrent use.
type Client struct {
	opts      Options
	transport http.RoundTripper
	log       *slog.Logger
}

// New returns a Client with defaults applied to opts.
func New(opts Options) (*Client, error) {
	if opts.MensaID <= 0 {
		opts.MensaID = DefaultMensaID
	}
	if strings.TrimSpace(opts.BaseURL) == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if strings.TrimSpace(opts.SlotsURL) == "" {
		opts.SlotsURL = DefaultSlotsURL
	}
	if strings.TrimSpace(opts.Language) == "" {
		opts.Language = DefaultLanguage
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	for _, raw := range []string{opts.BaseURL, opts.SlotsURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("mensa: invalid url %q", raw)
		}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.RetryAttempts == 0 {
		opts.RetryAttempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	transport := http.DefaultTransport
	if opts.HTTPClient != nil && opts.HTTPClient.Transport != nil {
		transport = opts.HTTPClient.Transport
	}
	return &Client{
		opts:      opts,
		transport: transport,
		log:       logger.Or(opts.Logger),
	}, nil
}

// DryRun reports whether orders are only simulated.
func (c *Client) DryRun() bool { return c.opts.DryRun }

// MensaID returns the canteen this client orders from.
func (c *Client) MensaID() int { return c.opts.MensaID }

func (c *Client) httpClient(jar http.CookieJar) *http.Client {
	return &http.Client{Transport: c.transport, Jar: jar, Timeout: c.opts.Timeout}
}

// withRetry repeats fn while it fails with a transient *Error. The last
// attempt's error is returned as is.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	err := retry.Do(
		func() error {
			lastErr = fn()
			return lastErr
		},
		retry.Attempts(c.opts.RetryAttempts),
		retry.Delay(c.opts.RetryDelay),
		retry.MaxDelay(8*c.opts.RetryDelay),
		retry.MaxJitter(max(c.opts.RetryDelay/2, time.Millisecond)),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.log.LogAttrs(ctx, slog.LevelWarn, "retry",
				slog.String("event", "mensa.retry"),
				slog.String("op", op),
				slog.Int("attempt", int(n)+1),
				slog.String("err", err.Error()),
			)
		}),
		retry.RetryIf(func(err error) bool {
			var e *Error
			return errors.As(err, &e) && e.Transient()
		}),
	)
	if err == nil {
		return nil
	}
	if lastErr != nil {
		return lastErr
	}
	return &Error{Kind: KindRemoteUnavailable, Op: op, Err: err}
}

// send performs one request and returns the body of a 2xx response.
func (c *Client) send(ctx context.Context, hc *http.Client, op string, req *http.Request) ([]byte, error) {
	start := time.Now()
	resp, err := hc.Do(req.WithContext(ctx))
	if err != nil {
		c.logCall(ctx, op, req, 0, start, err)
		return nil, &Error{Kind: KindRemoteUnavailable, Op: op, Err: err, transient: netutil.ShouldRetry(err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.logCall(ctx, op, req, resp.StatusCode, start, err)
		return nil, &Error{Kind: KindRemoteUnavailable, Op: op, Err: err, transient: true}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e := &Error{
			Kind:      KindRemoteUnavailable,
			Op:        op,
			Detail:    resp.Status,
			Status:    resp.StatusCode,
			transient: netutil.RetryableStatus(resp.StatusCode),
		}
		c.logCall(ctx, op, req, resp.StatusCode, start, e)
		return nil, e
	}
	c.logCall(ctx, op, req, resp.StatusCode, start, nil)
	return body, nil
}

func (c *Client) logCall(ctx context.Context, op string, req *http.Request, status int, start time.Time, err error) {
	attrs := []slog.Attr{
		slog.String("event", "mensa.call"),
		slog.String("op", op),
		slog.String("method", req.Method),
		slog.String("host", req.URL.Host),
		slog.Int("http_code", status),
		slog.String("outcome", logger.Status(err)),
		slog.Duration("duration", logger.Took(start)),
	}
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("err", logger.SanitizeLimit(err.Error(), 256)))
	}
	c.log.LogAttrs(ctx, level, "call", attrs...)
}
