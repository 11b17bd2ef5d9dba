package telegram

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/m3rciful/mensabot/core/logger"
	"github.com/m3rciful/mensabot/core/netutil"
)

const (
	defaultDialTimeout       = 5 * time.Second
	defaultTLSHandshake      = 5 * time.Second
	defaultIdleConnTimeout   = 30 * time.Second
	defaultResponseTimeout   = 5 * time.Second
	defaultClientTimeout     = 30 * time.Second
	defaultKeepAliveInterval = 30 * time.Second
	defaultRetryAttempts     = 3
	defaultRetryBackoff      = 2 * time.Second
)

// BuildHTTPClient returns an HTTP client tuned for Telegram API calls.
// Long polling needs a response timeout above the poll timeout, so the
// header timeout is derived from it.
func BuildHTTPClient(longPollSeconds int) *http.Client {
	headerTimeout := defaultResponseTimeout + time.Duration(longPollSeconds)*time.Second
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAliveInterval}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   defaultTLSHandshake,
		ResponseHeaderTimeout: headerTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout: defaultClientTimeout + headerTimeout,
		Transport: &retryTransport{
			base:     transport,
			attempts: defaultRetryAttempts + 1,
			backoff:  defaultRetryBackoff,
		},
	}
}

// retryTransport repeats requests that failed at the transport layer.
// HTTP responses, whatever their status, are returned as they are.
type retryTransport struct {
	base     http.RoundTripper
	attempts uint
	backoff  time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	replayable := req.Body == nil || req.Body == http.NoBody || req.GetBody != nil

	var (
		resp    *http.Response
		lastErr error
		first   = true
	)
	doErr := retry.Do(
		func() error {
			curr := req
			if !first {
				curr = req.Clone(req.Context())
				if req.GetBody != nil {
					body, err := req.GetBody()
					if err != nil {
						lastErr = err
						return retry.Unrecoverable(err)
					}
					curr.Body = body
				}
			}
			first = false
			var err error
			resp, err = base.RoundTrip(curr)
			lastErr = err
			return err
		},
		retry.Attempts(t.attempts),
		retry.Delay(t.backoff),
		retry.MaxDelay(4*t.backoff),
		retry.MaxJitter(t.backoff/4),
		retry.Context(req.Context()),
		retry.RetryIf(func(err error) bool {
			return replayable && netutil.ShouldRetry(err)
		}),
		retry.OnRetry(func(n uint, err error) {
			logger.Debug(req.Context(), "tg", "http.retry",
				slog.Uint64("attempt", uint64(n)+1),
				slog.String("err", netutil.RedactToken(err.Error())),
			)
		}),
	)
	switch {
	case lastErr != nil:
		return nil, lastErr
	case resp == nil:
		// the context ended before the first attempt
		return nil, doErr
	}
	return resp, nil
}
