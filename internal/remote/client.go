// Package remote talks to the stock and payment services over HTTP through
// the gateway. GETs retry transport failures with a bounded backoff; POSTs
// change state on the far side and are sent exactly once per call.
package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mennohie/wdm-project-group-9/internal/checkout"
)

type Options struct {
	GatewayURL string
	Timeout    time.Duration
	// GetRetries bounds retries of GET requests on transport errors and 5xx.
	GetRetries uint64
	RetryDelay time.Duration
	HTTP       *http.Client
}

type client struct {
	base  string
	http  *http.Client
	retry func() backoff.BackOff
}

func newClient(o Options) client {
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 200 * time.Millisecond
	}
	hc := o.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: o.Timeout}
	}
	retries, delay := o.GetRetries, o.RetryDelay
	return client{
		base: strings.TrimRight(o.GatewayURL, "/"),
		http: hc,
		retry: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = delay
			b.MaxInterval = 8 * delay
			return backoff.WithMaxRetries(b, retries)
		},
	}
}

func (c client) url(parts ...string) string {
	esc := make([]string, len(parts))
	for i, p := range parts {
		esc[i] = url.PathEscape(strings.TrimSpace(p))
	}
	return c.base + "/" + strings.Join(esc, "/")
}

// response is a fully read reply; the body is small JSON or text.
type response struct {
	status int
	body   []byte
}

func (c client) do(ctx context.Context, method, u string) (response, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return response{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return response{}, fmt.Errorf("%w: %s %s: %v", checkout.ErrUnavailable, method, u, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return response{}, fmt.Errorf("%w: read %s: %v", checkout.ErrUnavailable, u, err)
	}
	if resp.StatusCode >= 500 {
		return response{status: resp.StatusCode, body: body},
			fmt.Errorf("%w: %s %s: status %d", checkout.ErrUnavailable, method, u, resp.StatusCode)
	}
	return response{status: resp.StatusCode, body: body}, nil
}

func (c client) get(ctx context.Context, u string) (response, error) {
	var out response
	op := func() error {
		r, err := c.do(ctx, http.MethodGet, u)
		out = r
		return err
	}
	err := backoff.Retry(op, backoff.WithContext(c.retry(), ctx))
	return out, err
}

func (c client) post(ctx context.Context, u string) (response, error) {
	return c.do(ctx, http.MethodPost, u)
}

func ok(status int) bool { return status >= 200 && status < 300 }
