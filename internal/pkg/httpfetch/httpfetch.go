// Package httpfetch provides a single-attempt HTTP GET with a hard
// timeout bound for outbound image fetches. No retries: a tracking
// response must go out promptly, and the caller falls back to a
// placeholder on any failure.
package httpfetch

import (
	"context"
	"io"
	"net/http"
	"time"
)

// HTTPDoer is the interface for executing HTTP requests.
// Both *http.Client and test doubles satisfy this interface.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultTimeout bounds a fetch when no timeout is configured.
const DefaultTimeout = 8 * time.Second

// Client issues bounded GET requests through an HTTPDoer.
type Client struct {
	client  HTTPDoer
	timeout time.Duration
}

// New creates a Client wrapping the given HTTPDoer. If client is nil a
// plain http.Client is used. timeout <= 0 selects DefaultTimeout.
func New(client HTTPDoer, timeout time.Duration) *Client {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{client: client, timeout: timeout}
}

// Timeout returns the per-fetch bound.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Get issues one GET for url, bounded by the client's timeout. The
// returned response body must be closed by the caller; closing it also
// releases the timeout context. Any status code is returned as-is —
// non-2xx is the caller's decision, only transport failures error.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}

	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelOnClose ties the fetch context's lifetime to the response body.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
