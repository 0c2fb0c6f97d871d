package feed

import (
	"net/http"
	"time"
)

// ClientOpt is a functional option for the feed Client.
type ClientOpt func(*Client)

// WithTimeout sets the request timeout of the wrapped http.Client.
func WithTimeout(timeout time.Duration) ClientOpt {
	return func(c *Client) {
		c.hc.Timeout = timeout
	}
}

// WithCustomTransport replaces the underlying transport with a custom one.
// Mostly useful to stub responses in tests.
func WithCustomTransport(t http.RoundTripper) ClientOpt {
	return func(c *Client) {
		c.hc.Transport = t
		c.transport = nil
	}
}

// WithSource overrides the recorded source identifier of this receiver.
func WithSource(source string) ClientOpt {
	return func(c *Client) {
		c.source = source
	}
}
