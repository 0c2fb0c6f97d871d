// Package feed implements the client side of a dump1090 style aircraft feed:
// a single keep-alive socket per receiver, conditional requests so unchanged
// snapshots cost no body transfer, and request collapsing for concurrent
// callers.
package feed

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/derad-network/derad/config/params"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

var log = logrus.WithField("prefix", "feed")

// ErrMalformedEndpoint is returned when the receiver URL cannot be parsed.
var ErrMalformedEndpoint = errors.New("malformed feed endpoint")

// Client polls one receiver feed. It remembers the validators of the last
// full response and replays the parsed body when the receiver answers
// 304 Not Modified.
type Client struct {
	hc        *http.Client
	transport *http.Transport
	endpoint  string
	source    string

	group singleflight.Group

	mu           sync.Mutex
	etag         string
	lastModified string
	cached       *FeedResponse
}

// NewClient constructs a feed client for the given receiver URL.
func NewClient(rawURL string, opts ...ClientOpt) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, errors.Wrapf(ErrMalformedEndpoint, "%q", rawURL)
	}
	// A single keep-alive connection per receiver. Polls are strictly
	// sequential per client, and receivers tend to run tiny embedded
	// HTTP servers.
	tr := &http.Transport{
		MaxConnsPerHost:     1,
		MaxIdleConnsPerHost: 1,
		IdleConnTimeout:     90 * time.Second,
	}
	c := &Client{
		hc: &http.Client{
			Timeout:   params.DeradConfig().FetchTimeout,
			Transport: tr,
		},
		transport: tr,
		endpoint:  u.String(),
		source:    u.Host,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Source identifies the receiver this client polls. It is recorded with
// every archive row produced from its data.
func (c *Client) Source() string {
	return c.source
}

// Fetch returns the current feed snapshot. Concurrent callers share a single
// in-flight request and receive the same result.
func (c *Client) Fetch(ctx context.Context) (*FeedResponse, error) {
	v, err, _ := c.group.Do("fetch", func() (interface{}, error) {
		return c.fetch(ctx)
	})
	if err != nil {
		return nil, err
	}
	fr, ok := v.(*FeedResponse)
	if !ok {
		return nil, errors.New("unexpected feed result type")
	}
	return fr, nil
}

func (c *Client) fetch(ctx context.Context) (*FeedResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	if c.etag != "" {
		req.Header.Set("If-None-Match", c.etag)
	}
	if c.lastModified != "" {
		req.Header.Set("If-Modified-Since", c.lastModified)
	}
	c.mu.Unlock()

	resp, err := c.hc.Do(req)
	if err != nil {
		c.invalidate()
		fetchErrors.Inc()
		return nil, errors.Wrap(err, "feed request failed")
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.WithError(err).Debug("Could not close feed response body")
		}
	}()

	switch resp.StatusCode {
	case http.StatusNotModified:
		c.mu.Lock()
		cached := c.cached
		c.mu.Unlock()
		if cached == nil {
			// The receiver believes we hold a body we no longer have.
			c.invalidate()
			fetchErrors.Inc()
			return nil, errors.New("not modified response without a cached body")
		}
		cacheHits.Inc()
		return cached, nil
	case http.StatusOK:
	default:
		c.invalidate()
		fetchErrors.Inc()
		return nil, errors.Errorf("feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.invalidate()
		fetchErrors.Inc()
		return nil, errors.Wrap(err, "could not read feed body")
	}
	fr := &FeedResponse{}
	if err := json.Unmarshal(body, fr); err != nil {
		c.invalidate()
		fetchErrors.Inc()
		return nil, errors.Wrap(err, "could not decode feed body")
	}

	c.mu.Lock()
	c.etag = resp.Header.Get("ETag")
	c.lastModified = resp.Header.Get("Last-Modified")
	c.cached = fr
	c.mu.Unlock()
	return fr, nil
}

// invalidate drops the conditional request state so that the next poll
// requests a full body again.
func (c *Client) invalidate() {
	c.mu.Lock()
	c.etag, c.lastModified, c.cached = "", "", nil
	c.mu.Unlock()
}

// CloseIdleConnections tears down the keep-alive socket to the receiver.
func (c *Client) CloseIdleConnections() {
	if c.transport != nil {
		c.transport.CloseIdleConnections()
	}
}
