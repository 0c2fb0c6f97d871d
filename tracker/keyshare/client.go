// Package keyshare posts per-minute encryption keys to the external key
// share service, which splits them across its secret sharing backends. Key
// sharing is strictly best effort, a failed post is logged and counted but
// never blocks or fails an upload.
package keyshare

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/derad-network/derad/config/params"
)

var log = logrus.WithField("prefix", "keyshare")

// ErrMalformedEndpoint is returned when the share service URL cannot be
// parsed.
var ErrMalformedEndpoint = errors.New("malformed key share endpoint")

type storeKeyRequest struct {
	PackageUUID   string `json:"packageUuid"`
	EncryptionKey string `json:"encryptionKey"`
}

type storeKeyResponse struct {
	Success      bool   `json:"success"`
	PackageUUID  string `json:"packageUuid"`
	CollectionID string `json:"collectionId"`
}

// Client shares minute keys with the key share service. A small cache of
// already shared key uuids suppresses the duplicate posts that every batch
// after the first within a minute would otherwise trigger.
type Client struct {
	baseURL string
	hc      *http.Client
	sent    *lru.Cache[string, struct{}]
}

// NewClient constructs a share client for the given service URL.
func NewClient(rawURL string) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, errors.Wrapf(ErrMalformedEndpoint, "%q", rawURL)
	}
	sent, err := lru.New[string, struct{}](params.DeradConfig().KeyShareCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "could not init sent key cache")
	}
	return &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		hc:      &http.Client{Timeout: params.DeradConfig().KeyShareTimeout},
		sent:    sent,
	}, nil
}

// Share posts the raw key for the given key uuid unless it was already
// shared. Errors never propagate to the caller.
func (c *Client) Share(ctx context.Context, keyUUID string, rawKey []byte) {
	if c.sent.Contains(keyUUID) {
		return
	}
	if err := c.post(ctx, keyUUID, rawKey); err != nil {
		postFailures.Inc()
		log.WithError(err).WithField("keyUuid", keyUUID).Warn("Could not share encryption key")
		return
	}
	c.sent.Add(keyUUID, struct{}{})
	keysShared.Inc()
}

func (c *Client) post(ctx context.Context, keyUUID string, rawKey []byte) error {
	ctx, cancel := context.WithTimeout(ctx, params.DeradConfig().KeyShareTimeout)
	defer cancel()

	body, err := json.Marshal(&storeKeyRequest{
		PackageUUID:   keyUUID,
		EncryptionKey: hex.EncodeToString(rawKey),
	})
	if err != nil {
		return errors.Wrap(err, "could not marshal store-key request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/store-key", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return errors.Wrap(err, "store-key request failed")
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.WithError(err).Debug("Could not close share response body")
		}
	}()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.Errorf("store-key returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	out := &storeKeyResponse{}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "could not decode store-key response")
	}
	if !out.Success {
		return errors.New("share service reported failure")
	}
	log.WithFields(logrus.Fields{
		"keyUuid":      keyUUID,
		"collectionId": out.CollectionID,
	}).Debug("Encryption key shared")
	return nil
}
