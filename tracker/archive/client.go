// Package archive talks to the permanent storage gateway. It owns the node
// wallet and covers the three operations the node needs: wallet signed data
// uploads, the GraphQL transaction index, and raw transaction data
// retrieval.
package archive

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/everFinance/goar"
	"github.com/everFinance/goar/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "archive")

// ErrMalformedGateway is returned when the gateway URL cannot be parsed.
var ErrMalformedGateway = errors.New("malformed gateway url")

// Client is a wallet bound archive gateway client.
type Client struct {
	gateway string
	wallet  *goar.Wallet
	hc      *http.Client
}

// New loads the wallet keyfile and binds it to the gateway. A missing or
// unreadable keyfile fails the boot.
func New(gatewayURL, walletPath string) (*Client, error) {
	u, err := url.Parse(gatewayURL)
	if err != nil || u.Host == "" {
		return nil, errors.Wrapf(ErrMalformedGateway, "%q", gatewayURL)
	}
	gateway := strings.TrimRight(u.String(), "/")
	w, err := goar.NewWalletFromPath(walletPath, gateway)
	if err != nil {
		return nil, errors.Wrapf(err, "could not load wallet keyfile %q", walletPath)
	}
	c := &Client{
		gateway: gateway,
		wallet:  w,
		hc:      &http.Client{Timeout: 30 * time.Second},
	}
	log.WithFields(logrus.Fields{
		"gateway": gateway,
		"address": c.Address(),
	}).Info("Archive wallet loaded")
	return c, nil
}

// Address returns the wallet address that owns this node's transactions.
func (c *Client) Address() string {
	return c.wallet.Signer.Address
}

// Owner returns the wallet's public modulus, the owner value the gateway
// indexes transactions under.
func (c *Client) Owner() string {
	return c.wallet.Signer.Owner()
}

// SignMessage signs msg with the wallet key using the transaction signature
// scheme.
func (c *Client) SignMessage(msg []byte) ([]byte, error) {
	return c.wallet.Signer.SignMsg(msg)
}

// Upload sanitises the tag values, enforces the gateway tag size limit and
// submits a signed data transaction. The returned id is the gateway's,
// surfaced verbatim.
func (c *Client) Upload(ctx context.Context, data []byte, tags []Tag) (string, error) {
	goarTags := make([]types.Tag, 0, len(tags))
	sanitized := make([]Tag, 0, len(tags))
	for _, tg := range tags {
		v := SanitizeTagValue(tg.Value)
		sanitized = append(sanitized, Tag{Name: tg.Name, Value: v})
		goarTags = append(goarTags, types.Tag{Name: tg.Name, Value: v})
	}
	if err := ValidateTags(sanitized); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	tx, err := c.wallet.SendData(data, goarTags)
	if err != nil {
		submitFailures.Inc()
		return "", errors.Wrap(err, "could not submit transaction")
	}
	uploadedBytes.Add(float64(len(data)))
	return tx.ID, nil
}
