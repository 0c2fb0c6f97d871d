package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when the gateway has no transaction matching a
// query.
var ErrNotFound = errors.New("no matching transaction")

// TagFilter matches transactions carrying the named tag with any of the
// given values.
type TagFilter struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

const latestTxQuery = `query($owners: [String!], $tags: [TagFilter!]) {
  transactions(owners: $owners, tags: $tags, first: 1, sort: HEIGHT_DESC) {
    edges { node { id } }
  }
}`

// LatestTx returns the id of the most recent transaction owned by owner and
// matching every tag filter, or ErrNotFound.
func (c *Client) LatestTx(ctx context.Context, owner string, filters []TagFilter) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"query": latestTxQuery,
		"variables": map[string]interface{}{
			"owners": []string{owner},
			"tags":   filters,
		},
	})
	if err != nil {
		return "", errors.Wrap(err, "could not marshal graphql query")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gateway+"/graphql", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "graphql request failed")
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.WithError(err).Debug("Could not close graphql response body")
		}
	}()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", errors.Errorf("graphql returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	out := struct {
		Data struct {
			Transactions struct {
				Edges []struct {
					Node struct {
						ID string `json:"id"`
					} `json:"node"`
				} `json:"edges"`
			} `json:"transactions"`
		} `json:"data"`
	}{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", errors.Wrap(err, "could not decode graphql response")
	}
	edges := out.Data.Transactions.Edges
	if len(edges) == 0 {
		return "", ErrNotFound
	}
	return edges[0].Node.ID, nil
}

// Download fetches the raw bytes of a transaction from the gateway.
func (c *Client) Download(ctx context.Context, txID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.gateway+"/"+txID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "download request failed")
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.WithError(err).Debug("Could not close download response body")
		}
	}()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted:
	case http.StatusNotFound:
		return nil, errors.Wrapf(ErrNotFound, "tx %s", txID)
	default:
		return nil, errors.Errorf("download returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "could not read transaction data")
	}
	return data, nil
}
