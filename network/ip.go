// Package network resolves the node's externally visible address and
// adapts endpoint URLs to containerised deployments.
package network

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "network")

const lookupTimeout = 5 * time.Second

// lookupEndpoint answers a GET with the caller's public address in the
// response body.
var lookupEndpoint = "https://api.ipify.org"

// ExternalIP returns the node's public IP address. It asks the external
// lookup service first and falls back to the first global unicast address
// of the host's interfaces when the lookup is unreachable.
func ExternalIP(ctx context.Context) (string, error) {
	ip, err := lookupIP(ctx, lookupEndpoint)
	if err == nil {
		return ip, nil
	}
	log.WithError(err).Debug("External IP lookup failed, scanning interfaces")
	return interfaceIP()
}

func lookupIP(ctx context.Context, endpoint string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "ip lookup request failed")
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.WithError(err).Debug("Could not close ip lookup response body")
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("ip lookup returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return "", errors.Wrap(err, "could not read ip lookup body")
	}
	ip := strings.TrimSpace(string(body))
	if net.ParseIP(ip) == nil {
		return "", errors.Errorf("ip lookup did not return an address: %q", ip)
	}
	return ip, nil
}

func interfaceIP() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", errors.Wrap(err, "could not list interface addresses")
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if v4 := ipNet.IP.To4(); v4 != nil && v4.IsGlobalUnicast() {
			return v4.String(), nil
		}
	}
	return "", errors.New("no global unicast interface address")
}
