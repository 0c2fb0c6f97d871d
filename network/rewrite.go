package network

import (
	"net"
	"net/url"
	"os"
)

// dockerEnvPath marks a containerised runtime when present.
var dockerEnvPath = "/.dockerenv"

// RewriteForContainer rewrites loopback hosts to the Docker host gateway
// name when the process runs inside a container, so receiver and key share
// services published on the host stay reachable.
func RewriteForContainer(rawURL string) string {
	if !inContainer() {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
	default:
		return rawURL
	}
	host := "host.docker.internal"
	if p := u.Port(); p != "" {
		host = net.JoinHostPort(host, p)
	}
	log.WithField("url", rawURL).Debug("Rewriting loopback endpoint for container runtime")
	u.Host = host
	return u.String()
}

func inContainer() bool {
	_, err := os.Stat(dockerEnvPath)
	return err == nil
}
