package network

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/derad-network/derad/testing/assert"
	"github.com/derad-network/derad/testing/require"
)

func TestExternalIP_UsesLookupService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, err := w.Write([]byte("203.0.113.99\n"))
		require.NoError(t, err)
	}))
	defer srv.Close()
	prev := lookupEndpoint
	lookupEndpoint = srv.URL
	defer func() { lookupEndpoint = prev }()

	ip, err := ExternalIP(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.99", ip)
}

func TestLookupIP_RejectsGarbage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, err := w.Write([]byte("<html>not an ip</html>"))
		require.NoError(t, err)
	}))
	defer srv.Close()

	_, err := lookupIP(context.Background(), srv.URL)
	assert.ErrorContains(t, "did not return an address", err)
}

func TestLookupIP_SurfacesBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := lookupIP(context.Background(), srv.URL)
	assert.ErrorContains(t, "returned status 503", err)
}

func TestInterfaceIP_ReturnsRoutableAddress(t *testing.T) {
	ip, err := interfaceIP()
	if err != nil {
		t.Skipf("host has no non-loopback interface: %v", err)
	}
	parsed := net.ParseIP(ip)
	require.NotNil(t, parsed)
	assert.Equal(t, false, parsed.IsLoopback())
}

func TestRewriteForContainer(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "dockerenv")
	require.NoError(t, os.WriteFile(marker, nil, 0644))
	prev := dockerEnvPath
	dockerEnvPath = marker
	defer func() { dockerEnvPath = prev }()

	assert.Equal(t, "http://host.docker.internal:8080/data/aircraft.json",
		RewriteForContainer("http://localhost:8080/data/aircraft.json"))
	assert.Equal(t, "http://host.docker.internal:30080/store-key",
		RewriteForContainer("http://127.0.0.1:30080/store-key"))
	assert.Equal(t, "http://host.docker.internal/data",
		RewriteForContainer("http://localhost/data"))
	assert.Equal(t, "https://arweave.net",
		RewriteForContainer("https://arweave.net"), "non loopback hosts stay untouched")
	assert.Equal(t, "not a url at all",
		RewriteForContainer("not a url at all"))
}

func TestRewriteForContainer_OutsideContainer(t *testing.T) {
	prev := dockerEnvPath
	dockerEnvPath = filepath.Join(t.TempDir(), "missing")
	defer func() { dockerEnvPath = prev }()

	assert.Equal(t, "http://localhost:8080/data",
		RewriteForContainer("http://localhost:8080/data"))
}
