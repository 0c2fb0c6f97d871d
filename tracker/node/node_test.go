package node

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	logTest "github.com/sirupsen/logrus/hooks/test"
	"github.com/urfave/cli/v2"

	"github.com/derad-network/derad/cmd"
	"github.com/derad-network/derad/cmd/derad-node/flags"
	"github.com/derad-network/derad/testing/require"
	"github.com/derad-network/derad/tracker/poller"
)

// writeTestWallet generates a throwaway RSA keyfile in the JWK layout the
// archive wallet loader expects.
func writeTestWallet(t *testing.T, path string) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	key.Precompute()
	enc := base64.RawURLEncoding
	jwk, err := json.Marshal(map[string]string{
		"kty": "RSA",
		"n":   enc.EncodeToString(key.N.Bytes()),
		"e":   enc.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		"d":   enc.EncodeToString(key.D.Bytes()),
		"p":   enc.EncodeToString(key.Primes[0].Bytes()),
		"q":   enc.EncodeToString(key.Primes[1].Bytes()),
		"dp":  enc.EncodeToString(key.Precomputed.Dp.Bytes()),
		"dq":  enc.EncodeToString(key.Precomputed.Dq.Bytes()),
		"qi":  enc.EncodeToString(key.Precomputed.Qinv.Bytes()),
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, jwk, 0600))
}

// stubGateway answers every query with an empty result set so the boot
// time restore finds nothing to apply.
func stubGateway(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":{"transactions":{"edges":[]}}}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testNodeContext(t *testing.T, datadir string, extra func(set *flag.FlagSet)) *cli.Context {
	srv := stubGateway(t)
	walletDir := t.TempDir()
	writeTestWallet(t, filepath.Join(walletDir, "wallet.json"))

	app := cli.App{}
	set := flag.NewFlagSet("test", 0)
	set.String(cmd.DataDirFlag.Name, datadir, "")
	set.Int64(cmd.MaxGoroutines.Name, 5000, "")
	set.Bool(cmd.DisableMonitoringFlag.Name, true, "")
	set.String(flags.GatewayURLFlag.Name, srv.URL, "")
	set.String(flags.WalletDirFlag.Name, walletDir, "")
	set.String(flags.WalletKeyNameFlag.Name, "wallet.json", "")
	set.String(flags.EncryptionKeyFlag.Name, strings.Repeat("ab", 32), "")
	set.String(flags.AntennaFlag.Name, "http://127.0.0.1:8080/data/aircraft.json", "")
	set.String(flags.KeyShareURLFlag.Name, "http://127.0.0.1:3000", "")
	set.String(flags.StreamHostFlag.Name, "127.0.0.1", "")
	set.Int(flags.StreamPortFlag.Name, 0, "")
	if extra != nil {
		extra(set)
	}
	return cli.NewContext(&app, set, nil)
}

func TestNodeClose_OK(t *testing.T) {
	hook := logTest.NewGlobal()
	tmp := filepath.Join(t.TempDir(), "datadirtest")

	node, err := New(testNodeContext(t, tmp, nil))
	require.NoError(t, err)

	var p *poller.Service
	require.NoError(t, node.services.FetchService(&p))

	node.Close()
	require.LogsContain(t, hook, "No stats snapshot on the archive, starting fresh")
	require.LogsContain(t, hook, "Stopping derad node")
}

func TestClearDB(t *testing.T) {
	hook := logTest.NewGlobal()
	tmp := filepath.Join(t.TempDir(), "datadirtest")

	node, err := New(testNodeContext(t, tmp, func(set *flag.FlagSet) {
		set.Bool(cmd.ForceClearDB.Name, true, "")
	}))
	require.NoError(t, err)
	node.Close()

	require.LogsContain(t, hook, "Removing database")
}
