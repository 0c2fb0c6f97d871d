// Package flags contains all configuration runtime flags for the derad
// node.
package flags

import (
	"github.com/urfave/cli/v2"
)

const (
	// WalletDefaultDirName holds the wallet key files under the data directory.
	WalletDefaultDirName = "keys"
	// DBDefaultFileName is the database file under the data directory.
	DBDefaultFileName = "derad.db"
)

var (
	// AntennaFlag defines the receiver endpoint polled for aircraft snapshots.
	AntennaFlag = &cli.StringFlag{
		Name:  "antenna",
		Usage: "HTTP endpoint of the dump1090 style receiver serving aircraft.json.",
		Value: "http://127.0.0.1:8080/data/aircraft.json",
	}
	// WalletDirFlag defines the directory holding the wallet key files.
	WalletDirFlag = &cli.StringFlag{
		Name:  "wallet-dir",
		Usage: "Directory containing the wallet key file. Defaults to the keys directory under the data directory.",
	}
	// WalletKeyNameFlag defines the JWK file name inside the wallet directory.
	WalletKeyNameFlag = &cli.StringFlag{
		Name:  "wallet-key-name",
		Usage: "File name of the JWK wallet key inside the wallet directory.",
		Value: "wallet.json",
	}
	// EncryptionKeyFlag defines the master encryption key.
	EncryptionKeyFlag = &cli.StringFlag{
		Name:  "encryption-key",
		Usage: "Master encryption key as 64 hex characters. Prefer supplying it through the YAML config file.",
	}
	// DBPathFlag overrides the database location.
	DBPathFlag = &cli.StringFlag{
		Name:  "db-path",
		Usage: "File path of the local database. Defaults to derad.db under the data directory.",
	}
	// GatewayURLFlag defines the archive gateway uploads are sent to.
	GatewayURLFlag = &cli.StringFlag{
		Name:  "gateway-url",
		Usage: "Base URL of the archive gateway receiving batch uploads.",
		Value: "https://arweave.net",
	}
	// KeyShareURLFlag defines the key share service endpoint.
	KeyShareURLFlag = &cli.StringFlag{
		Name:  "key-share-url",
		Usage: "Base URL of the key share service receiving minute keys.",
		Value: "http://127.0.0.1:3000",
	}
	// MonitoringPortFlag defines the http port used to serve prometheus metrics.
	MonitoringPortFlag = &cli.IntFlag{
		Name:  "monitoring-port",
		Usage: "Port used to listening and respond metrics for prometheus.",
		Value: 8081,
	}
	// StreamHostFlag defines the host of the live stats server.
	StreamHostFlag = &cli.StringFlag{
		Name:  "stream-host",
		Usage: "Host serving the live stats websocket and the /stats route.",
		Value: "127.0.0.1",
	}
	// StreamPortFlag defines the port of the live stats server.
	StreamPortFlag = &cli.IntFlag{
		Name:  "stream-port",
		Usage: "Port serving the live stats websocket and the /stats route.",
		Value: 8085,
	}
	// WSAllowedOriginsFlag defines the origins accepted for websocket subscriptions.
	WSAllowedOriginsFlag = &cli.StringSliceFlag{
		Name:  "ws-allowed-origins",
		Usage: "Browser origin accepted for websocket subscriptions. This flag may be used multiple times.",
	}
	// NodeTypeFlag labels the node in its boot announcement.
	NodeTypeFlag = &cli.StringFlag{
		Name:  "node-type",
		Usage: "Node type announced in the boot registration.",
		Value: "ingest",
	}
	// BeastPortFlag defines the beast protocol port announced in the boot registration.
	BeastPortFlag = &cli.IntFlag{
		Name:  "beast-port",
		Usage: "Beast protocol port announced in the boot registration.",
		Value: 30005,
	}
	// APIPortFlag defines the api port announced in the boot registration.
	APIPortFlag = &cli.IntFlag{
		Name:  "api-port",
		Usage: "API port announced in the boot registration.",
		Value: 8080,
	}
)
