// Package node is the main process for the derad tracker. It wires the
// feed poller, the upload pipelines, the stats register and the outward
// facing services into a service registry and manages their lifecycle.
package node

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/derad-network/derad/cmd"
	"github.com/derad-network/derad/cmd/derad-node/flags"
	"github.com/derad-network/derad/config/params"
	"github.com/derad-network/derad/crypto/encrypt"
	"github.com/derad-network/derad/io/logs"
	backuputil "github.com/derad-network/derad/monitoring/backup"
	"github.com/derad-network/derad/monitoring/prometheus"
	"github.com/derad-network/derad/monitoring/tracing"
	"github.com/derad-network/derad/network"
	"github.com/derad-network/derad/runtime"
	"github.com/derad-network/derad/runtime/debug"
	"github.com/derad-network/derad/runtime/version"
	"github.com/derad-network/derad/tracker/archive"
	"github.com/derad-network/derad/tracker/backup"
	"github.com/derad-network/derad/tracker/batcher"
	"github.com/derad-network/derad/tracker/db"
	"github.com/derad-network/derad/tracker/feed"
	"github.com/derad-network/derad/tracker/keyshare"
	"github.com/derad-network/derad/tracker/pipeline"
	"github.com/derad-network/derad/tracker/poller"
	"github.com/derad-network/derad/tracker/registration"
	"github.com/derad-network/derad/tracker/state"
	"github.com/derad-network/derad/tracker/stats"
	"github.com/derad-network/derad/tracker/stream"
	"github.com/derad-network/derad/tracker/uploader"
)

var log = logrus.WithField("prefix", "node")

// TrackerNode defines a struct that handles the services running an
// aircraft tracking node. It handles the lifecycle of the entire system
// and registers services to a service registry.
type TrackerNode struct {
	cliCtx    *cli.Context
	ctx       context.Context
	cancel    context.CancelFunc
	lock      sync.RWMutex
	services  *runtime.ServiceRegistry
	stop      chan struct{}
	db        db.Database
	register  *stats.Register
	archive   *archive.Client
	clear     *pipeline.Pipeline
	encrypted *pipeline.Pipeline
}

// New creates a new node instance, sets up configuration options and
// registers every required service to the node.
func New(cliCtx *cli.Context) (*TrackerNode, error) {
	if err := tracing.Setup(
		"derad-node",
		cliCtx.String(cmd.TracingProcessNameFlag.Name),
		cliCtx.String(cmd.TracingEndpointFlag.Name),
		cliCtx.Float64(cmd.TraceSampleFractionFlag.Name),
		cliCtx.Bool(cmd.EnableTracingFlag.Name),
	); err != nil {
		return nil, err
	}

	registry := runtime.NewServiceRegistry()
	ctx, cancel := context.WithCancel(cliCtx.Context)
	node := &TrackerNode{
		cliCtx:   cliCtx,
		ctx:      ctx,
		cancel:   cancel,
		services: registry,
		stop:     make(chan struct{}),
	}

	if err := node.startDB(cliCtx); err != nil {
		return nil, err
	}

	if err := node.registerStatsRegister(); err != nil {
		return nil, err
	}

	if err := node.startArchive(cliCtx); err != nil {
		return nil, err
	}

	encryptor, err := encrypt.New(cliCtx.String(flags.EncryptionKeyFlag.Name))
	if err != nil {
		return nil, errors.Wrap(err, "could not set up the encryptor")
	}

	if err := node.registerBackupService(encryptor); err != nil {
		return nil, err
	}

	if err := node.registerPollerService(cliCtx, encryptor); err != nil {
		return nil, err
	}

	if err := node.registerStreamService(cliCtx); err != nil {
		return nil, err
	}

	if err := node.registerRegistrationService(cliCtx); err != nil {
		return nil, err
	}

	if !cliCtx.Bool(cmd.DisableMonitoringFlag.Name) {
		if err := node.registerPrometheusService(cliCtx); err != nil {
			return nil, err
		}
	}

	return node, nil
}

// Start the TrackerNode and kicks off every registered service.
func (n *TrackerNode) Start() {
	n.lock.Lock()
	log.WithFields(logrus.Fields{
		"version": version.GetVersion(),
	}).Info("Starting derad node")

	n.services.StartAll()

	stop := n.stop
	n.lock.Unlock()

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigc)
		<-sigc
		log.Info("Got interrupt, shutting down...")
		debug.Exit(n.cliCtx) // Ensure trace and CPU profile data are flushed.
		go n.Close()
		for i := 10; i > 0; i-- {
			<-sigc
			if i > 1 {
				log.WithField("times", i-1).Info("Already shutting down, interrupt more to panic.")
			}
		}
		panic("Panic closing the derad node")
	}()

	// Wait for stop channel to be closed.
	<-stop
}

// Close handles graceful shutdown of the system.
func (n *TrackerNode) Close() {
	n.lock.Lock()
	defer n.lock.Unlock()

	log.Info("Stopping derad node")
	n.services.StopAll()
	n.clear.Stop()
	n.encrypted.Stop()
	n.cancel()
	if err := n.db.Close(); err != nil {
		log.Errorf("Failed to close database: %v", err)
	}
	close(n.stop)
}

func (n *TrackerNode) startDB(cliCtx *cli.Context) error {
	dbPath := cliCtx.String(flags.DBPathFlag.Name)
	if dbPath == "" {
		dbPath = filepath.Join(cliCtx.String(cmd.DataDirFlag.Name), flags.DBDefaultFileName)
	}
	clearDB := cliCtx.Bool(cmd.ClearDB.Name)
	forceClearDB := cliCtx.Bool(cmd.ForceClearDB.Name)

	log.WithField("database-path", dbPath).Info("Checking DB")
	d, err := db.NewDB(n.ctx, dbPath)
	if err != nil {
		return errors.Wrap(err, "could not open database")
	}
	clearDBConfirmed := false
	if clearDB && !forceClearDB {
		actionText := "This will delete your tracker database stored in your data directory. " +
			"Your database backups will not be removed - do you want to proceed? (Y/N)"
		deniedText := "Database will not be deleted. No changes have been made."
		clearDBConfirmed, err = cmd.ConfirmAction(actionText, deniedText)
		if err != nil {
			return err
		}
	}
	if clearDBConfirmed || forceClearDB {
		log.Warning("Removing database")
		// ClearDB closes the store before removing its files.
		if err := d.ClearDB(); err != nil {
			return errors.Wrap(err, "could not clear database")
		}
		d, err = db.NewDB(n.ctx, dbPath)
		if err != nil {
			return errors.Wrap(err, "could not create new database")
		}
	}
	n.db = d
	return nil
}

func (n *TrackerNode) registerStatsRegister() error {
	n.register = stats.New(n.ctx, n.db)
	if err := n.register.Bootstrap(n.ctx); err != nil {
		return errors.Wrap(err, "could not bootstrap the stats register")
	}
	return n.services.RegisterService(n.register)
}

func (n *TrackerNode) startArchive(cliCtx *cli.Context) error {
	walletDir := cliCtx.String(flags.WalletDirFlag.Name)
	if walletDir == "" {
		walletDir = filepath.Join(cliCtx.String(cmd.DataDirFlag.Name), flags.WalletDefaultDirName)
	}
	walletPath := filepath.Join(walletDir, cliCtx.String(flags.WalletKeyNameFlag.Name))
	client, err := archive.New(cliCtx.String(flags.GatewayURLFlag.Name), walletPath)
	if err != nil {
		return errors.Wrap(err, "could not open the archive wallet")
	}
	n.archive = client
	return nil
}

// registerBackupService wires the snapshot service and runs the restore
// before anything starts mutating counters. Restore failures are not
// fatal, the node carries on from its local state.
func (n *TrackerNode) registerBackupService(encryptor *encrypt.Encryptor) error {
	svc := backup.New(n.ctx, &backup.Config{
		Database:  n.db,
		Register:  n.register,
		Archive:   n.archive,
		Encryptor: encryptor,
	})
	restoreCtx, cancel := context.WithTimeout(n.ctx, params.DeradConfig().RestoreTimeout)
	defer cancel()
	if err := svc.Restore(restoreCtx); err != nil {
		log.WithError(err).Warn("Could not restore stats from the archive")
	}
	return n.services.RegisterService(svc)
}

func (n *TrackerNode) registerPollerService(cliCtx *cli.Context, encryptor *encrypt.Encryptor) error {
	antennaURL := network.RewriteForContainer(cliCtx.String(flags.AntennaFlag.Name))
	keyShareURL := network.RewriteForContainer(cliCtx.String(flags.KeyShareURLFlag.Name))
	log.WithFields(logrus.Fields{
		"antenna":  logs.MaskCredentialsLogging(antennaURL),
		"keyShare": logs.MaskCredentialsLogging(keyShareURL),
	}).Info("Connecting to receiver and key share endpoints")

	feedClient, err := feed.NewClient(antennaURL)
	if err != nil {
		return errors.Wrap(err, "could not set up the feed client")
	}
	keyShare, err := keyshare.NewClient(keyShareURL)
	if err != nil {
		return errors.Wrap(err, "could not set up the key share client")
	}

	pairs := batcher.NewPairRegistry()
	up := uploader.New(n.ctx, &uploader.Config{
		Database:  n.db,
		Archive:   n.archive,
		Encryptor: encryptor,
		KeyShare:  keyShare,
		Pairs:     pairs,
		Register:  n.register,
	})
	n.clear = pipeline.New(n.ctx, "clear", up.UploadClear, n.register.ClearRecorder())
	n.encrypted = pipeline.New(n.ctx, "encrypted", up.UploadEncrypted, n.register.EncryptedRecorder())

	svc := poller.New(n.ctx, &poller.Config{
		Feed:        feedClient,
		Cache:       state.NewCache(),
		Batcher:     batcher.New(pairs),
		Clear:       n.clear,
		Encrypted:   n.encrypted,
		Database:    n.db,
		Register:    n.register,
		MaxRoutines: int(cliCtx.Int64(cmd.MaxGoroutines.Name)),
	})
	return n.services.RegisterService(svc)
}

func (n *TrackerNode) registerStreamService(cliCtx *cli.Context) error {
	svc := stream.New(n.ctx, &stream.Config{
		Address: fmt.Sprintf("%s:%d",
			cliCtx.String(flags.StreamHostFlag.Name),
			cliCtx.Int(flags.StreamPortFlag.Name),
		),
		Register:       n.register,
		AllowedOrigins: cliCtx.StringSlice(flags.WSAllowedOriginsFlag.Name),
	})
	return n.services.RegisterService(svc)
}

func (n *TrackerNode) registerRegistrationService(cliCtx *cli.Context) error {
	svc := registration.New(n.ctx, &registration.Config{
		Archive:   n.archive,
		Version:   version.GetVersion(),
		NodeType:  cliCtx.String(flags.NodeTypeFlag.Name),
		BeastPort: cliCtx.Int(flags.BeastPortFlag.Name),
		APIPort:   cliCtx.Int(flags.APIPortFlag.Name),
	})
	return n.services.RegisterService(svc)
}

func (n *TrackerNode) registerPrometheusService(cliCtx *cli.Context) error {
	var additionalHandlers []prometheus.Handler
	if cliCtx.IsSet(cmd.EnableBackupWebhookFlag.Name) {
		additionalHandlers = append(
			additionalHandlers,
			prometheus.Handler{
				Path:    "/db/backup",
				Handler: backuputil.Handler(n.db, cliCtx.String(cmd.BackupWebhookOutputDir.Name)),
			},
		)
	}
	service := prometheus.NewService(
		fmt.Sprintf("%s:%d",
			cliCtx.String(cmd.MonitoringHostFlag.Name),
			cliCtx.Int(flags.MonitoringPortFlag.Name),
		),
		n.services,
		additionalHandlers...,
	)
	hook := prometheus.NewLogrusCollector()
	logrus.AddHook(hook)
	return n.services.RegisterService(service)
}
