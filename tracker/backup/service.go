// Package backup periodically seals the node's counter row into an
// encrypted snapshot on the archive network and restores the freshest
// snapshot at boot. The snapshot key is derived from a fixed identifier so
// any node holding the master key can open it after a restart.
package backup

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/derad-network/derad/async"
	"github.com/derad-network/derad/config/params"
	"github.com/derad-network/derad/crypto/encrypt"
	"github.com/derad-network/derad/tracker/archive"
	"github.com/derad-network/derad/tracker/db"
	"github.com/derad-network/derad/tracker/stats"
)

var log = logrus.WithField("prefix", "backup")

const snapshotTimeout = 30 * time.Second

// Archiver is the slice of the archive client the snapshot loop needs.
type Archiver interface {
	Address() string
	Upload(ctx context.Context, data []byte, tags []archive.Tag) (string, error)
	LatestTx(ctx context.Context, owner string, filters []archive.TagFilter) (string, error)
	Download(ctx context.Context, txID string) ([]byte, error)
}

// Config holds the collaborators of the snapshot service.
type Config struct {
	Database  db.Database
	Register  *stats.Register
	Archive   Archiver
	Encryptor *encrypt.Encryptor
}

// Service uploads counter snapshots on a fixed cadence. Failures are
// logged and retried on the next tick.
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *Config

	now func() time.Time
}

// snapshotDocument is the JSON shape sealed into every snapshot.
type snapshotDocument struct {
	Timestamp int64            `json:"timestamp"`
	Stats     db.StatsSnapshot `json:"stats"`
	BackupID  string           `json:"backupId"`
}

// New creates the snapshot service.
func New(ctx context.Context, cfg *Config) *Service {
	ctx, cancel := context.WithCancel(ctx)
	return &Service{
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Start schedules the snapshot loop. The first snapshot runs after the
// configured boot delay, later ones on the regular interval.
func (s *Service) Start() {
	cfg := params.DeradConfig()
	log.WithFields(logrus.Fields{
		"interval":     cfg.SnapshotInterval,
		"initialDelay": cfg.SnapshotInitialDelay,
	}).Info("Starting stats snapshot backups")
	go func() {
		select {
		case <-time.After(cfg.SnapshotInitialDelay):
			s.backupOnce()
		case <-s.ctx.Done():
			return
		}
		async.RunEvery(s.ctx, cfg.SnapshotInterval, s.backupOnce)
	}()
}

// Stop cancels the snapshot timers.
func (s *Service) Stop() error {
	s.cancel()
	return nil
}

// Status always reports healthy, a failed snapshot retries next tick.
func (s *Service) Status() error {
	return nil
}

func (s *Service) backupOnce() {
	ctx, cancel := context.WithTimeout(s.ctx, snapshotTimeout)
	defer cancel()
	if err := s.backup(ctx); err != nil {
		backupFailures.Inc()
		log.WithError(err).Error("Could not archive stats snapshot")
		return
	}
	backupsArchived.Inc()
}

// backup reads the persisted counter row, seals it under the fixed
// snapshot id and uploads it with the restore query tags.
func (s *Service) backup(ctx context.Context) error {
	cfg := params.DeradConfig()
	snap, err := s.cfg.Database.Stats(ctx)
	if err != nil {
		return errors.Wrap(err, "could not read stats row")
	}
	backupID, err := newBackupID()
	if err != nil {
		return errors.Wrap(err, "could not generate backup id")
	}
	doc := snapshotDocument{
		Timestamp: s.now().UnixMilli(),
		Stats:     *snap,
		BackupID:  backupID,
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "could not encode snapshot")
	}
	sealed, err := s.cfg.Encryptor.SealWithID(payload, cfg.SnapshotPackageUUID)
	if err != nil {
		return errors.Wrap(err, "could not seal snapshot")
	}
	tags := []archive.Tag{
		{Name: "Type", Value: cfg.SnapshotTypeTag},
		{Name: "Backup-Type", Value: "system-stats"},
		{Name: "Timestamp", Value: strconv.FormatInt(doc.Timestamp, 10)},
		{Name: "Backup-ID", Value: backupID},
		{Name: "Encrypted", Value: "true"},
		{Name: "Encryption-Algorithm", Value: "AES-256-GCM"},
		{Name: "App-Name", Value: cfg.AppNameTagValue},
	}
	txID, err := s.cfg.Archive.Upload(ctx, sealed.Encrypted, tags)
	if err != nil {
		return errors.Wrap(err, "could not upload snapshot")
	}
	log.WithFields(logrus.Fields{
		"tx":       txID,
		"backupId": backupID,
	}).Info("Stats snapshot archived")
	return nil
}

func newBackupID() (string, error) {
	var b [8]byte
	if _, err := io.ReadFull(rand.Reader, b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
