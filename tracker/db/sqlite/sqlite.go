// Package sqlite implements the node database on a single sqlite file in
// WAL mode. Schema changes ship as embedded migrations and run on open.
package sqlite

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/dustin/go-humanize"
	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opencensus.io/trace"

	"github.com/derad-network/derad/config/params"
	"github.com/derad-network/derad/io/file"
	"github.com/derad-network/derad/tracker/db/iface"
)

var log = logrus.WithField("prefix", "db")

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Store is the sqlite backed Database implementation.
type Store struct {
	db   *sqlx.DB
	path string

	countMu      sync.Mutex
	cachedCount  int64
	countFetched time.Time

	now func() time.Time
}

// NewStore opens or creates the database at path and brings the schema up
// to date.
func NewStore(ctx context.Context, path string) (*Store, error) {
	if err := file.MkdirAll(filepath.Dir(path)); err != nil {
		return nil, errors.Wrap(err, "could not create database directory")
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sqlx.ConnectContext(ctx, "sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "could not open database")
	}
	// sqlite allows a single writer. Funnelling everything through one
	// connection turns lock errors into queueing.
	db.SetMaxOpenConns(1)

	if err := applyMigrations(db); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.WithError(closeErr).Error("Could not close database")
		}
		return nil, errors.Wrap(err, "could not migrate database")
	}
	log.WithField("path", path).Info("Database opened")
	return &Store{db: db, path: path, now: time.Now}, nil
}

func applyMigrations(db *sqlx.DB) error {
	driver, err := migratesqlite.WithInstance(db.DB, &migratesqlite.Config{})
	if err != nil {
		return err
	}
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DatabasePath returns the file backing this store.
func (s *Store) DatabasePath() string {
	return s.path
}

// ClearDB closes the store and removes the database files, including the
// WAL siblings.
func (s *Store) ClearDB() error {
	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, "could not close database")
	}
	for _, suffix := range []string{"", "-wal", "-shm"} {
		p := s.path + suffix
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "could not remove %s", p)
		}
	}
	return nil
}

const backupsDirectoryName = "backups"

// Backup writes a consistent copy of the database into outputDir, or into a
// backups directory next to the live file when outputDir is empty. The copy
// is produced with VACUUM INTO, so it carries no WAL sibling and opens
// standalone.
func (s *Store) Backup(ctx context.Context, outputDir string) error {
	ctx, span := trace.StartSpan(ctx, "db.Backup")
	defer span.End()

	var backupsDir string
	var err error
	if outputDir != "" {
		backupsDir, err = file.ExpandPath(outputDir)
		if err != nil {
			return errors.Wrap(err, "could not expand backup directory")
		}
	} else {
		backupsDir = filepath.Join(filepath.Dir(s.path), backupsDirectoryName)
	}
	if err := file.MkdirAll(backupsDir); err != nil {
		return errors.Wrap(err, "could not create backup directory")
	}
	backupPath := filepath.Join(backupsDir, fmt.Sprintf("derad_trackerdb_%d.backup", s.now().Unix()))
	log.WithField("backup", backupPath).Info("Writing backup database")

	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", backupPath); err != nil {
		return errors.Wrap(err, "could not vacuum into backup file")
	}
	if info, err := os.Stat(backupPath); err == nil {
		log.WithFields(logrus.Fields{
			"backup": backupPath,
			"size":   humanize.Bytes(uint64(info.Size())),
		}).Info("Backup completed")
	}
	return nil
}

type archiveRecordRow struct {
	BatchID       string  `db:"batch_id"`
	PackageUUID   string  `db:"package_uuid"`
	TxID          string  `db:"tx_id"`
	AircraftCount int     `db:"aircraft_count"`
	SizeKB        float64 `db:"size_kb"`
	ICAOAddresses string  `db:"icao_addresses"`
	CreatedAtMs   int64   `db:"created_at_ms"`
}

const insertArchiveRecordSQL = `INSERT INTO archive_record
	(batch_id, package_uuid, tx_id, aircraft_count, size_kb, icao_addresses, created_at_ms)
VALUES (:batch_id, :package_uuid, :tx_id, :aircraft_count, :size_kb, :icao_addresses, :created_at_ms)`

// SaveArchiveRecord persists one uploaded clear batch.
func (s *Store) SaveArchiveRecord(ctx context.Context, r *iface.ArchiveRecord) error {
	addrs, err := json.Marshal(r.ICAOAddresses)
	if err != nil {
		return errors.Wrap(err, "could not encode icao addresses")
	}
	_, err = s.db.NamedExecContext(ctx, insertArchiveRecordSQL, &archiveRecordRow{
		BatchID:       r.BatchID,
		PackageUUID:   r.PackageUUID,
		TxID:          r.TxID,
		AircraftCount: r.AircraftCount,
		SizeKB:        r.SizeKB,
		ICAOAddresses: string(addrs),
		CreatedAtMs:   r.CreatedAtMs,
	})
	return errors.Wrap(err, "could not save archive record")
}

type encryptedRecordRow struct {
	archiveRecordRow
	EncryptionKeyUUID string `db:"encryption_key_uuid"`
	DataHash          string `db:"data_hash"`
}

const insertEncryptedRecordSQL = `INSERT INTO encrypted_archive_records
	(batch_id, package_uuid, encryption_key_uuid, data_hash, tx_id, aircraft_count, size_kb, icao_addresses, created_at_ms)
VALUES (:batch_id, :package_uuid, :encryption_key_uuid, :data_hash, :tx_id, :aircraft_count, :size_kb, :icao_addresses, :created_at_ms)`

// SaveEncryptedArchiveRecord persists one uploaded encrypted batch.
func (s *Store) SaveEncryptedArchiveRecord(ctx context.Context, r *iface.EncryptedArchiveRecord) error {
	addrs, err := json.Marshal(r.ICAOAddresses)
	if err != nil {
		return errors.Wrap(err, "could not encode icao addresses")
	}
	_, err = s.db.NamedExecContext(ctx, insertEncryptedRecordSQL, &encryptedRecordRow{
		archiveRecordRow: archiveRecordRow{
			BatchID:       r.BatchID,
			PackageUUID:   r.PackageUUID,
			TxID:          r.TxID,
			AircraftCount: r.AircraftCount,
			SizeKB:        r.SizeKB,
			ICAOAddresses: string(addrs),
			CreatedAtMs:   r.CreatedAtMs,
		},
		EncryptionKeyUUID: r.EncryptionKeyUUID,
		DataHash:          r.DataHash,
	})
	return errors.Wrap(err, "could not save encrypted archive record")
}

const upsertTrackSQL = `INSERT INTO aircraft_tracks
	(hex, callsign, first_seen_ms, last_seen_ms, last_uploaded_ms, last_tx_id, upload_count, total_updates, last_lat, last_lon, out_of_range, updated_at_ms)
VALUES (?, ?, ?, ?, ?, ?, 1, 0, ?, ?, 0, ?)
ON CONFLICT(hex) DO UPDATE SET
	callsign = COALESCE(excluded.callsign, callsign),
	last_seen_ms = excluded.last_seen_ms,
	last_uploaded_ms = excluded.last_uploaded_ms,
	last_tx_id = excluded.last_tx_id,
	upload_count = upload_count + 1,
	total_updates = total_updates + 1,
	last_lat = COALESCE(excluded.last_lat, last_lat),
	last_lon = COALESCE(excluded.last_lon, last_lon),
	out_of_range = 0,
	updated_at_ms = excluded.updated_at_ms`

// UpsertTracks applies one batch worth of rollups in a single transaction.
// The same hex arriving from two in-flight batches resolves through the
// conflict clause, the second writer increments rather than overwrites.
func (s *Store) UpsertTracks(ctx context.Context, muts []*iface.TrackMutation, now time.Time) error {
	if len(muts) == 0 {
		return nil
	}
	hexes := make([]string, 0, len(muts))
	for _, m := range muts {
		hexes = append(hexes, m.Hex)
	}
	query, args, err := sq.Select("hex").From("aircraft_tracks").Where(sq.Eq{"hex": hexes}).ToSql()
	if err != nil {
		return errors.Wrap(err, "could not build track select")
	}
	var existing []string
	if err := s.db.SelectContext(ctx, &existing, query, args...); err != nil {
		return errors.Wrap(err, "could not load existing tracks")
	}
	known := make(map[string]bool, len(existing))
	for _, h := range existing {
		known[h] = true
	}
	inserted := 0
	for _, m := range muts {
		if !known[m.Hex] {
			known[m.Hex] = true
			inserted++
		}
	}

	nowMs := now.UnixMilli()
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "could not begin track upsert")
	}
	for _, m := range muts {
		if _, err := tx.ExecContext(ctx, upsertTrackSQL,
			m.Hex, m.Callsign, nowMs, nowMs, nowMs, m.TxID, m.Lat, m.Lon, nowMs,
		); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.WithError(rbErr).Error("Could not roll back track upsert")
			}
			return errors.Wrapf(err, "could not upsert track %s", m.Hex)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "could not commit track upsert")
	}
	log.WithFields(logrus.Fields{
		"tracks":   len(muts),
		"inserted": inserted,
	}).Debug("Upserted aircraft tracks")
	return nil
}

// MarkTracksOutOfRange flips the out of range flag for every given hex.
func (s *Store) MarkTracksOutOfRange(ctx context.Context, hexes []string, now time.Time) error {
	if len(hexes) == 0 {
		return nil
	}
	query, args, err := sq.Update("aircraft_tracks").
		Set("out_of_range", 1).
		Set("updated_at_ms", now.UnixMilli()).
		Where(sq.Eq{"hex": hexes}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "could not build out of range update")
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return errors.Wrap(err, "could not mark tracks out of range")
}

// Track returns the rollup row for one hex.
func (s *Store) Track(ctx context.Context, hex string) (*iface.Track, error) {
	t := &iface.Track{}
	err := s.db.GetContext(ctx, t,
		`SELECT hex, callsign, first_seen_ms, last_seen_ms, last_uploaded_ms, last_tx_id,
			upload_count, total_updates, last_lat, last_lon, out_of_range, updated_at_ms
		FROM aircraft_tracks WHERE hex = ?`, hex)
	if err != nil {
		return nil, errors.Wrapf(err, "could not load track %s", hex)
	}
	return t, nil
}

// TrackCount returns the total number of tracked aircraft. The underlying
// count query runs at most once per cache interval.
func (s *Store) TrackCount(ctx context.Context) (int64, error) {
	s.countMu.Lock()
	defer s.countMu.Unlock()
	ttl := params.DeradConfig().TrackCountCacheTTL
	if !s.countFetched.IsZero() && s.now().Sub(s.countFetched) < ttl {
		return s.cachedCount, nil
	}
	var n int64
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM aircraft_tracks"); err != nil {
		return 0, errors.Wrap(err, "could not count tracks")
	}
	s.cachedCount, s.countFetched = n, s.now()
	return n, nil
}

const statsColumns = `total_polls, total_new_aircraft, total_updates, total_reappeared,
	clear_attempted, clear_succeeded, clear_failed, clear_retries,
	encrypted_attempted, encrypted_succeeded, encrypted_failed, encrypted_retries,
	nildb_keys_saved, peak_tpm, system_start_time_ms, updated_at_ms`

// EnsureStats inserts the singleton counter row if it does not exist yet.
// An existing row is left untouched.
func (s *Store) EnsureStats(ctx context.Context, defaults *iface.StatsSnapshot) error {
	_, err := s.db.NamedExecContext(ctx, `INSERT OR IGNORE INTO system_stats
	(id, `+statsColumns+`)
VALUES (1, :total_polls, :total_new_aircraft, :total_updates, :total_reappeared,
	:clear_attempted, :clear_succeeded, :clear_failed, :clear_retries,
	:encrypted_attempted, :encrypted_succeeded, :encrypted_failed, :encrypted_retries,
	:nildb_keys_saved, :peak_tpm, :system_start_time_ms, :updated_at_ms)`, defaults)
	return errors.Wrap(err, "could not ensure stats row")
}

// Stats reads the singleton counter row.
func (s *Store) Stats(ctx context.Context) (*iface.StatsSnapshot, error) {
	snap := &iface.StatsSnapshot{}
	err := s.db.GetContext(ctx, snap, `SELECT `+statsColumns+` FROM system_stats WHERE id = 1`)
	if err != nil {
		return nil, errors.Wrap(err, "could not load stats row")
	}
	return snap, nil
}

// SaveStats writes the whole counter set in one update.
func (s *Store) SaveStats(ctx context.Context, snap *iface.StatsSnapshot) error {
	_, err := s.db.NamedExecContext(ctx, `UPDATE system_stats SET
	total_polls = :total_polls,
	total_new_aircraft = :total_new_aircraft,
	total_updates = :total_updates,
	total_reappeared = :total_reappeared,
	clear_attempted = :clear_attempted,
	clear_succeeded = :clear_succeeded,
	clear_failed = :clear_failed,
	clear_retries = :clear_retries,
	encrypted_attempted = :encrypted_attempted,
	encrypted_succeeded = :encrypted_succeeded,
	encrypted_failed = :encrypted_failed,
	encrypted_retries = :encrypted_retries,
	nildb_keys_saved = :nildb_keys_saved,
	peak_tpm = :peak_tpm,
	system_start_time_ms = :system_start_time_ms,
	updated_at_ms = :updated_at_ms
WHERE id = 1`, snap)
	return errors.Wrap(err, "could not save stats row")
}
