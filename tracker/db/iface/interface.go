// Package iface defines the persistence contract of the tracker node.
// Implementations live in sibling packages, callers depend on this
// interface only.
package iface

import (
	"context"
	"io"
	"time"
)

// ArchiveRecord is one successfully uploaded clear batch.
type ArchiveRecord struct {
	ID            int64
	BatchID       string
	PackageUUID   string
	TxID          string
	AircraftCount int
	SizeKB        float64
	ICAOAddresses []string
	CreatedAtMs   int64
}

// EncryptedArchiveRecord is one successfully uploaded encrypted batch.
type EncryptedArchiveRecord struct {
	ID                int64
	BatchID           string
	PackageUUID       string
	EncryptionKeyUUID string
	DataHash          string
	TxID              string
	AircraftCount     int
	SizeKB            float64
	ICAOAddresses     []string
	CreatedAtMs       int64
}

// TrackMutation is one per aircraft rollup produced by a successful upload.
type TrackMutation struct {
	Hex      string
	Callsign *string
	Lat      *float64
	Lon      *float64
	TxID     string
}

// Track is the accumulated per aircraft rollup row.
type Track struct {
	Hex            string   `db:"hex"`
	Callsign       *string  `db:"callsign"`
	FirstSeenMs    int64    `db:"first_seen_ms"`
	LastSeenMs     int64    `db:"last_seen_ms"`
	LastUploadedMs int64    `db:"last_uploaded_ms"`
	LastTxID       string   `db:"last_tx_id"`
	UploadCount    int64    `db:"upload_count"`
	TotalUpdates   int64    `db:"total_updates"`
	LastLat        *float64 `db:"last_lat"`
	LastLon        *float64 `db:"last_lon"`
	OutOfRange     bool     `db:"out_of_range"`
	UpdatedAtMs    int64    `db:"updated_at_ms"`
}

// StatsSnapshot is the singleton counter row. The json tags shape the
// snapshot backup document, the db tags the persisted row.
type StatsSnapshot struct {
	TotalPolls         int64 `db:"total_polls" json:"totalPolls"`
	TotalNewAircraft   int64 `db:"total_new_aircraft" json:"totalNewAircraft"`
	TotalUpdates       int64 `db:"total_updates" json:"totalUpdates"`
	TotalReappeared    int64 `db:"total_reappeared" json:"totalReappeared"`
	ClearAttempted     int64 `db:"clear_attempted" json:"clearAttempted"`
	ClearSucceeded     int64 `db:"clear_succeeded" json:"clearSucceeded"`
	ClearFailed        int64 `db:"clear_failed" json:"clearFailed"`
	ClearRetries       int64 `db:"clear_retries" json:"clearRetries"`
	EncryptedAttempted int64 `db:"encrypted_attempted" json:"encryptedAttempted"`
	EncryptedSucceeded int64 `db:"encrypted_succeeded" json:"encryptedSucceeded"`
	EncryptedFailed    int64 `db:"encrypted_failed" json:"encryptedFailed"`
	EncryptedRetries   int64 `db:"encrypted_retries" json:"encryptedRetries"`
	NildbKeysSaved     int64 `db:"nildb_keys_saved" json:"nildbKeysSaved"`
	PeakTpm            int64 `db:"peak_tpm" json:"peakTpm"`
	SystemStartTimeMs  int64 `db:"system_start_time_ms" json:"systemStartTime"`
	UpdatedAtMs        int64 `db:"updated_at_ms" json:"-"`
}

// Database defines the persistence operations of the tracker node.
type Database interface {
	io.Closer
	DatabasePath() string
	ClearDB() error
	Backup(ctx context.Context, outputDir string) error

	SaveArchiveRecord(ctx context.Context, r *ArchiveRecord) error
	SaveEncryptedArchiveRecord(ctx context.Context, r *EncryptedArchiveRecord) error

	UpsertTracks(ctx context.Context, muts []*TrackMutation, now time.Time) error
	MarkTracksOutOfRange(ctx context.Context, hexes []string, now time.Time) error
	Track(ctx context.Context, hex string) (*Track, error)
	TrackCount(ctx context.Context) (int64, error)

	EnsureStats(ctx context.Context, defaults *StatsSnapshot) error
	Stats(ctx context.Context) (*StatsSnapshot, error)
	SaveStats(ctx context.Context, snap *StatsSnapshot) error
}
