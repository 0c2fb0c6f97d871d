// Package params defines the tunable parameters of the tracker node.
package params

import (
	"time"

	"github.com/mohae/deepcopy"
)

// TrackerConfig defines the operating parameters of the ingest and archive
// loop. Values can be overridden from a YAML file through the cli config
// layer before any service starts.
type TrackerConfig struct {
	// Polling.
	PollInterval time.Duration `yaml:"POLL_INTERVAL"` // PollInterval is the pause between consecutive feed polls.
	FetchTimeout time.Duration `yaml:"FETCH_TIMEOUT"` // FetchTimeout bounds a single feed request.

	// Change detection.
	ReappearThreshold time.Duration `yaml:"REAPPEAR_THRESHOLD"` // ReappearThreshold is the absence after which a returning aircraft counts as reappeared and a silent one is flipped out of range.
	EvictionThreshold time.Duration `yaml:"EVICTION_THRESHOLD"` // EvictionThreshold is the absence after which a silent aircraft is dropped from the state cache entirely.

	// Batching.
	MaxAircraftPerBatch int           `yaml:"MAX_AIRCRAFT_PER_BATCH"` // MaxAircraftPerBatch caps the number of aircraft encoded into one archive package.
	BatchPairTTL        time.Duration `yaml:"BATCH_PAIR_TTL"`         // BatchPairTTL is how long a batch id to package uuid pairing is retained.

	// Upload pipelines.
	MaxConcurrentUploads int           `yaml:"MAX_CONCURRENT_UPLOADS"` // MaxConcurrentUploads is the slot count of each upload pipeline.
	MaxUploadRetries     int           `yaml:"MAX_UPLOAD_RETRIES"`     // MaxUploadRetries is the number of attempts before an upload counts as failed.
	RetryBaseDelay       time.Duration `yaml:"RETRY_BASE_DELAY"`       // RetryBaseDelay is the backoff delay after the first failed attempt.
	RetryMaxDelay        time.Duration `yaml:"RETRY_MAX_DELAY"`        // RetryMaxDelay caps the exponential backoff delay.

	// Key sharing.
	KeyShareTimeout   time.Duration `yaml:"KEY_SHARE_TIMEOUT"`    // KeyShareTimeout bounds a single key share post.
	KeyShareCacheSize int           `yaml:"KEY_SHARE_CACHE_SIZE"` // KeyShareCacheSize is the size of the already-shared key id cache.

	// Statistics.
	StatsPersistDebounce time.Duration `yaml:"STATS_PERSIST_DEBOUNCE"` // StatsPersistDebounce coalesces counter writes to the database.
	TpmBucketCount       int           `yaml:"TPM_BUCKET_COUNT"`       // TpmBucketCount is the number of buckets in the sliding transaction window.
	TpmBucketWidth       time.Duration `yaml:"TPM_BUCKET_WIDTH"`       // TpmBucketWidth is the wall clock span of one bucket.
	TpmHistorySize       int           `yaml:"TPM_HISTORY_SIZE"`       // TpmHistorySize is the number of retained throughput samples.
	TpmHistoryInterval   time.Duration `yaml:"TPM_HISTORY_INTERVAL"`   // TpmHistoryInterval is the minimum spacing between throughput samples.
	TrackCountCacheTTL   time.Duration `yaml:"TRACK_COUNT_CACHE_TTL"`  // TrackCountCacheTTL is how long the total track count query result is reused.
	StatsViewCacheTTL    time.Duration `yaml:"STATS_VIEW_CACHE_TTL"`   // StatsViewCacheTTL is how long an assembled stats view is reused.
	BroadcastInterval    time.Duration `yaml:"BROADCAST_INTERVAL"`     // BroadcastInterval is the cadence of stats pushes to live subscribers.

	// Snapshot backup.
	SnapshotInterval     time.Duration `yaml:"SNAPSHOT_INTERVAL"`      // SnapshotInterval is the cadence of counter snapshot uploads.
	SnapshotInitialDelay time.Duration `yaml:"SNAPSHOT_INITIAL_DELAY"` // SnapshotInitialDelay postpones the first snapshot after boot.
	RestoreTimeout       time.Duration `yaml:"RESTORE_TIMEOUT"`        // RestoreTimeout bounds the boot time counter restore.

	// Archive constants.
	MaxTagBytes         int    // MaxTagBytes caps the total tag name plus value bytes of one transaction.
	AppNameTagValue     string // AppNameTagValue identifies uploads from this system on the archive network.
	SnapshotPackageUUID string // SnapshotPackageUUID is the fixed package uuid snapshots are sealed under.
	SnapshotTypeTag     string // SnapshotTypeTag marks snapshot transactions for the restore query.
	KeyUUIDPrefix       string // KeyUUIDPrefix prefixes per-minute encryption key identifiers.
	KeyInfoString       string // KeyInfoString is the HKDF info binding derived keys to package encryption.
}

var defaultTrackerConfig = &TrackerConfig{
	PollInterval:         500 * time.Millisecond,
	FetchTimeout:         3 * time.Second,
	ReappearThreshold:    5 * time.Minute,
	EvictionThreshold:    30 * time.Minute,
	MaxAircraftPerBatch:  30,
	BatchPairTTL:         5 * time.Minute,
	MaxConcurrentUploads: 5,
	MaxUploadRetries:     5,
	RetryBaseDelay:       time.Second,
	RetryMaxDelay:        16 * time.Second,
	KeyShareTimeout:      5 * time.Second,
	KeyShareCacheSize:    16,
	StatsPersistDebounce: 5 * time.Second,
	TpmBucketCount:       12,
	TpmBucketWidth:       5 * time.Second,
	TpmHistorySize:       30,
	TpmHistoryInterval:   3 * time.Second,
	TrackCountCacheTTL:   5 * time.Second,
	StatsViewCacheTTL:    500 * time.Millisecond,
	BroadcastInterval:    time.Second,
	SnapshotInterval:     5 * time.Minute,
	SnapshotInitialDelay: time.Minute,
	RestoreTimeout:       15 * time.Second,
	MaxTagBytes:          4096,
	AppNameTagValue:      "DeradNetworkBackup",
	SnapshotPackageUUID:  "system-stats-backup",
	SnapshotTypeTag:      "stats-backup",
	KeyUUIDPrefix:        "enckey",
	KeyInfoString:        "arweave-package-encryption",
}

// DeradConfig returns the current tracker node configuration.
func DeradConfig() *TrackerConfig {
	return defaultTrackerConfig
}

// OverrideDeradConfig will override the tracker node
// config with the added argument.
func OverrideDeradConfig(cfg *TrackerConfig) {
	defaultTrackerConfig = cfg
}

// Copy returns Copy of the config object.
func (c *TrackerConfig) Copy() *TrackerConfig {
	config, ok := deepcopy.Copy(*c).(TrackerConfig)
	if !ok {
		config = *defaultTrackerConfig
	}
	return &config
}
