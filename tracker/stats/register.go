// Package stats owns the node's runtime counters: polls, per-pipeline upload
// accounting, aircraft change totals and the sliding upload throughput
// window. All mutations funnel through one mutex and reach the database as
// debounced whole-row writes.
package stats

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/derad-network/derad/config/params"
	"github.com/derad-network/derad/tracker/db"
)

var log = logrus.WithField("prefix", "stats")

const persistTimeout = 5 * time.Second

// TpmSample is one retained point of the throughput history.
type TpmSample struct {
	TimestampMs int64 `json:"timestamp"`
	Tpm         int64 `json:"tpm"`
}

type tpmBucket struct {
	period int64
	count  int64
}

// Register accumulates the node counters in memory and persists them as a
// single row. It satisfies the service registry contract so the node can
// flush pending counters on shutdown.
type Register struct {
	ctx      context.Context
	database db.Database

	mu           sync.Mutex
	counters     db.StatsSnapshot
	buckets      []tpmBucket
	history      []TpmSample
	lastSampleMs int64
	persistTimer *time.Timer
	persistArmed bool
	stopped      bool

	view      *View
	viewBuilt time.Time

	now func() time.Time
}

// New creates a register bound to the given database. Counters are zero
// until Bootstrap loads the persisted row.
func New(ctx context.Context, database db.Database) *Register {
	return &Register{
		ctx:      ctx,
		database: database,
		buckets:  make([]tpmBucket, params.DeradConfig().TpmBucketCount),
		now:      time.Now,
	}
}

// Bootstrap ensures the singleton counter row exists and loads it. The
// system start time always resets to now; the row's updatedAt is left
// untouched so a subsequent archive restore can tell whether its snapshot
// is newer than the local state. A fresh row carries updatedAt zero and
// therefore loses against any snapshot.
func (r *Register) Bootstrap(ctx context.Context) error {
	nowMs := r.now().UnixMilli()
	if err := r.database.EnsureStats(ctx, &db.StatsSnapshot{SystemStartTimeMs: nowMs}); err != nil {
		return errors.Wrap(err, "could not ensure stats row")
	}
	snap, err := r.database.Stats(ctx)
	if err != nil {
		return errors.Wrap(err, "could not load stats row")
	}
	r.mu.Lock()
	r.counters = *snap
	r.counters.SystemStartTimeMs = nowMs
	r.mu.Unlock()
	log.WithFields(logrus.Fields{
		"totalPolls":       snap.TotalPolls,
		"clearUploads":     snap.ClearSucceeded,
		"encryptedUploads": snap.EncryptedSucceeded,
	}).Debug("Loaded persisted statistics")
	return nil
}

// Reconcile applies a restored counter snapshot taken at backupTimeMs. A
// local row at least as fresh as the snapshot wins, otherwise every counter
// except the system start time is overwritten and persisted immediately.
// It reports whether the snapshot was applied.
func (r *Register) Reconcile(ctx context.Context, snap *db.StatsSnapshot, backupTimeMs int64) (bool, error) {
	r.mu.Lock()
	if r.counters.UpdatedAtMs >= backupTimeMs {
		r.mu.Unlock()
		log.WithFields(logrus.Fields{
			"localUpdatedAt": r.counters.UpdatedAtMs,
			"backupTime":     backupTimeMs,
		}).Info("Local statistics newer than archive snapshot, keeping local")
		return false, nil
	}
	start := r.counters.SystemStartTimeMs
	r.counters = *snap
	r.counters.SystemStartTimeMs = start
	r.counters.UpdatedAtMs = backupTimeMs
	restored := r.counters
	r.mu.Unlock()

	if err := r.database.SaveStats(ctx, &restored); err != nil {
		return true, errors.Wrap(err, "could not persist restored stats")
	}
	log.WithField("backupTime", backupTimeMs).Info("Restored statistics from archive snapshot")
	return true, nil
}

// RecordPoll counts one completed feed poll.
func (r *Register) RecordPoll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters.TotalPolls++
	r.schedulePersistLocked()
}

// RecordChanges counts one tick's classifier output.
func (r *Register) RecordChanges(newCount, updated, reappeared int) {
	if newCount == 0 && updated == 0 && reappeared == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters.TotalNewAircraft += int64(newCount)
	r.counters.TotalUpdates += int64(updated)
	r.counters.TotalReappeared += int64(reappeared)
	r.schedulePersistLocked()
}

// RecordKeySaved counts one encryption key handed to the share service.
// The counter is optimistic, it moves with the successful upload rather
// than with a confirmed share, the share client exposes its own failure
// metric.
func (r *Register) RecordKeySaved() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters.NildbKeysSaved++
	r.schedulePersistLocked()
}

// Counters returns a copy of the current in-memory counter set.
func (r *Register) Counters() db.StatsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters
}

// CurrentTpm returns successful uploads over the last sliding minute.
func (r *Register) CurrentTpm() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentTpmLocked()
}

// recordSuccessLocked bumps the active throughput bucket, expired buckets
// are cleared as the window wraps onto them.
func (r *Register) recordSuccessLocked() {
	cfg := params.DeradConfig()
	p := r.now().Unix() / int64(cfg.TpmBucketWidth/time.Second)
	idx := int(p % int64(len(r.buckets)))
	if r.buckets[idx].period != p {
		r.buckets[idx] = tpmBucket{period: p}
	}
	r.buckets[idx].count++
	r.sampleLocked()
}

func (r *Register) currentTpmLocked() int64 {
	cfg := params.DeradConfig()
	p := r.now().Unix() / int64(cfg.TpmBucketWidth/time.Second)
	var sum int64
	for _, b := range r.buckets {
		if b.count > 0 && p-b.period < int64(len(r.buckets)) {
			sum += b.count
		}
	}
	return sum
}

// sampleLocked refreshes the peak and appends to the throughput history
// when enough time has passed since the previous sample.
func (r *Register) sampleLocked() {
	cfg := params.DeradConfig()
	tpm := r.currentTpmLocked()
	transactionsPerMinute.Set(float64(tpm))
	if tpm > r.counters.PeakTpm {
		r.counters.PeakTpm = tpm
	}
	nowMs := r.now().UnixMilli()
	if r.lastSampleMs != 0 && nowMs-r.lastSampleMs < cfg.TpmHistoryInterval.Milliseconds() {
		return
	}
	r.lastSampleMs = nowMs
	r.history = append(r.history, TpmSample{TimestampMs: nowMs, Tpm: tpm})
	if len(r.history) > cfg.TpmHistorySize {
		r.history = r.history[len(r.history)-cfg.TpmHistorySize:]
	}
}

// schedulePersistLocked arms the debounce timer unless a write is already
// pending.
func (r *Register) schedulePersistLocked() {
	if r.persistArmed || r.stopped {
		return
	}
	r.persistArmed = true
	r.persistTimer = time.AfterFunc(params.DeradConfig().StatsPersistDebounce, r.persistNow)
}

func (r *Register) persistNow() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.persistArmed = false
	r.counters.UpdatedAtMs = r.now().UnixMilli()
	snap := r.counters
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(r.ctx, persistTimeout)
	defer cancel()
	if err := r.database.SaveStats(ctx, &snap); err != nil {
		persistFailures.Inc()
		log.WithError(err).Error("Could not persist statistics")
		return
	}
	statsPersists.Inc()
}

// Start implements the service registry contract, the register has no
// goroutines of its own.
func (r *Register) Start() {
	log.Debug("Stats register started")
}

// Stop cancels any pending debounce write and flushes the counters once.
func (r *Register) Stop() error {
	r.mu.Lock()
	r.stopped = true
	if r.persistTimer != nil {
		r.persistTimer.Stop()
	}
	r.counters.UpdatedAtMs = r.now().UnixMilli()
	snap := r.counters
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	return errors.Wrap(r.database.SaveStats(ctx, &snap), "could not flush statistics")
}

// Status always reports healthy.
func (r *Register) Status() error {
	return nil
}
