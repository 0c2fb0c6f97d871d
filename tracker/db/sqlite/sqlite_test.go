package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/derad-network/derad/config/params"
	"github.com/derad-network/derad/io/file"
	"github.com/derad-network/derad/testing/assert"
	"github.com/derad-network/derad/testing/require"
	"github.com/derad-network/derad/tracker/db/iface"
)

func setupDB(t *testing.T) *Store {
	s, err := NewStore(context.Background(), filepath.Join(t.TempDir(), "derad", "tracker.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})
	return s
}

func strPtr(s string) *string { return &s }

func f64Ptr(f float64) *float64 { return &f }

func TestNewStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "derad", "tracker.sqlite")
	ctx := context.Background()

	s, err := NewStore(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.EnsureStats(ctx, &iface.StatsSnapshot{SystemStartTimeMs: 1751069515000, UpdatedAtMs: 1751069515000}))
	snap, err := s.Stats(ctx)
	require.NoError(t, err)
	snap.TotalPolls = 42
	require.NoError(t, s.SaveStats(ctx, snap))
	require.NoError(t, s.Close())

	// Reopening runs migrations against an up to date schema.
	s2, err := NewStore(ctx, path)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, s2.Close())
	}()
	got, err := s2.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.TotalPolls)
	assert.Equal(t, path, s2.DatabasePath())
}

func TestEnsureStats_DoesNotOverwrite(t *testing.T) {
	s := setupDB(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureStats(ctx, &iface.StatsSnapshot{SystemStartTimeMs: 1000, UpdatedAtMs: 1000}))
	snap, err := s.Stats(ctx)
	require.NoError(t, err)
	snap.TotalNewAircraft = 7
	snap.PeakTpm = 12
	require.NoError(t, s.SaveStats(ctx, snap))

	require.NoError(t, s.EnsureStats(ctx, &iface.StatsSnapshot{SystemStartTimeMs: 2000, UpdatedAtMs: 2000}))
	got, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.TotalNewAircraft)
	assert.Equal(t, int64(12), got.PeakTpm)
	assert.Equal(t, int64(1000), got.SystemStartTimeMs)
}

func TestUpsertTracks_InsertThenUpdate(t *testing.T) {
	s := setupDB(t)
	ctx := context.Background()
	first := time.UnixMilli(1751069515000)

	require.NoError(t, s.UpsertTracks(ctx, []*iface.TrackMutation{{
		Hex:      "48436b",
		Callsign: strPtr("KLM855"),
		Lat:      f64Ptr(40.9258),
		Lon:      f64Ptr(47.0615),
		TxID:     "tx-1",
	}}, first))

	tr, err := s.Track(ctx, "48436b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), tr.UploadCount)
	assert.Equal(t, int64(0), tr.TotalUpdates)
	assert.Equal(t, "tx-1", tr.LastTxID)
	require.NotNil(t, tr.Callsign)
	assert.Equal(t, "KLM855", *tr.Callsign)
	assert.Equal(t, first.UnixMilli(), tr.FirstSeenMs)
	assert.Equal(t, first.UnixMilli(), tr.LastSeenMs)
	assert.Equal(t, first.UnixMilli(), tr.LastUploadedMs)

	second := first.Add(30 * time.Second)
	require.NoError(t, s.UpsertTracks(ctx, []*iface.TrackMutation{{
		Hex:  "48436b",
		TxID: "tx-2",
	}}, second))

	tr, err = s.Track(ctx, "48436b")
	require.NoError(t, err)
	assert.Equal(t, int64(2), tr.UploadCount)
	assert.Equal(t, int64(1), tr.TotalUpdates)
	assert.Equal(t, "tx-2", tr.LastTxID)
	require.NotNil(t, tr.Callsign)
	assert.Equal(t, "KLM855", *tr.Callsign, "absent callsign should keep the stored one")
	assert.Equal(t, first.UnixMilli(), tr.FirstSeenMs, "first seen never moves")
	assert.Equal(t, second.UnixMilli(), tr.LastSeenMs)
	assert.Equal(t, second.UnixMilli(), tr.LastUploadedMs)
	assert.Equal(t, true, tr.FirstSeenMs <= tr.LastSeenMs && tr.LastSeenMs <= tr.LastUploadedMs)
}

func TestUpsertTracks_SameHexTwiceInOneCall(t *testing.T) {
	s := setupDB(t)
	ctx := context.Background()

	// Two in-flight batches can roll up the same aircraft, the second
	// write must increment rather than overwrite.
	require.NoError(t, s.UpsertTracks(ctx, []*iface.TrackMutation{
		{Hex: "406639", TxID: "tx-a"},
		{Hex: "406639", TxID: "tx-b"},
	}, time.UnixMilli(1000)))

	tr, err := s.Track(ctx, "406639")
	require.NoError(t, err)
	assert.Equal(t, int64(2), tr.UploadCount)
	assert.Equal(t, "tx-b", tr.LastTxID)
}

func TestMarkTracksOutOfRange(t *testing.T) {
	s := setupDB(t)
	ctx := context.Background()
	start := time.UnixMilli(1000)

	require.NoError(t, s.UpsertTracks(ctx, []*iface.TrackMutation{
		{Hex: "aaaaaa", TxID: "tx-1"},
		{Hex: "bbbbbb", TxID: "tx-1"},
	}, start))

	require.NoError(t, s.MarkTracksOutOfRange(ctx, []string{"aaaaaa"}, start.Add(6*time.Minute)))

	gone, err := s.Track(ctx, "aaaaaa")
	require.NoError(t, err)
	assert.Equal(t, true, gone.OutOfRange)
	assert.Equal(t, start.Add(6*time.Minute).UnixMilli(), gone.UpdatedAtMs)

	still, err := s.Track(ctx, "bbbbbb")
	require.NoError(t, err)
	assert.Equal(t, false, still.OutOfRange)

	// A later upload puts the aircraft back in range.
	require.NoError(t, s.UpsertTracks(ctx, []*iface.TrackMutation{{Hex: "aaaaaa", TxID: "tx-2"}}, start.Add(7*time.Minute)))
	back, err := s.Track(ctx, "aaaaaa")
	require.NoError(t, err)
	assert.Equal(t, false, back.OutOfRange)
}

func TestTrack_NotFound(t *testing.T) {
	s := setupDB(t)
	_, err := s.Track(context.Background(), "ffffff")
	assert.Equal(t, true, errors.Is(err, sql.ErrNoRows))
}

func TestTrackCount_Cached(t *testing.T) {
	s := setupDB(t)
	ctx := context.Background()

	now := time.UnixMilli(1751069515000)
	s.now = func() time.Time { return now }

	require.NoError(t, s.UpsertTracks(ctx, []*iface.TrackMutation{{Hex: "aaaaaa", TxID: "t"}}, now))
	n, err := s.TrackCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, s.UpsertTracks(ctx, []*iface.TrackMutation{{Hex: "bbbbbb", TxID: "t"}}, now))
	n, err = s.TrackCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "count should come from the cache inside the ttl")

	now = now.Add(params.DeradConfig().TrackCountCacheTTL + time.Second)
	n, err = s.TrackCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestSaveArchiveRecords(t *testing.T) {
	s := setupDB(t)
	ctx := context.Background()

	require.NoError(t, s.SaveArchiveRecord(ctx, &iface.ArchiveRecord{
		BatchID:       "1751069515-48436b-0",
		PackageUUID:   "pkg-1",
		TxID:          "tx-clear",
		AircraftCount: 2,
		SizeKB:        3.42,
		ICAOAddresses: []string{"48436b", "406639"},
		CreatedAtMs:   1751069515000,
	}))
	require.NoError(t, s.SaveEncryptedArchiveRecord(ctx, &iface.EncryptedArchiveRecord{
		BatchID:           "1751069515-48436b-0",
		PackageUUID:       "pkg-1",
		EncryptionKeyUUID: "enckey-29184491-abcd",
		DataHash:          "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		TxID:              "tx-enc",
		AircraftCount:     2,
		SizeKB:            3.45,
		ICAOAddresses:     []string{"48436b", "406639"},
		CreatedAtMs:       1751069516000,
	}))

	var clearRow archiveRecordRow
	require.NoError(t, s.db.GetContext(ctx, &clearRow,
		`SELECT batch_id, package_uuid, tx_id, aircraft_count, size_kb, icao_addresses, created_at_ms
		FROM archive_record WHERE batch_id = ?`, "1751069515-48436b-0"))
	assert.Equal(t, "tx-clear", clearRow.TxID)
	assert.Equal(t, `["48436b","406639"]`, clearRow.ICAOAddresses)

	var encRow encryptedRecordRow
	require.NoError(t, s.db.GetContext(ctx, &encRow,
		`SELECT batch_id, package_uuid, encryption_key_uuid, data_hash, tx_id, aircraft_count, size_kb, icao_addresses, created_at_ms
		FROM encrypted_archive_records WHERE batch_id = ?`, "1751069515-48436b-0"))
	assert.Equal(t, "enckey-29184491-abcd", encRow.EncryptionKeyUUID)
	assert.Equal(t, "tx-enc", encRow.TxID)
}

func TestClearDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "derad", "tracker.sqlite")
	s, err := NewStore(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, s.ClearDB())
	assert.Equal(t, false, file.FileExists(path))
}

func TestBackup_CopyOpensStandalone(t *testing.T) {
	s := setupDB(t)
	ctx := context.Background()
	s.now = func() time.Time { return time.UnixMilli(1751069515000) }

	require.NoError(t, s.EnsureStats(ctx, &iface.StatsSnapshot{SystemStartTimeMs: 1751069515000, UpdatedAtMs: 1751069515000}))
	require.NoError(t, s.UpsertTracks(ctx, []*iface.TrackMutation{{Hex: "48436b", TxID: "tx-1"}}, time.UnixMilli(1751069515000)))

	outputDir := filepath.Join(t.TempDir(), "exports")
	require.NoError(t, s.Backup(ctx, outputDir))

	backupPath := filepath.Join(outputDir, "derad_trackerdb_1751069515.backup")
	require.Equal(t, true, file.FileExists(backupPath))

	copyDB, err := NewStore(ctx, backupPath)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, copyDB.Close())
	}()
	tr, err := copyDB.Track(ctx, "48436b")
	require.NoError(t, err)
	assert.Equal(t, "tx-1", tr.LastTxID)
}

func TestBackup_DefaultsToSiblingDirectory(t *testing.T) {
	s := setupDB(t)
	s.now = func() time.Time { return time.UnixMilli(1751069515000) }

	require.NoError(t, s.Backup(context.Background(), ""))

	backupPath := filepath.Join(filepath.Dir(s.path), backupsDirectoryName, "derad_trackerdb_1751069515.backup")
	require.Equal(t, true, file.FileExists(backupPath))
}
