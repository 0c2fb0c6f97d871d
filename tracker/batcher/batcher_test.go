package batcher

import (
	"fmt"
	"testing"
	"time"

	"github.com/derad-network/derad/config/params"
	"github.com/derad-network/derad/testing/assert"
	"github.com/derad-network/derad/testing/require"
	"github.com/derad-network/derad/tracker/state"
)

func makeEvents(n int, snapshotSeconds int64) []state.ChangeEvent {
	events := make([]state.ChangeEvent, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, state.ChangeEvent{
			Kind:            state.New,
			Hex:             fmt.Sprintf("%06x", i+1),
			SnapshotSeconds: snapshotSeconds,
			TotalMessages:   1000,
		})
	}
	return events
}

func TestFlush_SplitsPreservingOrder(t *testing.T) {
	b := New(NewPairRegistry())
	b.Add(makeEvents(45, 1751069515)...)

	batches := b.Flush()
	require.Equal(t, 2, len(batches))
	assert.Equal(t, 30, batches[0].AircraftCount())
	assert.Equal(t, 15, batches[1].AircraftCount())
	assert.Equal(t, "1751069515-000001-0", batches[0].ID)
	assert.Equal(t, "1751069515-00001f-1", batches[1].ID)

	// Order inside and across batches follows event order.
	assert.Equal(t, "000001", batches[0].Events[0].Hex)
	assert.Equal(t, "00001e", batches[0].Events[29].Hex)
	assert.Equal(t, "00001f", batches[1].Events[0].Hex)

	assert.NotEqual(t, batches[0].PackageUUID, batches[1].PackageUUID)
	assert.Equal(t, 0, b.Pending())
}

func TestFlush_EmptyBufferYieldsNoBatches(t *testing.T) {
	b := New(NewPairRegistry())
	assert.Equal(t, 0, len(b.Flush()))
}

func TestFlush_RecordsPairings(t *testing.T) {
	pairs := NewPairRegistry()
	b := New(pairs)
	b.Add(makeEvents(3, 100)...)

	batches := b.Flush()
	require.Equal(t, 1, len(batches))
	assert.Equal(t, batches[0].PackageUUID, pairs.Resolve(batches[0].ID))
}

func TestPairRegistry_ExpiredPairingFallsBackToFreshUUID(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	cfg := params.DeradConfig().Copy()
	cfg.BatchPairTTL = 20 * time.Millisecond
	params.OverrideDeradConfig(cfg)

	pairs := NewPairRegistry()
	pairs.Record("100-abcdef-0", "original-uuid")
	time.Sleep(50 * time.Millisecond)

	fresh := pairs.Resolve("100-abcdef-0")
	assert.NotEqual(t, "original-uuid", fresh)
	assert.NotEqual(t, "", fresh)

	// Retries of the same batch keep the minted fallback.
	assert.Equal(t, fresh, pairs.Resolve("100-abcdef-0"))
}

func TestBatch_Hexes(t *testing.T) {
	b := New(NewPairRegistry())
	b.Add(makeEvents(2, 100)...)
	batches := b.Flush()
	require.Equal(t, 1, len(batches))
	assert.DeepEqual(t, []string{"000001", "000002"}, batches[0].Hexes())
	assert.Equal(t, int64(100_000), batches[0].SnapshotMillis())
}
