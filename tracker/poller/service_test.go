package poller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/derad-network/derad/testing/assert"
	"github.com/derad-network/derad/testing/require"
	"github.com/derad-network/derad/tracker/batcher"
	"github.com/derad-network/derad/tracker/db"
	dbtest "github.com/derad-network/derad/tracker/db/testing"
	"github.com/derad-network/derad/tracker/feed"
	"github.com/derad-network/derad/tracker/pipeline"
	"github.com/derad-network/derad/tracker/state"
	"github.com/derad-network/derad/tracker/stats"
)

const twoAircraft = `{
	"now": 1751069515.0,
	"messages": 52118,
	"aircraft": [
		{"hex": "48436b", "flight": "KLM855  ", "lat": 40.9258, "lon": 47.0615, "alt_baro": 37000, "gs": 575.3},
		{"hex": "406639", "flight": "EZY12AB ", "alt_baro": "ground", "gs": 3.1}
	]
}`

const climbedAircraft = `{
	"now": 1751069516.0,
	"messages": 52300,
	"aircraft": [
		{"hex": "48436b", "flight": "KLM855  ", "lat": 40.9258, "lon": 47.0615, "alt_baro": 37025, "gs": 575.3},
		{"hex": "406639", "flight": "EZY12AB ", "alt_baro": "ground", "gs": 3.1}
	]
}`

const soloAircraft = `{
	"now": 1751069875.0,
	"messages": 60000,
	"aircraft": [
		{"hex": "48436b", "flight": "KLM855  ", "lat": 41.0101, "lon": 47.5202, "alt_baro": 37000, "gs": 560.0}
	]
}`

// fakeFeed serves a switchable snapshot body.
type fakeFeed struct {
	mu     sync.Mutex
	status int
	body   string
}

func (f *fakeFeed) set(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
	f.body = body
}

func (f *fakeFeed) handler(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	status, body := f.status, f.body
	f.mu.Unlock()
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

// captureFn stands in for an upload function and records what it was
// handed.
type captureFn struct {
	mu      sync.Mutex
	batches []*batcher.Batch
}

func (c *captureFn) upload(_ context.Context, b *batcher.Batch, _ func(float64)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, b)
	return nil
}

func (c *captureFn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

func (c *captureFn) batch(i int) *batcher.Batch {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batches[i]
}

type pollerTest struct {
	s        *Service
	feed     *fakeFeed
	clear    *captureFn
	enc      *captureFn
	database db.Database
	reg      *stats.Register
}

func setupPoller(t *testing.T) *pollerTest {
	ctx := context.Background()
	database := dbtest.SetupDB(t)
	reg := stats.New(ctx, database)
	require.NoError(t, reg.Bootstrap(ctx))
	t.Cleanup(func() {
		if err := reg.Stop(); err != nil {
			t.Errorf("could not stop stats register: %v", err)
		}
	})

	ff := &fakeFeed{status: http.StatusOK, body: twoAircraft}
	srv := httptest.NewServer(http.HandlerFunc(ff.handler))
	t.Cleanup(srv.Close)
	fc, err := feed.NewClient(srv.URL)
	require.NoError(t, err)

	clearFn, encFn := &captureFn{}, &captureFn{}
	s := New(ctx, &Config{
		Feed:        fc,
		Cache:       state.NewCache(),
		Batcher:     batcher.New(batcher.NewPairRegistry()),
		Clear:       pipeline.New(ctx, "clear", clearFn.upload, reg.ClearRecorder()),
		Encrypted:   pipeline.New(ctx, "encrypted", encFn.upload, reg.EncryptedRecorder()),
		Database:    database,
		Register:    reg,
		MaxRoutines: 5000,
	})
	s.now = func() time.Time { return time.Unix(1751069515, 0) }
	t.Cleanup(func() {
		if err := s.Stop(); err != nil {
			t.Errorf("could not stop poller: %v", err)
		}
	})
	return &pollerTest{s: s, feed: ff, clear: clearFn, enc: encFn, database: database, reg: reg}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestTick_ColdStartBatchesNewAircraft(t *testing.T) {
	tt := setupPoller(t)

	tt.s.tick()

	snap := tt.reg.Counters()
	assert.Equal(t, int64(1), snap.TotalPolls)
	assert.Equal(t, int64(2), snap.TotalNewAircraft)
	assert.Equal(t, int64(0), snap.TotalUpdates)

	waitFor(t, "both pipelines to upload", func() bool {
		return tt.clear.count() == 1 && tt.enc.count() == 1
	})
	cb, eb := tt.clear.batch(0), tt.enc.batch(0)
	assert.Equal(t, true, cb == eb, "both pipelines must receive the same batch value")
	assert.Equal(t, "1751069515-48436b-0", cb.ID)
	assert.Equal(t, 2, cb.AircraftCount())
	assert.Equal(t, state.New, cb.Events[0].Kind)

	waitFor(t, "upload counters to settle", func() bool {
		c := tt.reg.Counters()
		return c.ClearSucceeded == 1 && c.EncryptedSucceeded == 1
	})
	c := tt.reg.Counters()
	assert.Equal(t, int64(1), c.ClearAttempted)
	assert.Equal(t, int64(1), c.EncryptedAttempted)
	assert.Equal(t, int64(0), c.ClearFailed)
}

func TestTick_UnchangedSnapshotIsSilent(t *testing.T) {
	tt := setupPoller(t)

	tt.s.tick()
	waitFor(t, "the first batch", func() bool { return tt.clear.count() == 1 })

	tt.s.now = func() time.Time { return time.Unix(1751069516, 0) }
	tt.s.tick()

	snap := tt.reg.Counters()
	assert.Equal(t, int64(2), snap.TotalPolls)
	assert.Equal(t, int64(2), snap.TotalNewAircraft)
	assert.Equal(t, int64(0), snap.TotalUpdates, "an unchanged fingerprint must not batch")
	assert.Equal(t, 1, tt.clear.count())
	assert.Equal(t, 1, tt.enc.count())
}

func TestTick_ChangedFingerprintBatchesUpdate(t *testing.T) {
	tt := setupPoller(t)

	tt.s.tick()
	waitFor(t, "the first batch", func() bool { return tt.clear.count() == 1 })

	tt.feed.set(http.StatusOK, climbedAircraft)
	tt.s.now = func() time.Time { return time.Unix(1751069516, 0) }
	tt.s.tick()

	waitFor(t, "the update batch", func() bool { return tt.clear.count() == 2 })
	b := tt.clear.batch(1)
	assert.Equal(t, 1, b.AircraftCount(), "only the climbing aircraft changed")
	assert.Equal(t, state.Updated, b.Events[0].Kind)
	assert.Equal(t, "48436b", b.Events[0].Hex)
	assert.Equal(t, int64(1), tt.reg.Counters().TotalUpdates)
}

func TestTick_FetchErrorSkipsCycle(t *testing.T) {
	tt := setupPoller(t)
	tt.feed.set(http.StatusBadGateway, "")

	tt.s.tick()

	snap := tt.reg.Counters()
	assert.Equal(t, int64(1), snap.TotalPolls, "a failed fetch still counts as a poll")
	assert.Equal(t, int64(0), snap.TotalNewAircraft)
	assert.Equal(t, 0, tt.clear.count())
	assert.Equal(t, 0, tt.enc.count())
}

func TestTick_VanishedAircraftFlaggedOutOfRange(t *testing.T) {
	tt := setupPoller(t)
	ctx := context.Background()

	tt.s.tick()
	waitFor(t, "the first batch", func() bool { return tt.clear.count() == 1 })

	// The capture functions upload nothing, seed the rollup row the real
	// uploader would have written.
	cs := "EZY12AB"
	muts := []*db.TrackMutation{{Hex: "406639", Callsign: &cs, TxID: "tx-seed"}}
	require.NoError(t, tt.database.UpsertTracks(ctx, muts, time.Unix(1751069515, 0)))

	// Six minutes later only one aircraft is still transmitting.
	tt.feed.set(http.StatusOK, soloAircraft)
	tt.s.now = func() time.Time { return time.Unix(1751069875, 0) }
	tt.s.tick()

	waitFor(t, "the out of range flag", func() bool {
		tr, err := tt.database.Track(ctx, "406639")
		return err == nil && tr.OutOfRange
	})
	assert.Equal(t, int64(1), tt.reg.Counters().TotalReappeared, "the survivor returned after the reappear threshold")

	waitFor(t, "the reappear batch", func() bool { return tt.clear.count() == 2 })
	b := tt.clear.batch(1)
	assert.Equal(t, state.Reappeared, b.Events[0].Kind)
	assert.Equal(t, "48436b", b.Events[0].Hex)
}

func TestService_StartStop(t *testing.T) {
	tt := setupPoller(t)

	tt.s.Start()
	require.NoError(t, tt.s.Stop())
	require.NoError(t, tt.s.Status())

	// A stopped pipeline drops everything that still arrives.
	tt.s.cfg.Clear.Enqueue(&batcher.Batch{ID: "late"})
	assert.Equal(t, 0, tt.s.cfg.Clear.QueueDepth())
	assert.Equal(t, 0, tt.clear.count())
}

func TestStatus_GoroutineCeiling(t *testing.T) {
	tt := setupPoller(t)

	tt.s.cfg.MaxRoutines = 1
	require.ErrorContains(t, "too many goroutines", tt.s.Status())

	// A zero ceiling disables the check.
	tt.s.cfg.MaxRoutines = 0
	require.NoError(t, tt.s.Status())
}
