package state

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/derad-network/derad/testing/assert"
	"github.com/derad-network/derad/testing/require"
	"github.com/derad-network/derad/tracker/feed"
	logTest "github.com/sirupsen/logrus/hooks/test"
)

const oneAircraft = `{
	"now": 1751069515,
	"messages": 1,
	"aircraft": [
		{"hex": "48436b", "flight": "KLM855", "lat": 40.9258, "lon": 47.0615, "alt_baro": 37000, "gs": 575.3, "track": 77.65, "squawk": "6025", "emergency": "none"}
	]
}`

func parseFeed(t *testing.T, body string) *feed.FeedResponse {
	t.Helper()
	fr := &feed.FeedResponse{}
	require.NoError(t, json.Unmarshal([]byte(body), fr))
	return fr
}

func TestClassify_FirstContactIsNew(t *testing.T) {
	c := NewCache()
	now := time.Now()

	events, outOfRange := c.Classify(now, parseFeed(t, oneAircraft))
	require.Equal(t, 1, len(events))
	assert.Equal(t, New, events[0].Kind)
	assert.Equal(t, "48436b", events[0].Hex)
	assert.Equal(t, now.Unix(), events[0].SnapshotSeconds)
	assert.Equal(t, int64(1), events[0].TotalMessages)
	assert.Equal(t, 0, len(outOfRange))
	assert.Equal(t, 1, c.ActiveCount())
}

func TestClassify_UnchangedRepollIsSilent(t *testing.T) {
	c := NewCache()
	now := time.Now()

	events, _ := c.Classify(now, parseFeed(t, oneAircraft))
	require.Equal(t, 1, len(events))

	later := now.Add(100 * time.Millisecond)
	events, outOfRange := c.Classify(later, parseFeed(t, oneAircraft))
	assert.Equal(t, 0, len(events))
	assert.Equal(t, 0, len(outOfRange))

	entry, ok := c.Entry("48436b")
	require.Equal(t, true, ok)
	assert.Equal(t, later, entry.LastSeen, "unchanged observation must still advance last seen")
}

func TestClassify_FieldChangeIsUpdated(t *testing.T) {
	c := NewCache()
	now := time.Now()

	_, _ = c.Classify(now, parseFeed(t, oneAircraft))

	changed := parseFeed(t, oneAircraft)
	changed.Aircraft[0].AltBaro = &feed.Altitude{Feet: 37200}
	events, _ := c.Classify(now.Add(time.Second), changed)
	require.Equal(t, 1, len(events))
	assert.Equal(t, Updated, events[0].Kind)
}

func TestClassify_ReappearanceAfterOutOfRange(t *testing.T) {
	c := NewCache()
	start := time.Now()

	_, _ = c.Classify(start, parseFeed(t, oneAircraft))

	// Silent past the reappear threshold: the track gets flipped exactly once.
	empty := &feed.FeedResponse{Messages: 1}
	_, outOfRange := c.Classify(start.Add(5*time.Minute+30*time.Second), empty)
	require.Equal(t, 1, len(outOfRange))
	assert.Equal(t, "48436b", outOfRange[0])
	assert.Equal(t, 0, c.ActiveCount())

	_, outOfRange = c.Classify(start.Add(5*time.Minute+31*time.Second), empty)
	assert.Equal(t, 0, len(outOfRange), "out of range flip must not repeat")

	// The aircraft returns after six minutes.
	events, _ := c.Classify(start.Add(6*time.Minute), parseFeed(t, oneAircraft))
	require.Equal(t, 1, len(events))
	assert.Equal(t, Reappeared, events[0].Kind)
	assert.Equal(t, 1, c.ActiveCount())
}

func TestClassify_TombstoneEvictedAfterEvictionThreshold(t *testing.T) {
	c := NewCache()
	start := time.Now()

	_, _ = c.Classify(start, parseFeed(t, oneAircraft))

	empty := &feed.FeedResponse{}
	_, outOfRange := c.Classify(start.Add(6*time.Minute), empty)
	require.Equal(t, 1, len(outOfRange))
	require.Equal(t, 1, c.Len())

	_, _ = c.Classify(start.Add(31*time.Minute), empty)
	assert.Equal(t, 0, c.Len())
}

func TestClassify_DuplicateHexSkippedWithWarning(t *testing.T) {
	hook := logTest.NewGlobal()
	c := NewCache()

	dup := `{"now": 1, "messages": 1, "aircraft": [{"hex": "48436b", "lat": 1.0}, {"hex": "48436b", "lat": 2.0}]}`
	events, _ := c.Classify(time.Now(), parseFeed(t, dup))
	require.Equal(t, 1, len(events))
	require.LogsContain(t, hook, "Duplicate aircraft in feed snapshot")
}

func TestClassify_EmptyHexIgnored(t *testing.T) {
	c := NewCache()
	events, _ := c.Classify(time.Now(), parseFeed(t, `{"now": 1, "aircraft": [{"flight": "GHOST"}]}`))
	assert.Equal(t, 0, len(events))
	assert.Equal(t, 0, c.Len())
}
