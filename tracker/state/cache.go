// Package state tracks the last known observation of every visible aircraft
// and classifies each feed snapshot into the changes worth archiving.
package state

import (
	"sync"
	"time"

	"github.com/derad-network/derad/config/params"
	"github.com/derad-network/derad/tracker/feed"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "state")

// Entry is the tracked state of one aircraft.
type Entry struct {
	Hex             string
	LastHash        uint64
	LastSeen        time.Time
	LastUploaded    time.Time
	LastObservation *feed.Observation
	OutOfRange      bool
}

// Cache holds hex to entry state for every aircraft inside the reception
// window. The classifier is its only writer; a mutex still guards the map
// because stats consumers read counts from other goroutines.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// NewCache returns an empty aircraft state cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*Entry)}
}

// ActiveCount returns the number of aircraft currently in reception range.
func (c *Cache) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.entries {
		if !e.OutOfRange {
			n++
		}
	}
	return n
}

// Entry returns the tracked state for a hex, if present.
func (c *Cache) Entry(hex string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[hex]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Len returns the total number of cache entries, out of range tombstones
// included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Classify folds one feed snapshot into the cache. It returns the change
// events worth archiving, in feed order, and the hex addresses whose tracks
// should be bulk flipped to out of range.
//
// An aircraft silent past the reappear threshold is flipped exactly once and
// kept as a tombstone so that its return classifies as reappeared rather
// than new; the tombstone is dropped after the eviction threshold.
func (c *Cache) Classify(now time.Time, fr *feed.FeedResponse) ([]ChangeEvent, []string) {
	cfg := params.DeradConfig()
	snapshotSeconds := now.Unix()

	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]bool, len(fr.Aircraft))
	var events []ChangeEvent
	for i := range fr.Aircraft {
		obs := &fr.Aircraft[i]
		if obs.Hex == "" {
			continue
		}
		if seen[obs.Hex] {
			log.WithField("hex", obs.Hex).Warn("Duplicate aircraft in feed snapshot")
			continue
		}
		seen[obs.Hex] = true

		h := Fingerprint(obs)
		event := ChangeEvent{
			Hex:             obs.Hex,
			Observation:     obs,
			SnapshotSeconds: snapshotSeconds,
			TotalMessages:   fr.Messages,
		}
		entry, ok := c.entries[obs.Hex]
		switch {
		case !ok:
			event.Kind = New
			c.entries[obs.Hex] = &Entry{
				Hex:             obs.Hex,
				LastHash:        h,
				LastSeen:        now,
				LastUploaded:    now,
				LastObservation: obs,
			}
			events = append(events, event)
		case now.Sub(entry.LastSeen) > cfg.ReappearThreshold:
			event.Kind = Reappeared
			entry.LastHash = h
			entry.LastSeen = now
			entry.LastUploaded = now
			entry.LastObservation = obs
			entry.OutOfRange = false
			events = append(events, event)
		case entry.LastHash != h:
			event.Kind = Updated
			entry.LastHash = h
			entry.LastSeen = now
			entry.LastUploaded = now
			entry.LastObservation = obs
			events = append(events, event)
		default:
			entry.LastSeen = now
		}
	}

	var outOfRange []string
	for hex, entry := range c.entries {
		if seen[hex] {
			continue
		}
		elapsed := now.Sub(entry.LastSeen)
		if elapsed > cfg.EvictionThreshold {
			delete(c.entries, hex)
			continue
		}
		if elapsed > cfg.ReappearThreshold && !entry.OutOfRange {
			entry.OutOfRange = true
			entry.LastObservation = nil
			outOfRange = append(outOfRange, hex)
		}
	}
	return events, outOfRange
}
