// Package batcher groups change events into bounded archive batches and
// keeps the pairing between a batch id and its package uuid alive long
// enough for the encrypted pipeline to look it up.
package batcher

import (
	"fmt"
	"sync"

	"github.com/derad-network/derad/config/params"
	"github.com/derad-network/derad/tracker/state"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "batcher")

// Batch is an ordered group of at most MaxAircraftPerBatch change events
// sharing one package uuid. The same batch value is enqueued on both the
// clear and the encrypted pipeline.
type Batch struct {
	ID          string
	PackageUUID string
	Events      []state.ChangeEvent
}

// AircraftCount returns the number of observations in the batch.
func (b *Batch) AircraftCount() int {
	return len(b.Events)
}

// Hexes returns the ICAO addresses of the batch in event order.
func (b *Batch) Hexes() []string {
	hexes := make([]string, 0, len(b.Events))
	for _, ev := range b.Events {
		hexes = append(hexes, ev.Hex)
	}
	return hexes
}

// SnapshotMillis returns the poll timestamp of the batch in milliseconds.
func (b *Batch) SnapshotMillis() int64 {
	if len(b.Events) == 0 {
		return 0
	}
	return b.Events[0].SnapshotSeconds * 1000
}

// Batcher accumulates the change events of a tick.
type Batcher struct {
	mu     sync.Mutex
	events []state.ChangeEvent
	pairs  *PairRegistry
}

// New returns a batcher recording its pairings in the given registry.
func New(pairs *PairRegistry) *Batcher {
	return &Batcher{pairs: pairs}
}

// Add appends events preserving order.
func (b *Batcher) Add(events ...state.ChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, events...)
}

// Pending returns the number of buffered events.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Flush drains the buffer into batches of at most the configured size,
// mints a package uuid for each, records the pairing and returns the
// batches in order. A nil slice means the tick produced no changes.
func (b *Batcher) Flush() []*Batch {
	b.mu.Lock()
	events := b.events
	b.events = nil
	b.mu.Unlock()
	if len(events) == 0 {
		return nil
	}

	max := params.DeradConfig().MaxAircraftPerBatch
	var batches []*Batch
	for ordinal := 0; len(events) > 0; ordinal++ {
		n := max
		if len(events) < n {
			n = len(events)
		}
		chunk := events[:n]
		events = events[n:]

		first := chunk[0]
		batch := &Batch{
			ID:          fmt.Sprintf("%d-%s-%d", first.SnapshotSeconds, first.Hex, ordinal),
			PackageUUID: uuid.NewString(),
			Events:      chunk,
		}
		b.pairs.Record(batch.ID, batch.PackageUUID)
		batches = append(batches, batch)
	}
	return batches
}
