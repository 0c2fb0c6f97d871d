// Package db instantiates the node database. The interface lives in iface,
// the sqlite implementation in sqlite.
package db

import (
	"context"

	"github.com/derad-network/derad/tracker/db/iface"
	"github.com/derad-network/derad/tracker/db/sqlite"
)

// Database defines the persistence operations of the tracker node.
type Database = iface.Database

// ArchiveRecord is one successfully uploaded clear batch.
type ArchiveRecord = iface.ArchiveRecord

// EncryptedArchiveRecord is one successfully uploaded encrypted batch.
type EncryptedArchiveRecord = iface.EncryptedArchiveRecord

// TrackMutation is one per aircraft rollup produced by a successful upload.
type TrackMutation = iface.TrackMutation

// Track is the accumulated per aircraft rollup row.
type Track = iface.Track

// StatsSnapshot is the singleton counter row.
type StatsSnapshot = iface.StatsSnapshot

// NewDB opens the sqlite database at path, creating and migrating it as
// needed.
func NewDB(ctx context.Context, path string) (Database, error) {
	return sqlite.NewStore(ctx, path)
}
