// Package logging holds field helpers shared by the node's log statements.
package logging

import (
	"github.com/sirupsen/logrus"

	"github.com/derad-network/derad/tracker/batcher"
)

// BatchFields extracts the standard set of fields from a batch into a
// logrus.Fields struct which can be passed to log.WithFields.
func BatchFields(b *batcher.Batch) logrus.Fields {
	return logrus.Fields{
		"batchId":  b.ID,
		"aircraft": b.AircraftCount(),
	}
}
