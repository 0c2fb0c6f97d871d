package backup

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/derad-network/derad/config/params"
	"github.com/derad-network/derad/tracker/archive"
)

// Restore fetches the newest snapshot owned by this node's wallet and
// reconciles it against the local counter row. A missing snapshot is not
// an error, a node simply starts from its local state.
func (s *Service) Restore(ctx context.Context) error {
	cfg := params.DeradConfig()
	owner := s.cfg.Archive.Address()
	txID, err := s.cfg.Archive.LatestTx(ctx, owner, []archive.TagFilter{
		{Name: "App-Name", Values: []string{cfg.AppNameTagValue}},
		{Name: "Type", Values: []string{cfg.SnapshotTypeTag}},
	})
	if errors.Is(err, archive.ErrNotFound) {
		log.Info("No stats snapshot on the archive, starting fresh")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "could not query for snapshots")
	}
	data, err := s.cfg.Archive.Download(ctx, txID)
	if err != nil {
		return errors.Wrapf(err, "could not download snapshot %s", txID)
	}
	payload, err := s.cfg.Encryptor.OpenWithID(data, cfg.SnapshotPackageUUID)
	if err != nil {
		return errors.Wrapf(err, "could not open snapshot %s", txID)
	}
	doc := &snapshotDocument{}
	if err := json.Unmarshal(payload, doc); err != nil {
		return errors.Wrapf(err, "could not parse snapshot %s", txID)
	}
	if doc.Timestamp <= 0 {
		return errors.Errorf("snapshot %s carries no timestamp", txID)
	}
	applied, err := s.cfg.Register.Reconcile(ctx, &doc.Stats, doc.Timestamp)
	if err != nil {
		return errors.Wrap(err, "could not reconcile snapshot")
	}
	if applied {
		restoresApplied.Inc()
	}
	return nil
}
