// Package uploader builds the upload functions the two pipelines execute.
// The clear function encodes on every attempt. The encrypted function
// prepares its sealed payload once per batch and caches it, so retries
// reupload the exact bytes of the first attempt under the same key uuid
// and data hash.
package uploader

import (
	"context"
	"math"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opencensus.io/trace"

	"github.com/derad-network/derad/config/params"
	"github.com/derad-network/derad/crypto/encrypt"
	"github.com/derad-network/derad/runtime/logging"
	"github.com/derad-network/derad/tracker/archive"
	"github.com/derad-network/derad/tracker/batcher"
	"github.com/derad-network/derad/tracker/db"
	"github.com/derad-network/derad/tracker/encoder"
	"github.com/derad-network/derad/tracker/pipeline"
	"github.com/derad-network/derad/tracker/stats"
)

var log = logrus.WithField("prefix", "uploader")

// recordTimeout bounds the bookkeeping writes that follow a successful
// upload.
const recordTimeout = 10 * time.Second

// Archiver is the slice of the archive client the upload functions need.
type Archiver interface {
	Upload(ctx context.Context, data []byte, tags []archive.Tag) (string, error)
}

// KeySharer hands minute keys to the key share service.
type KeySharer interface {
	Share(ctx context.Context, keyUUID string, rawKey []byte)
}

// Config wires the collaborators of the upload functions.
type Config struct {
	Database  db.Database
	Archive   Archiver
	Encryptor *encrypt.Encryptor
	KeyShare  KeySharer
	Pairs     *batcher.PairRegistry
	Register  *stats.Register
}

// Uploader owns the two upload functions and the per batch cache of
// prepared encrypted payloads.
type Uploader struct {
	ctx      context.Context
	cfg      *Config
	prepared *gocache.Cache
	now      func() time.Time
}

// New returns an uploader whose prepared payloads expire on the same
// schedule as the batch pair registry.
func New(ctx context.Context, cfg *Config) *Uploader {
	ttl := params.DeradConfig().BatchPairTTL
	return &Uploader{
		ctx:      ctx,
		cfg:      cfg,
		prepared: gocache.New(ttl, 2*ttl),
		now:      time.Now,
	}
}

// UploadClear encodes the batch and submits the clear copy. The archive
// record and the track rollups after a successful submit are best effort,
// their errors are logged and the upload still counts as succeeded.
func (u *Uploader) UploadClear(ctx context.Context, b *batcher.Batch, progress func(float64)) error {
	ctx, span := trace.StartSpan(ctx, "uploader.UploadClear")
	defer span.End()

	enc, err := encoder.Encode(b)
	if err != nil {
		return errors.Wrap(err, "could not encode batch")
	}
	progress(25)

	keyUUID, err := u.cfg.Encryptor.MinuteKeyUUID()
	if err != nil {
		return errors.Wrap(err, "could not derive key uuid")
	}
	txID, err := u.cfg.Archive.Upload(ctx, enc.Data, u.clearTags(b, enc.SizeKB, keyUUID))
	if err != nil {
		if errors.Is(err, archive.ErrTagsTooLarge) {
			return pipeline.Permanent(err)
		}
		return errors.Wrap(err, "could not upload batch")
	}
	progress(90)
	log.WithFields(logging.BatchFields(b)).WithFields(logrus.Fields{
		"tx":     txID,
		"sizeKb": enc.SizeKB,
	}).Info("Archived clear batch")

	u.recordClear(b, enc.SizeKB, txID)
	return nil
}

// UploadEncrypted submits the sealed copy of the batch. The minute key
// rides to the key share service before the submit, the client dedupes
// repeats across attempts.
func (u *Uploader) UploadEncrypted(ctx context.Context, b *batcher.Batch, progress func(float64)) error {
	ctx, span := trace.StartSpan(ctx, "uploader.UploadEncrypted")
	defer span.End()

	pkg, err := u.preparedPackage(ctx, b)
	if err != nil {
		return err
	}
	progress(50)

	u.cfg.KeyShare.Share(ctx, pkg.sealed.KeyUUID, pkg.sealed.RawKey)

	txID, err := u.cfg.Archive.Upload(ctx, pkg.sealed.Encrypted, pkg.tags)
	if err != nil {
		if errors.Is(err, archive.ErrTagsTooLarge) {
			u.prepared.Delete(b.ID)
			return pipeline.Permanent(err)
		}
		return errors.Wrap(err, "could not upload encrypted batch")
	}
	progress(90)
	u.prepared.Delete(b.ID)
	u.cfg.Register.RecordKeySaved()
	log.WithFields(logging.BatchFields(b)).WithFields(logrus.Fields{
		"tx":      txID,
		"keyUuid": pkg.sealed.KeyUUID,
	}).Info("Archived encrypted batch")

	u.recordEncrypted(b, pkg, txID)
	return nil
}

// prepared is the part of an encrypted upload that must not change across
// retries. A retry that re-encrypted would pick a fresh IV, and across a
// minute boundary a fresh key, desyncing the data hash from the tags.
type prepared struct {
	sealed *encrypt.Sealed
	tags   []archive.Tag
	sizeKB float64
}

func (u *Uploader) preparedPackage(ctx context.Context, b *batcher.Batch) (*prepared, error) {
	if v, ok := u.prepared.Get(b.ID); ok {
		if p, ok := v.(*prepared); ok {
			return p, nil
		}
	}
	_, span := trace.StartSpan(ctx, "uploader.prepareEncrypted")
	defer span.End()

	enc, err := encoder.Encode(b)
	if err != nil {
		return nil, errors.Wrap(err, "could not encode batch")
	}
	sealed, err := u.cfg.Encryptor.EncryptBuffer(enc.Data, u.cfg.Pairs.Resolve(b.ID))
	if err != nil {
		return nil, errors.Wrap(err, "could not encrypt batch")
	}
	p := &prepared{
		sealed: sealed,
		sizeKB: kb(len(sealed.Encrypted)),
	}
	p.tags = u.encryptedTags(b, p)
	u.prepared.Set(b.ID, p, gocache.DefaultExpiration)
	return p, nil
}

// recordClear runs on the service context so a cancelled attempt context
// cannot abort bookkeeping for an upload that already landed.
func (u *Uploader) recordClear(b *batcher.Batch, sizeKB float64, txID string) {
	ctx, cancel := context.WithTimeout(u.ctx, recordTimeout)
	defer cancel()
	rec := &db.ArchiveRecord{
		BatchID:       b.ID,
		PackageUUID:   b.PackageUUID,
		TxID:          txID,
		AircraftCount: b.AircraftCount(),
		SizeKB:        sizeKB,
		ICAOAddresses: b.Hexes(),
		CreatedAtMs:   u.now().UnixMilli(),
	}
	if err := u.cfg.Database.SaveArchiveRecord(ctx, rec); err != nil {
		log.WithError(err).WithField("batchId", b.ID).Error("Could not save archive record")
	}
	if err := u.cfg.Database.UpsertTracks(ctx, mutations(b, txID), u.now()); err != nil {
		log.WithError(err).WithField("batchId", b.ID).Error("Could not upsert aircraft tracks")
	}
}

func (u *Uploader) recordEncrypted(b *batcher.Batch, pkg *prepared, txID string) {
	ctx, cancel := context.WithTimeout(u.ctx, recordTimeout)
	defer cancel()
	rec := &db.EncryptedArchiveRecord{
		BatchID:           b.ID,
		PackageUUID:       pkg.sealed.PackageUUID,
		EncryptionKeyUUID: pkg.sealed.KeyUUID,
		DataHash:          pkg.sealed.DataHash,
		TxID:              txID,
		AircraftCount:     b.AircraftCount(),
		SizeKB:            pkg.sizeKB,
		ICAOAddresses:     b.Hexes(),
		CreatedAtMs:       u.now().UnixMilli(),
	}
	if err := u.cfg.Database.SaveEncryptedArchiveRecord(ctx, rec); err != nil {
		log.WithError(err).WithField("batchId", b.ID).Error("Could not save encrypted archive record")
	}
	if err := u.cfg.Database.UpsertTracks(ctx, mutations(b, txID), u.now()); err != nil {
		log.WithError(err).WithField("batchId", b.ID).Error("Could not upsert aircraft tracks")
	}
}

func mutations(b *batcher.Batch, txID string) []*db.TrackMutation {
	muts := make([]*db.TrackMutation, 0, len(b.Events))
	for _, ev := range b.Events {
		m := &db.TrackMutation{Hex: ev.Hex, TxID: txID}
		if o := ev.Observation; o != nil {
			if cs := callsign(o.Flight); cs != "" {
				m.Callsign = &cs
			}
			m.Lat = o.Lat
			m.Lon = o.Lon
		}
		muts = append(muts, m)
	}
	return muts
}

// callsign trims the eight character receiver padding.
func callsign(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}

// kb mirrors the encoder's two decimal rounding.
func kb(n int) float64 {
	return math.Round(float64(n)/1024*100) / 100
}
