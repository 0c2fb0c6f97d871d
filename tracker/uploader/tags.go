package uploader

import (
	"strconv"

	"github.com/derad-network/derad/config/params"
	"github.com/derad-network/derad/tracker/archive"
	"github.com/derad-network/derad/tracker/batcher"
)

// timestampFormat is the minute resolution wall clock layout of the
// Timestamp tag.
const timestampFormat = "200601021504"

func (u *Uploader) clearTags(b *batcher.Batch, sizeKB float64, keyUUID string) []archive.Tag {
	tags := u.commonTags(b, "application/parquet", b.PackageUUID, sizeKB, keyUUID)
	tags = append(tags, archive.Tag{Name: "Encrypted", Value: "false"})
	return append(tags, aircraftTags(b)...)
}

func (u *Uploader) encryptedTags(b *batcher.Batch, pkg *prepared) []archive.Tag {
	tags := u.commonTags(b, "application/octet-stream", pkg.sealed.PackageUUID, pkg.sizeKB, pkg.sealed.KeyUUID)
	tags = append(tags,
		archive.Tag{Name: "Encrypted", Value: "true"},
		archive.Tag{Name: "Encryption-Algorithm", Value: "AES-256-GCM"},
		archive.Tag{Name: "Data-Hash", Value: pkg.sealed.DataHash},
	)
	return append(tags, aircraftTags(b)...)
}

func (u *Uploader) commonTags(b *batcher.Batch, contentType, packageUUID string, sizeKB float64, keyUUID string) []archive.Tag {
	return []archive.Tag{
		{Name: "Content-Type", Value: contentType},
		{Name: "App-Name", Value: params.DeradConfig().AppNameTagValue},
		{Name: "Timestamp", Value: u.now().UTC().Format(timestampFormat)},
		{Name: "Format", Value: "Parquet"},
		{Name: "Schema-Version", Value: "2.0"},
		{Name: "Schema-Type", Value: "batch-aircraft"},
		{Name: "Aircraft-Count", Value: strconv.Itoa(b.AircraftCount())},
		{Name: "File-Size-KB", Value: strconv.FormatFloat(sizeKB, 'f', -1, 64)},
		{Name: "Data-Format", Value: "aviation-realtime-batch"},
		{Name: "Batch-Timestamp", Value: strconv.FormatInt(b.SnapshotMillis()/1000, 10)},
		{Name: "Package-UUID", Value: packageUUID},
		{Name: "Encryption-Key-UUID", Value: keyUUID},
	}
}

// aircraftTags makes each transaction discoverable by ICAO address and,
// where the feed carried one, by callsign.
func aircraftTags(b *batcher.Batch) []archive.Tag {
	tags := make([]archive.Tag, 0, 2*len(b.Events))
	for _, ev := range b.Events {
		tags = append(tags, archive.Tag{Name: "ICAO", Value: ev.Hex})
	}
	for _, ev := range b.Events {
		if ev.Observation == nil {
			continue
		}
		if cs := callsign(ev.Observation.Flight); cs != "" {
			tags = append(tags, archive.Tag{Name: "Callsign", Value: cs})
		}
	}
	return tags
}
