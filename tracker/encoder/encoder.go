// Package encoder turns batches of aircraft change events into compressed
// parquet buffers ready for archival. Rows are materialised up front, spilled
// through tmpfs when the host has one, and handed back as an in-memory buffer
// so the upload path never touches the spool file again.
package encoder

import (
	"math"
	"os"
	"strings"

	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"

	"github.com/derad-network/derad/tracker/batcher"
	"github.com/derad-network/derad/tracker/feed"
	"github.com/derad-network/derad/tracker/state"
)

// Encoded is the result of encoding one batch.
type Encoded struct {
	Data   []byte
	Rows   int
	SizeKB float64
}

// Encode renders the batch into an LZ4 compressed parquet buffer. The spool
// file is removed before returning.
func Encode(b *batcher.Batch) (*Encoded, error) {
	rows := make([]archiveRow, 0, len(b.Events))
	for _, ev := range b.Events {
		rows = append(rows, newRow(ev))
	}

	f, err := os.CreateTemp(spoolDir(), "derad-batch-*.parquet")
	if err != nil {
		return nil, errors.Wrap(err, "could not create spool file")
	}
	name := f.Name()
	defer func() {
		_ = os.Remove(name)
	}()

	w := parquet.NewGenericWriter[archiveRow](f, parquet.Compression(&parquet.Lz4Raw))
	if _, err := w.Write(rows); err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "could not write rows")
	}
	if err := w.Close(); err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "could not finalize parquet file")
	}
	if err := f.Close(); err != nil {
		return nil, errors.Wrap(err, "could not close spool file")
	}

	data, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "could not read spool file")
	}

	batchSizeBytes.Observe(float64(len(data)))
	rowsWritten.Add(float64(len(rows)))

	return &Encoded{
		Data:   data,
		Rows:   len(rows),
		SizeKB: math.Round(float64(len(data))/1024*100) / 100,
	}, nil
}

// spoolDir prefers tmpfs so encode churn does not wear the disk backing the
// database.
func spoolDir() string {
	if fi, err := os.Stat("/dev/shm"); err == nil && fi.IsDir() {
		return "/dev/shm"
	}
	return os.TempDir()
}

func newRow(ev state.ChangeEvent) archiveRow {
	o := ev.Observation
	if o == nil {
		o = &feed.Observation{Hex: ev.Hex}
	}
	return archiveRow{
		SnapshotTimestamp:     ev.SnapshotSeconds * 1000,
		IcaoAddress:           ev.Hex,
		SnapshotTotalMessages: int32(ev.TotalMessages),

		Callsign:        str(o.Flight),
		Registration:    str(o.Registration),
		AircraftType:    str(o.TypeCode),
		TypeDescription: str(o.Description),
		EmitterCategory: str(o.Category),

		Latitude:       o.Lat,
		Longitude:      o.Lon,
		PositionSource: str(o.PositionSource),

		AltitudeBaroFt:      i32(o.AltBaro.Value()),
		AltitudeGeomFt:      i32(o.AltGeom),
		VerticalRateBaroFpm: i32(o.BaroRate),
		VerticalRateGeomFpm: i32(o.GeomRate),

		GroundSpeedKts:       o.GroundSpeed,
		IndicatedAirspeedKts: i32(o.IndicatedAirspeed),
		TrueAirspeedKts:      i32(o.TrueAirspeed),
		MachNumber:           o.Mach,

		TrackDegrees:           o.Track,
		TrackRateDegSec:        o.TrackRate,
		MagneticHeadingDegrees: o.MagHeading,
		TrueHeadingDegrees:     o.TrueHeading,
		RollDegrees:            o.Roll,

		WindDirectionDegrees: i32(o.WindDirection),
		WindSpeedKts:         i32(o.WindSpeed),
		OutsideAirTempC:      i32(o.OutsideAirTemp),
		TotalAirTempC:        i32(o.TotalAirTemp),

		NavQnhMb:          o.NavQNH,
		NavHeadingDegrees: o.NavHeading,
		NavAltitudeMcpFt:  i32(o.NavAltitudeMCP),
		NavAltitudeFmsFt:  i32(o.NavAltitudeFMS),

		SquawkCode:      str(o.Squawk),
		EmergencyStatus: str(o.Emergency),
		SpiFlag:         flagBool(o.Spi),
		AlertFlag:       flagBool(o.Alert),

		AdsbVersion:                 i32(o.Version),
		NavigationIntegrityCategory: i32(o.Nic),
		NavigationAccuracyPosition:  i32(o.NacP),
		NavigationAccuracyVelocity:  i32(o.NacV),
		SourceIntegrityLevel:        i32(o.Sil),
		SourceIntegrityLevelType:    str(o.SilType),
		GeometricVerticalAccuracy:   i32(o.Gva),
		SystemDesignAssurance:       i32(o.Sda),
		NicBaro:                     i32(o.NicBaro),
		RadiusOfContainment:         i32(o.RadiusOfCont),

		MessagesReceived:        i64(o.Messages),
		LastSeenSeconds:         o.Seen,
		LastPositionSeenSeconds: o.SeenPos,
		RssiDbm:                 o.Rssi,

		DistanceFromReceiverNm:     o.Distance,
		BearingFromReceiverDegrees: o.Bearing,

		DatabaseFlags: i32(o.DBFlags),
	}
}

// str trims feed padding and collapses blank strings to absent columns.
// Receivers pad callsigns to eight characters.
func str(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	return &s
}

func i32(v *float64) *int32 {
	if v == nil {
		return nil
	}
	n := int32(math.Round(*v))
	return &n
}

func i64(v *float64) *int64 {
	if v == nil {
		return nil
	}
	n := int64(math.Round(*v))
	return &n
}

func flagBool(v *feed.Flag) *bool {
	if v == nil {
		return nil
	}
	b := v.Bool()
	return &b
}
