package state

import (
	"strconv"
	"strings"

	"github.com/derad-network/derad/crypto/hash"
	"github.com/derad-network/derad/tracker/feed"
)

// Fingerprint hashes the projection of an observation whose change justifies
// archiving it: position, altitude, ground speed, track, vertical rate,
// squawk, emergency state and callsign. Equal projections always produce
// equal hashes. Receiver noise fields such as message counters, signal
// strength and age seconds stay outside the projection on purpose.
func Fingerprint(obs *feed.Observation) uint64 {
	return hash.FastSum64([]byte(canonical(obs)))
}

// canonical renders the projected fields joined by "|", absent fields as
// empty substrings and numbers in their shortest decimal form.
func canonical(obs *feed.Observation) string {
	parts := []string{
		floatPart(obs.Lat),
		floatPart(obs.Lon),
		altPart(obs.AltBaro),
		floatPart(obs.AltGeom),
		floatPart(obs.GroundSpeed),
		floatPart(obs.Track),
		floatPart(obs.BaroRate),
		stringPart(obs.Squawk),
		stringPart(obs.Emergency),
		stringPart(obs.Flight),
	}
	return strings.Join(parts, "|")
}

func floatPart(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func stringPart(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func altPart(a *feed.Altitude) string {
	if a == nil {
		return ""
	}
	return a.String()
}
