package state

import (
	"encoding/json"
	"testing"

	"github.com/derad-network/derad/testing/assert"
	"github.com/derad-network/derad/testing/require"
	"github.com/derad-network/derad/tracker/feed"
)

func mustObs(t *testing.T, body string) *feed.Observation {
	t.Helper()
	obs := &feed.Observation{}
	require.NoError(t, json.Unmarshal([]byte(body), obs))
	return obs
}

func TestCanonical_RendersMissingFieldsEmpty(t *testing.T) {
	obs := mustObs(t, `{"hex":"48436b"}`)
	assert.Equal(t, "|||||||||", canonical(obs))
}

func TestCanonical_FullProjection(t *testing.T) {
	obs := mustObs(t, `{"hex":"48436b","flight":"KLM855","lat":40.9258,"lon":47.0615,"alt_baro":37000,"alt_geom":37125,"gs":575.3,"track":77.65,"baro_rate":64,"squawk":"6025","emergency":"none"}`)
	assert.Equal(t, "40.9258|47.0615|37000|37125|575.3|77.65|64|6025|none|KLM855", canonical(obs))
}

func TestCanonical_GroundAltitude(t *testing.T) {
	obs := mustObs(t, `{"hex":"48436b","alt_baro":"ground","gs":3.1}`)
	assert.Equal(t, "||ground||3.1|||||", canonical(obs))
}

func TestFingerprint_Deterministic(t *testing.T) {
	a := mustObs(t, `{"hex":"48436b","lat":40.9258,"lon":47.0615,"alt_baro":37000}`)
	b := mustObs(t, `{"hex":"48436b","lat":40.9258,"lon":47.0615,"alt_baro":37000}`)
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprint_ChangesWithProjectedField(t *testing.T) {
	a := mustObs(t, `{"hex":"48436b","lat":40.9258,"alt_baro":37000}`)
	b := mustObs(t, `{"hex":"48436b","lat":40.9258,"alt_baro":37200}`)
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprint_IgnoresReceiverNoise(t *testing.T) {
	a := mustObs(t, `{"hex":"48436b","lat":40.9258,"alt_baro":37000,"seen":0.1,"rssi":-21.5,"messages":100}`)
	b := mustObs(t, `{"hex":"48436b","lat":40.9258,"alt_baro":37000,"seen":5.8,"rssi":-30.1,"messages":160}`)
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
}
