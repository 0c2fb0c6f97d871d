package feed

import (
	"encoding/json"
	"testing"

	"github.com/derad-network/derad/testing/assert"
	"github.com/derad-network/derad/testing/require"
)

func TestAltitude_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name       string
		in         string
		wantGround bool
		wantValue  *float64
		wantString string
	}{
		{name: "feet", in: `{"alt_baro": 37000}`, wantValue: f64(37000), wantString: "37000"},
		{name: "fractional feet", in: `{"alt_baro": 37000.5}`, wantValue: f64(37000.5), wantString: "37000.5"},
		{name: "ground", in: `{"alt_baro": "ground"}`, wantGround: true, wantString: "ground"},
		{name: "unknown string", in: `{"alt_baro": "n/a"}`, wantString: "n/a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var obs Observation
			require.NoError(t, json.Unmarshal([]byte(tt.in), &obs))
			require.NotNil(t, obs.AltBaro)
			assert.Equal(t, tt.wantGround, obs.AltBaro.Ground)
			assert.Equal(t, tt.wantString, obs.AltBaro.String())
			if tt.wantValue == nil {
				assert.Equal(t, true, obs.AltBaro.Value() == nil)
			} else {
				require.NotNil(t, obs.AltBaro.Value())
				assert.Equal(t, *tt.wantValue, *obs.AltBaro.Value())
			}
		})
	}
}

func TestFlag_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{in: `{"spi": true}`, want: true},
		{in: `{"spi": false}`, want: false},
		{in: `{"spi": 1}`, want: true},
		{in: `{"spi": 0}`, want: false},
		{in: `{"spi": 2}`, want: false},
		{in: `{}`, want: false},
	}
	for _, tt := range tests {
		var obs Observation
		require.NoError(t, json.Unmarshal([]byte(tt.in), &obs), "input: %s", tt.in)
		assert.Equal(t, tt.want, obs.Spi.Bool(), "input: %s", tt.in)
	}
}

func TestObservation_IgnoresUnknownKeys(t *testing.T) {
	var obs Observation
	require.NoError(t, json.Unmarshal([]byte(`{"hex":"abc123","mlat":[],"tisb":[],"some_future_field":42}`), &obs))
	assert.Equal(t, "abc123", obs.Hex)
}

func f64(v float64) *float64 {
	return &v
}
