package stats

import (
	"context"

	"github.com/pkg/errors"

	"github.com/derad-network/derad/config/params"
)

// PipelineView is the externally visible counter set of one pipeline.
type PipelineView struct {
	Attempted int64 `json:"attempted"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Retries   int64 `json:"retries"`
}

// View is the assembled statistics payload pushed to live subscribers.
// Views are immutable once built and may be shared across goroutines.
type View struct {
	Timestamp        int64        `json:"timestamp"`
	UptimeSeconds    int64        `json:"uptimeSeconds"`
	SystemStartTime  int64        `json:"systemStartTime"`
	TotalPolls       int64        `json:"totalPolls"`
	TotalNewAircraft int64        `json:"totalNewAircraft"`
	TotalUpdates     int64        `json:"totalUpdates"`
	TotalReappeared  int64        `json:"totalReappeared"`
	TotalTracks      int64        `json:"totalTracks"`
	Clear            PipelineView `json:"clear"`
	Encrypted        PipelineView `json:"encrypted"`
	NildbKeysSaved   int64        `json:"nildbKeysSaved"`
	CurrentTpm       int64        `json:"currentTpm"`
	PeakTpm          int64        `json:"peakTpm"`
	TpmHistory       []TpmSample  `json:"tpmHistory"`
}

// CurrentView assembles the statistics payload. Assembly is amortised, a
// view younger than the configured ttl is served again so bursts of
// subscribers do not multiply snapshot and count queries.
func (r *Register) CurrentView(ctx context.Context) (*View, error) {
	ttl := params.DeradConfig().StatsViewCacheTTL
	r.mu.Lock()
	if r.view != nil && r.now().Sub(r.viewBuilt) < ttl {
		v := r.view
		r.mu.Unlock()
		return v, nil
	}
	r.mu.Unlock()

	tracks, err := r.database.TrackCount(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "could not count tracks")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	nowMs := r.now().UnixMilli()
	history := make([]TpmSample, len(r.history))
	copy(history, r.history)
	v := &View{
		Timestamp:        nowMs,
		UptimeSeconds:    (nowMs - r.counters.SystemStartTimeMs) / 1000,
		SystemStartTime:  r.counters.SystemStartTimeMs,
		TotalPolls:       r.counters.TotalPolls,
		TotalNewAircraft: r.counters.TotalNewAircraft,
		TotalUpdates:     r.counters.TotalUpdates,
		TotalReappeared:  r.counters.TotalReappeared,
		TotalTracks:      tracks,
		Clear: PipelineView{
			Attempted: r.counters.ClearAttempted,
			Succeeded: r.counters.ClearSucceeded,
			Failed:    r.counters.ClearFailed,
			Retries:   r.counters.ClearRetries,
		},
		Encrypted: PipelineView{
			Attempted: r.counters.EncryptedAttempted,
			Succeeded: r.counters.EncryptedSucceeded,
			Failed:    r.counters.EncryptedFailed,
			Retries:   r.counters.EncryptedRetries,
		},
		NildbKeysSaved: r.counters.NildbKeysSaved,
		CurrentTpm:     r.currentTpmLocked(),
		PeakTpm:        r.counters.PeakTpm,
		TpmHistory:     history,
	}
	r.view = v
	r.viewBuilt = r.now()
	return v, nil
}
