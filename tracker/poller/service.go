// Package poller runs the ingest loop of the node: poll the receiver,
// classify the snapshot against the aircraft state cache, batch the
// changes and hand each batch to both upload pipelines.
package poller

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/derad-network/derad/config/params"
	"github.com/derad-network/derad/tracker/batcher"
	"github.com/derad-network/derad/tracker/db"
	"github.com/derad-network/derad/tracker/feed"
	"github.com/derad-network/derad/tracker/pipeline"
	"github.com/derad-network/derad/tracker/state"
	"github.com/derad-network/derad/tracker/stats"
)

var log = logrus.WithField("prefix", "poller")

// markTimeout bounds the out of range bulk update.
const markTimeout = 10 * time.Second

// Config wires the collaborators of the poll loop.
type Config struct {
	Feed        *feed.Client
	Cache       *state.Cache
	Batcher     *batcher.Batcher
	Clear       *pipeline.Pipeline
	Encrypted   *pipeline.Pipeline
	Database    db.Database
	Register    *stats.Register
	MaxRoutines int
}

// Service owns the poll loop. All state cache mutations happen on its
// goroutine.
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *Config
	now    func() time.Time
}

// New builds the poller service.
func New(ctx context.Context, cfg *Config) *Service {
	ctx, cancel := context.WithCancel(ctx)
	return &Service{
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Start launches the poll loop. The pause runs between cycles, a slow cycle
// delays the next poll instead of stacking a second one behind it.
func (s *Service) Start() {
	interval := params.DeradConfig().PollInterval
	log.WithFields(logrus.Fields{
		"feed":     s.cfg.Feed.Source(),
		"interval": interval,
	}).Info("Starting aircraft poller")
	go func() {
		t := time.NewTimer(interval)
		defer t.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-t.C:
			}
			s.tick()
			t.Reset(interval)
		}
	}()
}

// tick runs one poll cycle.
func (s *Service) tick() {
	start := s.now()
	s.cfg.Register.RecordPoll()
	pollCycles.Inc()

	fr, err := s.cfg.Feed.Fetch(s.ctx)
	if err != nil {
		log.WithError(err).Warn("Could not fetch feed snapshot")
		return
	}

	events, outOfRange := s.cfg.Cache.Classify(start, fr)
	trackedAircraft.Set(float64(s.cfg.Cache.ActiveCount()))

	var newCount, updated, reappeared int
	for _, ev := range events {
		switch ev.Kind {
		case state.New:
			newCount++
		case state.Updated:
			updated++
		case state.Reappeared:
			reappeared++
		}
	}
	s.cfg.Register.RecordChanges(newCount, updated, reappeared)

	if len(outOfRange) > 0 {
		go s.markOutOfRange(outOfRange)
	}

	if len(events) > 0 {
		s.cfg.Batcher.Add(events...)
	}
	if batches := s.cfg.Batcher.Flush(); len(batches) > 0 {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for _, b := range batches {
				s.cfg.Clear.Enqueue(b)
			}
		}()
		go func() {
			defer wg.Done()
			for _, b := range batches {
				s.cfg.Encrypted.Enqueue(b)
			}
		}()
		wg.Wait()
		log.WithFields(logrus.Fields{
			"batches":  len(batches),
			"aircraft": len(events),
		}).Debug("Enqueued batches on both pipelines")
	}

	elapsed := s.now().Sub(start)
	pollCycleSeconds.Observe(elapsed.Seconds())
	if elapsed > params.DeradConfig().PollInterval {
		cycleOverruns.Inc()
		log.WithField("elapsed", elapsed).Warn("Poll cycle exceeded the interval")
	}
}

// markOutOfRange flips vanished aircraft in bulk. Best effort, the cache
// already evicted them.
func (s *Service) markOutOfRange(hexes []string) {
	ctx, cancel := context.WithTimeout(s.ctx, markTimeout)
	defer cancel()
	if err := s.cfg.Database.MarkTracksOutOfRange(ctx, hexes, s.now()); err != nil {
		log.WithError(err).WithField("count", len(hexes)).Error("Could not flag out of range tracks")
		return
	}
	log.WithField("count", len(hexes)).Debug("Flagged out of range tracks")
}

// Stop halts the loop, closes the keep-alive socket to the receiver and
// stops both pipelines. Queued batches are dropped, in-flight uploads run
// to completion.
func (s *Service) Stop() error {
	s.cancel()
	s.cfg.Feed.CloseIdleConnections()
	s.cfg.Clear.Stop()
	s.cfg.Encrypted.Stop()
	return nil
}

// Status reports unhealthy when the process exceeds its goroutine ceiling,
// the symptom of a stuck pipeline piling up retries. A failed fetch alone is
// not a fault, the next poll retries.
func (s *Service) Status() error {
	if s.cfg.MaxRoutines > 0 && runtime.NumGoroutine() > s.cfg.MaxRoutines {
		return errors.Errorf("too many goroutines %d", runtime.NumGoroutine())
	}
	return nil
}
