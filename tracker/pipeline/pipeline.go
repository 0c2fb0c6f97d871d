// Package pipeline implements the bounded concurrency upload engine shared
// by the clear and encrypted archive paths. Batches queue in FIFO order,
// claim one of a fixed set of slots, and retry with capped exponential
// backoff. The pipeline is the error boundary of the node, nothing above it
// ever sees an upload failure.
package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/derad-network/derad/config/params"
	"github.com/derad-network/derad/tracker/batcher"
)

var log = logrus.WithField("prefix", "pipeline")

// Status of a slot's current work.
type Status string

const (
	// StatusUploading marks a slot whose attempt is in flight.
	StatusUploading Status = "uploading"
	// StatusRetrying marks a slot waiting out a backoff delay.
	StatusRetrying Status = "retrying"
	// StatusCompleted marks a slot whose last batch uploaded.
	StatusCompleted Status = "completed"
	// StatusFailed marks a slot whose last batch was dropped.
	StatusFailed Status = "failed"
)

// SlotProgress is a point in time view of one upload slot.
type SlotProgress struct {
	Slot      int       `json:"slot"`
	BatchID   string    `json:"batchId"`
	StartTime time.Time `json:"startTime"`
	Progress  float64   `json:"progress"`
	Status    Status    `json:"status"`
	Attempt   int       `json:"attempt"`
}

// UploadFn performs one upload attempt for a batch. Progress callbacks feed
// the slot progress view.
type UploadFn func(ctx context.Context, b *batcher.Batch, progress func(float64)) error

// Recorder observes the lifecycle of upload attempts so the stats register
// can keep its per pipeline counters convergent.
type Recorder interface {
	UploadAttempted()
	UploadSucceeded()
	UploadRetried()
	UploadFailed()
}

// Pipeline owns one upload queue and its slots.
type Pipeline struct {
	ctx      context.Context
	name     string
	upload   UploadFn
	recorder Recorder

	mu         sync.Mutex
	queue      []*batcher.Batch
	freeSlots  []int
	progress   map[int]*SlotProgress
	processing bool
	active     int
	stopped    bool

	stop chan struct{}
}

// New builds a pipeline with the configured slot count. Dispatch runs on
// caller goroutines, there is no background loop to start.
func New(ctx context.Context, name string, upload UploadFn, rec Recorder) *Pipeline {
	cfg := params.DeradConfig()
	slots := make([]int, 0, cfg.MaxConcurrentUploads)
	for i := 1; i <= cfg.MaxConcurrentUploads; i++ {
		slots = append(slots, i)
	}
	return &Pipeline{
		ctx:       ctx,
		name:      name,
		upload:    upload,
		recorder:  rec,
		freeSlots: slots,
		progress:  make(map[int]*SlotProgress),
		stop:      make(chan struct{}),
	}
}

// Name identifies the pipeline in logs and stats views.
func (p *Pipeline) Name() string {
	return p.name
}

// Enqueue appends a batch to the queue and kicks dispatch. Batches arriving
// after Stop are dropped.
func (p *Pipeline) Enqueue(b *batcher.Batch) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		log.WithFields(logrus.Fields{
			"pipeline": p.name,
			"batchId":  b.ID,
		}).Debug("Pipeline stopped, dropping batch")
		return
	}
	p.queue = append(p.queue, b)
	queueDepth.WithLabelValues(p.name).Set(float64(len(p.queue)))
	p.mu.Unlock()
	p.dispatch()
}

// dispatch claims slots for queued batches in FIFO order. The processing
// flag folds nested invocations from completion callbacks into the running
// loop.
func (p *Pipeline) dispatch() {
	p.mu.Lock()
	if p.processing || p.stopped {
		p.mu.Unlock()
		return
	}
	p.processing = true
	for len(p.queue) > 0 && len(p.freeSlots) > 0 {
		b := p.queue[0]
		p.queue = p.queue[1:]
		slot := p.freeSlots[0]
		p.freeSlots = p.freeSlots[1:]
		p.active++
		p.progress[slot] = &SlotProgress{
			Slot:      slot,
			BatchID:   b.ID,
			StartTime: time.Now(),
			Status:    StatusUploading,
		}
		queueDepth.WithLabelValues(p.name).Set(float64(len(p.queue)))
		activeUploads.WithLabelValues(p.name).Set(float64(p.active))
		go p.run(slot, b)
	}
	p.processing = false
	p.mu.Unlock()
}

func (p *Pipeline) run(slot int, b *batcher.Batch) {
	start := time.Now()
	status := p.executeWithRetry(slot, b)
	uploadSeconds.WithLabelValues(p.name).Observe(time.Since(start).Seconds())

	p.mu.Lock()
	if sp, ok := p.progress[slot]; ok {
		sp.Status = status
		sp.Progress = 100
	}
	p.freeSlots = append(p.freeSlots, slot)
	p.active--
	activeUploads.WithLabelValues(p.name).Set(float64(p.active))
	p.mu.Unlock()

	p.dispatch()
}

// executeWithRetry drives one batch to completion or exhaustion. The
// attempted counter moves exactly once per batch, on the first attempt, so
// that attempted always equals succeeded plus failed at quiescence.
func (p *Pipeline) executeWithRetry(slot int, b *batcher.Batch) Status {
	cfg := params.DeradConfig()
	for attempt := 1; attempt <= cfg.MaxUploadRetries; attempt++ {
		if attempt == 1 {
			p.recorder.UploadAttempted()
		}
		p.setSlot(slot, func(sp *SlotProgress) {
			sp.Status = StatusUploading
			sp.Attempt = attempt
		})

		err := p.upload(p.ctx, b, func(pct float64) {
			p.setSlot(slot, func(sp *SlotProgress) { sp.Progress = pct })
		})
		if err == nil {
			p.recorder.UploadSucceeded()
			return StatusCompleted
		}
		if IsPermanent(err) {
			log.WithError(err).WithFields(logrus.Fields{
				"pipeline": p.name,
				"batchId":  b.ID,
				"attempt":  attempt,
			}).Error("Upload failed with non-retryable error")
			p.recorder.UploadFailed()
			return StatusFailed
		}
		if attempt == cfg.MaxUploadRetries {
			log.WithError(err).WithFields(logrus.Fields{
				"pipeline": p.name,
				"batchId":  b.ID,
				"attempts": attempt,
			}).Error("Upload failed after exhausting retries")
			break
		}

		p.recorder.UploadRetried()
		delay := Backoff(attempt)
		log.WithError(err).WithFields(logrus.Fields{
			"pipeline": p.name,
			"batchId":  b.ID,
			"attempt":  attempt,
			"delay":    delay,
		}).Warn("Upload attempt failed, backing off")
		p.setSlot(slot, func(sp *SlotProgress) { sp.Status = StatusRetrying })
		if err := p.wait(delay); err != nil {
			// The node is shutting down and the retry is abandoned. Count
			// the batch as failed so the counters stay convergent.
			p.recorder.UploadFailed()
			return StatusFailed
		}
	}
	p.recorder.UploadFailed()
	return StatusFailed
}

// Stop halts dispatch and drops everything still queued. In-flight attempts
// run on, bounded by the parent context, while pending backoff waits are
// abandoned.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	dropped := len(p.queue)
	p.queue = nil
	queueDepth.WithLabelValues(p.name).Set(0)
	p.mu.Unlock()

	close(p.stop)
	if dropped > 0 {
		log.WithFields(logrus.Fields{
			"pipeline": p.name,
			"dropped":  dropped,
		}).Info("Dropped queued batches on stop")
	}
}

// QueueDepth returns the number of batches waiting for a slot.
func (p *Pipeline) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Active returns the number of claimed slots.
func (p *Pipeline) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Progress returns a snapshot of every slot that has carried work, ordered
// by slot number.
func (p *Pipeline) Progress() []SlotProgress {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SlotProgress, 0, len(p.progress))
	for _, sp := range p.progress {
		out = append(out, *sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}

func (p *Pipeline) setSlot(slot int, fn func(*SlotProgress)) {
	p.mu.Lock()
	if sp, ok := p.progress[slot]; ok {
		fn(sp)
	}
	p.mu.Unlock()
}

// wait sleeps for the backoff delay, waking early when the pipeline stops
// or the parent context ends.
func (p *Pipeline) wait(d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-p.ctx.Done():
		return p.ctx.Err()
	case <-p.stop:
		return errStopped
	case <-t.C:
		return nil
	}
}

// Backoff returns the delay after the given failed attempt, doubling from
// the base delay up to the configured cap.
func Backoff(attempt int) time.Duration {
	cfg := params.DeradConfig()
	if attempt < 1 {
		attempt = 1
	}
	d := cfg.RetryBaseDelay << uint(attempt-1)
	if d > cfg.RetryMaxDelay {
		return cfg.RetryMaxDelay
	}
	return d
}
