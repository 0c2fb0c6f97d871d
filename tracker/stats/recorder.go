package stats

// Recorder feeds one upload pipeline's counters into the register. The
// clear and encrypted pipelines get separate instances writing to separate
// columns.
type Recorder struct {
	reg       *Register
	encrypted bool
}

// ClearRecorder returns the counter sink for the clear pipeline.
func (r *Register) ClearRecorder() *Recorder {
	return &Recorder{reg: r}
}

// EncryptedRecorder returns the counter sink for the encrypted pipeline.
func (r *Register) EncryptedRecorder() *Recorder {
	return &Recorder{reg: r, encrypted: true}
}

// UploadAttempted counts a batch entering its first attempt.
func (c *Recorder) UploadAttempted() {
	c.reg.mu.Lock()
	defer c.reg.mu.Unlock()
	if c.encrypted {
		c.reg.counters.EncryptedAttempted++
	} else {
		c.reg.counters.ClearAttempted++
	}
	c.reg.schedulePersistLocked()
}

// UploadSucceeded counts a completed upload and bumps the throughput
// window.
func (c *Recorder) UploadSucceeded() {
	c.reg.mu.Lock()
	defer c.reg.mu.Unlock()
	if c.encrypted {
		c.reg.counters.EncryptedSucceeded++
	} else {
		c.reg.counters.ClearSucceeded++
	}
	c.reg.recordSuccessLocked()
	c.reg.schedulePersistLocked()
}

// UploadRetried counts one failed attempt that will be retried.
func (c *Recorder) UploadRetried() {
	c.reg.mu.Lock()
	defer c.reg.mu.Unlock()
	if c.encrypted {
		c.reg.counters.EncryptedRetries++
	} else {
		c.reg.counters.ClearRetries++
	}
	c.reg.schedulePersistLocked()
}

// UploadFailed counts a batch dropped after its last attempt.
func (c *Recorder) UploadFailed() {
	c.reg.mu.Lock()
	defer c.reg.mu.Unlock()
	if c.encrypted {
		c.reg.counters.EncryptedFailed++
	} else {
		c.reg.counters.ClearFailed++
	}
	c.reg.schedulePersistLocked()
}
