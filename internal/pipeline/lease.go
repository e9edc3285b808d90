package pipeline

import (
	"sync"
	"time"
)

// lease enforces the single-in-flight-run invariant and owns the status
// snapshot.
type lease struct {
	mu      sync.Mutex
	held    bool
	lastRun *time.Time
	report  *Report
	lastErr string
}

func newLease() *lease {
	return &lease{}
}

// acquire takes the lease or reports a run in progress.
func (l *lease) acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return ErrRunInProgress
	}
	l.held = true
	return nil
}

// release returns the lease and stamps the run completion time.
func (l *lease) release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now().UTC()
	l.lastRun = &now
	l.held = false
}

// setReport records the outcome of a run. A failed run keeps the previous
// report and records the error.
func (l *lease) setReport(r *Report, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.lastErr = err.Error()
		return
	}
	l.lastErr = ""
	if r != nil {
		l.report = r
	}
}

// status returns the current snapshot.
func (l *lease) status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Status{
		IsRunning: l.held,
		LastRun:   l.lastRun,
		Report:    l.report,
		Error:     l.lastErr,
	}
}
