package hash

import "sync/atomic"

// Progress holds the live byte counters of one run. The reader goroutine is
// the only writer; any number of goroutines may read without locks.
type Progress struct {
	processed  atomic.Uint64
	total      atomic.Uint64
	totalKnown atomic.Bool
}

// ProgressSnapshot is a point-in-time copy of Progress.
type ProgressSnapshot struct {
	Processed  uint64
	Total      uint64 // meaningful only when TotalKnown
	TotalKnown bool
}

// NewProgress returns a Progress with processed=0 and an unknown total.
func NewProgress() *Progress {
	return &Progress{}
}

// SetTotal records the expected size of the input.
func (p *Progress) SetTotal(n uint64) {
	p.total.Store(n)
	p.totalKnown.Store(true)
}

// publish stores the cumulative byte count. Values only grow within a run.
func (p *Progress) publish(n uint64) {
	p.processed.Store(n)
}

// Processed returns the number of bytes hashed so far.
func (p *Progress) Processed() uint64 {
	return p.processed.Load()
}

// Snapshot loads all counters.
func (p *Progress) Snapshot() ProgressSnapshot {
	s := ProgressSnapshot{Processed: p.processed.Load()}
	if p.totalKnown.Load() {
		s.Total = p.total.Load()
		s.TotalKnown = true
	}
	return s
}

// Percent returns processed/total in [0, 100]. ok is false when the total is
// unknown or zero.
func (s ProgressSnapshot) Percent() (pct float64, ok bool) {
	if !s.TotalKnown || s.Total == 0 {
		return 0, false
	}
	pct = 100 * float64(s.Processed) / float64(s.Total)
	if pct > 100 {
		pct = 100
	}
	return pct, true
}

// CancelFlag is set once by the requester and polled by the reader between
// blocks. It is never cleared.
type CancelFlag struct {
	set atomic.Bool
}

// Cancel requests that the run stop. Safe to call more than once.
func (c *CancelFlag) Cancel() {
	c.set.Store(true)
}

// Cancelled reports whether Cancel has been called.
func (c *CancelFlag) Cancelled() bool {
	return c.set.Load()
}
