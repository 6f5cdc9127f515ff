// Package scheduler runs named maintenance jobs on cron expressions.
package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler wraps robfig/cron. Jobs are addressed by name; a job never
// overlaps with its own previous invocation.
type Scheduler struct {
	mu      sync.RWMutex
	c       *cron.Cron
	entries map[string]cron.EntryID
	exprs   map[string]string
}

// New creates a stopped Scheduler. Call Start to activate it.
func New() *Scheduler {
	return &Scheduler{
		c:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		entries: make(map[string]cron.EntryID),
		exprs:   make(map[string]string),
	}
}

// Every registers fn under name, replacing any job with the same name.
func (s *Scheduler) Every(name, expr string, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.c.AddFunc(expr, func() {
		start := time.Now()
		slog.Info("scheduler: job started", "job", name)
		fn()
		slog.Info("scheduler: job finished", "job", name, "elapsed", time.Since(start))
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q for job %q: %w", expr, name, err)
	}
	if old, ok := s.entries[name]; ok {
		s.c.Remove(old)
	}
	s.entries[name] = id
	s.exprs[name] = expr
	slog.Info("scheduler: job set", "job", name, "cron", expr)
	return nil
}

// Start begins the cron loop.
func (s *Scheduler) Start() {
	s.c.Start()
}

// Stop halts the cron loop and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.c.Stop().Done()
}

// NextRunAt returns the next time the named job fires, or nil if it is not
// registered or the scheduler has not started.
func (s *Scheduler) NextRunAt(name string) *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.entries[name]
	if !ok {
		return nil
	}
	entry := s.c.Entry(id)
	if entry.ID == 0 || entry.Next.IsZero() {
		return nil
	}
	t := entry.Next
	return &t
}

// CronExpr returns the expression of the named job, or "".
func (s *Scheduler) CronExpr(name string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exprs[name]
}
