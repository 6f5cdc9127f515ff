// Package worker launches hashing runs on background goroutines and tags
// every result with the run's token so superseded results can be told apart.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/eargollo/hash256/internal/hash"
)

// hashFile is the reader a run executes. Tests replace it to inject faults.
var hashFile = hash.File

// Token identifies one run. Tokens from a Dispatcher strictly increase
// (wrapping after 2^64 runs).
type Token uint64

// Status is the terminal state of a run.
type Status int

const (
	StatusSucceeded Status = iota
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Outcome is produced exactly once per run and never modified afterwards.
// Result is set only for StatusSucceeded, Err only for StatusFailed.
type Outcome struct {
	Status Status
	Result hash.Result
	Err    error
}

// Message returns the human-readable failure text, or "" when the run did
// not fail.
func (o Outcome) Message() string {
	if o.Status != StatusFailed || o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Completion pairs an outcome with the token of the run that produced it.
type Completion struct {
	Token   Token
	Outcome Outcome
}

// Config holds dispatcher tuning.
type Config struct {
	// ReadLimit throttles each run to this many bytes per second. 0 means
	// unlimited.
	ReadLimit int64
}

// Dispatcher starts runs. It is safe for concurrent use.
type Dispatcher struct {
	ctx    context.Context
	notify chan<- Completion
	cfg    Config
	last   atomic.Uint64
}

// NewDispatcher creates a Dispatcher. Completions are sent to notify (which
// may be nil). Cancelling ctx cancels every run and stops delivery.
func NewDispatcher(ctx context.Context, notify chan<- Completion, cfg Config) *Dispatcher {
	return &Dispatcher{ctx: ctx, notify: notify, cfg: cfg}
}

// Run is the handle for one background hashing run.
type Run struct {
	token     Token
	path      string
	startedAt time.Time
	progress  *hash.Progress
	flag      *hash.CancelFlag
	stop      context.CancelFunc

	done    chan struct{}
	outcome Outcome
}

// Start mints a token and launches the run. It returns before any byte is
// read.
func (d *Dispatcher) Start(path string) *Run {
	runCtx, stop := context.WithCancel(d.ctx)
	r := &Run{
		token:     Token(d.last.Add(1)),
		path:      path,
		startedAt: time.Now(),
		progress:  hash.NewProgress(),
		flag:      &hash.CancelFlag{},
		stop:      stop,
		done:      make(chan struct{}),
	}
	slog.Info("hash run started", "token", r.token, "path", path)

	go d.execute(runCtx, r)
	return r
}

func (d *Dispatcher) execute(ctx context.Context, r *Run) {
	defer r.stop()

	r.outcome = d.hash(ctx, r)
	close(r.done)

	slog.Info("hash run finished", "token", r.token, "status", r.outcome.Status,
		"bytes", r.progress.Processed(), "elapsed", time.Since(r.startedAt))

	if d.notify == nil {
		return
	}
	select {
	case d.notify <- Completion{Token: r.token, Outcome: r.outcome}:
	case <-d.ctx.Done():
	}
}

// hash runs the reader and folds every exit path, panics included, into an
// Outcome.
func (d *Dispatcher) hash(ctx context.Context, r *Run) (out Outcome) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("hash run panicked", "token", r.token, "panic", p)
			out = Outcome{Status: StatusFailed, Err: fmt.Errorf("internal error: %v", p)}
		}
	}()

	res, err := hashFile(ctx, r.path, r.progress, r.flag, hash.Options{
		Limiter: hash.NewLimiter(d.cfg.ReadLimit),
	})
	switch {
	case errors.Is(err, hash.ErrCancelled):
		return Outcome{Status: StatusCancelled}
	case err != nil:
		return Outcome{Status: StatusFailed, Err: err}
	default:
		return Outcome{Status: StatusSucceeded, Result: res}
	}
}

// Token returns the run's identifier.
func (r *Run) Token() Token { return r.token }

// Path returns the path the run was started with.
func (r *Run) Path() string { return r.path }

// StartedAt returns when Start was called.
func (r *Run) StartedAt() time.Time { return r.startedAt }

// Progress returns the current byte counters.
func (r *Run) Progress() hash.ProgressSnapshot { return r.progress.Snapshot() }

// Cancel sets the run's cancel flag and interrupts any throttling wait. The
// reader stops before its next block. Calling Cancel more than once, or
// after the run finished, has no further effect.
func (r *Run) Cancel() {
	r.flag.Cancel()
	r.stop()
}

// Cancelled reports whether Cancel was called.
func (r *Run) Cancelled() bool { return r.flag.Cancelled() }

// Done is closed once the outcome is available.
func (r *Run) Done() <-chan struct{} { return r.done }

// Outcome returns the run's outcome, or false if it is still running.
func (r *Run) Outcome() (Outcome, bool) {
	select {
	case <-r.done:
		return r.outcome, true
	default:
		return Outcome{}, false
	}
}

// Wait blocks until the run finishes or ctx ends.
func (r *Run) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-r.done:
		return r.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}
