package session

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/eargollo/hash256/internal/worker"
)

// Recorder receives every reconciled outcome. Record is called from the loop
// goroutine and must not block.
type Recorder interface {
	Record(token worker.Token, path string, out worker.Outcome)
}

// Config holds loop settings.
type Config struct {
	PollInterval time.Duration
	Uppercase    bool
	AutoHash     bool
	ReadLimit    int64 // bytes per second, 0 = unlimited
	Version      string
}

type command func(State) State

// Loop is the control loop. It serialises every state change on one
// goroutine and never touches the filesystem itself: hashing happens on
// worker goroutines whose completions flow back through a channel.
type Loop struct {
	cfg         Config
	recorder    Recorder
	cmds        chan command
	completions chan worker.Completion
	stopped     chan struct{}

	// Owned by the Run goroutine.
	dispatcher *worker.Dispatcher
	state      State
}

// New creates a Loop. recorder may be nil. Call Run to start processing.
func New(cfg Config, recorder Recorder) *Loop {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	return &Loop{
		cfg:         cfg,
		recorder:    recorder,
		cmds:        make(chan command),
		completions: make(chan worker.Completion, 8),
		stopped:     make(chan struct{}),
		state: State{
			Uppercase: cfg.Uppercase,
			AutoHash:  cfg.AutoHash,
		},
	}
}

// Run processes commands, completions and progress polls until ctx is
// cancelled. Any active run is cancelled on exit. Run must be called once.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.stopped)
	l.dispatcher = worker.NewDispatcher(ctx, l.completions, worker.Config{ReadLimit: l.cfg.ReadLimit})

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if l.state.run != nil {
				l.state.run.Cancel()
			}
			return nil
		case cmd := <-l.cmds:
			l.state = cmd(l.state)
		case c := <-l.completions:
			l.reconcile(c)
		case <-ticker.C:
			l.state = l.state.Poll()
		}
	}
}

func (l *Loop) reconcile(c worker.Completion) {
	run := l.state.run
	next, applied, ok := l.state.Reconcile(c)
	if !ok {
		slog.Debug("discarding stale hash result", "token", c.Token, "active_token", l.state.Token)
		return
	}
	l.state = next
	if l.recorder != nil {
		l.recorder.Record(c.Token, run.Path(), applied)
	}
}

func (l *Loop) start(s State, path string) State {
	run := l.dispatcher.Start(path)
	return s.Begin(path, run)
}

// exec runs fn on the loop goroutine and waits for it. When fn returns an
// error the state is left unchanged.
func (l *Loop) exec(ctx context.Context, fn func(State) (State, error)) error {
	errCh := make(chan error, 1)
	cmd := func(s State) State {
		next, err := fn(s)
		errCh <- err
		if err != nil {
			return s
		}
		return next
	}

	select {
	case l.cmds <- cmd:
	case <-l.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	// Once received, cmd runs to completion on the loop goroutine, so its
	// result is reported even if ctx ends meanwhile.
	return <-errCh
}

// Start hashes path, superseding any active run. The returned token
// identifies the new run.
func (l *Loop) Start(ctx context.Context, path string) (worker.Token, error) {
	var tok worker.Token
	err := l.exec(ctx, func(s State) (State, error) {
		if strings.TrimSpace(path) == "" {
			return s, ErrEmptyPath
		}
		s = l.start(s, path)
		tok = s.Token
		return s, nil
	})
	return tok, err
}

// SetPath records an edited path. With auto-hash on and nothing running, it
// also starts a run; started reports whether it did.
func (l *Loop) SetPath(ctx context.Context, path string) (started bool, err error) {
	err = l.exec(ctx, func(s State) (State, error) {
		s = s.SetPath(path)
		if s.ShouldAutoStart() {
			s = l.start(s, path)
			started = true
		}
		return s, nil
	})
	return started, err
}

// Cancel asks the active run to stop.
func (l *Loop) Cancel(ctx context.Context) error {
	return l.exec(ctx, func(s State) (State, error) {
		return s.RequestCancel()
	})
}

// Clear resets path, output and error.
func (l *Loop) Clear(ctx context.Context) error {
	return l.exec(ctx, func(s State) (State, error) {
		return s.Clear()
	})
}

// SetUppercase changes the hex display case.
func (l *Loop) SetUppercase(ctx context.Context, v bool) error {
	return l.exec(ctx, func(s State) (State, error) {
		return s.SetUppercase(v), nil
	})
}

// SetAutoHash changes whether path edits start a run.
func (l *Loop) SetAutoHash(ctx context.Context, v bool) error {
	return l.exec(ctx, func(s State) (State, error) {
		return s.SetAutoHash(v), nil
	})
}

// Snapshot polls progress and returns the current view.
func (l *Loop) Snapshot(ctx context.Context) (View, error) {
	var v View
	err := l.exec(ctx, func(s State) (State, error) {
		s = s.Poll()
		v = s.View(l.cfg.Version)
		return s, nil
	})
	return v, err
}
