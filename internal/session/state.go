// Package session owns the interactive state of the hasher: the current path,
// the last result, preferences, and the active run. Every transition is a
// method that takes a State by value and returns the next one; only the Loop
// goroutine holds the live copy.
package session

import (
	"errors"
	"strings"
	"time"

	"github.com/eargollo/hash256/internal/hash"
	"github.com/eargollo/hash256/internal/worker"
)

var (
	// ErrEmptyPath is returned when a run is requested for a blank path.
	ErrEmptyPath = errors.New("path is empty")
	// ErrNoActiveRun is returned by Cancel when nothing is hashing.
	ErrNoActiveRun = errors.New("no hash is running")
	// ErrBusy is returned by operations that are not allowed mid-run.
	ErrBusy = errors.New("a hash is running")
	// ErrStopped is returned once the loop has exited.
	ErrStopped = errors.New("session loop stopped")
)

// Output is the last successful result. Hex is always stored lowercase;
// case is applied only when displaying.
type Output struct {
	Hex     string
	Base64  string
	Elapsed time.Duration
	Bytes   uint64
	Path    string
}

// State is the whole application state.
type State struct {
	Path      string
	Output    *Output
	Error     string
	Uppercase bool
	AutoHash  bool

	Running    bool
	Cancelling bool
	Token      worker.Token
	Progress   hash.ProgressSnapshot

	// run and prevPath live exactly as long as the active run.
	run      *worker.Run
	prevPath string
}

// Begin makes run the active run for path. A run that is still active is
// superseded: its cancel flag is set and its eventual completion will no
// longer match the active token.
func (s State) Begin(path string, run *worker.Run) State {
	if s.run != nil {
		s.run.Cancel()
	}
	s.prevPath = s.Path
	s.Path = path
	s.Error = ""
	s.Running = true
	s.Cancelling = false
	s.Token = run.Token()
	s.Progress = hash.ProgressSnapshot{}
	s.run = run
	return s
}

// RequestCancel asks the active run to stop and restores the path that was
// entered before it began. The run stays active until its Cancelled outcome
// is reconciled.
func (s State) RequestCancel() (State, error) {
	if !s.Running || s.run == nil {
		return s, ErrNoActiveRun
	}
	s.run.Cancel()
	s.Cancelling = true
	s.Path = s.prevPath
	return s, nil
}

// Reconcile applies c if it belongs to the active run. It returns the next
// state, the outcome that was actually applied, and whether c was applied at
// all. Completions from superseded runs are ignored.
//
// A run the user cancelled is applied as cancelled even if it managed to
// finish first.
func (s State) Reconcile(c worker.Completion) (State, worker.Outcome, bool) {
	if !s.Running || s.run == nil || c.Token != s.Token {
		return s, worker.Outcome{}, false
	}

	out := c.Outcome
	if s.Cancelling {
		out = worker.Outcome{Status: worker.StatusCancelled}
	}

	s.Running = false
	s.Cancelling = false
	s.Progress = hash.ProgressSnapshot{}
	s.run = nil
	s.prevPath = ""

	switch out.Status {
	case worker.StatusSucceeded:
		r := out.Result
		s.Error = ""
		s.Output = &Output{
			Hex:     strings.ToLower(r.Hex),
			Base64:  r.Base64,
			Elapsed: r.Elapsed,
			Bytes:   r.Bytes,
			Path:    r.Path,
		}
	case worker.StatusFailed:
		s.Error = out.Message()
		s.Output = nil
	case worker.StatusCancelled:
		s.Error = ""
	}
	return s, out, true
}

// Poll copies the active run's counters into the state.
func (s State) Poll() State {
	if s.run != nil {
		s.Progress = s.run.Progress()
	}
	return s
}

// SetPath records an edited path and clears any displayed error.
func (s State) SetPath(path string) State {
	s.Path = path
	s.Error = ""
	return s
}

// ShouldAutoStart reports whether an edited path should start a run on its
// own.
func (s State) ShouldAutoStart() bool {
	return s.AutoHash && !s.Running && strings.TrimSpace(s.Path) != ""
}

// Clear resets the input, output and error. It is refused mid-run.
func (s State) Clear() (State, error) {
	if s.Running {
		return s, ErrBusy
	}
	s.Path = ""
	s.Output = nil
	s.Error = ""
	s.Progress = hash.ProgressSnapshot{}
	return s, nil
}

// SetUppercase toggles the hex display case. The stored digest is untouched.
func (s State) SetUppercase(v bool) State {
	s.Uppercase = v
	return s
}

// SetAutoHash toggles hashing on path edits.
func (s State) SetAutoHash(v bool) State {
	s.AutoHash = v
	return s
}

// DisplayHex returns the hex digest in the preferred case.
func (s State) DisplayHex() string {
	if s.Output == nil {
		return ""
	}
	if s.Uppercase {
		return strings.ToUpper(s.Output.Hex)
	}
	return s.Output.Hex
}
