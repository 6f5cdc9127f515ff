package session

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/eargollo/hash256/internal/hash"
	"github.com/eargollo/hash256/internal/worker"
)

type recorded struct {
	token worker.Token
	path  string
	out   worker.Outcome
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []recorded
}

func (r *fakeRecorder) Record(token worker.Token, path string, out worker.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, recorded{token, path, out})
}

func (r *fakeRecorder) all() []recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recorded(nil), r.entries...)
}

// startLoop runs a Loop for the duration of the test.
func startLoop(t *testing.T, cfg Config, rec Recorder) *Loop {
	t.Helper()
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Millisecond
	}
	l := New(cfg, rec)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return l
}

// waitView polls Snapshot until cond holds.
func waitView(t *testing.T, l *Loop, cond func(View) bool) View {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		v, err := l.Snapshot(context.Background())
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		if cond(v) {
			return v
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met; last view: %+v", v)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func idle(v View) bool { return !v.Running }

func TestLoopHashesFile(t *testing.T) {
	rec := &fakeRecorder{}
	l := startLoop(t, Config{Version: "test"}, rec)
	path := writeFile(t, "abc.txt", []byte("abc"))

	tok, err := l.Start(context.Background(), path)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if tok == 0 {
		t.Error("token should be non-zero")
	}

	v := waitView(t, l, idle)
	if v.Hex != abcHex || v.Bytes != 3 || v.Error != "" {
		t.Fatalf("view = %+v", v)
	}
	if v.Title != "hash256 vtest" {
		t.Errorf("Title = %q", v.Title)
	}

	got := rec.all()
	if len(got) != 1 || got[0].token != tok || got[0].out.Status != worker.StatusSucceeded || got[0].path != path {
		t.Errorf("recorded = %+v", got)
	}
}

func TestLoopStartIsBusyImmediately(t *testing.T) {
	l := startLoop(t, Config{ReadLimit: hash.BlockSize}, nil)
	path := writeRandomFile(t, "slow.bin", 8*hash.BlockSize)

	if _, err := l.Start(context.Background(), path); err != nil {
		t.Fatalf("Start: %v", err)
	}
	v, err := l.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if !v.Running || v.Summary != "Hashing..." {
		t.Errorf("expected busy view right after Start, got %+v", v)
	}
	if err := l.Clear(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("Clear while busy: err = %v, want ErrBusy", err)
	}
	if err := l.Cancel(context.Background()); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	waitView(t, l, idle)
}

// TestLoopSupersede starts a slow run, then a fast one. Only the fast run's
// result is shown and recorded.
func TestLoopSupersede(t *testing.T) {
	rec := &fakeRecorder{}
	l := startLoop(t, Config{ReadLimit: 2 * hash.BlockSize}, rec)
	slow := writeRandomFile(t, "slow.bin", 16*hash.BlockSize)
	fast := writeFile(t, "abc.txt", []byte("abc"))

	tokA, err := l.Start(context.Background(), slow)
	if err != nil {
		t.Fatalf("Start A: %v", err)
	}
	tokB, err := l.Start(context.Background(), fast)
	if err != nil {
		t.Fatalf("Start B: %v", err)
	}
	if tokB <= tokA {
		t.Fatalf("tokens not increasing: %d then %d", tokA, tokB)
	}

	v := waitView(t, l, idle)
	if v.Hex != abcHex || v.Token != uint64(tokB) {
		t.Fatalf("view = %+v", v)
	}

	// Give A's cancelled completion time to arrive; it must not change the view.
	time.Sleep(100 * time.Millisecond)
	v2, _ := l.Snapshot(context.Background())
	if v2.Hex != abcHex || v2.Running {
		t.Errorf("stale run changed the view: %+v", v2)
	}
	for _, e := range rec.all() {
		if e.token == tokA {
			t.Errorf("stale run was recorded: %+v", e)
		}
	}
}

func TestLoopCancel(t *testing.T) {
	rec := &fakeRecorder{}
	l := startLoop(t, Config{ReadLimit: hash.BlockSize}, rec)
	path := writeRandomFile(t, "big.bin", 8*hash.BlockSize)

	if _, err := l.SetPath(context.Background(), "typed/before"); err != nil {
		t.Fatalf("SetPath: %v", err)
	}
	if _, err := l.Start(context.Background(), path); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := l.Cancel(context.Background()); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	v := waitView(t, l, idle)
	if v.Error != "" || v.Hex != "" {
		t.Errorf("cancel should be silent: %+v", v)
	}
	if v.Path != "typed/before" {
		t.Errorf("path = %q, want restored", v.Path)
	}
	got := rec.all()
	if len(got) != 1 || got[0].out.Status != worker.StatusCancelled {
		t.Errorf("recorded = %+v", got)
	}

	if err := l.Cancel(context.Background()); !errors.Is(err, ErrNoActiveRun) {
		t.Errorf("second Cancel: err = %v, want ErrNoActiveRun", err)
	}
}

func TestLoopFailureReplacesOutput(t *testing.T) {
	l := startLoop(t, Config{}, nil)
	good := writeFile(t, "abc.txt", []byte("abc"))
	missing := filepath.Join(t.TempDir(), "nope")

	if _, err := l.Start(context.Background(), good); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitView(t, l, func(v View) bool { return v.Hex != "" })

	if _, err := l.Start(context.Background(), missing); err != nil {
		t.Fatalf("Start: %v", err)
	}
	v := waitView(t, l, idle)
	if v.Error == "" || v.Hex != "" || v.Base64 != "" {
		t.Errorf("view after failure = %+v", v)
	}

	// A new request clears the error immediately.
	if _, err := l.Start(context.Background(), good); err != nil {
		t.Fatalf("Start: %v", err)
	}
	v, _ = l.Snapshot(context.Background())
	if v.Error != "" {
		t.Errorf("error not cleared on new request: %q", v.Error)
	}
}

func TestLoopSetPathAutoHash(t *testing.T) {
	l := startLoop(t, Config{AutoHash: true}, nil)
	path := writeFile(t, "abc.txt", []byte("abc"))

	started, err := l.SetPath(context.Background(), path)
	if err != nil || !started {
		t.Fatalf("SetPath: started=%v err=%v", started, err)
	}
	v := waitView(t, l, idle)
	if v.Hex != abcHex {
		t.Errorf("Hex = %q", v.Hex)
	}

	if err := l.SetAutoHash(context.Background(), false); err != nil {
		t.Fatalf("SetAutoHash: %v", err)
	}
	started, _ = l.SetPath(context.Background(), path)
	if started {
		t.Error("SetPath started a run with auto-hash off")
	}
}

func TestLoopUppercase(t *testing.T) {
	l := startLoop(t, Config{}, nil)
	path := writeFile(t, "abc.txt", []byte("abc"))
	if _, err := l.Start(context.Background(), path); err != nil {
		t.Fatalf("Start: %v", err)
	}
	before := waitView(t, l, idle)

	if err := l.SetUppercase(context.Background(), true); err != nil {
		t.Fatalf("SetUppercase: %v", err)
	}
	after, _ := l.Snapshot(context.Background())
	if after.Hex != "BA7816BF8F01CFEA414140DE5DAE2223B00361A396177A9CB410FF61F20015AD" {
		t.Errorf("Hex = %q", after.Hex)
	}
	if after.Base64 != before.Base64 {
		t.Error("Base64 changed")
	}
}

func TestLoopRejectsEmptyPath(t *testing.T) {
	l := startLoop(t, Config{}, nil)
	if _, err := l.Start(context.Background(), "  "); !errors.Is(err, ErrEmptyPath) {
		t.Errorf("err = %v, want ErrEmptyPath", err)
	}
}

func TestLoopStopped(t *testing.T) {
	l := New(Config{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := l.Snapshot(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("err = %v, want ErrStopped", err)
	}
}

// TestExecReportsAcceptedCommand cancels the caller's context while the loop
// is running its command. The command's own result must win, since its
// effects already happened.
func TestExecReportsAcceptedCommand(t *testing.T) {
	l := startLoop(t, Config{}, nil)
	for i := 0; i < 50; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		ran := false
		err := l.exec(ctx, func(s State) (State, error) {
			cancel()
			ran = true
			return s, nil
		})
		if err != nil {
			t.Fatalf("iteration %d: exec = %v after the command ran", i, err)
		}
		if !ran {
			t.Fatalf("iteration %d: command did not run", i)
		}
	}
}
