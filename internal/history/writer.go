// Package history persists reconciled hashing runs without blocking the
// control loop.
package history

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/eargollo/hash256/internal/db"
	"github.com/eargollo/hash256/internal/worker"
)

const (
	queueSize  = 256
	batchSize  = 32
	flushEvery = time.Second
)

// Writer buffers runs in memory and writes them to the database in batches
// from a single goroutine.
type Writer struct {
	db        *sql.DB
	queue     chan db.Run
	done      chan struct{}
	closeOnce sync.Once
	now       func() time.Time
}

// NewWriter starts the background writer.
func NewWriter(database *sql.DB) *Writer {
	w := &Writer{
		db:    database,
		queue: make(chan db.Run, queueSize),
		done:  make(chan struct{}),
		now:   time.Now,
	}
	go w.loop()
	return w
}

// Record queues an outcome. It never blocks; when the queue is full the
// entry is dropped with a warning.
func (w *Writer) Record(token worker.Token, path string, out worker.Outcome) {
	r := db.Run{
		Token:      uint64(token),
		Path:       path,
		Status:     out.Status.String(),
		FinishedAt: w.now(),
	}
	switch out.Status {
	case worker.StatusSucceeded:
		r.Hex = out.Result.Hex
		r.Base64 = out.Result.Base64
		r.Bytes = out.Result.Bytes
		r.ElapsedMs = out.Result.Elapsed.Milliseconds()
		if out.Result.Path != "" {
			r.Path = out.Result.Path
		}
	case worker.StatusFailed:
		r.Error = out.Message()
	}

	select {
	case w.queue <- r:
	default:
		slog.Warn("history queue full, dropping run", "token", token, "path", path)
	}
}

// Close flushes queued runs and stops the writer. Record must not be called
// after Close.
func (w *Writer) Close() {
	w.closeOnce.Do(func() { close(w.queue) })
	<-w.done
}

func (w *Writer) loop() {
	defer close(w.done)

	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()

	var buf []db.Run
	flush := func() {
		if len(buf) == 0 {
			return
		}
		// Background so a shutdown still persists what was queued.
		if err := db.InsertRuns(context.Background(), w.db, buf); err != nil {
			slog.Warn("history write failed", "runs", len(buf), "error", err)
		}
		buf = buf[:0]
	}

	for {
		select {
		case r, ok := <-w.queue:
			if !ok {
				flush()
				return
			}
			buf = append(buf, r)
			if len(buf) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
