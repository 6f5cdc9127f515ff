// Package hash streams a file through SHA-256 in fixed-size blocks,
// publishing progress and honouring cooperative cancellation between blocks.
package hash

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"github.com/eargollo/hash256/internal/digest"
)

// BlockSize is the read size per iteration. It bounds both memory use and
// cancellation latency.
const BlockSize = 1 << 20 // 1 MiB

// Result is a completed hash of one file.
type Result struct {
	Hex     string
	Base64  string
	Bytes   uint64
	Elapsed time.Duration
	Path    string
}

// Options tunes a single File call.
type Options struct {
	// Limiter throttles reads in bytes per second. Its burst must be at
	// least BlockSize. Nil means unthrottled.
	Limiter *rate.Limiter
}

// NewLimiter returns a byte-rate limiter suitable for Options.Limiter, or
// nil when bytesPerSecond <= 0.
func NewLimiter(bytesPerSecond int64) *rate.Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(bytesPerSecond), BlockSize)
}

// File hashes the file at path. progress and cancel may be shared with other
// goroutines; File is their only writer of progress.
//
// Cancellation is checked before every block read, so after Cancel the
// reader stops within one block. A cancelled or failed run never returns a
// digest.
func File(ctx context.Context, path string, progress *Progress, cancel *CancelFlag, opts Options) (Result, error) {
	start := time.Now()
	if progress == nil {
		progress = NewProgress()
	}
	if cancel == nil {
		cancel = &CancelFlag{}
	}

	f, err := os.Open(path)
	if err != nil {
		return Result{}, &OpenError{Path: path, Err: err}
	}
	defer f.Close()

	var metaSize uint64
	var metaKnown bool
	if fi, err := f.Stat(); err == nil {
		if fi.IsDir() {
			return Result{}, &OpenError{Path: path, Err: ErrIsDirectory}
		}
		if fi.Mode().IsRegular() {
			metaSize, metaKnown = uint64(fi.Size()), true
			progress.SetTotal(metaSize)
		}
	}

	eng := digest.New()
	buf := make([]byte, BlockSize)
	var total uint64
	for {
		if cancel.Cancelled() || ctx.Err() != nil {
			return Result{}, ErrCancelled
		}

		n, rerr := f.Read(buf)
		if n > 0 {
			_ = eng.Update(buf[:n])
			total += uint64(n)
			progress.publish(total)

			// Only bytes actually read are charged.
			if opts.Limiter != nil {
				if err := opts.Limiter.WaitN(ctx, n); err != nil {
					if ctx.Err() != nil {
						return Result{}, ErrCancelled
					}
					return Result{}, &ReadError{Path: path, Offset: total, Err: err}
				}
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return Result{}, &ReadError{Path: path, Offset: total, Err: rerr}
		}
	}

	sum, err := eng.Finalize()
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Hex:     sum.Hex(),
		Base64:  sum.Base64(),
		Bytes:   total,
		Elapsed: time.Since(start),
		Path:    path,
	}
	if metaKnown {
		res.Bytes = metaSize
	}
	if abs, err := filepath.Abs(path); err == nil {
		res.Path = abs
	}
	return res, nil
}
