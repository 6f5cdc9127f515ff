// Package digest wraps SHA-256 as an incremental accumulator with a
// consume-once Finalize.
package digest

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"hash"
)

// Size is the digest length in bytes.
const Size = sha256.Size

// ErrFinalized is returned when an engine is used after Finalize without Reset.
var ErrFinalized = errors.New("digest: engine already finalized")

// Sum is a finished SHA-256 digest.
type Sum [Size]byte

// Hex returns the lowercase hexadecimal encoding (64 chars).
func (s Sum) Hex() string {
	return hex.EncodeToString(s[:])
}

// Base64 returns the RFC 4648 standard, padded encoding.
func (s Sum) Base64() string {
	return base64.StdEncoding.EncodeToString(s[:])
}

// Engine absorbs bytes in order. Memory use is constant regardless of how
// much data is written.
type Engine struct {
	h    hash.Hash
	done bool
}

// New returns a fresh engine.
func New() *Engine {
	return &Engine{h: sha256.New()}
}

// Update absorbs p. Chunk boundaries do not affect the final digest.
func (e *Engine) Update(p []byte) error {
	if e.done {
		return ErrFinalized
	}
	e.h.Write(p) // hash.Hash.Write never returns an error
	return nil
}

// Write implements io.Writer so an Engine can sit behind io.Copy.
func (e *Engine) Write(p []byte) (int, error) {
	if err := e.Update(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Finalize returns the digest of everything absorbed so far. The engine
// cannot be used again until Reset.
func (e *Engine) Finalize() (Sum, error) {
	var s Sum
	if e.done {
		return s, ErrFinalized
	}
	e.done = true
	copy(s[:], e.h.Sum(nil))
	return s, nil
}

// Reset returns the engine to its initial state.
func (e *Engine) Reset() {
	e.h.Reset()
	e.done = false
}

// Bytes hashes b in one call.
func Bytes(b []byte) Sum {
	return Sum(sha256.Sum256(b))
}
