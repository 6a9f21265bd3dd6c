// Package zstream provides streaming zstd compression and decompression
// with explicit resource ownership and a validated parameter surface.
//
// The Writer compresses into an io.Writer sink and the Reader decompresses
// from an io.Reader source; both own an engine session that is released by
// Close. One-shot helpers cover the whole-buffer case. The raw subpackage
// exposes the underlying step-at-a-time interface for callers that manage
// their own buffers.
//
// Writers and Readers are not safe for concurrent use without external
// mutual exclusion. Independent instances share no mutable state and may
// run fully in parallel.
package zstream

import "github.com/miretskiy/zstream/raw"

// DefaultLevel is the compression level used when none is configured.
const DefaultLevel = raw.DefaultLevel

// Version returns the engine's format version string.
func Version() string { return raw.Version() }

// LevelRange returns the inclusive compression level range supported by
// the engine build. Query this instead of hardcoding bounds.
func LevelRange() (min, max int) { return raw.LevelRange() }

// WindowLogRange returns the inclusive window log2 range supported by the
// engine build.
func WindowLogRange() (min, max int) { return raw.WindowLogRange() }

// MultiThreadSupported reports whether the engine build can run internal
// worker threads (see WithWorkers).
func MultiThreadSupported() bool { return raw.MultiThreadSupported() }

// CompressBound returns the worst-case compressed size for srcSize input
// bytes. Useful for sizing one-shot destination buffers.
func CompressBound(srcSize int) int { return raw.CompressBound(srcSize) }
