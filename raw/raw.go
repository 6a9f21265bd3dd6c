// Package raw exposes in-memory, step-at-a-time compression and
// decompression over the underlying engine.
//
// It is the safety boundary of this module: every pointer-and-length pair
// becomes a bounds-checked buffer cursor, every packed engine code becomes
// a typed error, and every engine context is owned by exactly one Encoder
// or Decoder which guarantees single-call release. Most users want the
// io.Reader/io.Writer API in the parent package instead; this layer exists
// for callers that manage their own buffers and scheduling.
//
// Neither Encoder nor Decoder is safe for concurrent use. Independent
// instances are fully isolated and may run in parallel.
package raw

import "github.com/miretskiy/zstream/internal/engine"

// InBuffer wraps bytes available to read, with a cursor tracking how many
// of them have been consumed by engine steps.
type InBuffer struct {
	Src []byte
	Pos int
}

// Remaining returns the number of unconsumed bytes.
func (b *InBuffer) Remaining() int { return len(b.Src) - b.Pos }

// Advance moves the cursor forward by n. Moving past the end of the buffer
// is a caller bug and panics.
func (b *InBuffer) Advance(n int) {
	if n < 0 || b.Pos+n > len(b.Src) {
		panic("zstream: InBuffer cursor advanced past capacity")
	}
	b.Pos += n
}

// OutBuffer wraps space available to write, with a cursor tracking how many
// bytes have been produced by engine steps.
type OutBuffer struct {
	Dst []byte
	Pos int
}

// Remaining returns the unwritten capacity.
func (b *OutBuffer) Remaining() int { return len(b.Dst) - b.Pos }

// Advance moves the cursor forward by n. Moving past capacity is a caller
// bug and panics.
func (b *OutBuffer) Advance(n int) {
	if n < 0 || b.Pos+n > len(b.Dst) {
		panic("zstream: OutBuffer cursor advanced past capacity")
	}
	b.Pos += n
}

// Bytes returns the written prefix of the buffer.
func (b *OutBuffer) Bytes() []byte { return b.Dst[:b.Pos] }

// Status reports the outcome of a single step.
type Status struct {
	// BytesRead is the number of input bytes consumed by the step.
	BytesRead int
	// BytesWritten is the number of output bytes produced by the step.
	BytesWritten int
	// Hint is zero when the operation needs nothing more this call, and
	// nonzero when another step is required to make further progress
	// (more output space, more input, or more draining).
	Hint int
}

// Directive tells an Encoder step whether more input is forthcoming.
type Directive int

const (
	// Continue means more input may follow.
	Continue Directive = Directive(engine.DirectiveContinue)
	// Flush makes everything written so far independently decodable.
	Flush Directive = Directive(engine.DirectiveFlush)
	// End finishes the frame, writing the epilogue.
	End Directive = Directive(engine.DirectiveEnd)
)

// Compression levels supported by the engine. Query LevelRange for the
// exact bounds instead of hardcoding them.
const DefaultLevel = engine.DefaultLevel

// LevelRange returns the inclusive compression level range supported by
// the engine build.
func LevelRange() (min, max int) {
	return engine.MinLevel, engine.MaxLevel
}

// WindowLogRange returns the inclusive window log2 range supported by the
// engine build.
func WindowLogRange() (min, max int) {
	return engine.WindowLogMin, engine.WindowLogMax
}

// MultiThreadSupported reports whether the engine build can run internal
// worker threads.
func MultiThreadSupported() bool { return engine.MultiThreadSupported() }

// CompressBound returns the worst-case compressed size for srcSize bytes.
func CompressBound(srcSize int) int { return engine.CompressBound(srcSize) }

// Version returns the engine's format version string.
func Version() string { return engine.VersionString() }

// Recommended buffer sizes for streaming steps. Any size >= 1 works; these
// minimize engine-side buffering.
func CStreamInSize() int  { return engine.CStreamInSize }
func CStreamOutSize() int { return engine.CStreamOutSize }
func DStreamInSize() int  { return engine.DStreamInSize }
func DStreamOutSize() int { return engine.DStreamOutSize }
