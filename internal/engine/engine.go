// Package engine is the opaque compression engine behind the zstream API.
//
// Its surface deliberately mirrors the narrow C-style contract of libzstd:
// opaque contexts created and freed explicitly, per-parameter setters, a
// single streaming entry point per direction, and packed return codes that
// conflate error codes with progress hints in the same integer range.
// Callers must classify codes with IsError and never test sign or magnitude
// directly. Nothing outside this package depends on how frames are actually
// produced or parsed.
package engine

import "math/bits"

// Code is the packed result of every engine call. A non-error Code is a
// progress hint: the number of bytes still buffered inside the engine (or a
// suggested next input size), with 0 meaning the current operation needs
// nothing more. Error codes occupy the top of the Code range, exactly like
// size_t error codes in the native library.
type Code uintptr

// ErrorCode identifies an engine failure. Values track the native
// zstd_errors.h enumeration so that logs stay recognizable to anyone who
// has debugged the C library.
type ErrorCode int

const (
	ErrNoError              ErrorCode = 0
	ErrGeneric              ErrorCode = 1
	ErrPrefixUnknown        ErrorCode = 10
	ErrFrameUnsupported     ErrorCode = 14
	ErrWindowTooLarge       ErrorCode = 16
	ErrCorruptionDetected   ErrorCode = 20
	ErrChecksumWrong        ErrorCode = 22
	ErrDictionaryCorrupted  ErrorCode = 30
	ErrParameterUnsupported ErrorCode = 40
	ErrParameterOutOfBound  ErrorCode = 42
	ErrStageWrong           ErrorCode = 60
	ErrMemoryAllocation     ErrorCode = 64
	ErrDstSizeTooSmall      ErrorCode = 70
	ErrSrcSizeWrong         ErrorCode = 72

	maxErrorCode = 120
)

// errCode packs an ErrorCode into the top of the Code range.
func errCode(e ErrorCode) Code {
	return Code(0) - Code(e)
}

// IsError reports whether a Code is an error rather than a progress hint.
// This is the only sanctioned way to classify a Code.
func IsError(c Code) bool {
	return c > ^Code(0)-Code(maxErrorCode-1)
}

// ErrorCodeOf extracts the ErrorCode from a packed Code. Returns ErrNoError
// for hint codes.
func ErrorCodeOf(c Code) ErrorCode {
	if !IsError(c) {
		return ErrNoError
	}
	return ErrorCode(Code(0) - c)
}

var errorNames = map[ErrorCode]string{
	ErrNoError:              "No error detected",
	ErrGeneric:              "Error (generic)",
	ErrPrefixUnknown:        "Unknown frame descriptor",
	ErrFrameUnsupported:     "Unsupported frame parameter",
	ErrWindowTooLarge:       "Frame requires too much memory for decoding",
	ErrCorruptionDetected:   "Data corruption detected",
	ErrChecksumWrong:        "Restored data doesn't match checksum",
	ErrDictionaryCorrupted:  "Dictionary is corrupted",
	ErrParameterUnsupported: "Unsupported parameter",
	ErrParameterOutOfBound:  "Parameter is out of bound",
	ErrStageWrong:           "Operation not authorized at current processing stage",
	ErrMemoryAllocation:     "Allocation error : not enough memory",
	ErrDstSizeTooSmall:      "Destination buffer is too small",
	ErrSrcSizeWrong:         "Src size is incorrect",
}

// ErrorName returns a human readable description for the error packed in c.
func ErrorName(c Code) string {
	if s, ok := errorNames[ErrorCodeOf(c)]; ok {
		return s
	}
	return "Unspecified error code"
}

// InBuffer describes bytes available to read. The engine advances Pos to
// reflect exactly how many bytes it consumed.
type InBuffer struct {
	Src []byte
	Pos int
}

// OutBuffer describes space available to write. The engine advances Pos to
// reflect exactly how many bytes it produced.
type OutBuffer struct {
	Dst []byte
	Pos int
}

// Directive tells a streaming step whether more input is forthcoming.
type Directive int

const (
	// DirectiveContinue means more input may follow.
	DirectiveContinue Directive = iota
	// DirectiveFlush requests all input so far to become decodable output.
	DirectiveFlush
	// DirectiveEnd finishes the frame, writing the epilogue.
	DirectiveEnd
)

// Compression level bounds supported by this engine build.
const (
	MinLevel     = -5
	MaxLevel     = 22
	DefaultLevel = 3
)

// Window size bounds, expressed as log2. Derived from the backend limits so
// they stay correct if the backend changes.
var (
	WindowLogMin = bits.Len(uint(minWindowSize)) - 1
	WindowLogMax = bits.Len(uint(maxWindowSize)) - 1
)

// MultiThreadSupported reports whether this engine build can run internal
// worker threads. Callers must check this before requesting workers.
func MultiThreadSupported() bool { return true }

// Format version implemented by this engine, encoded like the native
// library: major*10000 + minor*100 + release.
const versionNumber = 1*10000 + 5*100 + 6

// VersionNumber returns the engine version as a single integer.
func VersionNumber() int { return versionNumber }

// VersionString returns the engine version in major.minor.release form.
func VersionString() string {
	return "1.5.6"
}

// CompressBound returns the worst-case compressed size for srcSize input
// bytes, using the same formula as the native library.
func CompressBound(srcSize int) int {
	extra := 0
	if srcSize < 128<<10 {
		extra = ((128 << 10) - srcSize) >> 11
	}
	return srcSize + (srcSize >> 8) + extra
}

// Recommended buffer sizes for streaming. Using these avoids engine-side
// buffering in the common case; any size >= 1 works.
const (
	CStreamInSize  = 128 << 10
	CStreamOutSize = (128 << 10) + (128 << 10 >> 8) + 8
	DStreamInSize  = (128 << 10) + 3
	DStreamOutSize = 128 << 10
)
