package raw

import (
	"errors"
	"fmt"

	"github.com/miretskiy/zstream/internal/engine"
)

// Error taxonomy of the safety layer. Every engine failure surfaces as one
// of these sentinels (matched with errors.Is) or as an *EngineError for
// conditions the caller cannot trigger through this API.
var (
	// ErrAllocation means the engine could not allocate a resource.
	ErrAllocation = errors.New("zstream: allocation failed")
	// ErrInvalidParameter means a parameter value was rejected before any
	// engine work happened.
	ErrInvalidParameter = errors.New("zstream: invalid parameter")
	// ErrUnsupportedFeature means the requested configuration requires a
	// capability this engine build does not have.
	ErrUnsupportedFeature = errors.New("zstream: unsupported feature")
	// ErrAlreadyStarted means configuration was attempted after the first
	// streaming step. Parameters are immutable once a session starts.
	ErrAlreadyStarted = errors.New("zstream: session already started")
	// ErrClosed means an operation was issued after Close.
	ErrClosed = errors.New("zstream: closed")
	// ErrShortBuffer means the output buffer had no remaining capacity on
	// entry. This is a caller bug, not an engine condition.
	ErrShortBuffer = errors.New("zstream: output buffer has no remaining capacity")
	// ErrChecksumMismatch means the decoded content does not match the
	// frame's declared checksum. The whole frame must be treated as
	// untrusted.
	ErrChecksumMismatch = errors.New("zstream: content checksum mismatch")
	// ErrTruncatedFrame means input ended before the frame was complete.
	ErrTruncatedFrame = errors.New("zstream: truncated frame")
)

// EngineError reports a failure detected inside the engine mid-operation,
// such as corrupt input. Code and Name follow the engine's own error
// enumeration.
type EngineError struct {
	Code int
	Name string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("zstream: engine error %d: %s", e.Code, e.Name)
}

// codeToError maps a packed engine code to the typed taxonomy. Returns nil
// for progress hints; the caller must have classified the code with
// engine.IsError first only if it wants to short-circuit.
func codeToError(c engine.Code) error {
	switch engine.ErrorCodeOf(c) {
	case engine.ErrNoError:
		return nil
	case engine.ErrMemoryAllocation:
		return ErrAllocation
	case engine.ErrParameterOutOfBound:
		return ErrInvalidParameter
	case engine.ErrParameterUnsupported:
		return ErrUnsupportedFeature
	case engine.ErrStageWrong:
		return ErrAlreadyStarted
	case engine.ErrChecksumWrong:
		return ErrChecksumMismatch
	case engine.ErrSrcSizeWrong:
		return ErrTruncatedFrame
	default:
		return &EngineError{
			Code: int(engine.ErrorCodeOf(c)),
			Name: engine.ErrorName(c),
		}
	}
}
