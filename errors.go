package zstream

import "github.com/miretskiy/zstream/raw"

// Errors surfaced by this package. These are the raw package sentinels,
// re-exported so callers of the streaming API don't need to import raw.
// Match with errors.Is; errors carrying extra context wrap these.
var (
	ErrClosed             = raw.ErrClosed
	ErrInvalidParameter   = raw.ErrInvalidParameter
	ErrUnsupportedFeature = raw.ErrUnsupportedFeature
	ErrChecksumMismatch   = raw.ErrChecksumMismatch
	ErrTruncatedFrame     = raw.ErrTruncatedFrame
)

// EngineError reports a failure detected inside the engine mid-operation,
// such as corrupt input.
type EngineError = raw.EngineError
