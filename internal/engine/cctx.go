package engine

import (
	"bytes"
	"encoding/binary"

	"github.com/klauspost/compress/zstd"
)

// Backend window limits. The engine bounds in engine.go are derived from
// these.
const (
	minWindowSize = zstd.MinWindowSize
	maxWindowSize = zstd.MaxWindowSize
)

// dictMagic prefixes structured dictionaries (produced by training). Byte
// sequences without it are loaded as raw content dictionaries.
const dictMagic = 0xEC30A437

func isStructuredDict(d []byte) bool {
	return len(d) >= 8 && binary.LittleEndian.Uint32(d) == dictMagic
}

// CParameter selects a compression parameter. Values track the native
// ZSTD_cParameter enumeration.
type CParameter int

const (
	CParamCompressionLevel CParameter = 100
	CParamWindowLog        CParameter = 101
	CParamChecksumFlag     CParameter = 201
	CParamNbWorkers        CParameter = 400
)

// CCtx is one compression session. It is an exclusive resource: no two
// goroutines may call into the same CCtx, and it must be freed exactly once.
// Parameters are accepted until the first streaming step; afterwards the
// session is bound and setters fail with a stage error.
type CCtx struct {
	level     int
	windowLog int
	checksum  bool
	workers   int
	dict      []byte

	started  bool
	finished bool
	freed    bool

	enc    *zstd.Encoder
	staged bytes.Buffer
}

// CreateCCtx allocates a new compression context with default parameters.
func CreateCCtx() *CCtx {
	return &CCtx{level: DefaultLevel}
}

// SetParameter sets one compression parameter. Fails with a stage error
// once the first step has run, and with a bound error for values outside
// the supported range.
func (c *CCtx) SetParameter(p CParameter, value int) Code {
	if c.freed || c.started {
		return errCode(ErrStageWrong)
	}
	switch p {
	case CParamCompressionLevel:
		if value < MinLevel || value > MaxLevel {
			return errCode(ErrParameterOutOfBound)
		}
		c.level = value
	case CParamWindowLog:
		if value != 0 && (value < WindowLogMin || value > WindowLogMax) {
			return errCode(ErrParameterOutOfBound)
		}
		c.windowLog = value
	case CParamChecksumFlag:
		if value != 0 && value != 1 {
			return errCode(ErrParameterOutOfBound)
		}
		c.checksum = value == 1
	case CParamNbWorkers:
		if value < 0 {
			return errCode(ErrParameterOutOfBound)
		}
		if value > 0 && !MultiThreadSupported() {
			return errCode(ErrParameterUnsupported)
		}
		c.workers = value
	default:
		return errCode(ErrParameterUnsupported)
	}
	return 0
}

// LoadDictionary binds a dictionary to the session. When byRef is true the
// engine borrows the caller's bytes, which must stay alive and unmodified
// for the lifetime of the context. Structured and raw content dictionaries
// are detected automatically, like the native loader.
func (c *CCtx) LoadDictionary(dict []byte, byRef bool) Code {
	if c.freed || c.started {
		return errCode(ErrStageWrong)
	}
	if len(dict) == 0 {
		c.dict = nil
		return 0
	}
	if byRef {
		c.dict = dict
	} else {
		c.dict = append([]byte(nil), dict...)
	}
	return 0
}

// start binds the parameters and spins up the backend encoder. After this
// point the session is immutable.
func (c *CCtx) start() Code {
	if c.started {
		return 0
	}
	workers := c.workers
	if workers < 1 {
		workers = 1
	}
	opts := []zstd.EOption{
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(c.level)),
		zstd.WithEncoderCRC(c.checksum),
		zstd.WithEncoderConcurrency(workers),
		// A frame with no content still gets a header and epilogue.
		zstd.WithZeroFrames(true),
	}
	if c.windowLog != 0 {
		opts = append(opts, zstd.WithWindowSize(1<<c.windowLog))
	}
	if len(c.dict) > 0 {
		if isStructuredDict(c.dict) {
			opts = append(opts, zstd.WithEncoderDict(c.dict))
		} else {
			opts = append(opts, zstd.WithEncoderDictRaw(0, c.dict))
		}
	}
	enc, err := zstd.NewWriter(&c.staged, opts...)
	if err != nil {
		if len(c.dict) > 0 {
			return errCode(ErrDictionaryCorrupted)
		}
		return errCode(ErrParameterOutOfBound)
	}
	c.enc = enc
	c.started = true
	return 0
}

// CompressStream2 performs one streaming step: consumes input, applies the
// directive, and moves staged compressed bytes into out. The returned hint
// is the number of bytes still staged inside the engine; for Flush and End
// directives the operation is complete only once it reaches 0.
func (c *CCtx) CompressStream2(out *OutBuffer, in *InBuffer, dir Directive) Code {
	if c.freed {
		return errCode(ErrStageWrong)
	}
	if c.finished {
		// The frame epilogue has been written; only draining is allowed.
		if in.Pos < len(in.Src) || dir != DirectiveEnd {
			return errCode(ErrStageWrong)
		}
	} else {
		if code := c.start(); IsError(code) {
			return code
		}
		if in.Pos < len(in.Src) {
			if _, err := c.enc.Write(in.Src[in.Pos:]); err != nil {
				return errCode(ErrGeneric)
			}
			in.Pos = len(in.Src)
		}
		switch dir {
		case DirectiveFlush:
			if err := c.enc.Flush(); err != nil {
				return errCode(ErrGeneric)
			}
		case DirectiveEnd:
			if err := c.enc.Close(); err != nil {
				return errCode(ErrGeneric)
			}
			c.finished = true
		}
	}

	if c.staged.Len() > 0 && out.Pos < len(out.Dst) {
		n := copy(out.Dst[out.Pos:], c.staged.Bytes())
		out.Pos += n
		c.staged.Next(n)
	}
	return Code(c.staged.Len())
}

// Reset prepares the context for a new frame, keeping bound parameters.
// Equivalent to freeing and recreating the context with the same
// configuration.
func (c *CCtx) Reset() Code {
	if c.freed {
		return errCode(ErrStageWrong)
	}
	if c.enc != nil {
		c.staged.Reset()
		c.enc.Reset(&c.staged)
	}
	c.finished = false
	return 0
}

// Free releases the context. The engine does not guarantee idempotency:
// the owner must call Free exactly once and issue no operations afterwards.
func (c *CCtx) Free() {
	if c.enc != nil && !c.finished {
		_ = c.enc.Close()
	}
	c.enc = nil
	c.staged.Reset()
	c.freed = true
}
