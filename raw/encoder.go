package raw

import "github.com/miretskiy/zstream/internal/engine"

// Encoder is an in-memory streaming compressor. It owns one engine
// compression context, created by NewEncoder and released exactly once by
// Close regardless of how many times Close is called.
//
// Parameters may be set between NewEncoder and the first Step; afterwards
// setters fail with ErrAlreadyStarted. Use Reset to start a new frame with
// the same parameters.
type Encoder struct {
	ctx    *engine.CCtx
	closed bool
}

// NewEncoder creates an encoder with default parameters.
func NewEncoder() (*Encoder, error) {
	ctx := engine.CreateCCtx()
	if ctx == nil {
		return nil, ErrAllocation
	}
	return &Encoder{ctx: ctx}, nil
}

// SetLevel sets the compression level. See LevelRange for valid values.
func (e *Encoder) SetLevel(level int) error {
	return e.setParameter(engine.CParamCompressionLevel, level)
}

// SetWindowLog sets the match window as log2 of its byte size. Zero keeps
// the engine default for the configured level.
func (e *Encoder) SetWindowLog(windowLog int) error {
	return e.setParameter(engine.CParamWindowLog, windowLog)
}

// SetChecksum controls whether frames carry a content checksum trailer.
func (e *Encoder) SetChecksum(enabled bool) error {
	v := 0
	if enabled {
		v = 1
	}
	return e.setParameter(engine.CParamChecksumFlag, v)
}

// SetWorkers sets the number of internal engine worker threads. Zero means
// single-threaded. Nonzero values require MultiThreadSupported.
func (e *Encoder) SetWorkers(n int) error {
	return e.setParameter(engine.CParamNbWorkers, n)
}

func (e *Encoder) setParameter(p engine.CParameter, v int) error {
	if e.closed {
		return ErrClosed
	}
	return codeToError(e.ctx.SetParameter(p, v))
}

// LoadDictionary binds a dictionary to the session, copying the bytes.
func (e *Encoder) LoadDictionary(dict []byte) error {
	if e.closed {
		return ErrClosed
	}
	return codeToError(e.ctx.LoadDictionary(dict, false))
}

// LoadDictionaryByRef binds a dictionary without copying. The caller must
// keep dict alive and unmodified for the lifetime of the encoder.
func (e *Encoder) LoadDictionaryByRef(dict []byte) error {
	if e.closed {
		return ErrClosed
	}
	return codeToError(e.ctx.LoadDictionary(dict, true))
}

// Step runs one compression step: consumes input, applies the directive,
// and writes compressed bytes into out. Both cursors are advanced in place
// and the returned Status reports the same movement, so partial progress is
// visible even when an error is returned.
//
// A Flush or End directive is complete only once Step returns Hint == 0;
// keep calling with an empty input until then.
func (e *Encoder) Step(in *InBuffer, out *OutBuffer, dir Directive) (Status, error) {
	if e.closed {
		return Status{}, ErrClosed
	}
	if out.Remaining() == 0 {
		return Status{}, ErrShortBuffer
	}
	ein := engine.InBuffer{Src: in.Src, Pos: in.Pos}
	eout := engine.OutBuffer{Dst: out.Dst, Pos: out.Pos}
	code := e.ctx.CompressStream2(&eout, &ein, engine.Directive(dir))
	st := Status{
		BytesRead:    ein.Pos - in.Pos,
		BytesWritten: eout.Pos - out.Pos,
	}
	in.Pos, out.Pos = ein.Pos, eout.Pos
	if engine.IsError(code) {
		return st, codeToError(code)
	}
	st.Hint = int(code)
	return st, nil
}

// Reset prepares the encoder for a new frame, keeping bound parameters.
// Cheaper than Close plus NewEncoder.
func (e *Encoder) Reset() error {
	if e.closed {
		return ErrClosed
	}
	return codeToError(e.ctx.Reset())
}

// Close releases the engine context. Safe to call multiple times and safe
// to call after an error; only the first call releases the context.
func (e *Encoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	e.ctx.Free()
	e.ctx = nil
	return nil
}
