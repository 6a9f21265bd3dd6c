package raw

import "github.com/miretskiy/zstream/internal/engine"

// Decoder is an in-memory streaming decompressor. It owns one engine
// decompression context with the same ownership and configuration rules as
// Encoder.
//
// Decompression needs no directives: feed compressed bytes and drain output
// until Step reports Hint == 0, which marks a frame boundary. The decoder
// never consumes input past the end of the current frame, so bytes
// following a frame are left in the input cursor for the caller.
type Decoder struct {
	ctx    *engine.DCtx
	closed bool
}

// NewDecoder creates a decoder with default parameters.
func NewDecoder() (*Decoder, error) {
	ctx := engine.CreateDCtx()
	if ctx == nil {
		return nil, ErrAllocation
	}
	return &Decoder{ctx: ctx}, nil
}

// SetMaxWindowLog caps the window size (as log2) this decoder will accept.
// Frames requiring a larger window fail instead of allocating unbounded
// memory. Zero keeps the engine default.
func (d *Decoder) SetMaxWindowLog(windowLog int) error {
	return d.setParameter(engine.DParamWindowLogMax, windowLog)
}

// SetIgnoreChecksum disables content checksum verification.
func (d *Decoder) SetIgnoreChecksum(ignore bool) error {
	v := 0
	if ignore {
		v = 1
	}
	return d.setParameter(engine.DParamForceIgnoreChecksum, v)
}

// SetMaxMemory caps the decoded size of a single frame, in bytes. Guards
// against decompression bombs. Zero keeps the engine default.
func (d *Decoder) SetMaxMemory(n int) error {
	return d.setParameter(engine.DParamMaxMemory, n)
}

func (d *Decoder) setParameter(p engine.DParameter, v int) error {
	if d.closed {
		return ErrClosed
	}
	return codeToError(d.ctx.SetParameter(p, v))
}

// LoadDictionary binds a dictionary for all frames decoded by this
// decoder, copying the bytes.
func (d *Decoder) LoadDictionary(dict []byte) error {
	if d.closed {
		return ErrClosed
	}
	return codeToError(d.ctx.LoadDictionary(dict, false))
}

// LoadDictionaryByRef binds a dictionary without copying. The caller must
// keep dict alive and unmodified for the lifetime of the decoder.
func (d *Decoder) LoadDictionaryByRef(dict []byte) error {
	if d.closed {
		return ErrClosed
	}
	return codeToError(d.ctx.LoadDictionary(dict, true))
}

// Step runs one decompression step. Both cursors are advanced in place and
// the returned Status reports the same movement. Hint == 0 means a frame
// has been fully delivered (or the decoder is idle at a frame boundary);
// a nonzero Hint means more input or more output space is needed.
func (d *Decoder) Step(in *InBuffer, out *OutBuffer) (Status, error) {
	if d.closed {
		return Status{}, ErrClosed
	}
	if out.Remaining() == 0 {
		return Status{}, ErrShortBuffer
	}
	ein := engine.InBuffer{Src: in.Src, Pos: in.Pos}
	eout := engine.OutBuffer{Dst: out.Dst, Pos: out.Pos}
	code := d.ctx.DecompressStream(&eout, &ein)
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

// Reset prepares the decoder for new input, keeping bound parameters and
// clearing any sticky error state.
func (d *Decoder) Reset() error {
	if d.closed {
		return ErrClosed
	}
	return codeToError(d.ctx.Reset())
}

// Close releases the engine context. Safe to call multiple times; only the
// first call releases the context.
func (d *Decoder) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.ctx.Free()
	d.ctx = nil
	return nil
}
