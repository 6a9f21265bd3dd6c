package zstream

import (
	"fmt"
	"io"

	"github.com/miretskiy/zstream/raw"
)

// Writer compresses everything written to it into a single frame on the
// underlying sink. Produced bytes are pushed to the sink as soon as they
// exist; the Writer itself holds only one fixed, reused output buffer.
//
// Close finishes the frame (writing the epilogue and checksum, if enabled)
// and releases the engine session; a second Close is a no-op, so deferred
// Close alongside an explicit one is safe. After Close every other
// operation fails with ErrClosed.
//
// Not safe for concurrent use.
type Writer struct {
	dst    io.Writer
	enc    *raw.Encoder
	buf    []byte
	closed bool
}

// NewWriter creates a Writer compressing into dst. The configuration is
// validated up front and bound to the session for its lifetime.
func NewWriter(dst io.Writer, opts ...WriterOption) (*Writer, error) {
	cfg := defaultWriterConfig()
	for _, o := range opts {
		o.applyWriter(&cfg)
	}
	if err := cfg.validate(cachedCaps()); err != nil {
		return nil, err
	}

	enc, err := raw.NewEncoder()
	if err != nil {
		return nil, err
	}
	if err := configureEncoder(enc, &cfg); err != nil {
		_ = enc.Close()
		return nil, err
	}

	return &Writer{
		dst: dst,
		enc: enc,
		buf: getBuf(&writerBufPool, cfg.BufSize, raw.CStreamOutSize()),
	}, nil
}

func configureEncoder(enc *raw.Encoder, cfg *writerConfig) error {
	if err := enc.SetLevel(cfg.Level); err != nil {
		return err
	}
	if cfg.WindowLog != 0 {
		if err := enc.SetWindowLog(cfg.WindowLog); err != nil {
			return err
		}
	}
	if err := enc.SetChecksum(cfg.Checksum); err != nil {
		return err
	}
	if err := enc.SetWorkers(cfg.Workers); err != nil {
		return err
	}
	if cfg.Dict != nil {
		if cfg.Dict.byRef {
			return enc.LoadDictionaryByRef(cfg.Dict.data)
		}
		return enc.LoadDictionary(cfg.Dict.data)
	}
	return nil
}

// Write compresses p. It always accepts all of p unless the engine or the
// sink fails, in which case the count of bytes already consumed is
// returned alongside the error.
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrClosed
	}
	in := raw.InBuffer{Src: p}
	for {
		out := raw.OutBuffer{Dst: w.buf}
		st, err := w.enc.Step(&in, &out, raw.Continue)
		if serr := w.sink(&out); serr != nil {
			return in.Pos, serr
		}
		if err != nil {
			return in.Pos, err
		}
		if in.Remaining() == 0 && st.Hint == 0 {
			return len(p), nil
		}
	}
}

// Flush drains all pending input through the engine so that every byte
// written so far is emitted as complete, independently decodable data.
// Flushing costs compression ratio; it is never done implicitly.
func (w *Writer) Flush() error {
	if w.closed {
		return ErrClosed
	}
	return w.drain(raw.Flush)
}

// Close finishes the frame, releases the engine session, and returns the
// scratch buffer. Calling Close again is a no-op. The session is released
// even when finishing fails, so an errored Writer never leaks resources.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	err := w.drain(raw.End)
	w.closed = true
	if cerr := w.enc.Close(); err == nil {
		err = cerr
	}
	putBuf(&writerBufPool, w.buf, raw.CStreamOutSize())
	w.buf = nil
	return err
}

// Reset starts a new frame into dst, keeping the bound parameters.
// Equivalent to Close plus NewWriter with the same options, minus the
// session setup cost. Fails with ErrClosed on a closed Writer.
func (w *Writer) Reset(dst io.Writer) error {
	if w.closed {
		return ErrClosed
	}
	if err := w.enc.Reset(); err != nil {
		return err
	}
	w.dst = dst
	return nil
}

// drain repeatedly steps the encoder with no input until the directive is
// complete, forwarding produced bytes to the sink each step.
func (w *Writer) drain(dir raw.Directive) error {
	var in raw.InBuffer
	for {
		out := raw.OutBuffer{Dst: w.buf}
		st, err := w.enc.Step(&in, &out, dir)
		if serr := w.sink(&out); serr != nil {
			return serr
		}
		if err != nil {
			return err
		}
		if st.Hint == 0 {
			return nil
		}
	}
}

func (w *Writer) sink(out *raw.OutBuffer) error {
	if out.Pos == 0 {
		return nil
	}
	if _, err := w.dst.Write(out.Bytes()); err != nil {
		return fmt.Errorf("zstream: sink write failed: %w", err)
	}
	return nil
}
