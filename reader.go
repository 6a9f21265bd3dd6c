package zstream

import (
	"errors"
	"fmt"
	"io"

	"github.com/miretskiy/zstream/raw"
)

// Reader decompresses frames pulled from an underlying source. By default
// concatenated frames are decoded transparently, like the zstd command
// line tool; WithSingleFrame stops at the first frame boundary instead,
// leaving trailing bytes unread in the source.
//
// A source that ends mid-frame yields ErrTruncatedFrame; a clean end of
// the last frame yields io.EOF. When the frame carries a content checksum
// it is verified at the frame end: a mismatch produces ErrChecksumMismatch,
// and the frame's bytes, including any already delivered by earlier Reads,
// must be treated as untrusted.
//
// Close releases the engine session. Not safe for concurrent use.
type Reader struct {
	src io.Reader
	dec *raw.Decoder

	buf []byte
	in  raw.InBuffer

	srcEOF bool
	srcErr error // deferred non-EOF source failure

	singleFrame bool
	midFrame    bool // consumed bytes of a frame that has not completed
	frameDone   bool // single-frame mode: first frame fully delivered

	err    error // sticky terminal error
	closed bool
}

// NewReader creates a Reader decompressing from src. The configuration is
// validated up front and bound to the session for its lifetime.
func NewReader(src io.Reader, opts ...ReaderOption) (*Reader, error) {
	cfg := defaultReaderConfig()
	for _, o := range opts {
		o.applyReader(&cfg)
	}
	if err := cfg.validate(cachedCaps()); err != nil {
		return nil, err
	}

	dec, err := raw.NewDecoder()
	if err != nil {
		return nil, err
	}
	if err := configureDecoder(dec, &cfg); err != nil {
		_ = dec.Close()
		return nil, err
	}

	return &Reader{
		src:         src,
		dec:         dec,
		buf:         getBuf(&readerBufPool, cfg.BufSize, raw.DStreamInSize()),
		singleFrame: cfg.SingleFrame,
	}, nil
}

func configureDecoder(dec *raw.Decoder, cfg *readerConfig) error {
	if cfg.MaxWindowLog != 0 {
		if err := dec.SetMaxWindowLog(cfg.MaxWindowLog); err != nil {
			return err
		}
	}
	if cfg.MaxMemory > 0 {
		if err := dec.SetMaxMemory(cfg.MaxMemory); err != nil {
			return err
		}
	}
	if cfg.IgnoreChecksum {
		if err := dec.SetIgnoreChecksum(true); err != nil {
			return err
		}
	}
	if cfg.Dict != nil {
		if cfg.Dict.byRef {
			return dec.LoadDictionaryByRef(cfg.Dict.data)
		}
		return dec.LoadDictionary(cfg.Dict.data)
	}
	return nil
}

// Read decompresses into p. Returns 0, io.EOF once the stream has ended
// cleanly at a frame boundary. Errors are sticky: once Read fails, every
// subsequent call returns the same error.
func (r *Reader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, ErrClosed
	}
	if r.err != nil {
		return 0, r.err
	}
	if len(p) == 0 {
		return 0, nil
	}
	if r.frameDone {
		return 0, io.EOF
	}

	out := raw.OutBuffer{Dst: p}
	for {
		st, err := r.dec.Step(&r.in, &out)
		if err != nil {
			r.err = err
			return out.Pos, r.err
		}
		if st.BytesRead > 0 || st.Hint > 0 {
			r.midFrame = true
		}
		if st.Hint == 0 && r.midFrame {
			// A frame just completed and was fully delivered.
			r.midFrame = false
			if r.singleFrame {
				r.frameDone = true
				if out.Pos > 0 {
					return out.Pos, nil
				}
				return 0, io.EOF
			}
		}
		if out.Remaining() == 0 {
			return out.Pos, nil
		}
		if r.in.Remaining() > 0 {
			continue
		}

		// Input exhausted; decide between refill, clean end, and
		// truncation.
		if r.srcErr != nil {
			r.err = r.srcErr
			return out.Pos, r.err
		}
		if r.srcEOF {
			if r.midFrame {
				r.err = ErrTruncatedFrame
				return out.Pos, r.err
			}
			if out.Pos > 0 {
				return out.Pos, nil
			}
			return 0, io.EOF
		}
		if out.Pos > 0 {
			// Deliver what we have instead of blocking on the source.
			return out.Pos, nil
		}
		r.refill()
	}
}

// refill pulls the next chunk from the source into the scratch buffer.
// Non-EOF source errors are deferred until the bytes that arrived with
// them have been consumed, per the io.Reader contract.
func (r *Reader) refill() {
	n, err := r.src.Read(r.buf)
	r.in = raw.InBuffer{Src: r.buf[:n]}
	if err != nil {
		if errors.Is(err, io.EOF) {
			r.srcEOF = true
		} else {
			r.srcErr = fmt.Errorf("zstream: source read failed: %w", err)
		}
	}
}

// Close releases the engine session and returns the scratch buffer.
// Calling Close again is a no-op.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	err := r.dec.Close()
	putBuf(&readerBufPool, r.buf, raw.DStreamInSize())
	r.buf = nil
	return err
}

// Reset discards all decoding state and continues with a new source,
// keeping the bound parameters. Fails with ErrClosed on a closed Reader.
func (r *Reader) Reset(src io.Reader) error {
	if r.closed {
		return ErrClosed
	}
	if err := r.dec.Reset(); err != nil {
		return err
	}
	r.src = src
	r.in = raw.InBuffer{}
	r.srcEOF = false
	r.srcErr = nil
	r.midFrame = false
	r.frameDone = false
	r.err = nil
	return nil
}

// WriteTo decompresses the remaining stream into w, implementing
// io.WriterTo so io.Copy avoids an intermediate buffer of its own.
func (r *Reader) WriteTo(w io.Writer) (int64, error) {
	var total int64
	chunk := make([]byte, raw.DStreamOutSize())
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			wn, werr := w.Write(chunk[:n])
			total += int64(wn)
			if werr != nil {
				return total, fmt.Errorf("zstream: sink write failed: %w", werr)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return total, nil
			}
			return total, err
		}
	}
}
