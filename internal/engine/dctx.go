package engine

import (
	"encoding/binary"
	"errors"
	"io"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
)

// Frame magic numbers, little endian on the wire.
const (
	frameMagic         = 0xFD2FB528
	skippableMagicBase = 0x184D2A50
	skippableMagicMask = 0xFFFFFFF0
)

// DParameter selects a decompression parameter.
type DParameter int

const (
	DParamWindowLogMax DParameter = 100
	// DParamForceIgnoreChecksum disables content checksum verification.
	DParamForceIgnoreChecksum DParameter = 1000
	// DParamMaxMemory caps the decoded size of a single frame, in bytes.
	DParamMaxMemory DParameter = 1001
)

// DCtx is one decompression session. Like CCtx it is exclusively owned and
// freed exactly once. The context never consumes input past the end of the
// frame it is currently decoding, so callers can detect frame boundaries
// and hand leftover bytes to other consumers.
//
// Decoding is incremental: complete blocks become output as soon as they
// arrive, so data an encoder flushed mid-frame is decodable immediately.
// The content checksum is verified at the frame end against a running
// digest of the delivered bytes; a mismatch surfaces then, after earlier
// bytes of the frame have already been handed out.
type DCtx struct {
	windowLogMax   int
	ignoreChecksum bool
	maxMemory      uint64
	dict           []byte

	started bool
	freed   bool
	failed  ErrorCode // sticky until Reset

	dec *zstd.Decoder
	fr  frameScanner

	// Current frame decode state.
	pump      *decodePump
	finishing bool // frame input complete, draining the decoder
	digest    *xxhash.Digest
}

// CreateDCtx allocates a new decompression context with default parameters.
func CreateDCtx() *DCtx {
	return &DCtx{}
}

// SetParameter sets one decompression parameter. Fails with a stage error
// once the first step has run.
func (d *DCtx) SetParameter(p DParameter, value int) Code {
	if d.freed || d.started {
		return errCode(ErrStageWrong)
	}
	switch p {
	case DParamWindowLogMax:
		if value != 0 && (value < WindowLogMin || value > WindowLogMax) {
			return errCode(ErrParameterOutOfBound)
		}
		d.windowLogMax = value
	case DParamForceIgnoreChecksum:
		if value != 0 && value != 1 {
			return errCode(ErrParameterOutOfBound)
		}
		d.ignoreChecksum = value == 1
	case DParamMaxMemory:
		if value < 0 {
			return errCode(ErrParameterOutOfBound)
		}
		d.maxMemory = uint64(value)
	default:
		return errCode(ErrParameterUnsupported)
	}
	return 0
}

// LoadDictionary binds a dictionary for all frames decoded by this context.
// Ownership semantics match CCtx.LoadDictionary.
func (d *DCtx) LoadDictionary(dict []byte, byRef bool) Code {
	if d.freed || d.started {
		return errCode(ErrStageWrong)
	}
	if len(dict) == 0 {
		d.dict = nil
		return 0
	}
	if byRef {
		d.dict = dict
	} else {
		d.dict = append([]byte(nil), dict...)
	}
	return 0
}

func (d *DCtx) start() Code {
	if d.started {
		return 0
	}
	// Checksums are verified here against a digest of the delivered bytes,
	// so the backend's own check is disabled.
	opts := []zstd.DOption{
		zstd.WithDecoderConcurrency(1),
		zstd.IgnoreChecksum(true),
	}
	if d.windowLogMax != 0 {
		opts = append(opts, zstd.WithDecoderMaxWindow(1<<uint(d.windowLogMax)))
	}
	if d.maxMemory > 0 {
		opts = append(opts, zstd.WithDecoderMaxMemory(d.maxMemory))
	}
	if len(d.dict) > 0 {
		if isStructuredDict(d.dict) {
			opts = append(opts, zstd.WithDecoderDicts(d.dict))
		} else {
			opts = append(opts, zstd.WithDecoderDictRaw(0, d.dict))
		}
	}
	dec, err := zstd.NewReader(nil, opts...)
	if err != nil {
		if len(d.dict) > 0 {
			return errCode(ErrDictionaryCorrupted)
		}
		return errCode(ErrParameterOutOfBound)
	}
	d.dec = dec
	d.started = true
	return 0
}

// DecompressStream performs one streaming step: consumes input up to at
// most one frame boundary and moves decoded bytes into out as they become
// available, without waiting for the frame to end. The returned hint is 0
// when a frame has been fully delivered (or the context is idle between
// frames); a nonzero hint means the engine needs more input or more output
// space to make progress.
func (d *DCtx) DecompressStream(out *OutBuffer, in *InBuffer) Code {
	if d.freed {
		return errCode(ErrStageWrong)
	}
	if d.failed != ErrNoError {
		return errCode(d.failed)
	}
	if code := d.start(); IsError(code) {
		return code
	}

	for {
		if d.pump != nil {
			n, backlog, done, derr := d.pump.take(out.Dst[out.Pos:])
			if n > 0 {
				d.digest.Write(out.Dst[out.Pos : out.Pos+n])
				out.Pos += n
			}
			if backlog > 0 {
				return Code(backlog)
			}
			if done {
				ec := d.finishFrame(derr)
				d.pump = nil
				d.finishing = false
				d.fr.reset()
				if ec != ErrNoError {
					d.failed = ec
					return errCode(ec)
				}
				return 0
			}
			if d.finishing {
				// All frame input is in; wait for the decoder to drain.
				d.pump.quiesce()
				continue
			}
		}

		if in.Pos >= len(in.Src) {
			if d.pump != nil && d.pump.quiesce() {
				continue
			}
			return Code(d.fr.hint())
		}

		consumed, done, ec := d.fr.feed(in.Src[in.Pos:])
		in.Pos += consumed
		if ec != ErrNoError {
			d.abortPump()
			d.failed = ec
			return errCode(ec)
		}
		if len(d.fr.fwd) > 0 {
			if d.pump == nil {
				if ec := d.startFrame(); ec != ErrNoError {
					d.failed = ec
					return errCode(ec)
				}
			}
			d.pump.feed(d.fr.fwd)
		}
		if done {
			if d.fr.skippable {
				// Skippable frames carry no content; keep scanning.
				d.fr.reset()
				continue
			}
			d.pump.finish()
			d.finishing = true
		}
	}
}

// startFrame spins up a pump for the frame whose magic the scanner just
// recognized.
func (d *DCtx) startFrame() ErrorCode {
	if d.digest == nil {
		d.digest = xxhash.New()
	} else {
		d.digest.Reset()
	}
	d.pump = newDecodePump()
	if err := d.dec.Reset(d.pump); err != nil {
		d.pump = nil
		return ErrGeneric
	}
	go d.pump.run(d.dec)
	return ErrNoError
}

// finishFrame classifies the decoder's terminal result once every decoded
// byte of the frame has been delivered. A clean end still fails here when
// the content checksum does not match the delivered bytes.
func (d *DCtx) finishFrame(err error) ErrorCode {
	if err != nil && !errors.Is(err, io.EOF) {
		switch {
		case errors.Is(err, zstd.ErrWindowSizeExceeded), errors.Is(err, zstd.ErrWindowSizeTooSmall):
			// The backend folds the decoded-memory budget into its window
			// check; attribute the failure to whichever cap is configured.
			if d.windowLogMax == 0 && d.maxMemory > 0 {
				return ErrMemoryAllocation
			}
			return ErrWindowTooLarge
		case errors.Is(err, zstd.ErrDecoderSizeExceeded):
			return ErrMemoryAllocation
		default:
			return ErrCorruptionDetected
		}
	}
	if d.fr.hasChecksum && !d.ignoreChecksum {
		if uint32(d.digest.Sum64()) != d.fr.trailer {
			return ErrChecksumWrong
		}
	}
	return ErrNoError
}

// abortPump abandons the in-flight frame, if any, and joins its goroutine.
func (d *DCtx) abortPump() {
	if d.pump == nil {
		return
	}
	d.pump.abort()
	d.pump = nil
	d.finishing = false
}

// Reset prepares the context for new input, keeping bound parameters and
// clearing any sticky error. Equivalent to freeing and recreating the
// context with the same configuration.
func (d *DCtx) Reset() Code {
	if d.freed {
		return errCode(ErrStageWrong)
	}
	d.abortPump()
	d.fr.reset()
	d.failed = ErrNoError
	return 0
}

// Free releases the context. Not idempotent by contract: call exactly once.
func (d *DCtx) Free() {
	d.abortPump()
	if d.dec != nil {
		d.dec.Close()
	}
	d.dec = nil
	d.fr.reset()
	d.freed = true
}

// pumpHighWater bounds the undelivered decoded backlog of one frame.
const pumpHighWater = DStreamOutSize

// decodePump runs the pull-based backend decoder for one frame on its own
// goroutine, bridging it to the push-style streaming contract. The context
// feeds compressed bytes in and takes decoded bytes out; the goroutine
// parks when it needs input or when the outbound backlog hits the high
// water mark, so memory stays bounded however far the frame inflates.
type decodePump struct {
	mu   sync.Mutex
	cond sync.Cond

	in    []byte
	inEOF bool

	out    []byte
	outPos int

	idle bool  // decoder parked waiting for input
	drop bool  // context abandoned the frame
	done bool
	err  error // terminal decoder result, io.EOF on a clean frame end
}

func newDecodePump() *decodePump {
	p := &decodePump{}
	p.cond.L = &p.mu
	return p
}

// Read supplies the backend decoder with frame bytes, parking until the
// context feeds more or ends the frame.
func (p *decodePump) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.in) == 0 && !p.inEOF {
		p.idle = true
		p.cond.Broadcast()
		p.cond.Wait()
	}
	p.idle = false
	if len(p.in) == 0 {
		return 0, io.EOF
	}
	n := copy(b, p.in)
	p.in = p.in[n:]
	return n, nil
}

// run decodes until the frame ends or fails.
func (p *decodePump) run(dec *zstd.Decoder) {
	buf := make([]byte, DStreamOutSize)
	for {
		n, err := dec.Read(buf)
		p.mu.Lock()
		if n > 0 && !p.drop {
			p.out = append(p.out, buf[:n]...)
		}
		if err != nil {
			p.done = true
			p.err = err
			p.cond.Broadcast()
			p.mu.Unlock()
			return
		}
		for len(p.out)-p.outPos >= pumpHighWater && !p.drop {
			p.cond.Broadcast()
			p.cond.Wait()
		}
		p.cond.Broadcast()
		p.mu.Unlock()
	}
}

// feed hands compressed bytes to the decoder.
func (p *decodePump) feed(b []byte) {
	p.mu.Lock()
	p.in = append(p.in, b...)
	p.idle = false
	p.cond.Broadcast()
	p.mu.Unlock()
}

// finish marks the end of the frame's input.
func (p *decodePump) finish() {
	p.mu.Lock()
	p.inEOF = true
	p.idle = false
	p.cond.Broadcast()
	p.mu.Unlock()
}

// take moves decoded bytes into dst, reporting the backlog left behind and
// whether the decoder has finished. done is reported only once the backlog
// is fully drained, so err is final by then.
func (p *decodePump) take(dst []byte) (n, backlog int, done bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n = copy(dst, p.out[p.outPos:])
	p.outPos += n
	backlog = len(p.out) - p.outPos
	if backlog == 0 {
		p.out = p.out[:0]
		p.outPos = 0
	}
	p.cond.Broadcast()
	return n, backlog, p.done && backlog == 0, p.err
}

// quiesce parks the context until the decoder has produced output,
// finished, or parked for more input. Reports whether a take can make
// progress.
func (p *decodePump) quiesce() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.out)-p.outPos == 0 && !p.idle && !p.done {
		p.cond.Wait()
	}
	return len(p.out)-p.outPos > 0 || p.done
}

// abort abandons the frame and joins the decoder goroutine.
func (p *decodePump) abort() {
	p.mu.Lock()
	p.drop = true
	p.inEOF = true
	p.idle = false
	p.cond.Broadcast()
	for !p.done {
		p.cond.Wait()
	}
	p.mu.Unlock()
}

// scanState enumerates the structural element the scanner is collecting.
type scanState int

const (
	scanMagic scanState = iota
	scanSkipSize
	scanSkipPayload
	scanFHD
	scanHeaderRest
	scanBlockHeader
	scanBlockPayload
	scanChecksum
)

// frameScanner walks the zstd frame structure byte by byte so that the
// context knows exactly where the current frame ends and never consumes
// beyond it. Content frame bytes pass through to the decoder as they are
// recognized; skippable frame bytes are discarded. The scanner does not
// interpret block contents.
type frameScanner struct {
	state scanState
	need  int // bytes missing from the current element

	elem []byte // the element being collected, when it must be inspected
	fwd  []byte // bytes to hand to the decoder, valid until the next feed

	trailer     uint32 // content checksum, once scanned
	skippable   bool
	hasChecksum bool
	lastBlock   bool
}

func (s *frameScanner) reset() {
	*s = frameScanner{elem: s.elem[:0], fwd: s.fwd[:0]}
}

// hint suggests how much input the scanner needs next. Zero means the
// scanner is idle at a frame boundary.
func (s *frameScanner) hint() int {
	if s.state == scanMagic && len(s.elem) == 0 {
		return 0
	}
	if s.need > 0 {
		return s.need
	}
	return 1
}

// midFrame reports whether any bytes of an unfinished frame have been seen.
func (s *frameScanner) midFrame() bool {
	return s.state != scanMagic || len(s.elem) > 0
}

// feed consumes bytes from p, returning how many were taken and whether the
// frame is now complete. It stops at the frame boundary. Bytes destined for
// the decoder are collected in s.fwd, which is reset on every call.
func (s *frameScanner) feed(p []byte) (consumed int, done bool, ec ErrorCode) {
	s.fwd = s.fwd[:0]
	if s.state == scanMagic && s.need == 0 {
		s.need = 4
		s.skippable = false
		s.hasChecksum = false
		s.lastBlock = false
	}
	for len(p) > 0 {
		n := min(s.need, len(p))
		switch s.state {
		case scanMagic, scanSkipSize, scanFHD, scanBlockHeader, scanChecksum:
			s.elem = append(s.elem, p[:n]...)
		case scanSkipPayload:
			// Discarded.
		default:
			s.fwd = append(s.fwd, p[:n]...)
		}
		p = p[n:]
		consumed += n
		s.need -= n
		if s.need > 0 {
			return consumed, false, ErrNoError
		}
		done, ec = s.advance()
		if ec != ErrNoError || done {
			return consumed, done, ec
		}
	}
	return consumed, false, ErrNoError
}

// advance transitions to the next structural element once the current one
// is complete. Returns done=true at the end of a frame.
func (s *frameScanner) advance() (bool, ErrorCode) {
	switch s.state {
	case scanMagic:
		magic := binary.LittleEndian.Uint32(s.elem)
		switch {
		case magic == frameMagic:
			s.fwd = append(s.fwd, s.elem...)
			s.elem = s.elem[:0]
			s.state, s.need = scanFHD, 1
		case magic&skippableMagicMask == skippableMagicBase:
			s.elem = s.elem[:0]
			s.skippable = true
			s.state, s.need = scanSkipSize, 4
		default:
			s.elem = s.elem[:0]
			return false, ErrPrefixUnknown
		}

	case scanSkipSize:
		size := int(binary.LittleEndian.Uint32(s.elem))
		s.elem = s.elem[:0]
		if size == 0 {
			s.state, s.need = scanMagic, 0
			return true, ErrNoError
		}
		s.state, s.need = scanSkipPayload, size

	case scanSkipPayload:
		s.state, s.need = scanMagic, 0
		return true, ErrNoError

	case scanFHD:
		fhd := s.elem[0]
		if fhd&(1<<3) != 0 {
			return false, ErrFrameUnsupported // reserved bit set
		}
		s.fwd = append(s.fwd, s.elem...)
		s.elem = s.elem[:0]
		singleSegment := fhd&(1<<5) != 0
		s.hasChecksum = fhd&(1<<2) != 0
		rest := 0
		if !singleSegment {
			rest++ // window descriptor
		}
		switch fhd & 3 { // dictionary ID field
		case 1:
			rest++
		case 2:
			rest += 2
		case 3:
			rest += 4
		}
		switch fhd >> 6 { // frame content size field
		case 0:
			if singleSegment {
				rest++
			}
		case 1:
			rest += 2
		case 2:
			rest += 4
		case 3:
			rest += 8
		}
		if rest == 0 {
			s.state, s.need = scanBlockHeader, 3
		} else {
			s.state, s.need = scanHeaderRest, rest
		}

	case scanHeaderRest:
		s.state, s.need = scanBlockHeader, 3

	case scanBlockHeader:
		h := s.elem
		raw := uint32(h[0]) | uint32(h[1])<<8 | uint32(h[2])<<16
		s.lastBlock = raw&1 != 0
		blockType := (raw >> 1) & 3
		size := int(raw >> 3)
		if blockType == 3 {
			return false, ErrCorruptionDetected // reserved block type
		}
		s.fwd = append(s.fwd, s.elem...)
		s.elem = s.elem[:0]
		if blockType == 1 {
			size = 1 // RLE blocks store a single byte
		}
		if size > 0 {
			s.state, s.need = scanBlockPayload, size
			break
		}
		fallthrough

	case scanBlockPayload:
		if !s.lastBlock {
			s.state, s.need = scanBlockHeader, 3
			break
		}
		if s.hasChecksum {
			s.state, s.need = scanChecksum, 4
			break
		}
		s.state, s.need = scanMagic, 0
		return true, ErrNoError

	case scanChecksum:
		s.trailer = binary.LittleEndian.Uint32(s.elem)
		s.fwd = append(s.fwd, s.elem...)
		s.elem = s.elem[:0]
		s.state, s.need = scanMagic, 0
		return true, ErrNoError
	}
	return false, ErrNoError
}
