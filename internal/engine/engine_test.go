package engine

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCode_ErrorPacking(t *testing.T) {
	codes := []ErrorCode{
		ErrGeneric, ErrPrefixUnknown, ErrFrameUnsupported, ErrWindowTooLarge,
		ErrCorruptionDetected, ErrChecksumWrong, ErrDictionaryCorrupted,
		ErrParameterUnsupported, ErrParameterOutOfBound, ErrStageWrong,
		ErrMemoryAllocation, ErrDstSizeTooSmall, ErrSrcSizeWrong,
	}
	for _, ec := range codes {
		packed := errCode(ec)
		require.True(t, IsError(packed), "code %d should pack as an error", ec)
		require.Equal(t, ec, ErrorCodeOf(packed))
	}
}

func TestCode_HintsAreNotErrors(t *testing.T) {
	for _, hint := range []Code{0, 1, 5, 131072, 1 << 30} {
		require.False(t, IsError(hint))
		require.Equal(t, ErrNoError, ErrorCodeOf(hint))
	}
}

func TestCode_ErrorRangeBoundary(t *testing.T) {
	// The error range covers exactly the top maxErrorCode-1 Code values.
	require.True(t, IsError(errCode(maxErrorCode-1)))
	require.False(t, IsError(errCode(maxErrorCode)))
	require.False(t, IsError(^Code(0)-Code(maxErrorCode)))
}

func TestCode_ErrorName(t *testing.T) {
	require.Equal(t, "Data corruption detected", ErrorName(errCode(ErrCorruptionDetected)))
	require.Equal(t, "Restored data doesn't match checksum", ErrorName(errCode(ErrChecksumWrong)))
	require.Equal(t, "No error detected", ErrorName(0))
	require.Equal(t, "Unspecified error code", ErrorName(errCode(ErrorCode(119))))
}

func TestCompressBound_CoversWorstCase(t *testing.T) {
	for _, size := range []int{0, 1, 100, 1 << 10, 128 << 10, 1 << 20} {
		require.GreaterOrEqual(t, CompressBound(size), size+frameOverhead(size))
	}
}

// frameOverhead is a loose lower bound: magic + minimal header + one block
// header.
func frameOverhead(int) int { return 4 + 2 + 3 }

func TestWindowLogBounds(t *testing.T) {
	require.Equal(t, 10, WindowLogMin)
	require.LessOrEqual(t, 27, WindowLogMax)
	require.Less(t, WindowLogMin, WindowLogMax)
}

// compressAll runs a full streaming compression of src with the given
// buffer sizes, exercising the drain loop on the End directive.
func compressAll(t *testing.T, c *CCtx, src []byte, outChunk int) []byte {
	t.Helper()
	var compressed []byte
	in := InBuffer{Src: src}
	for {
		out := OutBuffer{Dst: make([]byte, outChunk)}
		code := c.CompressStream2(&out, &in, DirectiveEnd)
		require.False(t, IsError(code), "compress: %s", ErrorName(code))
		compressed = append(compressed, out.Dst[:out.Pos]...)
		if code == 0 {
			return compressed
		}
	}
}

// decompressAll streams compressed through d with the given buffer sizes.
func decompressAll(t *testing.T, d *DCtx, compressed []byte, inChunk, outChunk int) []byte {
	t.Helper()
	var decoded []byte
	for off := 0; off < len(compressed); {
		end := min(off+inChunk, len(compressed))
		in := InBuffer{Src: compressed[off:end]}
		for in.Pos < len(in.Src) {
			out := OutBuffer{Dst: make([]byte, outChunk)}
			code := d.DecompressStream(&out, &in)
			require.False(t, IsError(code), "decompress: %s", ErrorName(code))
			decoded = append(decoded, out.Dst[:out.Pos]...)
			if out.Pos == 0 && in.Pos == len(in.Src) {
				break
			}
		}
		off = end
	}
	// Drain anything still staged.
	for {
		in := InBuffer{}
		out := OutBuffer{Dst: make([]byte, outChunk)}
		code := d.DecompressStream(&out, &in)
		require.False(t, IsError(code), "drain: %s", ErrorName(code))
		decoded = append(decoded, out.Dst[:out.Pos]...)
		if out.Pos == 0 {
			return decoded
		}
	}
}

func testPayload(n int) []byte {
	payload := make([]byte, n)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	return payload
}

func TestStreamRoundtrip(t *testing.T) {
	payload := testPayload(300_000)

	c := CreateCCtx()
	defer c.Free()
	require.Equal(t, Code(0), c.SetParameter(CParamCompressionLevel, 5))
	compressed := compressAll(t, c, payload, 4096)
	require.NotEmpty(t, compressed)
	require.Less(t, len(compressed), len(payload))

	d := CreateDCtx()
	defer d.Free()
	decoded := decompressAll(t, d, compressed, 1000, 8192)
	require.Equal(t, payload, decoded)
}

func TestStreamRoundtrip_ChecksumAndTinyBuffers(t *testing.T) {
	payload := testPayload(10_000)

	c := CreateCCtx()
	defer c.Free()
	require.Equal(t, Code(0), c.SetParameter(CParamChecksumFlag, 1))
	compressed := compressAll(t, c, payload, 7)

	d := CreateDCtx()
	defer d.Free()
	decoded := decompressAll(t, d, compressed, 3, 11)
	require.Equal(t, payload, decoded)
}

func TestStreamRoundtrip_EmptyFrame(t *testing.T) {
	c := CreateCCtx()
	defer c.Free()
	compressed := compressAll(t, c, nil, 256)
	require.NotEmpty(t, compressed, "an empty frame still has a header and epilogue")

	d := CreateDCtx()
	defer d.Free()
	require.Empty(t, decompressAll(t, d, compressed, 64, 64))
}

func TestStream_FlushedPrefixDecodes(t *testing.T) {
	payload := testPayload(20_000)

	// Flush everything written so far without ending the frame.
	c := CreateCCtx()
	defer c.Free()
	var flushed []byte
	in := InBuffer{Src: payload}
	for {
		out := OutBuffer{Dst: make([]byte, 4096)}
		code := c.CompressStream2(&out, &in, DirectiveFlush)
		require.False(t, IsError(code), ErrorName(code))
		flushed = append(flushed, out.Dst[:out.Pos]...)
		if code == 0 {
			break
		}
	}

	// The flushed bytes decode fully even though the frame is unfinished.
	d := CreateDCtx()
	defer d.Free()
	din := InBuffer{Src: flushed}
	var decoded []byte
	for {
		out := OutBuffer{Dst: make([]byte, 8192)}
		code := d.DecompressStream(&out, &din)
		require.False(t, IsError(code), ErrorName(code))
		decoded = append(decoded, out.Dst[:out.Pos]...)
		if din.Pos == len(din.Src) && out.Pos == 0 {
			require.Positive(t, code, "an unfinished frame keeps asking for input")
			break
		}
	}
	require.Equal(t, payload, decoded)
}

func TestCCtx_SetParameterBounds(t *testing.T) {
	c := CreateCCtx()
	defer c.Free()

	require.Equal(t, errCode(ErrParameterOutOfBound), c.SetParameter(CParamCompressionLevel, MaxLevel+1))
	require.Equal(t, errCode(ErrParameterOutOfBound), c.SetParameter(CParamCompressionLevel, MinLevel-1))
	require.Equal(t, errCode(ErrParameterOutOfBound), c.SetParameter(CParamWindowLog, WindowLogMax+1))
	require.Equal(t, errCode(ErrParameterOutOfBound), c.SetParameter(CParamChecksumFlag, 2))
	require.Equal(t, errCode(ErrParameterOutOfBound), c.SetParameter(CParamNbWorkers, -1))
	require.Equal(t, errCode(ErrParameterUnsupported), c.SetParameter(CParameter(999), 1))
	require.Equal(t, Code(0), c.SetParameter(CParamCompressionLevel, MinLevel))
	require.Equal(t, Code(0), c.SetParameter(CParamWindowLog, 0))
}

func TestCCtx_ParametersFrozenAfterStart(t *testing.T) {
	c := CreateCCtx()
	defer c.Free()

	in := InBuffer{Src: []byte("x")}
	out := OutBuffer{Dst: make([]byte, 64)}
	code := c.CompressStream2(&out, &in, DirectiveContinue)
	require.False(t, IsError(code))

	require.Equal(t, errCode(ErrStageWrong), c.SetParameter(CParamCompressionLevel, 1))
	require.Equal(t, errCode(ErrStageWrong), c.LoadDictionary([]byte("dict"), false))
}

func TestCCtx_InputAfterEndIsStageError(t *testing.T) {
	c := CreateCCtx()
	defer c.Free()

	compressed := compressAll(t, c, []byte("payload"), 256)
	require.NotEmpty(t, compressed)

	in := InBuffer{Src: []byte("more")}
	out := OutBuffer{Dst: make([]byte, 64)}
	require.Equal(t, errCode(ErrStageWrong), c.CompressStream2(&out, &in, DirectiveContinue))
}

func TestCCtx_ResetStartsNewFrame(t *testing.T) {
	payload := []byte("same payload both times")

	c := CreateCCtx()
	defer c.Free()
	first := compressAll(t, c, payload, 256)
	require.Equal(t, Code(0), c.Reset())
	second := compressAll(t, c, payload, 256)
	require.Equal(t, first, second)

	d := CreateDCtx()
	defer d.Free()
	decoded := decompressAll(t, d, append(first, second...), 64, 64)
	require.Equal(t, append(payload, payload...), decoded)
}

func TestDCtx_ChecksumMismatchFailsFrame(t *testing.T) {
	c := CreateCCtx()
	defer c.Free()
	require.Equal(t, Code(0), c.SetParameter(CParamChecksumFlag, 1))
	compressed := compressAll(t, c, testPayload(5000), 256)

	// The checksum is the last 4 bytes of the frame.
	compressed[len(compressed)-1] ^= 0xFF

	// Decoding is incremental, so bytes of the frame may surface before the
	// mismatch is detected at the frame end; the frame must never complete
	// with a zero code.
	d := CreateDCtx()
	defer d.Free()
	in := InBuffer{Src: compressed}
	var code Code
	for {
		out := OutBuffer{Dst: make([]byte, 8192)}
		code = d.DecompressStream(&out, &in)
		if IsError(code) {
			break
		}
		require.NotEqual(t, Code(0), code, "stream ended without detecting the bad checksum")
	}
	require.Equal(t, ErrChecksumWrong, ErrorCodeOf(code))

	// The failure is sticky until Reset.
	out := OutBuffer{Dst: make([]byte, 16)}
	require.Equal(t, errCode(ErrChecksumWrong), d.DecompressStream(&out, &in))
	require.Equal(t, Code(0), d.Reset())
}

func TestDCtx_IgnoreChecksum(t *testing.T) {
	c := CreateCCtx()
	defer c.Free()
	require.Equal(t, Code(0), c.SetParameter(CParamChecksumFlag, 1))
	payload := testPayload(5000)
	compressed := compressAll(t, c, payload, 256)
	compressed[len(compressed)-1] ^= 0xFF

	d := CreateDCtx()
	defer d.Free()
	require.Equal(t, Code(0), d.SetParameter(DParamForceIgnoreChecksum, 1))
	decoded := decompressAll(t, d, compressed, 512, 8192)
	require.Equal(t, payload, decoded)
}

func TestDCtx_UnknownMagic(t *testing.T) {
	d := CreateDCtx()
	defer d.Free()

	in := InBuffer{Src: []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00}}
	out := OutBuffer{Dst: make([]byte, 16)}
	require.Equal(t, errCode(ErrPrefixUnknown), d.DecompressStream(&out, &in))
}

func TestDCtx_StopsAtFrameBoundary(t *testing.T) {
	c := CreateCCtx()
	defer c.Free()
	compressed := compressAll(t, c, []byte("frame one"), 256)

	trailer := []byte("not part of the frame")
	in := InBuffer{Src: append(append([]byte(nil), compressed...), trailer...)}

	d := CreateDCtx()
	defer d.Free()
	var decoded []byte
	for {
		out := OutBuffer{Dst: make([]byte, 64)}
		code := d.DecompressStream(&out, &in)
		require.False(t, IsError(code), ErrorName(code))
		decoded = append(decoded, out.Dst[:out.Pos]...)
		if code == 0 {
			break
		}
	}
	require.Equal(t, []byte("frame one"), decoded)
	require.Equal(t, len(compressed), in.Pos, "decoder must not consume past the frame end")
}

func TestDCtx_MaxMemoryRejectsBomb(t *testing.T) {
	c := CreateCCtx()
	defer c.Free()
	compressed := compressAll(t, c, make([]byte, 1<<20), 4096) // zeros compress tiny

	d := CreateDCtx()
	defer d.Free()
	require.Equal(t, Code(0), d.SetParameter(DParamMaxMemory, 1<<10))

	in := InBuffer{Src: compressed}
	var code Code
	for {
		out := OutBuffer{Dst: make([]byte, 4096)}
		code = d.DecompressStream(&out, &in)
		if IsError(code) || code == 0 {
			break
		}
	}
	require.True(t, IsError(code), "a 1MiB frame must not decode under a 1KiB cap")
	require.Equal(t, ErrMemoryAllocation, ErrorCodeOf(code))
}

func TestDCtx_ParametersFrozenAfterStart(t *testing.T) {
	d := CreateDCtx()
	defer d.Free()

	in := InBuffer{}
	out := OutBuffer{Dst: make([]byte, 16)}
	require.Equal(t, Code(0), d.DecompressStream(&out, &in))

	require.Equal(t, errCode(ErrStageWrong), d.SetParameter(DParamWindowLogMax, 20))
	require.Equal(t, errCode(ErrStageWrong), d.LoadDictionary([]byte("dict"), false))
}

// --- frame scanner ---

// rawFrame builds a minimal valid frame by hand: magic, FHD with a
// single-segment flag and 1-byte content size field, then raw blocks.
func rawFrame(blocks ...[]byte) []byte {
	var f []byte
	f = binary.LittleEndian.AppendUint32(f, frameMagic)
	var content int
	for _, b := range blocks {
		content += len(b)
	}
	f = append(f, 1<<5, byte(content)) // FHD: single segment, FCS field
	for i, b := range blocks {
		h := uint32(len(b)) << 3 // block type 0 (raw)
		if i == len(blocks)-1 {
			h |= 1 // last block
		}
		f = append(f, byte(h), byte(h>>8), byte(h>>16))
		f = append(f, b...)
	}
	return f
}

func skippableFrame(payload []byte) []byte {
	var f []byte
	f = binary.LittleEndian.AppendUint32(f, skippableMagicBase|0x3)
	f = binary.LittleEndian.AppendUint32(f, uint32(len(payload)))
	return append(f, payload...)
}

// feedAll drives the scanner one byte at a time, the worst case for its
// element accounting, collecting everything it forwards to the decoder.
func feedAll(t *testing.T, s *frameScanner, p []byte) (forwarded []byte, done bool, ec ErrorCode) {
	t.Helper()
	for i := 0; i < len(p); {
		consumed, d, e := s.feed(p[i : i+1])
		require.Equal(t, 1, consumed)
		forwarded = append(forwarded, s.fwd...)
		i += consumed
		if e != ErrNoError {
			return forwarded, d, e
		}
		if d {
			require.Equal(t, len(p), i, "scanner finished before the input ended")
			return forwarded, d, e
		}
	}
	return forwarded, false, ErrNoError
}

func TestFrameScanner_RawBlocks(t *testing.T) {
	frame := rawFrame([]byte("hello "), []byte("world"))
	var s frameScanner
	forwarded, done, ec := feedAll(t, &s, frame)
	require.Equal(t, ErrNoError, ec)
	require.True(t, done)
	require.False(t, s.skippable)
	require.Equal(t, frame, forwarded, "content frames pass through byte for byte")
	require.Equal(t, 0, s.hint())
}

func TestFrameScanner_Skippable(t *testing.T) {
	frame := skippableFrame(bytes.Repeat([]byte{0xAB}, 100))
	var s frameScanner
	forwarded, done, ec := feedAll(t, &s, frame)
	require.Equal(t, ErrNoError, ec)
	require.True(t, done)
	require.True(t, s.skippable)
	require.Empty(t, forwarded, "skippable frames must not reach the decoder")
}

func TestFrameScanner_EmptySkippable(t *testing.T) {
	var s frameScanner
	forwarded, done, ec := feedAll(t, &s, skippableFrame(nil))
	require.Equal(t, ErrNoError, ec)
	require.True(t, done)
	require.Empty(t, forwarded)
}

func TestFrameScanner_ReservedBlockType(t *testing.T) {
	frame := rawFrame([]byte("x"))
	// Flip the block type bits (1..2 of the header) to the reserved value 3.
	frame[6] |= 0x06

	var s frameScanner
	_, _, ec := feedAll(t, &s, frame)
	require.Equal(t, ErrCorruptionDetected, ec)
}

func TestFrameScanner_ReservedHeaderBit(t *testing.T) {
	frame := rawFrame([]byte("x"))
	frame[4] |= 1 << 3 // reserved FHD bit

	var s frameScanner
	_, _, ec := feedAll(t, &s, frame)
	require.Equal(t, ErrFrameUnsupported, ec)
}

func TestFrameScanner_MidFrameAndHint(t *testing.T) {
	frame := rawFrame([]byte("payload"))
	var s frameScanner
	require.False(t, s.midFrame())
	require.Equal(t, 0, s.hint())

	consumed, done, ec := s.feed(frame[:5])
	require.Equal(t, 5, consumed)
	require.False(t, done)
	require.Equal(t, ErrNoError, ec)
	require.True(t, s.midFrame())
	require.Positive(t, s.hint())

	s.reset()
	require.False(t, s.midFrame())
}
