package zstream

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// compressStream produces one complete frame with a Writer.
func compressStream(t *testing.T, payload []byte, opts ...WriterOption) []byte {
	t.Helper()
	var sink bytes.Buffer
	w, err := NewWriter(&sink, opts...)
	require.NoError(t, err)
	_, err = w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return sink.Bytes()
}

// skippableFrame builds a skippable frame envelope around payload.
func skippableFrame(payload []byte) []byte {
	var f []byte
	f = binary.LittleEndian.AppendUint32(f, 0x184D2A50)
	f = binary.LittleEndian.AppendUint32(f, uint32(len(payload)))
	return append(f, payload...)
}

func TestReader_RoundtripParameters(t *testing.T) {
	payload := testPayload(100_000)

	cases := []struct {
		name string
		opts []WriterOption
	}{
		{"default", nil},
		{"fastest", []WriterOption{WithLevel(-3)}},
		{"level1", []WriterOption{WithLevel(1)}},
		{"level19", []WriterOption{WithLevel(19)}},
		{"checksum", []WriterOption{WithChecksum(true)}},
		{"window20", []WriterOption{WithWindowLog(20)}},
		{"combined", []WriterOption{WithLevel(9), WithChecksum(true), WithWindowLog(18)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			compressed := compressStream(t, payload, tc.opts...)
			require.Equal(t, payload, decodeStream(t, compressed))
		})
	}
}

func TestReader_MultiFrameConcat(t *testing.T) {
	a := compressStream(t, []byte("first frame"))
	b := compressStream(t, []byte(" second frame"), WithChecksum(true))
	c := compressStream(t, []byte(" third frame"), WithLevel(19))

	stream := append(append(append([]byte(nil), a...), b...), c...)
	require.Equal(t, []byte("first frame second frame third frame"), decodeStream(t, stream))
}

func TestReader_SingleFrame(t *testing.T) {
	frame := compressStream(t, []byte("only this"))
	stream := append(append([]byte(nil), frame...), "trailing junk that must never be parsed"...)

	r, err := NewReader(bytes.NewReader(stream), WithSingleFrame())
	require.NoError(t, err)
	defer r.Close()

	decoded, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, []byte("only this"), decoded)

	// The boundary is final: further reads keep reporting EOF.
	n, err := r.Read(make([]byte, 16))
	require.Zero(t, n)
	require.ErrorIs(t, err, io.EOF)
}

func TestReader_SingleFrame_RejectsNothing(t *testing.T) {
	// Without the option the same stream fails on the trailing junk.
	frame := compressStream(t, []byte("only this"))
	stream := append(append([]byte(nil), frame...), "trailing junk"...)

	r, err := NewReader(bytes.NewReader(stream))
	require.NoError(t, err)
	defer r.Close()

	_, err = io.ReadAll(r)
	require.Error(t, err)
	var engErr *EngineError
	require.True(t, errors.As(err, &engErr))
}

func TestReader_TruncatedFrame(t *testing.T) {
	frame := compressStream(t, testPayload(100_000))

	r, err := NewReader(bytes.NewReader(frame[:len(frame)-10]))
	require.NoError(t, err)
	defer r.Close()

	_, err = io.ReadAll(r)
	require.ErrorIs(t, err, ErrTruncatedFrame)

	// The error is sticky.
	_, err = r.Read(make([]byte, 16))
	require.ErrorIs(t, err, ErrTruncatedFrame)
}

func TestReader_TruncatedMidHeader(t *testing.T) {
	frame := compressStream(t, []byte("payload"))

	r, err := NewReader(bytes.NewReader(frame[:3]))
	require.NoError(t, err)
	defer r.Close()

	_, err = io.ReadAll(r)
	require.ErrorIs(t, err, ErrTruncatedFrame)
}

func TestReader_IgnoreChecksum(t *testing.T) {
	payload := testPayload(10_000)
	frame := compressStream(t, payload, WithChecksum(true))
	frame[len(frame)-1] ^= 0xFF

	require.Equal(t, payload, decodeStream(t, frame, WithIgnoreChecksum(true)))
}

func TestReader_SkippableFrames(t *testing.T) {
	frame := compressStream(t, []byte("content"))

	var stream []byte
	stream = append(stream, skippableFrame([]byte("metadata blob"))...)
	stream = append(stream, frame...)
	stream = append(stream, skippableFrame(nil)...)

	require.Equal(t, []byte("content"), decodeStream(t, stream))
}

func TestReader_EmptySource(t *testing.T) {
	r, err := NewReader(bytes.NewReader(nil))
	require.NoError(t, err)
	defer r.Close()

	decoded, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Empty(t, decoded)
}

func TestReader_EmptyFrame(t *testing.T) {
	frame := compressStream(t, nil)
	require.Empty(t, decodeStream(t, frame))
}

func TestReader_GarbageInput(t *testing.T) {
	r, err := NewReader(bytes.NewReader([]byte("this is not a zstd stream")))
	require.NoError(t, err)
	defer r.Close()

	_, err = io.ReadAll(r)
	require.Error(t, err)
	var engErr *EngineError
	require.True(t, errors.As(err, &engErr))
	require.Equal(t, 10, engErr.Code) // unknown frame descriptor
}

func TestReader_SourceErrorPropagates(t *testing.T) {
	srcErr := errors.New("connection reset")
	frame := compressStream(t, testPayload(50_000))

	// Deliver half the frame, then fail.
	src := io.MultiReader(
		bytes.NewReader(frame[:len(frame)/2]),
		&erroringReader{err: srcErr},
	)
	r, err := NewReader(src)
	require.NoError(t, err)
	defer r.Close()

	_, err = io.ReadAll(r)
	require.ErrorIs(t, err, srcErr)
}

type erroringReader struct{ err error }

func (e *erroringReader) Read([]byte) (int, error) { return 0, e.err }

func TestReader_OperationsAfterClose(t *testing.T) {
	r, err := NewReader(bytes.NewReader(nil))
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	_, err = r.Read(make([]byte, 1))
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, r.Reset(bytes.NewReader(nil)), ErrClosed)
}

func TestReader_Reset(t *testing.T) {
	first := compressStream(t, []byte("first stream"))
	second := compressStream(t, []byte("second stream"))

	r, err := NewReader(bytes.NewReader(first))
	require.NoError(t, err)
	defer r.Close()

	decoded, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, []byte("first stream"), decoded)

	require.NoError(t, r.Reset(bytes.NewReader(second)))
	decoded, err = io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, []byte("second stream"), decoded)
}

func TestReader_ResetClearsStickyError(t *testing.T) {
	frame := compressStream(t, testPayload(10_000))

	r, err := NewReader(bytes.NewReader(frame[:len(frame)-4]))
	require.NoError(t, err)
	defer r.Close()

	_, err = io.ReadAll(r)
	require.ErrorIs(t, err, ErrTruncatedFrame)

	require.NoError(t, r.Reset(bytes.NewReader(frame)))
	decoded, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, testPayload(10_000), decoded)
}

func TestReader_WriteTo(t *testing.T) {
	payload := testPayload(300_000)
	frame := compressStream(t, payload)

	r, err := NewReader(bytes.NewReader(frame))
	require.NoError(t, err)
	defer r.Close()

	var sink bytes.Buffer
	n, err := io.Copy(&sink, r) // dispatches to WriteTo
	require.NoError(t, err)
	require.Equal(t, int64(len(payload)), n)
	require.Equal(t, payload, sink.Bytes())
}

func TestReader_SmallReads(t *testing.T) {
	payload := testPayload(10_000)
	frame := compressStream(t, payload)

	r, err := NewReader(bytes.NewReader(frame), WithBufferSize(13))
	require.NoError(t, err)
	defer r.Close()

	var decoded []byte
	buf := make([]byte, 7)
	for {
		n, rerr := r.Read(buf)
		decoded = append(decoded, buf[:n]...)
		if rerr != nil {
			require.ErrorIs(t, rerr, io.EOF)
			break
		}
	}
	require.Equal(t, payload, decoded)
}

func TestReader_MaxMemory(t *testing.T) {
	frame := compressStream(t, make([]byte, 1<<20)) // zeros compress tiny

	r, err := NewReader(bytes.NewReader(frame), WithMaxMemory(1<<10))
	require.NoError(t, err)
	defer r.Close()

	_, err = io.ReadAll(r)
	require.Error(t, err, "a 1MiB frame must not decode under a 1KiB cap")
}

func TestReader_MaxWindowLog(t *testing.T) {
	frame := compressStream(t, testPayload(200_000), WithWindowLog(22))

	r, err := NewReader(bytes.NewReader(frame), WithMaxWindowLog(10))
	require.NoError(t, err)
	defer r.Close()

	_, err = io.ReadAll(r)
	require.Error(t, err)
	var engErr *EngineError
	require.True(t, errors.As(err, &engErr))
}

func TestReader_ParallelSessions(t *testing.T) {
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		i := i
		g.Go(func() error {
			payload := []byte(fmt.Sprintf("session %d payload: %s", i, testPayload(20_000)))

			var sink bytes.Buffer
			w, err := NewWriter(&sink, WithLevel(1+i%5), WithChecksum(i%2 == 0))
			if err != nil {
				return err
			}
			if _, err := w.Write(payload); err != nil {
				return err
			}
			if err := w.Close(); err != nil {
				return err
			}

			r, err := NewReader(&sink)
			if err != nil {
				return err
			}
			defer r.Close()
			decoded, err := io.ReadAll(r)
			if err != nil {
				return err
			}
			if !bytes.Equal(payload, decoded) {
				return fmt.Errorf("session %d: decoded %d bytes, want %d", i, len(decoded), len(payload))
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}
