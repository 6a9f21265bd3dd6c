//go:build !cgo
// +build !cgo

package zstream

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Pure Go one-shot paths. Shared encoder/decoder instances are used for
// the default level: EncodeAll and DecodeAll are safe for concurrent use.
// Checksums are disabled to match the cgo implementation's default.
var (
	oneshotEnc *zstd.Encoder
	oneshotDec *zstd.Decoder
)

func init() {
	var err error
	oneshotEnc, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(DefaultLevel)),
		zstd.WithEncoderCRC(false),
		zstd.WithZeroFrames(true),
	)
	if err != nil {
		panic(err) // impossible with these options
	}
	oneshotDec, err = zstd.NewReader(nil)
	if err != nil {
		panic(err) // impossible with these options
	}
}

func compressLevel(dst, src []byte, level int) ([]byte, error) {
	if level == DefaultLevel {
		return oneshotEnc.EncodeAll(src, dst), nil
	}
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
		zstd.WithEncoderCRC(false),
		zstd.WithZeroFrames(true),
	)
	if err != nil {
		return nil, fmt.Errorf("zstream: one-shot compress: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(src, dst), nil
}

func decompress(dst, src []byte) ([]byte, error) {
	out, err := oneshotDec.DecodeAll(src, dst)
	if err != nil {
		if errors.Is(err, zstd.ErrCRCMismatch) {
			return nil, ErrChecksumMismatch
		}
		return nil, fmt.Errorf("zstream: one-shot decompress: %w", err)
	}
	return out, nil
}
