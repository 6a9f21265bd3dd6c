//go:build cgo
// +build cgo

package zstream

import (
	"fmt"

	"github.com/DataDog/zstd"
)

// One-shot paths backed by the native library when cgo is available. The
// streaming API always uses the in-process engine; only these whole-buffer
// helpers take the native fast path, and both implementations produce
// standard interchangeable frames.

func compressLevel(dst, src []byte, level int) ([]byte, error) {
	off := len(dst)
	bound := CompressBound(len(src))
	dst = append(dst, make([]byte, bound)...)
	res, err := zstd.CompressLevel(dst[off:off+bound], src, level)
	if err != nil {
		return nil, fmt.Errorf("zstream: one-shot compress: %w", err)
	}
	// The library returns a fresh slice if the provided buffer was too
	// small; stitch it back onto dst in that case.
	if len(res) > 0 && &res[0] != &dst[off] {
		return append(dst[:off], res...), nil
	}
	return dst[:off+len(res)], nil
}

func decompress(dst, src []byte) ([]byte, error) {
	res, err := zstd.Decompress(nil, src)
	if err != nil {
		return nil, fmt.Errorf("zstream: one-shot decompress: %w", err)
	}
	return append(dst, res...), nil
}
