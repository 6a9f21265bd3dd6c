package zstream

import (
	"errors"
	"fmt"
	"os"

	kpdict "github.com/klauspost/compress/dict"
	"github.com/klauspost/compress/zstd"
)

// Dict is a compression dictionary shared between Writers and Readers.
// Both structured dictionaries (produced by training, carrying an ID) and
// raw content dictionaries (arbitrary bytes used as prefix context) are
// supported; the engine detects which kind it was given.
//
// A Dict is immutable after creation and may be shared by any number of
// sessions concurrently.
type Dict struct {
	data  []byte
	byRef bool
}

// NewDict creates a dictionary from data, copying the bytes.
func NewDict(data []byte) *Dict {
	return &Dict{data: append([]byte(nil), data...)}
}

// NewDictByRef creates a dictionary that borrows the caller's buffer
// instead of copying it. The caller must keep data alive and unmodified
// for as long as any session bound to this dictionary exists. Use this
// only when the copy made by NewDict is measurably too expensive.
func NewDictByRef(data []byte) *Dict {
	return &Dict{data: data, byRef: true}
}

// Len returns the dictionary size in bytes.
func (d *Dict) Len() int { return len(d.data) }

// Bytes returns the dictionary content, typically to persist a trained
// dictionary. The returned slice must not be modified.
func (d *Dict) Bytes() []byte { return d.data }

// TrainDict builds a structured dictionary of at most maxSize bytes from
// representative samples. Dictionaries help most on many small, similar
// payloads; training needs a reasonably large and diverse sample set or it
// will fail.
func TrainDict(samples [][]byte, maxSize int) (*Dict, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("dictionary max size %d: %w", maxSize, ErrInvalidParameter)
	}
	if len(samples) == 0 {
		return nil, errors.New("zstream: no training samples")
	}
	data, err := kpdict.BuildZstdDict(samples, kpdict.Options{
		MaxDictSize: maxSize,
		HashBytes:   6,
		ZstdLevel:   zstd.SpeedBestCompression,
	})
	if err != nil {
		return nil, fmt.Errorf("zstream: dictionary training failed: %w", err)
	}
	log.Debug("trained dictionary",
		"samples", len(samples), "max_size", maxSize, "dict_size", len(data))
	return &Dict{data: data}, nil
}

// TrainDictFromFiles builds a dictionary using each named file as one
// sample.
func TrainDictFromFiles(maxSize int, paths ...string) (*Dict, error) {
	samples := make([][]byte, 0, len(paths))
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("zstream: read sample: %w", err)
		}
		samples = append(samples, content)
	}
	return TrainDict(samples, maxSize)
}
