package zstream

import "fmt"

// One-shot helpers for whole-buffer compression, following append
// semantics: output is appended to dst (which may be nil) and the extended
// slice returned. For streaming or for parameter control beyond the level,
// use Writer and Reader.

// Compress appends src compressed at DefaultLevel to dst.
func Compress(dst, src []byte) ([]byte, error) {
	return CompressLevel(dst, src, DefaultLevel)
}

// CompressLevel appends src compressed at the given level to dst.
func CompressLevel(dst, src []byte, level int) ([]byte, error) {
	if minLevel, maxLevel := LevelRange(); level < minLevel || level > maxLevel {
		return nil, fmt.Errorf("level %d outside supported range [%d, %d]: %w",
			level, minLevel, maxLevel, ErrInvalidParameter)
	}
	return compressLevel(dst, src, level)
}

// Decompress appends the decompressed content of src (one or more
// complete frames) to dst.
func Decompress(dst, src []byte) ([]byte, error) {
	return decompress(dst, src)
}
