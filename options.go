package zstream

import (
	"fmt"
	"sync"

	"github.com/miretskiy/zstream/raw"
)

// writerConfig holds validated compression parameters. Once a Writer is
// created the configuration is bound to its engine session and immutable;
// changing parameters requires a new Writer (or Reset, which keeps them).
type writerConfig struct {
	Level     int
	WindowLog int
	Checksum  bool
	Workers   int
	Dict      *Dict
	BufSize   int
}

// readerConfig holds validated decompression parameters.
type readerConfig struct {
	MaxWindowLog   int
	MaxMemory      int
	IgnoreChecksum bool
	SingleFrame    bool
	Dict           *Dict
	BufSize        int
}

// WriterOption configures a Writer.
type WriterOption interface {
	applyWriter(*writerConfig)
}

// ReaderOption configures a Reader.
type ReaderOption interface {
	applyReader(*readerConfig)
}

// funcWriterOpt wraps a function as a WriterOption.
type funcWriterOpt func(*writerConfig)

func (f funcWriterOpt) applyWriter(c *writerConfig) { f(c) }

// funcReaderOpt wraps a function as a ReaderOption.
type funcReaderOpt func(*readerConfig)

func (f funcReaderOpt) applyReader(c *readerConfig) { f(c) }

// WithLevel sets the compression level. Valid values are reported by
// LevelRange; negative levels trade ratio for speed. Default: DefaultLevel.
func WithLevel(level int) WriterOption {
	return funcWriterOpt(func(c *writerConfig) {
		c.Level = level
	})
}

// WithWindowLog sets the match window as log2 of its byte size. Larger
// windows improve ratio on large inputs at the cost of memory on both
// sides. Zero (the default) keeps the engine default for the level.
func WithWindowLog(windowLog int) WriterOption {
	return funcWriterOpt(func(c *writerConfig) {
		c.WindowLog = windowLog
	})
}

// WithChecksum enables a content checksum trailer on every frame, verified
// during decompression (default: false, matching the engine default).
func WithChecksum(enabled bool) WriterOption {
	return funcWriterOpt(func(c *writerConfig) {
		c.Checksum = enabled
	})
}

// WithWorkers sets the number of worker threads the engine may spin up
// internally (default: 0, single-threaded). Write/Flush/Close remain
// blocking calls regardless. Fails validation with ErrUnsupportedFeature
// if the engine build is single-threaded only.
func WithWorkers(n int) WriterOption {
	return funcWriterOpt(func(c *writerConfig) {
		c.Workers = n
	})
}

// WithMaxWindowLog caps the window size (as log2) a Reader will accept,
// bounding decoder memory. Zero keeps the engine default.
func WithMaxWindowLog(windowLog int) ReaderOption {
	return funcReaderOpt(func(c *readerConfig) {
		c.MaxWindowLog = windowLog
	})
}

// WithMaxMemory caps the decoded size of a single frame, in bytes. Guards
// against decompression bombs. Zero keeps the engine default.
func WithMaxMemory(n int) ReaderOption {
	return funcReaderOpt(func(c *readerConfig) {
		c.MaxMemory = n
	})
}

// WithIgnoreChecksum disables content checksum verification on read.
func WithIgnoreChecksum(ignore bool) ReaderOption {
	return funcReaderOpt(func(c *readerConfig) {
		c.IgnoreChecksum = ignore
	})
}

// WithSingleFrame stops the Reader at the first frame boundary instead of
// transparently decoding concatenated frames. Bytes after the frame are
// left unread in the source.
func WithSingleFrame() ReaderOption {
	return funcReaderOpt(func(c *readerConfig) {
		c.SingleFrame = true
	})
}

// WithBufferSize overrides the internal scratch buffer size used for
// engine steps. Smaller buffers reduce memory per session at the cost of
// more steps. Zero keeps the recommended default.
func WithBufferSize(n int) interface {
	WriterOption
	ReaderOption
} {
	return bufSizeOption{n}
}

type bufSizeOption struct{ n int }

func (o bufSizeOption) applyWriter(c *writerConfig) {
	if o.n > 0 {
		c.BufSize = o.n
	}
}

func (o bufSizeOption) applyReader(c *readerConfig) {
	if o.n > 0 {
		c.BufSize = o.n
	}
}

// WithDict binds a dictionary. Usable on both Writers and Readers; the
// same dictionary must be used on both sides.
func WithDict(d *Dict) interface {
	WriterOption
	ReaderOption
} {
	return dictOption{d}
}

type dictOption struct{ d *Dict }

func (o dictOption) applyWriter(c *writerConfig) { c.Dict = o.d }
func (o dictOption) applyReader(c *readerConfig) { c.Dict = o.d }

// engineCaps caches the engine capability queries used by validation.
// Queried once, not read repeatedly from engine state.
type engineCaps struct {
	MinLevel, MaxLevel         int
	WindowLogMin, WindowLogMax int
	MultiThread                bool
}

var cachedCaps = sync.OnceValue(func() engineCaps {
	minLevel, maxLevel := raw.LevelRange()
	wmin, wmax := raw.WindowLogRange()
	return engineCaps{
		MinLevel:     minLevel,
		MaxLevel:     maxLevel,
		WindowLogMin: wmin,
		WindowLogMax: wmax,
		MultiThread:  raw.MultiThreadSupported(),
	}
})

func defaultWriterConfig() writerConfig {
	return writerConfig{
		Level:   DefaultLevel,
		BufSize: raw.CStreamOutSize(),
	}
}

func defaultReaderConfig() readerConfig {
	return readerConfig{
		BufSize: raw.DStreamInSize(),
	}
}

// validate rejects parameter combinations before any engine resource is
// created. Unsupported requests fail loudly instead of being silently
// ignored.
func (c *writerConfig) validate(caps engineCaps) error {
	if c.Level < caps.MinLevel || c.Level > caps.MaxLevel {
		return fmt.Errorf("level %d outside supported range [%d, %d]: %w",
			c.Level, caps.MinLevel, caps.MaxLevel, ErrInvalidParameter)
	}
	if c.WindowLog != 0 && (c.WindowLog < caps.WindowLogMin || c.WindowLog > caps.WindowLogMax) {
		return fmt.Errorf("window log %d outside supported range [%d, %d]: %w",
			c.WindowLog, caps.WindowLogMin, caps.WindowLogMax, ErrInvalidParameter)
	}
	if c.Workers < 0 {
		return fmt.Errorf("worker count %d is negative: %w", c.Workers, ErrInvalidParameter)
	}
	if c.Workers > 0 && !caps.MultiThread {
		return fmt.Errorf("worker count %d requires a multi-threaded engine build: %w",
			c.Workers, ErrUnsupportedFeature)
	}
	return nil
}

func (c *readerConfig) validate(caps engineCaps) error {
	if c.MaxWindowLog != 0 && (c.MaxWindowLog < caps.WindowLogMin || c.MaxWindowLog > caps.WindowLogMax) {
		return fmt.Errorf("max window log %d outside supported range [%d, %d]: %w",
			c.MaxWindowLog, caps.WindowLogMin, caps.WindowLogMax, ErrInvalidParameter)
	}
	if c.MaxMemory < 0 {
		return fmt.Errorf("max memory %d is negative: %w", c.MaxMemory, ErrInvalidParameter)
	}
	return nil
}
