package zstream

import (
	"sync"

	"github.com/miretskiy/zstream/raw"
)

// Streaming sessions churn through fixed-size scratch buffers; pool the
// default sizes so short-lived Writers/Readers don't allocate them fresh.
// Custom-sized buffers bypass the pools.
var (
	writerBufPool = sync.Pool{
		New: func() any {
			b := make([]byte, raw.CStreamOutSize())
			return &b
		},
	}
	readerBufPool = sync.Pool{
		New: func() any {
			b := make([]byte, raw.DStreamInSize())
			return &b
		},
	}
)

func getBuf(pool *sync.Pool, size, pooledSize int) []byte {
	if size != pooledSize {
		return make([]byte, size)
	}
	return *(pool.Get().(*[]byte))
}

func putBuf(pool *sync.Pool, buf []byte, pooledSize int) {
	if len(buf) == pooledSize {
		pool.Put(&buf)
	}
}
