package reader

import "sync"

// Buffer size thresholds for the pooled drain buffers, adapted from the
// commit-buffer overflow pool pattern: bucket by power-of-2 sizes rather
// than allocating exactly what's asked for, to keep the pool's hit rate
// high under varied record sizes.
const (
	size4k  = 4 * 1024
	size16k = 16 * 1024
	size64k = 64 * 1024
	size1m  = 1024 * 1024
)

var globalPool = struct {
	pool4k  sync.Pool
	pool16k sync.Pool
	pool64k sync.Pool
	pool1m  sync.Pool
}{
	pool4k:  sync.Pool{New: func() any { b := make([]byte, size4k); return &b }},
	pool16k: sync.Pool{New: func() any { b := make([]byte, size16k); return &b }},
	pool64k: sync.Pool{New: func() any { b := make([]byte, size64k); return &b }},
	pool1m:  sync.Pool{New: func() any { b := make([]byte, size1m); return &b }},
}

// getBuffer returns a pooled buffer of at least the requested size.
// Callers must call putBuffer when done.
func getBuffer(size int) []byte {
	switch {
	case size <= size4k:
		return (*globalPool.pool4k.Get().(*[]byte))[:size]
	case size <= size16k:
		return (*globalPool.pool16k.Get().(*[]byte))[:size]
	case size <= size64k:
		return (*globalPool.pool64k.Get().(*[]byte))[:size]
	case size <= size1m:
		return (*globalPool.pool1m.Get().(*[]byte))[:size]
	default:
		return make([]byte, size)
	}
}

func putBuffer(buf []byte) {
	c := cap(buf)
	buf = buf[:c]
	switch c {
	case size4k:
		globalPool.pool4k.Put(&buf)
	case size16k:
		globalPool.pool16k.Put(&buf)
	case size64k:
		globalPool.pool64k.Put(&buf)
	case size1m:
		globalPool.pool1m.Put(&buf)
	}
}
