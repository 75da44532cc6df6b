package ioring

import (
	"fmt"
	"sync"
)

// ShardSize is the size of each memory shard (64KB). Sharded locking
// lets concurrent producer appends, commit flushes, and consumer drains
// touch disjoint regions of a memory-backed device without serializing
// on one mutex.
const ShardSize = 64 * 1024

// MemDevice is a RAM-backed Device, used by the package tests of the
// commit engine, layout, and reader.
type MemDevice struct {
	data   []byte
	size   int64
	shards []sync.RWMutex
}

// NewMemDevice creates a memory device of the given size.
func NewMemDevice(size int64) *MemDevice {
	numShards := (size + ShardSize - 1) / ShardSize
	if numShards < 1 {
		numShards = 1
	}
	return &MemDevice{
		data:   make([]byte, size),
		size:   size,
		shards: make([]sync.RWMutex, numShards),
	}
}

func (m *MemDevice) shardRange(off, length int64) (start, end int) {
	start = int(off / ShardSize)
	end = int((off + length - 1) / ShardSize)
	if end >= len(m.shards) {
		end = len(m.shards) - 1
	}
	return start, end
}

func (m *MemDevice) ReadAt(p []byte, off int64) (int, error) {
	if off >= m.size {
		return 0, nil
	}

	available := m.size - off
	if int64(len(p)) > available {
		p = p[:available]
	}

	startShard, endShard := m.shardRange(off, int64(len(p)))
	for i := startShard; i <= endShard; i++ {
		m.shards[i].RLock()
	}
	n := copy(p, m.data[off:off+int64(len(p))])
	for i := startShard; i <= endShard; i++ {
		m.shards[i].RUnlock()
	}

	return n, nil
}

func (m *MemDevice) WriteAt(p []byte, off int64) (int, error) {
	if off >= m.size {
		return 0, fmt.Errorf("ioring: write beyond end of device")
	}

	available := m.size - off
	if int64(len(p)) > available {
		p = p[:available]
	}

	startShard, endShard := m.shardRange(off, int64(len(p)))
	for i := startShard; i <= endShard; i++ {
		m.shards[i].Lock()
	}
	n := copy(m.data[off:off+int64(len(p))], p)
	for i := startShard; i <= endShard; i++ {
		m.shards[i].Unlock()
	}

	return n, nil
}

func (m *MemDevice) Sync() error {
	return nil
}

func (m *MemDevice) Size() int64 {
	return m.size
}

func (m *MemDevice) Close() error {
	m.data = nil
	return nil
}

var _ Device = (*MemDevice)(nil)
