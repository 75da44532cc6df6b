package ioring

// Batch collects a set of block reads/writes against one Device and
// submits them together. The commit engine's flush loop and the
// consumer reader's drain both build a Batch per I/O round rather than
// issuing one syscall per block, the same "prepare without submitting,
// flush once" shape the teacher's queue runner uses for FETCH_REQ/
// COMMIT_AND_FETCH_REQ SQEs.
//
// The default build submits queued operations sequentially via the
// Device interface. Building with -tags giouring submits them through a
// real io_uring instance instead; see batch_giouring.go.
type Batch struct {
	dev Device
	ops []batchOp
}

type batchOp struct {
	write bool
	buf   []byte
	off   int64
}

// NewBatch creates an empty batch against dev.
func NewBatch(dev Device) *Batch {
	return &Batch{dev: dev}
}

// QueueWrite adds a deferred write of buf at off.
func (b *Batch) QueueWrite(buf []byte, off int64) {
	b.ops = append(b.ops, batchOp{write: true, buf: buf, off: off})
}

// QueueRead adds a deferred read into buf at off.
func (b *Batch) QueueRead(buf []byte, off int64) {
	b.ops = append(b.ops, batchOp{write: false, buf: buf, off: off})
}

// Submit issues every queued operation and blocks until all complete,
// returning the first error encountered (if any). The batch is emptied
// regardless of outcome.
func (b *Batch) Submit() error {
	defer func() { b.ops = b.ops[:0] }()
	return submitBatch(b.dev, b.ops)
}

// fder is implemented by Device types that expose a raw file descriptor,
// which the giouring fast path needs and the plain sequential path does
// not.
type fder interface {
	Fd() uintptr
}
