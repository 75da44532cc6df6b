//go:build !giouring
// +build !giouring

package ioring

// submitBatch runs each queued operation through the plain Device
// interface, in order. This is the always-available fallback; build
// with -tags giouring to submit through a real io_uring instance
// instead (see batch_giouring.go).
func submitBatch(dev Device, ops []batchOp) error {
	for _, op := range ops {
		var err error
		if op.write {
			_, err = dev.WriteAt(op.buf, op.off)
		} else {
			_, err = dev.ReadAt(op.buf, op.off)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
