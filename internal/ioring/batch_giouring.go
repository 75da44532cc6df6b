//go:build giouring
// +build giouring

package ioring

import (
	"fmt"

	"github.com/pawelgaczynski/giouring"
)

// submitBatch submits every queued operation against a single io_uring
// instance and waits for all completions, rather than issuing one
// pread/pwrite syscall per block. dev must expose Fd() (FileDevice does;
// MemDevice does not, and cannot use this path).
func submitBatch(dev Device, ops []batchOp) error {
	if len(ops) == 0 {
		return nil
	}

	fdv, ok := dev.(fder)
	if !ok {
		return submitBatchFallback(dev, ops)
	}
	fd := int(fdv.Fd())

	ring, err := giouring.CreateRing(uint32(nextPow2(len(ops))))
	if err != nil {
		return fmt.Errorf("ioring: giouring.CreateRing: %w", err)
	}
	defer ring.QueueExit()

	for i, op := range ops {
		sqe := ring.GetSQE()
		if sqe == nil {
			return fmt.Errorf("ioring: submission queue full at op %d", i)
		}
		if op.write {
			sqe.PrepWrite(fd, op.buf, uint64(op.off), 0)
		} else {
			sqe.PrepRead(fd, op.buf, uint64(op.off), 0)
		}
		sqe.UserData = uint64(i)
	}

	if _, err := ring.SubmitAndWait(uint32(len(ops))); err != nil {
		return fmt.Errorf("ioring: giouring.SubmitAndWait: %w", err)
	}

	remaining := len(ops)
	var firstErr error
	for remaining > 0 {
		cqe, err := ring.WaitCQE()
		if err != nil {
			return fmt.Errorf("ioring: giouring.WaitCQE: %w", err)
		}
		if cqe.Res < 0 && firstErr == nil {
			firstErr = fmt.Errorf("ioring: completion error res=%d op=%d", cqe.Res, cqe.UserData)
		}
		ring.CQESeen(cqe)
		remaining--
	}

	return firstErr
}

func submitBatchFallback(dev Device, ops []batchOp) error {
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

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	if p < 1 {
		p = 1
	}
	return p
}
