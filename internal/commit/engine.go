// Package commit implements the Commit Engine: the in-memory append
// buffer, the append/flush state machine, the periodic commit task, and
// the synchronous commit barrier used by administrative callers.
package commit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gladserv/shallfs/internal/ioring"
	"github.com/gladserv/shallfs/internal/layout"
	"github.com/gladserv/shallfs/internal/logging"
	"github.com/gladserv/shallfs/internal/overflow"
	"github.com/gladserv/shallfs/internal/ringaddr"
	"github.com/gladserv/shallfs/internal/wire"
)

// Flush reasons, counted separately in CommitCounts for observability.
const (
	ReasonSize = iota
	ReasonTime
	ReasonForced
	numReasons
)

// Observer receives flush timing/outcome notifications. The top-level
// shallfs package adapts its Metrics/Observer surface to this interface;
// commit itself stays decoupled from that package to avoid an import
// cycle.
type Observer interface {
	ObserveFlush(latencyNs uint64, success bool)
}

type noopObserver struct{}

func (noopObserver) ObserveFlush(uint64, bool) {}

// Config configures a new Engine. All fields are required unless noted.
type Config struct {
	Device         ioring.Device
	DeviceSize     int64
	DataSpace      uint64
	DataStart      uint64
	DataLength     uint64
	MaxLength      uint64
	Version        uint64
	NumSuperblocks uint32
	LastSBWritten  uint32
	Alignment      uint32
	CommitSize     int
	CommitInterval time.Duration
	SyncOnCommit   bool
	Policy         overflow.Policy

	Observer Observer // optional
}

// Engine is the commit engine for one mounted journal.
type Engine struct {
	mu sync.Mutex

	dev        ioring.Device
	alignment  uint32
	commitSize int
	syncOnCommit bool
	observer   Observer

	buffer        []byte
	bufferWritten int
	bufferRead    int

	dataSpace  uint64
	dataStart  uint64
	dataLength uint64
	maxLength  uint64
	committed  uint64

	numSuperblocks uint32
	lastSBWritten  uint32
	version        uint64
	maxBlock       uint64

	startPtr  ringaddr.Pointer
	commitPtr ringaddr.Pointer

	lastCommit    time.Time
	commitSeconds time.Duration
	commitCount   [numReasons]uint64
	logged        uint64

	policy overflow.Policy
	ovf    *overflow.Queue

	allowCommitTask atomic.Bool
	insideCommit    atomic.Bool
	someData        atomic.Bool
	taskRunning     atomic.Bool
	logsValid       atomic.Bool

	cond *sync.Cond // log_queue: producers/barriers waiting, tied to mu
	data *sync.Cond // data_queue: consumers waiting for records, tied to mu

	stopCh   chan struct{}
	taskDone chan struct{}
}

// New creates a mounted Engine from cfg. The caller has already selected
// and validated the active superblock; cfg carries its fields.
func New(cfg Config) *Engine {
	obs := cfg.Observer
	if obs == nil {
		obs = noopObserver{}
	}

	e := &Engine{
		dev:            cfg.Device,
		alignment:      cfg.Alignment,
		commitSize:     cfg.CommitSize,
		syncOnCommit:   cfg.SyncOnCommit,
		observer:       obs,
		buffer:         make([]byte, cfg.CommitSize),
		dataSpace:      cfg.DataSpace,
		dataStart:      cfg.DataStart,
		dataLength:     cfg.DataLength,
		maxLength:      cfg.MaxLength,
		committed:      cfg.DataLength,
		numSuperblocks: cfg.NumSuperblocks,
		lastSBWritten:  cfg.LastSBWritten,
		version:        cfg.Version,
		maxBlock:       uint64(cfg.DeviceSize)/wire.BlockSize - 1,
		commitSeconds:  cfg.CommitInterval,
		policy:         cfg.Policy,
		ovf:            &overflow.Queue{},
		lastCommit:     time.Now(),
		stopCh:         make(chan struct{}),
		taskDone:       make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mu)
	e.data = sync.NewCond(&e.mu)
	e.startPtr = ringaddr.Map(cfg.DataStart, cfg.NumSuperblocks)
	e.commitPtr = ringaddr.Map((cfg.DataStart+cfg.DataLength)%orOne(cfg.DataSpace), cfg.NumSuperblocks)
	e.allowCommitTask.Store(true)
	e.logsValid.Store(true)
	return e
}

func orOne(v uint64) uint64 {
	if v == 0 {
		return 1
	}
	return v
}

// Start launches the background commit task.
func (e *Engine) Start() {
	e.taskRunning.Store(true)
	go e.commitTask()
}

// Stop terminates the background commit task and waits for it to exit.
func (e *Engine) Stop() {
	close(e.stopCh)
	<-e.taskDone
}

// Policy returns the configured overflow policy.
func (e *Engine) Policy() overflow.Policy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.policy
}

// SetPolicy changes the overflow policy at runtime (e.g. on remount),
// waking any WAIT-blocked producers so they can re-evaluate.
func (e *Engine) SetPolicy(p overflow.Policy) {
	e.mu.Lock()
	e.policy = p
	e.mu.Unlock()
	e.cond.Broadcast()
}

// State is a read-only snapshot of engine bookkeeping, used by the
// consumer reader and admin surface.
type State struct {
	DataStart      uint64
	DataLength     uint64
	MaxLength      uint64
	DataSpace      uint64
	Version        uint64
	NumSuperblocks uint32
	CommitCount    [numReasons]uint64
	Logged         uint64
}

func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{
		DataStart:      e.dataStart,
		DataLength:     e.dataLength,
		MaxLength:      e.maxLength,
		DataSpace:      e.dataSpace,
		Version:        e.version,
		NumSuperblocks: e.numSuperblocks,
		CommitCount:    e.commitCount,
		Logged:         e.logged,
	}
}

// Append serializes rec (an already-encoded record, see internal/record)
// into the commit buffer, per spec §4.4. It may block under the WAIT
// overflow policy or while a remount holds allowCommitTask false; ctx
// cancellation unblocks it with ErrInterrupted.
func (e *Engine) Append(ctx context.Context, rec []byte) error {
	if len(rec) > e.commitSize {
		return ErrTooBig
	}

	done := e.watchContext(ctx)
	defer close(done)

	e.mu.Lock()
	defer e.mu.Unlock()

	for !e.allowCommitTask.Load() {
		if err := e.waitLocked(ctx); err != nil {
			return err
		}
	}

	headerReserve := uint64(wire.HeaderSize)
	for uint64(len(rec))+headerReserve+e.dataLength > e.dataSpace {
		handled, err := e.handleOverflowLocked(ctx, rec)
		if err != nil {
			return err
		}
		if handled {
			return nil // record dropped under DROP policy
		}
		// WAIT policy: space freed, fall through to recheck.
	}

	if e.bufferWritten+len(rec) > e.commitSize {
		if err := e.flushBufferLocked(ReasonSize); err != nil {
			return err
		}
	}

	copy(e.buffer[e.bufferWritten:], rec)
	e.bufferWritten += len(rec)
	e.dataLength += uint64(len(rec))
	if e.dataLength > e.maxLength {
		e.maxLength = e.dataLength
	}
	e.logged++

	e.someData.Store(true)
	e.data.Broadcast()

	return nil
}

// handleOverflowLocked runs the overflow controller for one record that
// currently does not fit. It is called with mu held. It returns
// handled=true if the caller should treat the record as disposed of
// (dropped); handled=false means the caller should re-check fit (space
// freed while waiting).
func (e *Engine) handleOverflowLocked(ctx context.Context, rec []byte) (handled bool, err error) {
	first := e.ovf.RecordOverflow(uint64(len(rec)))
	if first {
		marker := markerRecord(wire.OpOverflow, e.alignment)
		e.appendMarkerLocked(marker)
		logging.Default().Warn("journal overflow", "required", len(rec))
	}

	if e.policy == overflow.Drop {
		return true, nil
	}

	// WAIT: block until the policy changes or an overflow recovery frees
	// space, then let the caller re-check fit.
	for {
		dropped, _ := e.ovf.Snapshot()
		if dropped == 0 || e.policy == overflow.Drop {
			return false, nil
		}
		if err := e.waitLocked(ctx); err != nil {
			return false, err
		}
	}
}

// appendMarkerLocked writes a bare marker record directly into the
// buffer, bypassing the normal fit check (space for exactly one marker
// is always held in reserve by the headerReserve clamp in Append).
func (e *Engine) appendMarkerLocked(marker []byte) {
	if e.bufferWritten+len(marker) > e.commitSize {
		e.flushBufferLocked(ReasonSize)
	}
	copy(e.buffer[e.bufferWritten:], marker)
	e.bufferWritten += len(marker)
	e.dataLength += uint64(len(marker))
	if e.dataLength > e.maxLength {
		e.maxLength = e.dataLength
	}
	e.logged++
}

// Recover emits a RECOVER marker carrying the dropped-record count and
// accumulated extra space, and wakes any producers waiting under WAIT
// policy. Called by the consumer reader after a drain frees space.
func (e *Engine) Recover() {
	numDropped, extraSpace, had := e.ovf.Recover()
	if !had {
		return
	}
	e.mu.Lock()
	size := extraSpace
	marker := markerRecoverRecord(wire.OpRecover, e.alignment, int32(numDropped), size)
	e.appendMarkerLocked(marker)
	e.mu.Unlock()
	e.cond.Broadcast()
}

// waitLocked suspends on the log queue until woken, re-acquiring mu
// before returning. It returns ErrInterrupted if ctx is cancelled first.
func (e *Engine) waitLocked(ctx context.Context) error {
	if ctx.Err() != nil {
		return ErrInterrupted
	}
	e.cond.Wait()
	if ctx.Err() != nil {
		return ErrInterrupted
	}
	return nil
}

// watchContext returns a channel the caller must close; while open, a
// goroutine broadcasts on both condition variables whenever ctx is
// cancelled, unblocking any Wait() in progress.
func (e *Engine) watchContext(ctx context.Context) chan struct{} {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			e.mu.Lock()
			e.cond.Broadcast()
			e.data.Broadcast()
			e.mu.Unlock()
		case <-done:
		}
	}()
	return done
}

// flushBufferLocked drains the unread portion of the commit buffer to
// the device. It records the intent for every pending block (advancing
// commit_ptr/committed/buffer_read) while mu is held, then releases mu
// once to submit the whole round as a single batch and re-acquires it
// to advance the remaining state, per spec §4.4's release-during-I/O
// protocol. mu must be held on entry and is held again on return
// (including on error).
func (e *Engine) flushBufferLocked(reason int) error {
	start := time.Now()

	// Record intent for every pending chunk up front (pure arithmetic,
	// no I/O), then release the mutex once and submit the whole round
	// as a single batch instead of one syscall per block.
	batch := ioring.NewBatch(e.dev)
	for e.bufferRead < e.bufferWritten {
		remaining := e.bufferWritten - e.bufferRead
		block := e.commitPtr.Block
		offset := e.commitPtr.OffsetInBlock

		todo := wire.BlockSize - int(offset)
		if todo > remaining {
			todo = remaining
		}

		chunk := make([]byte, todo)
		copy(chunk, e.buffer[e.bufferRead:e.bufferRead+todo])

		physOff := int64(block*wire.BlockSize + uint64(offset))
		batch.QueueWrite(chunk, physOff)

		e.committed += uint64(todo)
		e.bufferRead += todo
		if int(offset)+todo == wire.BlockSize {
			e.commitPtr.Block = ringaddr.IncBlock(block, e.numSuperblocks, e.maxBlock)
			e.commitPtr.OffsetInBlock = 0
		} else {
			e.commitPtr.OffsetInBlock += uint32(todo)
		}
	}

	e.mu.Unlock()
	err := batch.Submit()
	e.mu.Lock()

	if err != nil {
		e.observer.ObserveFlush(uint64(time.Since(start).Nanoseconds()), false)
		return err
	}

	e.version++
	e.lastSBWritten = layout.NextRotation(e.lastSBWritten, e.numSuperblocks)

	sb := e.buildSuperblockLocked()
	if err := layout.WriteSuperblock(e.dev, sb, e.lastSBWritten, e.syncOnCommit); err != nil {
		e.observer.ObserveFlush(uint64(time.Since(start).Nanoseconds()), false)
		return err
	}

	e.bufferRead = 0
	e.bufferWritten = 0
	e.lastCommit = time.Now()
	e.commitCount[reason]++

	e.observer.ObserveFlush(uint64(time.Since(start).Nanoseconds()), true)
	return nil
}

func (e *Engine) buildSuperblockLocked() *wire.SuperBlock {
	return &wire.SuperBlock{
		DeviceSize:     (e.maxBlock + 1) * wire.BlockSize,
		DataSpace:      e.dataSpace,
		DataStart:      e.dataStart,
		DataLength:     e.dataLength,
		MaxLength:      e.maxLength,
		Version:        e.version,
		Flags:          wire.FlagValid | wire.FlagDirty,
		Alignment:      e.alignment,
		NumSuperblocks: e.numSuperblocks,
	}
}

// commitTask is the background actor: sleeps for the commit interval,
// then performs a full flush if one isn't already running.
func (e *Engine) commitTask() {
	defer func() {
		e.taskRunning.Store(false)
		close(e.taskDone)
	}()

	for {
		wait := e.commitSeconds - time.Since(e.lastCommit)
		if wait < 0 {
			wait = 0
		}

		select {
		case <-e.stopCh:
			return
		case <-time.After(wait):
		}

		if !e.allowCommitTask.Load() || e.insideCommit.Load() {
			continue
		}

		e.insideCommit.Store(true)
		e.mu.Lock()
		if err := e.flushBufferLocked(ReasonTime); err != nil {
			logging.Default().Error("commit task flush failed", "err", err)
		}
		e.mu.Unlock()
		e.insideCommit.Store(false)
	}
}

// Commit runs a synchronous, forced flush, optionally invoking fn while
// still holding the engine mutex; the "commit" admin command and
// shallfs.Engine.Commit pass a nil fn. It temporarily disables the background
// commit task for the duration of the barrier.
func (e *Engine) Commit(fn func() error) error {
	prevAllow := e.allowCommitTask.Swap(false)
	defer e.allowCommitTask.Store(prevAllow)

	e.mu.Lock()
	for e.insideCommit.Load() {
		e.mu.Unlock()
		time.Sleep(time.Millisecond)
		e.mu.Lock()
	}

	e.insideCommit.Store(true)
	err := e.flushBufferLocked(ReasonForced)
	if err == nil && fn != nil {
		err = fn()
	}
	e.insideCommit.Store(false)
	e.mu.Unlock()

	e.cond.Broadcast()
	return err
}

// cleanSpreadCount is the number of superblocks rewritten on a clean
// unmount, per spec §3/§4.1 ("write ≈7 sbs spread evenly over [0, N) to
// maximise survivability").
const cleanSpreadCount = 7

// FinalizeClean performs the clean-unmount superblock write described in
// spec §3 ("unmounted: final flush, DIRTY cleared on several
// superblocks") and §4.1: it clears FlagDirty and writes the resulting
// image to a spread of superblocks, so the next mount can take
// layout.Select's fast clean path instead of a full dirty rescan.
// Callers must have already flushed the buffer (Commit) before calling
// this.
func (e *Engine) FinalizeClean() error {
	e.mu.Lock()
	sb := e.buildSuperblockLocked()
	sb.Flags = wire.FlagValid
	indices := layout.SpreadIndices(e.numSuperblocks, cleanSpreadCount)
	e.mu.Unlock()

	for _, idx := range indices {
		if err := layout.WriteSuperblock(e.dev, sb, idx, true); err != nil {
			return err
		}
	}
	return nil
}

// WaitData blocks until someData is set or ctx is cancelled, used by the
// consumer reader to wait for new records.
func (e *Engine) WaitData(ctx context.Context) error {
	if e.someData.Load() {
		return nil
	}
	done := e.watchContext(ctx)
	defer close(done)

	e.mu.Lock()
	defer e.mu.Unlock()
	for !e.someData.Load() {
		if !e.logsValid.Load() {
			return nil
		}
		if err := func() error {
			if ctx.Err() != nil {
				return ErrInterrupted
			}
			e.data.Wait()
			if ctx.Err() != nil {
				return ErrInterrupted
			}
			return nil
		}(); err != nil {
			return err
		}
	}
	return nil
}

// Invalidate marks the engine as no longer accepting reads (logsValid =
// false), used during unmount to short-circuit blocked consumers.
func (e *Engine) Invalidate() {
	e.logsValid.Store(false)
	e.mu.Lock()
	e.data.Broadcast()
	e.cond.Broadcast()
	e.mu.Unlock()
}
