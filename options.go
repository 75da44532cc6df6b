package shallfs

import (
	"time"

	"github.com/gladserv/shallfs/internal/ioring"
	"github.com/gladserv/shallfs/internal/overflow"
)

// MountOptions configures Mount. The zero value is not valid; start from
// DefaultMountOptions and override what's needed.
type MountOptions struct {
	// Device, if set, is used directly instead of opening Path, for
	// example to mount an ioring.MemDevice.
	Device ioring.Device

	// CommitSize is the in-memory append buffer size in bytes, and the
	// hard ceiling on any single record's encoded length.
	CommitSize int

	// CommitInterval is the maximum time between background flushes.
	CommitInterval time.Duration

	// SyncOnCommit calls Device.Sync() after every flush when true,
	// trading throughput for a stronger durability guarantee.
	SyncOnCommit bool

	// OverflowPolicy selects DROP or WAIT behavior when the ring fills
	// faster than it drains.
	OverflowPolicy overflow.Policy

	// Observer receives append/flush/drain/overflow notifications. If
	// nil, Mount installs a MetricsObserver backed by a fresh Metrics.
	Observer Observer

	// ScanRecordsOnRepair is not read by Mount or by reader.Repair;
	// Repair's optional record-scan pass is selected by its own
	// RepairOptions.ScanRecords.
	ScanRecordsOnRepair bool
}

// DefaultMountOptions returns sensible defaults: a 1MiB commit buffer,
// a five-second commit interval, and DROP overflow policy. Record
// alignment is not a mount option; it comes from the superblock.
func DefaultMountOptions() MountOptions {
	return MountOptions{
		CommitSize:     1 << 20,
		CommitInterval: 5 * time.Second,
		SyncOnCommit:   false,
		OverflowPolicy: overflow.Drop,
	}
}
