// Command shallfs-format writes a fresh superblock ring to a new or
// existing journal device, per spec §4.1.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gladserv/shallfs/internal/layout"
	"github.com/gladserv/shallfs/internal/logging"
	"github.com/gladserv/shallfs/internal/wire"
)

func main() {
	path := flag.String("path", "", "path to the device or file to format (required)")
	size := flag.String("size", "64M", "device size, e.g. 64M, 1G (ignored for an existing block device)")
	superblocks := flag.Uint("superblocks", wire.MinSuperblocks, "number of superblocks to lay out (minimum 9)")
	alignment := flag.Uint("alignment", 8, "record alignment in bytes (multiple of 8)")
	verbose := flag.Bool("v", false, "verbose logging")
	force := flag.Bool("force", false, "overwrite a device that already carries a valid superblock")
	flag.Parse()

	logCfg := logging.DefaultConfig()
	if *verbose {
		logCfg.Level = logging.LevelDebug
	}
	logging.SetDefault(logging.NewLogger(logCfg))
	logger := logging.Default()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "shallfs-format: -path is required")
		os.Exit(1)
	}

	if *superblocks < wire.MinSuperblocks {
		fmt.Fprintf(os.Stderr, "shallfs-format: -superblocks must be at least %d\n", wire.MinSuperblocks)
		os.Exit(1)
	}
	if *alignment < 8 || *alignment > wire.BlockSize || *alignment%8 != 0 {
		fmt.Fprintln(os.Stderr, "shallfs-format: -alignment must be a multiple of 8, at most 4096")
		os.Exit(1)
	}

	deviceSize, err := parseSize(*size)
	if err != nil {
		fmt.Fprintf(os.Stderr, "shallfs-format: bad -size: %v\n", err)
		os.Exit(1)
	}

	f, existed, err := openOrCreate(*path, deviceSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "shallfs-format: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	if existed {
		st, err := f.Stat()
		if err != nil {
			fmt.Fprintf(os.Stderr, "shallfs-format: stat: %v\n", err)
			os.Exit(1)
		}
		if st.Size() > 0 {
			deviceSize = uint64(st.Size())
		}
	}

	if deviceSize < wire.MinDeviceSize {
		fmt.Fprintf(os.Stderr, "shallfs-format: device size %d is below the %d byte minimum\n", deviceSize, wire.MinDeviceSize)
		os.Exit(1)
	}
	if deviceSize%wire.BlockSize != 0 {
		fmt.Fprintf(os.Stderr, "shallfs-format: device size %d is not a multiple of the %d byte block size\n", deviceSize, wire.BlockSize)
		os.Exit(1)
	}

	dev := &fileDevice{f: f}

	if !*force {
		if sb, err := layout.ReadSuperblock(dev, 0, int64(deviceSize)); err == nil {
			flags := layout.CheckSuperblock(sb, int64(deviceSize))
			if flags == 0 {
				fmt.Fprintln(os.Stderr, "shallfs-format: device already carries a valid superblock; pass -force to overwrite")
				os.Exit(1)
			}
		}
	}

	dataSpace := deviceSize - wire.BlockSize*uint64(*superblocks)
	sb := &wire.SuperBlock{
		DeviceSize:     deviceSize,
		DataSpace:      dataSpace,
		DataStart:      0,
		DataLength:     0,
		MaxLength:      dataSpace,
		Version:        0,
		Flags:          wire.FlagValid,
		Alignment:      uint32(*alignment),
		NumSuperblocks: uint32(*superblocks),
	}

	for n := uint32(0); n < sb.NumSuperblocks; n++ {
		if err := layout.WriteSuperblock(dev, sb, n, false); err != nil {
			fmt.Fprintf(os.Stderr, "shallfs-format: writing superblock %d: %v\n", n, err)
			os.Exit(1)
		}
	}
	if err := dev.Sync(); err != nil {
		fmt.Fprintf(os.Stderr, "shallfs-format: sync: %v\n", err)
		os.Exit(1)
	}

	logger.Info("formatted journal device", "path", *path, "size", deviceSize, "data_space", dataSpace, "superblocks", sb.NumSuperblocks)
	fmt.Printf("formatted %s: %s data space across %d superblocks\n", *path, formatSize(int64(dataSpace)), sb.NumSuperblocks)
}

// openOrCreate opens path for read-write, creating and truncating it to
// size if it does not already exist. existed reports whether the file
// was already there (a pre-existing file or block device is never
// truncated).
func openOrCreate(path string, size uint64) (f *os.File, existed bool, err error) {
	if _, statErr := os.Stat(path); statErr == nil {
		f, err = os.OpenFile(path, os.O_RDWR, 0)
		return f, true, err
	}
	f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, false, err
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, false, err
	}
	return f, false, nil
}

// fileDevice is a minimal ioring.Device over an *os.File, used only by
// this tool so it doesn't need to take a file lock the way a live mount
// does.
type fileDevice struct {
	f *os.File
}

func (d *fileDevice) ReadAt(p []byte, off int64) (int, error)  { return d.f.ReadAt(p, off) }
func (d *fileDevice) WriteAt(p []byte, off int64) (int, error) { return d.f.WriteAt(p, off) }
func (d *fileDevice) Sync() error                              { return d.f.Sync() }
func (d *fileDevice) Size() int64 {
	st, err := d.f.Stat()
	if err != nil {
		return 0
	}
	return st.Size()
}
func (d *fileDevice) Close() error { return d.f.Close() }

// parseSize parses a size string like "64M", "1G", "512K".
func parseSize(s string) (uint64, error) {
	s = strings.ToUpper(s)

	var multiplier uint64 = 1
	var numStr string

	switch {
	case strings.HasSuffix(s, "K"):
		multiplier = 1024
		numStr = strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(s, "G")
	default:
		numStr = s
	}

	num, err := strconv.ParseUint(numStr, 10, 64)
	if err != nil {
		return 0, err
	}
	return num * multiplier, nil
}

// formatSize formats a byte count as a human-readable string.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	units := []string{"K", "M", "G", "T"}
	return fmt.Sprintf("%.1f %sB", float64(bytes)/float64(div), units[exp])
}
