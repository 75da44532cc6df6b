// Command shallfs-fsck checks and repairs a journal device's superblock
// ring offline, per spec §4.6 and §6, and exits with the bitmask
// os.Exit code the spec defines.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"github.com/gladserv/shallfs/internal/logging"
	"github.com/gladserv/shallfs/internal/reader"
)

func main() {
	path := flag.String("path", "", "path to the device or file to check (required)")
	verbose := flag.Bool("v", false, "verbose logging")
	scanRecords := flag.Bool("scan-records", false, "additionally stream the data region checking record CRCs")
	yes := flag.Bool("y", false, "assume yes to any repair prompt instead of asking interactively")
	flag.Parse()

	logCfg := logging.DefaultConfig()
	if *verbose {
		logCfg.Level = logging.LevelDebug
	}
	logging.SetDefault(logging.NewLogger(logCfg))

	if *path == "" {
		fmt.Fprintln(os.Stderr, "shallfs-fsck: -path is required")
		os.Exit(int(reader.ExitUsage))
	}

	f, err := os.OpenFile(*path, os.O_RDWR, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "shallfs-fsck: %v\n", err)
		os.Exit(int(reader.ExitOperationalError))
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		fmt.Fprintf(os.Stderr, "shallfs-fsck: stat: %v\n", err)
		os.Exit(int(reader.ExitOperationalError))
	}
	size := st.Size()

	if *scanRecords && !*yes {
		if !confirm(fmt.Sprintf("%s: scan the data region for CRC failures? this stops at the first bad record [y/N] ", *path)) {
			fmt.Println("skipping record scan")
			*scanRecords = false
		}
	}

	dev := &fileDevice{f: f}
	code, err := reader.Repair(dev, size, reader.RepairOptions{ScanRecords: *scanRecords})
	if err != nil {
		fmt.Fprintf(os.Stderr, "shallfs-fsck: %v\n", err)
	}

	switch {
	case code == reader.ExitOK:
		fmt.Printf("%s: clean\n", *path)
	default:
		fmt.Printf("%s: exit code %d (", *path, code)
		first := true
		report := func(bit reader.ExitCode, name string) {
			if code&bit != 0 {
				if !first {
					fmt.Print(", ")
				}
				fmt.Print(name)
				first = false
			}
		}
		report(reader.ExitCorrected, "corrected")
		report(reader.ExitRebootNeeded, "reboot needed")
		report(reader.ExitUncorrected, "uncorrected")
		report(reader.ExitOperationalError, "operational error")
		report(reader.ExitUsage, "usage")
		report(reader.ExitCancelled, "cancelled")
		fmt.Println(")")
	}

	os.Exit(int(code))
}

// confirm prompts the operator with a yes/no question on stdin/stdout,
// per spec §4.6's "policy-driven; default is to ask" record-repair rule.
func confirm(prompt string) bool {
	fmt.Print(prompt)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false
	}
	switch scanner.Text() {
	case "y", "Y", "yes":
		return true
	default:
		return false
	}
}

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
