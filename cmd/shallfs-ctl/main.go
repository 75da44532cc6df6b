// Command shallfs-ctl sends one admin command (commit, clear <N>, or
// userlog <text>) to a journal device, per spec §4.6's control channel.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gladserv/shallfs"
	"github.com/gladserv/shallfs/internal/logging"
)

func main() {
	path := flag.String("path", "", "path to the journal device (required)")
	verbose := flag.Bool("v", false, "verbose logging")
	timeout := flag.Duration("timeout", 10*time.Second, "command timeout")
	flag.Parse()

	logCfg := logging.DefaultConfig()
	if *verbose {
		logCfg.Level = logging.LevelDebug
	}
	logging.SetDefault(logging.NewLogger(logCfg))

	if *path == "" || flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: shallfs-ctl -path <device> commit|clear <n>|userlog <text>")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	opts := shallfs.DefaultMountOptions()
	eng, err := shallfs.Mount(ctx, *path, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "shallfs-ctl: mount: %v\n", err)
		os.Exit(1)
	}
	defer shallfs.Unmount(context.Background(), eng)

	if err := run(ctx, eng, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "shallfs-ctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, eng *shallfs.Engine, args []string) error {
	switch args[0] {
	case "commit":
		if len(args) != 1 {
			return fmt.Errorf("commit takes no arguments")
		}
		if err := eng.Commit(); err != nil {
			return err
		}
		fmt.Println("committed")
		return nil

	case "clear":
		if len(args) != 2 {
			return fmt.Errorf("clear requires <n>")
		}
		n, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("bad byte count %q: %w", args[1], err)
		}
		discarded, err := eng.Discard(n)
		if err != nil {
			return err
		}
		fmt.Printf("cleared %d bytes\n", discarded)
		return nil

	case "userlog":
		if len(args) < 2 {
			return fmt.Errorf("userlog requires <text>")
		}
		text := strings.Join(args[1:], " ")
		if err := eng.Userlog(ctx, text); err != nil {
			return err
		}
		fmt.Println("logged")
		return nil

	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}
