// Package reader implements the Consumer Reader & Admin Surface: framed
// reads of committed log records, the discard-without-reading control
// path, and the text control channel (commit/clear/userlog) that a mount
// point exposes to administrative callers.
package reader

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gladserv/shallfs/internal/commit"
	"github.com/gladserv/shallfs/internal/record"
	"github.com/gladserv/shallfs/internal/wire"
)

// MaxUserlogText is the limit on userlog's FILE1 payload, per spec §4.6.
const MaxUserlogText = 128

// Command is a parsed control-channel line.
type Command struct {
	Kind CommandKind
	N    uint64 // Clear
	Text string // Userlog
}

// CommandKind identifies which control command a line carries.
type CommandKind int

const (
	CommandCommit CommandKind = iota
	CommandClear
	CommandUserlog
)

// ParseCommand parses one newline-terminated control-channel line. Lines
// are matched literally; unknown commands return ErrUnknownCommand.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.SplitN(line, " ", 2)

	switch fields[0] {
	case "commit":
		if len(fields) != 1 {
			return Command{}, ErrBadCommand
		}
		return Command{Kind: CommandCommit}, nil

	case "clear":
		if len(fields) != 2 {
			return Command{}, ErrBadCommand
		}
		n, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return Command{}, ErrBadCommand
		}
		return Command{Kind: CommandClear, N: n}, nil

	case "userlog":
		if len(fields) != 2 {
			return Command{}, ErrBadCommand
		}
		if len(fields[1]) > MaxUserlogText {
			return Command{}, ErrTextTooLong
		}
		return Command{Kind: CommandUserlog, Text: fields[1]}, nil

	default:
		return Command{}, ErrUnknownCommand
	}
}

// Apply runs a parsed command against eng. commit runs a synchronous
// forced flush; clear discards up to N bytes of committed records;
// userlog appends a USERLOG record carrying text as FILE1.
func Apply(eng *commit.Engine, alignment uint32, cmd Command) error {
	switch cmd.Kind {
	case CommandCommit:
		return eng.Commit(nil)

	case CommandClear:
		_, err := eng.Discard(cmd.N)
		return err

	case CommandUserlog:
		rec, err := record.Encode(wire.OpUserlog, 0, alignment, 1<<20, time.Now(), record.Fields{
			File1: []byte(cmd.Text),
		})
		if err != nil {
			return fmt.Errorf("reader: encode userlog: %w", err)
		}
		return eng.Append(context.Background(), rec)

	default:
		return ErrUnknownCommand
	}
}
