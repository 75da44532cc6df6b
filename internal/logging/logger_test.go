package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLoggerDefaultsToStderr(t *testing.T) {
	logger := NewLogger(nil)
	if logger == nil {
		t.Fatal("NewLogger(nil) returned nil")
	}
	if logger.level != LevelInfo {
		t.Errorf("default level = %v, want LevelInfo", logger.level)
	}
}

func TestLoggerLevelGating(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelWarn, Output: &buf})

	logger.Info("mounted device", "path", "/dev/shallfs0")
	if buf.Len() != 0 {
		t.Errorf("Info logged below configured level LevelWarn: %q", buf.String())
	}

	logger.Warn("superblock dirty", "index", 3)
	if !strings.Contains(buf.String(), "superblock dirty") {
		t.Errorf("Warn message missing, got: %q", buf.String())
	}
}

func TestLoggerFormatsKeyValueArgs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	logger.Info("selected superblock", "index", 5, "version", uint64(42))

	out := buf.String()
	if !strings.Contains(out, "index=5") {
		t.Errorf("expected index=5 in output, got: %q", out)
	}
	if !strings.Contains(out, "version=42") {
		t.Errorf("expected version=42 in output, got: %q", out)
	}
}

func TestLoggerPrintfStyleHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	logger.Errorf("flush failed for device %s: %v", "/dev/shallfs0", "short write")
	if !strings.Contains(buf.String(), "flush failed for device /dev/shallfs0") {
		t.Errorf("Errorf output missing formatted message: %q", buf.String())
	}
}

func TestDefaultAndSetDefault(t *testing.T) {
	var buf bytes.Buffer
	SetDefault(NewLogger(&Config{Level: LevelDebug, Output: &buf}))
	defer SetDefault(NewLogger(DefaultConfig()))

	Info("journal mounted", "path", "/dev/shallfs0", "superblocks", 9)

	out := buf.String()
	if !strings.Contains(out, "journal mounted") {
		t.Errorf("expected message in output, got: %q", out)
	}
	if !strings.Contains(out, "path=/dev/shallfs0") {
		t.Errorf("expected path field in output, got: %q", out)
	}
	if !strings.Contains(out, "superblocks=9") {
		t.Errorf("expected superblocks field in output, got: %q", out)
	}
}

func TestGlobalLevelFunctions(t *testing.T) {
	var buf bytes.Buffer
	SetDefault(NewLogger(&Config{Level: LevelDebug, Output: &buf}))
	defer SetDefault(NewLogger(DefaultConfig()))

	Debug("ring address wrapped", "block", 12)
	Warn("overflow queue dropping records", "dropped", 3)
	Error("repair found unfixable defects", "flags", 16)

	out := buf.String()
	for _, want := range []string{"ring address wrapped", "overflow queue dropping records", "repair found unfixable defects"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in combined output, got: %q", want, out)
		}
	}
}
