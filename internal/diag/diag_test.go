package diag

import (
	"bytes"
	"strings"
	"testing"
)

func TestMsgWritesFormattedLine(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)
	l.Msg("committed %s on %s", "abc123", "master")
	if got := buf.String(); got != "committed abc123 on master\n" {
		t.Fatalf("got %q", got)
	}
}

func TestWarnPrefixesWarning(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)
	l.Warn("legacy format at %s", "obj1")
	if !strings.HasPrefix(buf.String(), "warning: ") {
		t.Fatalf("expected a warning: prefix, got %q", buf.String())
	}
}

func TestNewLoggerNilWriterFallsBackToStderr(t *testing.T) {
	l := NewLogger(nil)
	if l.Out == nil {
		t.Fatal("expected NewLogger(nil) to default Out to os.Stderr")
	}
}

func TestZeroValueLoggerWritesWithoutPanicking(t *testing.T) {
	var l Logger
	l.Msg("no writer configured")
}
