package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})

	Logf("round %d", 1)
	Warnf("exit status %d", 8)
	Errorf("remove %s", "a.log")

	expected := []string{"round 1", "WARNING: exit status 8", "ERROR: remove a.log"}
	if len(lines) != len(expected) {
		t.Fatalf("expected %d lines, got %v", len(expected), lines)
	}
	for i := range expected {
		if lines[i] != expected[i] {
			t.Errorf("line %d: expected %q, got %q", i, expected[i], lines[i])
		}
	}

	// Now set to nil and verify it doesn't call our logger
	lines = nil
	SetLogger(nil)
	Logf("test")
	Warnf("test")
	if len(lines) != 0 {
		t.Errorf("no-op logger should not have triggered callback, got %v", lines)
	}
}
