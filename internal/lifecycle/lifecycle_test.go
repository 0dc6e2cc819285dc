package lifecycle

import "testing"

func TestIsShuttingDown_DefaultFalse(t *testing.T) {
	Reset()
	if IsShuttingDown() {
		t.Error("IsShuttingDown() = true, want false by default")
	}
	if d := ShuttingDownFor(); d != 0 {
		t.Errorf("ShuttingDownFor() = %v, want 0", d)
	}
}

func TestBeginShutdown_OnlyOnce(t *testing.T) {
	Reset()
	defer Reset()
	if !BeginShutdown() {
		t.Error("first BeginShutdown() = false, want true")
	}
	if BeginShutdown() {
		t.Error("second BeginShutdown() = true, want false")
	}
	if !IsShuttingDown() {
		t.Error("IsShuttingDown() = false after BeginShutdown")
	}
	if d := ShuttingDownFor(); d < 0 {
		t.Errorf("ShuttingDownFor() = %v, want >= 0", d)
	}
}

func TestReset(t *testing.T) {
	BeginShutdown()
	Reset()
	if IsShuttingDown() {
		t.Error("IsShuttingDown() = true after Reset")
	}
}
