package logging

import "testing"

func TestNewLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus", ""} {
		logger := New(level)
		if logger == nil || logger.Logger == nil {
			t.Fatalf("New(%q) returned nil logger", level)
		}
	}
}

func TestNewWithFormat(t *testing.T) {
	if logger := NewWithFormat("info", "text"); logger == nil {
		t.Fatal("text format returned nil logger")
	}
	if logger := NewWithFormat("info", "json"); logger == nil {
		t.Fatal("json format returned nil logger")
	}
}

func TestComponent(t *testing.T) {
	logger := Default().Component("conversation")
	if logger == nil || logger.Logger == nil {
		t.Fatal("Component returned nil logger")
	}
}
