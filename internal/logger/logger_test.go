package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Output: &buf})

	log.With("component", "scheduler").Info("tick finished", "due", 3)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}
	if entry["message"] != "tick finished" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry["component"] != "scheduler" {
		t.Errorf("component = %v", entry["component"])
	}
	if entry["due"] != float64(3) {
		t.Errorf("due = %v", entry["due"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Format: "json", Output: &buf})

	log.Debug("hidden")
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below warn, got %q", buf.String())
	}

	log.Error(errors.New("boom"), "visible")
	if !strings.Contains(buf.String(), "boom") {
		t.Errorf("expected error field in %q", buf.String())
	}
}

func TestNop(t *testing.T) {
	// Must not panic.
	Nop().Error(errors.New("x"), "discarded", "k", "v")
}
