package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithField("package", "left-pad").Info("tracked")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "tracked" {
		t.Errorf("msg = %v, want tracked", entry["msg"])
	}
	if entry["package"] != "left-pad" {
		t.Errorf("package = %v, want left-pad", entry["package"])
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WarnLevel, &buf)

	logger.Info("hidden")
	logger.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info message leaked through warn-level logger")
	}
	if !strings.Contains(out, "visible") {
		t.Error("warn message missing")
	}
}

func TestLoggerWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithError(errors.New("boom")).Error("failed")

	if !strings.Contains(buf.String(), "boom") {
		t.Errorf("error field missing from output: %q", buf.String())
	}

	// A nil error must be a no-op, not a panic or an empty field.
	buf.Reset()
	logger.WithError(nil).Info("fine")
	if strings.Contains(buf.String(), "error") {
		t.Errorf("nil error produced an error field: %q", buf.String())
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DebugLevel,
		"info":    InfoLevel,
		"warn":    WarnLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
		"bogus":   InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
