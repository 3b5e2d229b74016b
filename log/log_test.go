// log/log_test.go
// Copyright(c) 2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	l.Debug("debug")
	l.Debugf("debug %d", 1)
	l.Info("info")
	l.Infof("info %d", 1)
	if l.With("k", "v") != nil {
		t.Errorf("expected With on nil logger to return nil")
	}
}

func TestWriterLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "warn")

	l.Info("dropped")
	l.Warn("kept", slog.String("station", "KSFO_TWR"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 record, got %d: %q", len(lines), buf.String())
	}

	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("record is not JSON: %v", err)
	}
	if rec["msg"] != "kept" {
		t.Errorf("expected msg %q, got %v", "kept", rec["msg"])
	}
	if rec["station"] != "KSFO_TWR" {
		t.Errorf("expected station attribute, got %v", rec["station"])
	}
	if _, ok := rec["callstack"]; !ok {
		t.Errorf("expected callstack attribute")
	}
}

func TestParseLevel(t *testing.T) {
	for _, c := range []struct {
		s    string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	} {
		if got := ParseLevel(c.s); got != c.want {
			t.Errorf("ParseLevel(%q): expected %v, got %v", c.s, c.want, got)
		}
	}
}

func TestCatchAndReportCrash(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "error")

	func() {
		defer l.CatchAndReportCrash()
		panic("boom")
	}()

	if !strings.Contains(buf.String(), "Crashed: boom") {
		t.Errorf("expected crash to be logged, got %q", buf.String())
	}
}
