package logging

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoggerWritesToBuffer(t *testing.T) {
	buffer := NewLogBuffer(10)
	logger := NewLoggerWithOutput(buffer, LevelInfo, io.Discard)

	logger.Info("child started", map[string]string{"incarnation": "1"})

	entries := buffer.List()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != LevelInfo {
		t.Fatalf("expected info level, got %q", entry.Level)
	}
	if entry.Message != "child started" {
		t.Fatalf("expected message child started, got %q", entry.Message)
	}
	if entry.Context["incarnation"] != "1" {
		t.Fatalf("expected context incarnation=1, got %v", entry.Context)
	}
}

func TestLoggerFiltersByLevel(t *testing.T) {
	buffer := NewLogBuffer(10)
	logger := NewLoggerWithOutput(buffer, LevelWarning, io.Discard)

	logger.Info("info", nil)
	logger.Warn("warn", nil)

	entries := buffer.List()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Level != LevelWarning {
		t.Fatalf("expected warning level, got %q", entries[0].Level)
	}
}

func TestLoggerWithMergesFields(t *testing.T) {
	var out bytes.Buffer
	logger := NewLoggerWithOutput(nil, LevelDebug, &out).With(map[string]string{"session": "abc"})

	logger.Debug("respawn", map[string]string{"reason": "keystroke"})

	line := out.String()
	if !strings.Contains(line, `level=debug msg="respawn" reason="keystroke" session="abc"`) {
		t.Fatalf("unexpected log line %q", line)
	}
	if !strings.Contains(line, outputPrefix) {
		t.Fatalf("expected prefix %q in %q", outputPrefix, line)
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		input string
		want  Level
		ok    bool
	}{
		{input: "debug", want: LevelDebug, ok: true},
		{input: " WARN ", want: LevelWarning, ok: true},
		{input: "error", want: LevelError, ok: true},
		{input: "loud", ok: false},
	}
	for _, tc := range cases {
		got, ok := ParseLevel(tc.input)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("ParseLevel(%q) = %q, %v; want %q, %v", tc.input, got, ok, tc.want, tc.ok)
		}
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logger *Logger
	logger.Info("ignored", nil)
	if logger.Enabled(LevelError) {
		t.Fatalf("nil logger should not be enabled")
	}
}

func TestLoggerWithFileWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vire.log")
	var out bytes.Buffer
	logger, closer := NewLoggerWithFile(nil, LevelInfo, &out, FileOptions{Path: path})
	logger.Info("watching", map[string]string{"targets": "3"})
	if err := closer.Close(); err != nil {
		t.Fatalf("close log file: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(contents), `msg="watching" targets="3"`) {
		t.Fatalf("log file missing entry: %q", contents)
	}
	if !strings.Contains(out.String(), `msg="watching"`) {
		t.Fatalf("stderr output missing entry: %q", out.String())
	}
}

func TestLoggerWithFileDisabled(t *testing.T) {
	if writer := NewFileWriter(FileOptions{Path: "  "}); writer != nil {
		t.Fatalf("expected no file writer for blank path")
	}
}

func TestUnknownMinimumLevelFallsBackToInfo(t *testing.T) {
	buffer := NewLogBuffer(10)
	logger := NewLoggerWithOutput(buffer, Level("loud"), io.Discard)

	logger.Debug("hidden", nil)
	logger.Info("shown", nil)

	if got := buffer.Messages(); len(got) != 1 || got[0] != "shown" {
		t.Fatalf("expected only the info entry, got %v", got)
	}
}
