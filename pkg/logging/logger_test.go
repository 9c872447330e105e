package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func useTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(LogDirEnv, dir)
	return dir
}

func withLevel(t *testing.T, l Level) {
	t.Helper()
	prev := CurrentLevel()
	SetLevel(l)
	t.Cleanup(func() { SetLevel(prev) })
}

func TestNewLogger(t *testing.T) {
	dir := useTempDir(t)

	logger, err := NewLogger("vault")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	if logger.SessionID() == "" {
		t.Error("Expected non-empty session ID")
	}
	if filepath.Dir(logger.LogPath()) != dir {
		t.Errorf("Expected log in %s, got %s", dir, logger.LogPath())
	}
	if !strings.HasSuffix(logger.LogPath(), "-autofill.log") {
		t.Errorf("Unexpected log file name %q", filepath.Base(logger.LogPath()))
	}
	if _, err := os.Stat(logger.LogPath()); err != nil {
		t.Errorf("Log file does not exist: %v", err)
	}
}

func TestLoggerLevels(t *testing.T) {
	withLevel(t, LevelDebug)

	var buf bytes.Buffer
	logger := New("match", &buf)

	logger.Debugf("debug %d", 1)
	logger.Infof("info")
	logger.Warnf("warn")
	logger.Errorf("error")

	for _, want := range []string{
		"[match] [DEBUG] debug 1",
		"[match] [INFO] info",
		"[match] [WARN] warn",
		"[match] [ERROR] error",
	} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("Log missing %q\n%s", want, buf.String())
		}
	}
}

func TestLoggerThreshold(t *testing.T) {
	withLevel(t, LevelWarn)

	var buf bytes.Buffer
	logger := New("strategy", &buf)
	logger.Debugf("hidden")
	logger.Infof("hidden")
	logger.Warnf("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Errorf("Expected lines below threshold to be dropped:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("Expected warn line:\n%s", buf.String())
	}
}

func TestComponentSharesDestination(t *testing.T) {
	withLevel(t, LevelInfo)

	var buf bytes.Buffer
	base := New("autofill", &buf)
	base.Component("policy").Infof("hello")

	if !strings.Contains(buf.String(), "[policy] [INFO] hello") {
		t.Errorf("Unexpected output:\n%s", buf.String())
	}
}

func TestNop(t *testing.T) {
	logger := Nop()
	logger.Errorf("nothing %s", "here")
	logger.Component("x").Infof("still nothing")

	var nilLogger *Logger
	nilLogger.Infof("safe on nil")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		"DEBUG":   LevelDebug,
		"warning": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"verbose": LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerClose(t *testing.T) {
	useTempDir(t)

	logger, err := NewLogger("test")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("First close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Second close failed: %v", err)
	}
}

func TestGetSessionID(t *testing.T) {
	if GetSessionID() != GetSessionID() {
		t.Error("Expected a stable session ID")
	}
}
