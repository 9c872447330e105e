// Package logging writes per-component log lines to a session file under
// ~/.autofill/logs.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Level is a log severity threshold.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	levelOff
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "OFF"
	}
}

// ParseLevel maps a level name to a Level. Unknown names yield LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// LogDirEnv overrides the log directory.
const LogDirEnv = "AUTOFILL_LOG_DIR"

// Logger writes log lines tagged with a component name. Every logger of one
// process shares a session file.
type Logger struct {
	sessionID string
	component string
	file      *os.File
	logger    *log.Logger
	mu        sync.Mutex
	logPath   string
	closeOnce sync.Once
	nop       bool
}

var (
	sessionID     string
	sessionIDOnce sync.Once

	dirMu sync.Mutex

	threshold atomic.Int32
)

func init() {
	threshold.Store(int32(LevelInfo))
}

// SetLevel sets the process-wide threshold below which lines are dropped.
func SetLevel(l Level) {
	threshold.Store(int32(l))
}

// CurrentLevel returns the process-wide threshold.
func CurrentLevel() Level {
	return Level(threshold.Load())
}

func getSessionID() string {
	sessionIDOnce.Do(func() {
		sessionID = uuid.New().String()
	})
	return sessionID
}

func ensureLogDirectory() (string, error) {
	dirMu.Lock()
	defer dirMu.Unlock()

	dir := os.Getenv(LogDirEnv)
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, ".autofill", "logs")
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}
	return dir, nil
}

// NewLogger creates a logger for a component writing to
// <log dir>/<session-id>-autofill.log.
//
// When the file cannot be opened it returns a logger writing to stderr along
// with the error, so callers can keep going.
func NewLogger(component string) (*Logger, error) {
	dir, err := ensureLogDirectory()
	if err != nil {
		return newFallbackLogger(component, err), err
	}

	sessID := getSessionID()
	logPath := filepath.Join(dir, fmt.Sprintf("%s-autofill.log", sessID))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		err = fmt.Errorf("failed to open log file: %w", err)
		return newFallbackLogger(component, err), err
	}

	return &Logger{
		sessionID: sessID,
		component: component,
		file:      file,
		logger:    log.New(file, "", 0),
		logPath:   logPath,
	}, nil
}

// MustLogger returns NewLogger's logger and ignores the fallback error.
func MustLogger(component string) *Logger {
	l, _ := NewLogger(component)
	return l
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{component: "nop", logger: log.New(io.Discard, "", 0), nop: true}
}

// New returns a logger writing to w. It is meant for tests and embedding.
func New(component string, w io.Writer) *Logger {
	return &Logger{sessionID: getSessionID(), component: component, logger: log.New(w, "", 0)}
}

func newFallbackLogger(component string, err error) *Logger {
	logger := log.New(os.Stderr, "", 0)
	logger.Printf("[%s] WARNING: file logging unavailable, using stderr: %v", component, err)

	return &Logger{
		sessionID: getSessionID(),
		component: component,
		logger:    logger,
	}
}

// Component returns a logger for another component sharing this logger's
// destination.
func (l *Logger) Component(name string) *Logger {
	if l == nil || l.nop {
		return Nop()
	}
	return &Logger{
		sessionID: l.sessionID,
		component: name,
		logger:    l.logger,
		logPath:   l.logPath,
	}
}

func (l *Logger) write(level Level, format string, v ...interface{}) {
	if l == nil || l.nop || level < CurrentLevel() {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	l.logger.Printf("[%s] [%s] [%s] %s", timestamp, l.component, level, fmt.Sprintf(format, v...))
}

// Debugf logs a debug-level message.
func (l *Logger) Debugf(format string, v ...interface{}) { l.write(LevelDebug, format, v...) }

// Infof logs an info-level message.
func (l *Logger) Infof(format string, v ...interface{}) { l.write(LevelInfo, format, v...) }

// Warnf logs a warning-level message.
func (l *Logger) Warnf(format string, v ...interface{}) { l.write(LevelWarn, format, v...) }

// Errorf logs an error-level message.
func (l *Logger) Errorf(format string, v ...interface{}) { l.write(LevelError, format, v...) }

// SessionID returns the process session id.
func (l *Logger) SessionID() string {
	return l.sessionID
}

// LogPath returns the log file path, or "" when not writing to a file.
func (l *Logger) LogPath() string {
	return l.logPath
}

// Close closes the log file. Safe to call multiple times. Loggers derived
// with Component share the file and are not closed separately.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if l.file != nil {
			err = l.file.Close()
		}
	})
	return err
}

// GetSessionID returns the process session id.
func GetSessionID() string {
	return getSessionID()
}

// GetLogDirectory returns the directory where logs are stored.
func GetLogDirectory() (string, error) {
	return ensureLogDirectory()
}
