package logger

import (
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

const (
	LevelDebug int32 = iota
	LevelInfo
	LevelWarn
	LevelError
)

type Logger struct {
	*log.Logger
	level atomic.Int32
}

func New() *Logger {
	return NewWithWriter(os.Stdout)
}

// NewWithWriter creates a logger writing to w, logging every level.
func NewWithWriter(w io.Writer) *Logger {
	return &Logger{
		Logger: log.New(w, "", log.LstdFlags),
	}
}

// SetLevel 设置最低输出级别: debug, info, warn, error. 未知级别按 debug 处理
func (l *Logger) SetLevel(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "info":
		l.level.Store(LevelInfo)
	case "warn", "warning":
		l.level.Store(LevelWarn)
	case "error":
		l.level.Store(LevelError)
	default:
		l.level.Store(LevelDebug)
	}
}

func (l *Logger) enabled(level int32) bool {
	return level >= l.level.Load()
}

func (l *Logger) Debug(format string, v ...interface{}) {
	if l.enabled(LevelDebug) {
		l.Printf("[DEBUG] "+format, v...)
	}
}

func (l *Logger) Info(format string, v ...interface{}) {
	if l.enabled(LevelInfo) {
		l.Printf("[INFO] "+format, v...)
	}
}

func (l *Logger) Warn(format string, v ...interface{}) {
	if l.enabled(LevelWarn) {
		l.Printf("[WARN] "+format, v...)
	}
}

func (l *Logger) Error(format string, v ...interface{}) {
	if l.enabled(LevelError) {
		l.Printf("[ERROR] "+format, v...)
	}
}

func (l *Logger) Fatal(format string, v ...interface{}) {
	l.Printf("[FATAL] "+format, v...)
	os.Exit(1)
}
