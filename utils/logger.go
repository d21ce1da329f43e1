package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Logger provides leveled logging to the console and, when a log directory
// is configured, to a per-run-date log file as well.
type Logger struct {
	info *log.Logger
	warn *log.Logger
	err  *log.Logger
	file *os.File
}

// NewLogger creates a console-only Logger.
func NewLogger() *Logger {
	return &Logger{
		info: log.New(os.Stdout, "", 0),
		warn: log.New(os.Stdout, "", 0),
		err:  log.New(os.Stderr, "", 0),
	}
}

// NewFileLogger creates a Logger that tees output to
// <logDir>/<runDate>/scrape.log. If the file cannot be created it falls
// back to console-only logging.
func NewFileLogger(logDir, runDate string) *Logger {
	dir := filepath.Join(logDir, runDate)
	if err := os.MkdirAll(dir, 0755); err != nil {
		l := NewLogger()
		l.Warn("[logger] could not create log dir %s: %v", dir, err)
		return l
	}
	f, err := os.OpenFile(filepath.Join(dir, "scrape.log"),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		l := NewLogger()
		l.Warn("[logger] could not open log file: %v", err)
		return l
	}
	return &Logger{
		info: log.New(io.MultiWriter(os.Stdout, f), "", 0),
		warn: log.New(io.MultiWriter(os.Stdout, f), "", 0),
		err:  log.New(io.MultiWriter(os.Stderr, f), "", 0),
		file: f,
	}
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func (l *Logger) timestamp() string {
	return time.Now().Format("2006-01-02 15:04:05")
}

func (l *Logger) Info(format string, args ...any) {
	l.info.Printf(fmt.Sprintf("[%s] INFO  %s", l.timestamp(), format), args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.warn.Printf(fmt.Sprintf("[%s] WARN  %s", l.timestamp(), format), args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.err.Printf(fmt.Sprintf("[%s] ERROR %s", l.timestamp(), format), args...)
}
