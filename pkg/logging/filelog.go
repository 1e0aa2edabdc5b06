package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileLog writes log lines to a local file with size-based rotation.
type FileLog struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	maxSize  int64
	maxFiles int
	written  int64

	MinSeverity int
}

// FileLogConfig configures a FileLog.
type FileLogConfig struct {
	Path     string // default /var/log/netcli/netclid.log
	MaxSize  int64  // max file size in bytes (default 10MB)
	MaxFiles int    // number of rotated files to keep (default 5)
}

// NewFileLog opens (creating if needed) a rotating log file.
func NewFileLog(cfg FileLogConfig) (*FileLog, error) {
	path := cfg.Path
	if path == "" {
		path = "/var/log/netcli/netclid.log"
	}
	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = 10 * 1024 * 1024
	}
	maxFiles := cfg.MaxFiles
	if maxFiles <= 0 {
		maxFiles = 5
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	fl := &FileLog{
		file:     f,
		path:     path,
		maxSize:  maxSize,
		maxFiles: maxFiles,
	}
	if info, err := f.Stat(); err == nil {
		fl.written = info.Size()
	}
	return fl, nil
}

// Send writes a log line to the file, rotating when the size cap is
// reached.
func (fl *FileLog) Send(severity int, msg string) error {
	ts := time.Now().Format("2006-01-02T15:04:05.000")
	line := fmt.Sprintf("%s [%s] %s\n", ts, severityTag(severity), msg)

	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.file == nil {
		return fmt.Errorf("log file closed")
	}

	n, err := fl.file.WriteString(line)
	if err != nil {
		return err
	}
	fl.written += int64(n)

	if fl.written >= fl.maxSize {
		fl.rotate()
	}
	return nil
}

// ShouldSend returns true if the severity passes this log's filter.
func (fl *FileLog) ShouldSend(severity int) bool {
	return fl.MinSeverity == 0 || severity <= fl.MinSeverity
}

// Close closes the log file.
func (fl *FileLog) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.file != nil {
		err := fl.file.Close()
		fl.file = nil
		return err
	}
	return nil
}

func (fl *FileLog) rotate() {
	fl.file.Close()
	fl.file = nil

	for i := fl.maxFiles - 1; i > 0; i-- {
		old := fmt.Sprintf("%s.%d", fl.path, i)
		next := fmt.Sprintf("%s.%d", fl.path, i+1)
		os.Rename(old, next)
	}
	os.Rename(fl.path, fl.path+".1")
	os.Remove(fmt.Sprintf("%s.%d", fl.path, fl.maxFiles+1))

	f, err := os.OpenFile(fl.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		slog.Warn("failed to reopen rotated log file", "path", fl.path, "err", err)
		return
	}
	fl.file = f
	fl.written = 0
}

func severityTag(severity int) string {
	switch severity {
	case SyslogError:
		return "ERROR"
	case SyslogWarning:
		return "WARNING"
	default:
		return "INFO"
	}
}
