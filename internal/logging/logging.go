package logging

import (
	"fmt"
	"path/filepath"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation limits for log files.
const (
	MaxFileSizeMB = 50
	MaxBackups    = 5
	MaxAgeDays    = 14
)

// LogFilePath builds a log file path using OS-appropriate path separators.
func LogFilePath(logsDir, name string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", name, sessionStart.Format("20060102_150405")),
	)
}

// NewRotatingFile opens a size-rotated, compressed log file at path.
// The file is created on first write.
func NewRotatingFile(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    MaxFileSizeMB,
		MaxBackups: MaxBackups,
		MaxAge:     MaxAgeDays,
		Compress:   true,
	}
}
