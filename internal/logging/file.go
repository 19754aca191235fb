package logging

import (
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultFileMaxSizeMB  = 10
	defaultFileMaxBackups = 3
	defaultFileMaxAgeDays = 14
)

// NewFileWriter returns a rotating writer for options.Path, or nil when no
// path is configured. The caller owns Close.
func NewFileWriter(options FileOptions) io.WriteCloser {
	path := strings.TrimSpace(options.Path)
	if path == "" {
		return nil
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	maxSize := options.MaxSizeMB
	if maxSize <= 0 {
		maxSize = defaultFileMaxSizeMB
	}
	maxBackups := options.MaxBackups
	if maxBackups <= 0 {
		maxBackups = defaultFileMaxBackups
	}
	maxAge := options.MaxAgeDays
	if maxAge <= 0 {
		maxAge = defaultFileMaxAgeDays
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		MaxAge:     maxAge,
	}
}

// NewLoggerWithFile writes to output and, when configured, to a rotating file.
func NewLoggerWithFile(buffer *LogBuffer, minLevel Level, output io.Writer, options FileOptions) (*Logger, io.Closer) {
	file := NewFileWriter(options)
	if file == nil {
		return NewLoggerWithOutput(buffer, minLevel, output), nopCloser{}
	}
	if output == nil {
		return NewLoggerWithOutput(buffer, minLevel, file), file
	}
	return NewLoggerWithOutput(buffer, minLevel, io.MultiWriter(output, file)), file
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
