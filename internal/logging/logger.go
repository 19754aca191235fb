package logging

import (
	"io"
	"log"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"
)

const DefaultBufferSize = 256

// Lines carry this prefix so they can be told apart from the child's own
// stderr output, which shares the terminal.
const outputPrefix = "vire: "

var levelRanks = map[Level]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

var levelNames = map[string]Level{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarning,
	"warning": LevelWarning,
	"error":   LevelError,
}

func (level Level) rank() int {
	if rank, ok := levelRanks[level]; ok {
		return rank
	}
	return levelRanks[LevelInfo]
}

// ParseLevel accepts the --log-level spellings, case-insensitively.
func ParseLevel(value string) (Level, bool) {
	level, ok := levelNames[strings.ToLower(strings.TrimSpace(value))]
	return level, ok
}

// sink is shared by a logger and every logger derived from it with With.
type sink struct {
	buffer *LogBuffer
	output *log.Logger
}

type Logger struct {
	sink     *sink
	minLevel Level
	fields   map[string]string
}

// NewLoggerWithOutput records into buffer and writes formatted lines to
// output. A nil buffer gets a fresh ring; a nil output discards lines.
func NewLoggerWithOutput(buffer *LogBuffer, minLevel Level, output io.Writer) *Logger {
	if buffer == nil {
		buffer = NewLogBuffer(DefaultBufferSize)
	}
	if output == nil {
		output = io.Discard
	}
	if _, ok := levelRanks[minLevel]; !ok {
		minLevel = LevelInfo
	}
	return &Logger{
		sink: &sink{
			buffer: buffer,
			output: log.New(output, outputPrefix, log.LstdFlags),
		},
		minLevel: minLevel,
	}
}

// Discard returns a logger that only records into its buffer.
func Discard() *Logger {
	return NewLoggerWithOutput(nil, LevelDebug, io.Discard)
}

func (l *Logger) Buffer() *LogBuffer {
	if l == nil {
		return nil
	}
	return l.sink.buffer
}

// With returns a logger that adds fields to every entry.
func (l *Logger) With(fields map[string]string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{sink: l.sink, minLevel: l.minLevel, fields: mergeFields(l.fields, fields)}
}

func (l *Logger) Debug(message string, fields map[string]string) {
	l.emit(LevelDebug, message, fields)
}

func (l *Logger) Info(message string, fields map[string]string) {
	l.emit(LevelInfo, message, fields)
}

func (l *Logger) Warn(message string, fields map[string]string) {
	l.emit(LevelWarning, message, fields)
}

func (l *Logger) Error(message string, fields map[string]string) {
	l.emit(LevelError, message, fields)
}

func (l *Logger) Enabled(level Level) bool {
	return l != nil && level.rank() >= l.minLevel.rank()
}

func (l *Logger) emit(level Level, message string, fields map[string]string) {
	if !l.Enabled(level) {
		return
	}
	entry := LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		Context:   mergeFields(l.fields, fields),
	}
	l.sink.buffer.Add(entry)
	l.sink.output.Print(formatEntry(entry))
}

// mergeFields returns nil when both maps are empty so entries without
// context compare cleanly in tests.
func mergeFields(base, extra map[string]string) map[string]string {
	if len(base)+len(extra) == 0 {
		return nil
	}
	merged := make(map[string]string, len(base)+len(extra))
	maps.Copy(merged, base)
	maps.Copy(merged, extra)
	return merged
}

// formatEntry renders `level=<l> msg="<m>"` followed by the context in key
// order.
func formatEntry(entry LogEntry) string {
	line := make([]byte, 0, 64)
	line = append(line, "level="...)
	line = append(line, entry.Level...)
	line = append(line, " msg="...)
	line = strconv.AppendQuote(line, entry.Message)
	for _, key := range slices.Sorted(maps.Keys(entry.Context)) {
		line = append(line, ' ')
		line = append(line, key...)
		line = append(line, '=')
		line = strconv.AppendQuote(line, entry.Context[key])
	}
	return string(line)
}
