// logging.go - structured logging interface for the reactor.
//
// Package-level configuration for structured logging. This design allows
// external integration with logging frameworks such as logiface while
// providing a low-overhead built-in implementation for basic usage.
//
// Usage:
//
//	gsk.SetStructuredLogger(gsk.NewDefaultLogger(gsk.LevelInfo))

package gsk

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/joeycumines/logiface"
)

var (
	// globalLogger is the package-level structured logger, used by SDebug,
	// SInfo, SWarn, SError and as the default for reactors that don't set
	// WithLogger.
	globalLogger struct {
		sync.RWMutex
		logger Logger
	}
)

// SetStructuredLogger sets the global structured logger.
func SetStructuredLogger(logger Logger) {
	globalLogger.Lock()
	defer globalLogger.Unlock()
	globalLogger.logger = logger
}

// getGlobalLogger safely retrieves the global logger.
func getGlobalLogger() Logger {
	globalLogger.RLock()
	defer globalLogger.RUnlock()
	if globalLogger.logger != nil {
		return globalLogger.logger
	}
	return NewNoOpLogger()
}

// LogLevel represents the severity of a log message.
type LogLevel int32

const (
	// LevelDebug for detailed diagnostic information.
	LevelDebug LogLevel = iota

	// LevelInfo for general informational messages.
	LevelInfo

	// LevelWarn for warning conditions.
	LevelWarn

	// LevelError for error conditions.
	LevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
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
		return fmt.Sprintf("UNKNOWN(%d)", l)
	}
}

// LogEntry represents a structured log entry.
type LogEntry struct {
	Level     LogLevel
	Category  string // "timer", "backend", "signal", "childreap", "sorter", "streamqueue"
	ReactorID int64
	SourceID  int64
	Context   map[string]interface{}
	Message   string
	Err       error
	Timestamp time.Time
}

// Logger is the structured logging interface.
type Logger interface {
	Log(entry LogEntry)
	IsEnabled(level LogLevel) bool
}

// DefaultLogger implements Logger using os.Stdout.
type DefaultLogger struct {
	level atomic.Int32
	mu    sync.Mutex
	Out   *os.File // public field for testing
}

// NewDefaultLogger creates a logger with the specified minimum level.
func NewDefaultLogger(level LogLevel) *DefaultLogger {
	l := &DefaultLogger{
		Out: os.Stdout,
	}
	l.level.Store(int32(level))
	return l
}

// NewFileLogger creates a logger writing to the specified file.
func NewFileLogger(level LogLevel, filename string) (*DefaultLogger, error) {
	file, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	l := &DefaultLogger{
		Out: file,
	}
	l.level.Store(int32(level))
	return l, nil
}

// SetLevel dynamically changes the minimum log level.
func (l *DefaultLogger) SetLevel(level LogLevel) {
	l.level.Store(int32(level))
}

func (l *DefaultLogger) getLevel() int32 {
	return l.level.Load()
}

// IsEnabled checks if the specified level would be logged.
func (l *DefaultLogger) IsEnabled(level LogLevel) bool {
	return level >= LogLevel(l.getLevel())
}

// Log writes a structured log entry.
func (l *DefaultLogger) Log(entry LogEntry) {
	if !l.IsEnabled(entry.Level) {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if isTerminal(l.Out) {
		l.logPretty(entry)
	} else {
		l.logJSON(entry)
	}
}

func (l *DefaultLogger) logPretty(entry LogEntry) {
	colorReset := "\033[0m"
	colorFatal := "\033[31m"
	colorError := "\033[31m"
	colorWarn := "\033[33m"
	colorInfo := "\033[36m"
	colorDebug := "\033[90m"
	colorDim := "\033[2m"

	var color string
	switch entry.Level {
	case LevelDebug:
		color = colorDebug
	case LevelInfo:
		color = colorInfo
	case LevelWarn:
		color = colorWarn
	case LevelError:
		color = colorError
	}

	fmt.Fprintf(l.Out, "%s%s%s %s [%-10s] %s%s",
		color, entry.Level.String(), colorReset,
		entry.Timestamp.Format("15:04:05.000"),
		entry.Category,
		entry.Message,
		colorReset,
	)

	if len(entry.Context) > 0 || entry.ReactorID != 0 || entry.SourceID != 0 {
		fmt.Fprint(l.Out, colorDim)
		if entry.ReactorID != 0 {
			fmt.Fprintf(l.Out, " reactor=%d", entry.ReactorID)
		}
		if entry.SourceID != 0 {
			fmt.Fprintf(l.Out, " source=%d", entry.SourceID)
		}
		for k, v := range entry.Context {
			fmt.Fprintf(l.Out, " %s=%v", k, v)
		}
		fmt.Fprint(l.Out, colorReset)
	}

	if entry.Err != nil {
		fmt.Fprintf(l.Out, " %s%v%s\n", colorFatal, entry.Err, colorReset)
	} else {
		fmt.Fprintln(l.Out)
	}
}

func (l *DefaultLogger) logJSON(entry LogEntry) {
	fmt.Fprintf(l.Out, "{\"timestamp\":\"%s\",\"level\":\"%s\",\"category\":\"%s\"",
		entry.Timestamp.Format(time.RFC3339Nano),
		entry.Level,
		entry.Category,
	)

	jsonFields := make([]byte, 0, 256)
	if entry.ReactorID != 0 {
		jsonFields = append(jsonFields, fmt.Sprintf(",\"reactor\":%d", entry.ReactorID)...)
	}
	if entry.SourceID != 0 {
		jsonFields = append(jsonFields, fmt.Sprintf(",\"source\":%d", entry.SourceID)...)
	}
	for k, v := range entry.Context {
		jsonFields = append(jsonFields, fmt.Sprintf(",\"%s\":\"%s\"", escapeJSON(k), escapeJSON(fmt.Sprint(v)))...)
	}

	message := escapeJSON(entry.Message)
	fmt.Fprintf(l.Out, ",\"message\":\"%s\"%s", message, jsonFields)

	if entry.Err != nil {
		fmt.Fprintf(l.Out, ",\"error\":\"%s\"}\n", escapeJSON(entry.Err.Error()))
	} else {
		fmt.Fprintln(l.Out, "}")
	}
}

// escapeJSON escapes special JSON characters.
func escapeJSON(s string) string {
	b := make([]byte, 0, len(s)*6)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\', '"', '/':
			b = append(b, '\\', c)
		default:
			if c < ' ' {
				const hex = "0123456789abcdef"
				b = append(b, '\\', 'u', '0', '0', hex[c>>4], hex[c&0xF])
			} else {
				b = append(b, c)
			}
		}
	}
	return *(*string)(unsafe.Pointer(&b))
}

// isTerminal checks if writer is a terminal.
func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		stat, err := f.Stat()
		if err != nil {
			return false
		}
		return (stat.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

// NoOpLogger discards everything; the default when no logger is configured.
type NoOpLogger struct{}

func NewNoOpLogger() *NoOpLogger { return &NoOpLogger{} }

func (l *NoOpLogger) Log(entry LogEntry)          {}
func (l *NoOpLogger) IsEnabled(level LogLevel) bool { return false }

// WriterLogger implements Logger using any io.Writer, in plain text.
type WriterLogger struct {
	level atomic.Int32
	mu    sync.Mutex
	out   io.Writer
}

// NewWriterLogger creates a logger writing to any io.Writer.
func NewWriterLogger(level LogLevel, out io.Writer) *WriterLogger {
	l := &WriterLogger{out: out}
	l.level.Store(int32(level))
	return l
}

// SetLevel dynamically changes the minimum log level.
func (l *WriterLogger) SetLevel(level LogLevel) {
	l.level.Store(int32(level))
}

// IsEnabled checks if the specified level would be logged.
func (l *WriterLogger) IsEnabled(level LogLevel) bool {
	return level >= LogLevel(l.level.Load())
}

// Log writes a structured log entry.
func (l *WriterLogger) Log(entry LogEntry) {
	if !l.IsEnabled(entry.Level) {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.logText(entry)
}

func (l *WriterLogger) logText(entry LogEntry) {
	fmt.Fprintf(l.out, "[%s] [%s] [%-10s] %s",
		entry.Level.String(),
		entry.Timestamp.Format("15:04:05.000"),
		entry.Category,
		entry.Message,
	)

	if len(entry.Context) > 0 || entry.ReactorID != 0 || entry.SourceID != 0 {
		if entry.ReactorID != 0 {
			fmt.Fprintf(l.out, " reactor=%d", entry.ReactorID)
		}
		if entry.SourceID != 0 {
			fmt.Fprintf(l.out, " source=%d", entry.SourceID)
		}
		for k, v := range entry.Context {
			fmt.Fprintf(l.out, " %s=%v", k, v)
		}
	}

	if entry.Err != nil {
		fmt.Fprintf(l.out, " err=%v\n", entry.Err)
	} else {
		fmt.Fprintln(l.out)
	}
}

// LogifaceLogger adapts a *logiface.Logger[E] into a Logger, so that
// callers with an existing logiface pipeline (zerolog, logrus, zap, a test
// recorder, ...) can route reactor diagnostics through it rather than
// standing up a parallel DefaultLogger/WriterLogger. It only depends on
// logiface's core event/writer interfaces, so it works with any backend
// logiface has an adapter for.
type LogifaceLogger[E logiface.Event] struct {
	logger *logiface.Logger[E]
}

// NewLogifaceLogger wraps l. A nil l behaves like NewNoOpLogger.
func NewLogifaceLogger[E logiface.Event](l *logiface.Logger[E]) *LogifaceLogger[E] {
	return &LogifaceLogger[E]{logger: l}
}

// IsEnabled reports whether the wrapped logger would emit at level.
func (l *LogifaceLogger[E]) IsEnabled(level LogLevel) bool {
	if l.logger == nil {
		return false
	}
	return l.logger.Level() >= logifaceLevel(level)
}

// Log forwards entry to the wrapped logiface.Logger at the translated level.
func (l *LogifaceLogger[E]) Log(entry LogEntry) {
	if l.logger == nil {
		return
	}
	b := l.logger.Build(logifaceLevel(entry.Level))
	if entry.ReactorID != 0 {
		b = b.Int64("reactor", entry.ReactorID)
	}
	if entry.SourceID != 0 {
		b = b.Int64("source", entry.SourceID)
	}
	if entry.Err != nil {
		b = b.Err(entry.Err)
	}
	for k, v := range entry.Context {
		b = b.Any(k, v)
	}
	b.Log(entry.Message)
}

// logifaceLevel maps LogLevel onto the syslog-derived logiface.Level scale.
func logifaceLevel(level LogLevel) logiface.Level {
	switch level {
	case LevelDebug:
		return logiface.LevelDebug
	case LevelInfo:
		return logiface.LevelInformational
	case LevelWarn:
		return logiface.LevelWarning
	case LevelError:
		return logiface.LevelError
	default:
		return logiface.LevelInformational
	}
}

// Helper functions for common logging patterns.

// LogDebug logs a debug message using the given logger.
func LogDebug(l Logger, category, message string, fields map[string]interface{}) {
	if !l.IsEnabled(LevelDebug) {
		return
	}
	l.Log(LogEntry{
		Level:     LevelDebug,
		Category:  category,
		Message:   message,
		Context:   fields,
		Timestamp: time.Now(),
	})
}

// LogInfo logs an info message using the given logger.
func LogInfo(l Logger, category, message string, fields map[string]interface{}) {
	if !l.IsEnabled(LevelInfo) {
		return
	}
	l.Log(LogEntry{
		Level:     LevelInfo,
		Category:  category,
		Message:   message,
		Context:   fields,
		Timestamp: time.Now(),
	})
}

// LogWarn logs a warning message using the given logger.
func LogWarn(l Logger, category, message string, fields map[string]interface{}) {
	if !l.IsEnabled(LevelWarn) {
		return
	}
	l.Log(LogEntry{
		Level:     LevelWarn,
		Category:  category,
		Message:   message,
		Context:   fields,
		Timestamp: time.Now(),
	})
}

// LogError logs an error message using the given logger.
func LogError(l Logger, category, message string, err error, fields map[string]interface{}) {
	if !l.IsEnabled(LevelError) {
		return
	}
	l.Log(LogEntry{
		Level:     LevelError,
		Category:  category,
		Message:   message,
		Err:       err,
		Context:   fields,
		Timestamp: time.Now(),
	})
}

// Package-level convenience functions; these use the global logger.

// SDebug logs a debug message using the global logger.
func SDebug(category, message string, fields ...map[string]interface{}) {
	logger := getGlobalLogger()
	if !logger.IsEnabled(LevelDebug) {
		return
	}
	var f map[string]interface{}
	if len(fields) > 0 {
		f = fields[0]
	}
	LogDebug(logger, category, message, f)
}

// SInfo logs an info message using the global logger.
func SInfo(category, message string, fields ...map[string]interface{}) {
	logger := getGlobalLogger()
	if !logger.IsEnabled(LevelInfo) {
		return
	}
	var f map[string]interface{}
	if len(fields) > 0 {
		f = fields[0]
	}
	LogInfo(logger, category, message, f)
}

// SWarn logs a warning message using the global logger.
func SWarn(category, message string, fields ...map[string]interface{}) {
	logger := getGlobalLogger()
	if !logger.IsEnabled(LevelWarn) {
		return
	}
	var f map[string]interface{}
	if len(fields) > 0 {
		f = fields[0]
	}
	LogWarn(logger, category, message, f)
}

// SError logs an error message using the global logger.
func SError(category, message string, err error, fields ...map[string]interface{}) {
	logger := getGlobalLogger()
	if !logger.IsEnabled(LevelError) {
		return
	}
	var f map[string]interface{}
	if len(fields) > 0 {
		f = fields[0]
	}
	LogError(logger, category, message, err, f)
}

// Specialty helpers for reactor subsystems.

// logTimerScheduled logs when a timer is armed.
func logTimerScheduled(reactorID, sourceID int64, when time.Time) {
	logger := getGlobalLogger()
	if !logger.IsEnabled(LevelDebug) {
		return
	}
	logger.Log(LogEntry{
		Level:     LevelDebug,
		Category:  "timer",
		ReactorID: reactorID,
		SourceID:  sourceID,
		Message:   "timer scheduled",
		Timestamp: time.Now(),
		Context: map[string]interface{}{
			"expire": when.Format(time.RFC3339Nano),
		},
	})
}

// logTimerFired logs when a timer's callback is invoked.
func logTimerFired(reactorID, sourceID int64, lateBy time.Duration) {
	logger := getGlobalLogger()
	if !logger.IsEnabled(LevelDebug) {
		return
	}
	logger.Log(LogEntry{
		Level:     LevelDebug,
		Category:  "timer",
		ReactorID: reactorID,
		SourceID:  sourceID,
		Message:   "timer fired",
		Timestamp: time.Now(),
		Context: map[string]interface{}{
			"late_by_us": lateBy.Microseconds(),
		},
	})
}

// logBackendWaitError logs a non-fatal Backend.Wait error (e.g. EINTR handled
// by the caller, or a backend-reported failure that the reactor can recover
// from without tearing down).
func logBackendWaitError(reactorID int64, err error, fatal bool) {
	logger := getGlobalLogger()
	level := LevelWarn
	if fatal {
		level = LevelError
	}
	if !logger.IsEnabled(level) {
		return
	}
	logger.Log(LogEntry{
		Level:     level,
		Category:  "backend",
		ReactorID: reactorID,
		Message:   "backend wait error",
		Err:       err,
		Timestamp: time.Now(),
		Context: map[string]interface{}{
			"fatal": fatal,
		},
	})
}

// logSignalWriteError logs a failure to notify a reactor's wakeup pipe of an
// incoming signal; the signal is dropped for that reactor when this happens.
func logSignalWriteError(signum int, err error) {
	logger := getGlobalLogger()
	if !logger.IsEnabled(LevelError) {
		return
	}
	logger.Log(LogEntry{
		Level:     LevelError,
		Category:  "signal",
		Message:   "signal notify write failed",
		Err:       err,
		Timestamp: time.Now(),
		Context: map[string]interface{}{
			"signum": signum,
		},
	})
}

// logWaitPIDError logs a waitpid(2) failure observed by the child reaper's
// drain loop; per the reactor's reap contract this is logged and dropped
// rather than propagated, since there is no single caller to return it to.
func logWaitPIDError(err error) {
	logger := getGlobalLogger()
	if !logger.IsEnabled(LevelWarn) {
		return
	}
	logger.Log(LogEntry{
		Level:     LevelWarn,
		Category:  "childreap",
		Message:   "waitpid error",
		Err:       err,
		Timestamp: time.Now(),
	})
}

// logSorterSpill logs the external sorter spilling an in-memory run to disk.
func logSorterSpill(path string, records int) {
	logger := getGlobalLogger()
	if !logger.IsEnabled(LevelDebug) {
		return
	}
	logger.Log(LogEntry{
		Level:     LevelDebug,
		Category:  "sorter",
		Message:   "run spilled to disk",
		Timestamp: time.Now(),
		Context: map[string]interface{}{
			"path":    path,
			"records": records,
		},
	})
}

// logStreamQueueEOFSkip logs the stream queue skipping an exhausted substream.
func logStreamQueueEOFSkip(retries, limit int) {
	logger := getGlobalLogger()
	if !logger.IsEnabled(LevelDebug) {
		return
	}
	logger.Log(LogEntry{
		Level:     LevelDebug,
		Category:  "streamqueue",
		Message:   "substream EOF, advancing",
		Timestamp: time.Now(),
		Context: map[string]interface{}{
			"retries": retries,
			"limit":   limit,
		},
	})
}
