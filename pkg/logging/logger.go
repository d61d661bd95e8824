// Package logging provides structured logging for the MCP engine.
//
// Loggers are cheap to derive: WithFields returns a logger sharing the
// parent's output, formatter and level. Entries carry fields in the order
// they were added, with the connection-scoped keys (session, request_id,
// method) first.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mcperrors "github.com/ajitpratap0/mcp-engine/pkg/errors"
)

// Level represents the severity of a log message
type Level int

const (
	// DebugLevel is for frame and dispatch tracing
	DebugLevel Level = iota - 1
	// InfoLevel is for lifecycle events: sessions opening, servers listening
	InfoLevel
	// WarnLevel is for peer misbehaviour the engine recovered from
	WarnLevel
	// ErrorLevel is for failures that ended a connection or a request
	ErrorLevel
	// FatalLevel logs and exits the process
	FatalLevel
)

// String returns the lower case level name
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	case FatalLevel:
		return "fatal"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel parses a level name such as "debug" or "WARN".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	}
	return InfoLevel, fmt.Errorf("unknown log level %q", s)
}

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value interface{}
}

// Well-known keys. The formatters place them ahead of other fields.
const (
	KeyComponent = "component"
	KeySession   = "session"
	KeyRequestID = "request_id"
	KeyMethod    = "method"
	KeyError     = "error"
)

// Field constructors
func String(key, value string) Field                 { return Field{Key: key, Value: value} }
func Int(key string, value int) Field                { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field              { return Field{Key: key, Value: value} }
func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value} }
func Time(key string, value time.Time) Field         { return Field{Key: key, Value: value} }
func Any(key string, value interface{}) Field        { return Field{Key: key, Value: value} }

// ErrorField records err under "error"
func ErrorField(err error) Field { return Field{Key: KeyError, Value: err} }

// Component tags entries with the emitting component
func Component(name string) Field { return Field{Key: KeyComponent, Value: name} }

// Session tags entries with a session id
func Session(id string) Field { return Field{Key: KeySession, Value: id} }

// Method tags entries with an RPC method
func Method(method string) Field { return Field{Key: KeyMethod, Value: method} }

// RequestID tags entries with a JSON-RPC request id
func RequestID(id string) Field { return Field{Key: KeyRequestID, Value: id} }

// Logger is the interface for structured logging
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	// Fatal logs and exits with status 1
	Fatal(msg string, fields ...Field)

	// WithFields returns a logger adding fields to every entry. A key
	// already present is overwritten.
	WithFields(fields ...Field) Logger
	// WithContext adds the request id stored by ContextWithRequestID
	WithContext(ctx context.Context) Logger
	// WithError adds err and, for an MCPError, its code, category and
	// context
	WithError(err error) Logger

	// SetLevel sets the minimum level of this logger and every logger
	// sharing its output
	SetLevel(level Level)
	GetLevel() Level
}

// Entry is one formatted log record
type Entry struct {
	Time      time.Time
	Level     Level
	Message   string
	Component string
	// Fields excludes the component
	Fields []Field
}

// Formatter formats log entries
type Formatter interface {
	Format(entry *Entry) ([]byte, error)
}

// core is shared by a logger and everything derived from it.
type core struct {
	mu        sync.Mutex
	w         io.Writer
	formatter Formatter
	level     atomic.Int64
}

func (c *core) write(e *Entry) {
	data, err := c.formatter.Format(e)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: format entry: %v\n", err)
		return
	}
	c.mu.Lock()
	_, err = c.w.Write(data)
	c.mu.Unlock()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: write entry: %v\n", err)
	}
}

type logger struct {
	core   *core
	fields []Field
}

// New creates a structured logger at InfoLevel. Output defaults to stderr:
// stdout is reserved for the stdio transport.
func New(output io.Writer, formatter Formatter) Logger {
	if output == nil {
		output = os.Stderr
	}
	if formatter == nil {
		formatter = NewTextFormatter()
	}
	c := &core{w: output, formatter: formatter}
	c.level.Store(int64(InfoLevel))
	return &logger{core: c}
}

// NewNop returns a logger that discards everything.
func NewNop() Logger {
	l := New(io.Discard, NewTextFormatter())
	l.SetLevel(FatalLevel + 1)
	return l
}

func (l *logger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields) }
func (l *logger) Info(msg string, fields ...Field)  { l.log(InfoLevel, msg, fields) }
func (l *logger) Warn(msg string, fields ...Field)  { l.log(WarnLevel, msg, fields) }
func (l *logger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields) }

func (l *logger) Fatal(msg string, fields ...Field) {
	l.log(FatalLevel, msg, fields)
	os.Exit(1)
}

func (l *logger) SetLevel(level Level) { l.core.level.Store(int64(level)) }
func (l *logger) GetLevel() Level      { return Level(l.core.level.Load()) }

func (l *logger) WithFields(fields ...Field) Logger {
	return &logger{core: l.core, fields: merge(l.fields, fields)}
}

func (l *logger) WithContext(ctx context.Context) Logger {
	if id := RequestIDFromContext(ctx); id != "" {
		return l.WithFields(RequestID(id))
	}
	return l
}

func (l *logger) WithError(err error) Logger {
	fields := []Field{ErrorField(err)}
	if mcpErr, ok := mcperrors.AsMCPError(err); ok {
		fields = append(fields,
			Int("code", mcpErr.Code()),
			String("category", string(mcpErr.Category())))
		ctx := mcpErr.Context()
		for _, f := range []Field{
			RequestID(ctx.RequestID),
			Session(ctx.SessionID),
			Method(ctx.Method),
			Component(ctx.Component),
			String("operation", ctx.Operation),
		} {
			if f.Value != "" {
				fields = append(fields, f)
			}
		}
	}
	return l.WithFields(fields...)
}

func (l *logger) log(level Level, msg string, fields []Field) {
	if level < l.GetLevel() {
		return
	}

	all := merge(l.fields, fields)
	e := &Entry{
		Time:    time.Now(),
		Level:   level,
		Message: msg,
		Fields:  make([]Field, 0, len(all)),
	}
	for _, key := range []string{KeySession, KeyRequestID, KeyMethod} {
		if i := indexOf(all, key); i >= 0 {
			e.Fields = append(e.Fields, all[i])
		}
	}
	for _, f := range all {
		switch f.Key {
		case KeyComponent:
			e.Component = fmt.Sprint(f.Value)
		case KeySession, KeyRequestID, KeyMethod:
		default:
			e.Fields = append(e.Fields, f)
		}
	}
	l.core.write(e)
}

// merge returns base with extra applied: existing keys are replaced in
// place, new keys are appended. base is not modified.
func merge(base, extra []Field) []Field {
	out := make([]Field, len(base), len(base)+len(extra))
	copy(out, base)
	for _, f := range extra {
		if i := indexOf(out, f.Key); i >= 0 {
			out[i] = f
		} else {
			out = append(out, f)
		}
	}
	return out
}

func indexOf(fields []Field, key string) int {
	for i, f := range fields {
		if f.Key == key {
			return i
		}
	}
	return -1
}

type contextKey struct{}

// ContextWithRequestID returns a context carrying a request id
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKey{}, requestID)
}

// RequestIDFromContext extracts the request ID from a context
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}
