package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TextFormatter writes one logfmt-style line per entry:
//
//	15:04:05.000 INF transport: frame sent session=3f2a request_id=7 bytes=112
type TextFormatter struct {
	// TimeFormat defaults to "15:04:05.000". DisableTime drops the column.
	TimeFormat  string
	DisableTime bool
	// Color wraps the level tag in ANSI colors
	Color bool
}

// NewTextFormatter creates a text formatter without colors
func NewTextFormatter() *TextFormatter {
	return &TextFormatter{TimeFormat: "15:04:05.000"}
}

var levelTags = map[Level]string{
	DebugLevel: "DBG",
	InfoLevel:  "INF",
	WarnLevel:  "WRN",
	ErrorLevel: "ERR",
	FatalLevel: "FTL",
}

var levelColors = map[Level]string{
	DebugLevel: "\033[90m",
	InfoLevel:  "\033[34m",
	WarnLevel:  "\033[33m",
	ErrorLevel: "\033[31m",
	FatalLevel: "\033[31m",
}

// Format formats a log entry as text
func (f *TextFormatter) Format(e *Entry) ([]byte, error) {
	var buf bytes.Buffer

	if !f.DisableTime {
		buf.WriteString(e.Time.Format(f.TimeFormat))
		buf.WriteByte(' ')
	}

	tag, ok := levelTags[e.Level]
	if !ok {
		tag = strings.ToUpper(e.Level.String())
	}
	if f.Color {
		buf.WriteString(levelColors[e.Level])
		buf.WriteString(tag)
		buf.WriteString("\033[0m")
	} else {
		buf.WriteString(tag)
	}
	buf.WriteByte(' ')

	if e.Component != "" {
		buf.WriteString(e.Component)
		buf.WriteString(": ")
	}
	buf.WriteString(e.Message)

	for _, field := range e.Fields {
		buf.WriteByte(' ')
		buf.WriteString(field.Key)
		buf.WriteByte('=')
		buf.WriteString(textValue(field.Value))
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func textValue(v interface{}) string {
	var s string
	switch val := v.(type) {
	case nil:
		return "<nil>"
	case string:
		s = val
	case error:
		s = val.Error()
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case fmt.Stringer:
		s = val.String()
	default:
		s = fmt.Sprint(val)
	}
	if s == "" || strings.ContainsAny(s, " =\"\t\n") {
		return strconv.Quote(s)
	}
	return s
}

// JSONFormatter writes one JSON object per line with "time", "level", "msg"
// and "component" first, then the fields in order.
type JSONFormatter struct {
	// TimeFormat defaults to RFC 3339 with milliseconds. DisableTime drops
	// the key.
	TimeFormat  string
	DisableTime bool
}

// NewJSONFormatter creates a JSON formatter
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{TimeFormat: "2006-01-02T15:04:05.000Z07:00"}
}

var reservedJSONKeys = map[string]bool{"time": true, "level": true, "msg": true, KeyComponent: true}

// Format formats a log entry as JSON
func (f *JSONFormatter) Format(e *Entry) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	write := func(key string, value interface{}) error {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshal log field %q: %w", key, err)
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, _ := json.Marshal(key)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(raw)
		return nil
	}

	if !f.DisableTime {
		if err := write("time", e.Time.Format(f.TimeFormat)); err != nil {
			return nil, err
		}
	}
	if err := write("level", e.Level.String()); err != nil {
		return nil, err
	}
	if err := write("msg", e.Message); err != nil {
		return nil, err
	}
	if e.Component != "" {
		if err := write(KeyComponent, e.Component); err != nil {
			return nil, err
		}
	}

	for _, field := range e.Fields {
		key := field.Key
		if reservedJSONKeys[key] {
			key = "fields." + key
		}
		value := field.Value
		if err, ok := value.(error); ok {
			value = err.Error()
		}
		if err := write(key, value); err != nil {
			return nil, err
		}
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}
