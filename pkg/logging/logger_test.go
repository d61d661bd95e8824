package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcperrors "github.com/ajitpratap0/mcp-engine/pkg/errors"
)

func newTextLogger(buf *bytes.Buffer) Logger {
	f := NewTextFormatter()
	f.DisableTime = true
	return New(buf, f)
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newTextLogger(&buf)
	logger.SetLevel(DebugLevel)

	logger.Debug("frame sent", Int("bytes", 42))
	logger.Info("listening", String("addr", ":8080"))
	logger.Warn("slow handler", Duration("took", 1500*time.Millisecond))
	logger.Error("write failed", ErrorField(errors.New("broken pipe")))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "DBG frame sent bytes=42", lines[0])
	assert.Equal(t, "INF listening addr=:8080", lines[1])
	assert.Equal(t, "WRN slow handler took=1.5s", lines[2])
	assert.Equal(t, `ERR write failed error="broken pipe"`, lines[3])
}

func TestTextFormatHeaderAndOrder(t *testing.T) {
	var buf bytes.Buffer
	logger := newTextLogger(&buf).WithFields(Component("engine"), Int("attempt", 2), Session("s-1"))

	logger.Info("request done", Method("tools/call"), RequestID("7"), String("tool", "echo"))

	assert.Equal(t, "INF engine: request done session=s-1 request_id=7 method=tools/call attempt=2 tool=echo\n", buf.String())
}

func TestTextQuoting(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{"plain", "plain"},
		{"", `""`},
		{"two words", `"two words"`},
		{"a=b", `"a=b"`},
		{nil, "<nil>"},
		{true, "true"},
		{3 * time.Second, "3s"},
	}
	for _, tt := range tests {
		if got := textValue(tt.in); got != tt.want {
			t.Errorf("textValue(%#v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestLogLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := newTextLogger(&buf)
	logger.SetLevel(WarnLevel)

	logger.Debug("Debug message")
	logger.Info("Info message")
	logger.Warn("Warning message")
	logger.Error("Error message")

	output := buf.String()
	if strings.Contains(output, "Debug message") || strings.Contains(output, "Info message") {
		t.Errorf("entries below warn should be filtered, got %q", output)
	}
	if !strings.Contains(output, "Warning message") || !strings.Contains(output, "Error message") {
		t.Errorf("entries at warn and above should be kept, got %q", output)
	}
}

func TestDerivedLoggersShareLevel(t *testing.T) {
	var buf bytes.Buffer
	root := newTextLogger(&buf)
	child := root.WithFields(Component("child"))

	root.SetLevel(ErrorLevel)
	child.Warn("hidden")
	assert.Empty(t, buf.String())
	assert.Equal(t, ErrorLevel, child.GetLevel())
}

func TestWithFieldsOverridesAndDoesNotLeak(t *testing.T) {
	var buf bytes.Buffer
	base := newTextLogger(&buf).WithFields(String("service", "weather"), String("version", "1.0.0"))
	_ = base.WithFields(String("extra", "x"))

	base.Info("started", String("version", "1.1.0"))

	assert.Equal(t, "INF started service=weather version=1.1.0\n", buf.String())
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger := newTextLogger(&buf)

	ctx := ContextWithRequestID(context.Background(), "req-123")
	logger.WithContext(ctx).Info("handled")
	logger.WithContext(context.Background()).Info("bare")

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "INF handled request_id=req-123", lines[0])
	assert.Equal(t, "INF bare", lines[1])
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := newTextLogger(&buf)

	err := mcperrors.InvalidParams("city is required").
		WithContext(&mcperrors.Context{RequestID: "9", SessionID: "s-2", Component: "weather"})
	logger.WithError(err).Warn("rejected")

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "WRN weather: rejected session=s-2 request_id=9 "), out)
	assert.Contains(t, out, "code=-32602")
	assert.Contains(t, out, "category=validation")
	assert.Contains(t, out, `error="invalid params: city is required"`)

	buf.Reset()
	logger.WithError(errors.New("plain")).Error("failed")
	assert.Equal(t, "ERR failed error=plain\n", buf.String())
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, NewJSONFormatter()).WithFields(Component("server"))

	logger.Info("session opened",
		Session("s-1"),
		Int("count", 42),
		Bool("flag", true),
		Duration("duration", time.Second),
		Any("caps", map[string]bool{"tools": true}),
		ErrorField(errors.New("test error")),
		String("msg", "collides"),
	)

	line := buf.String()
	require.True(t, strings.HasSuffix(line, "\n"))
	assert.True(t, strings.HasPrefix(line, `{"time":"`), line)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "session opened", entry["msg"])
	assert.Equal(t, "server", entry["component"])
	assert.Equal(t, "s-1", entry["session"])
	assert.Equal(t, float64(42), entry["count"])
	assert.Equal(t, true, entry["flag"])
	assert.Equal(t, float64(time.Second), entry["duration"])
	assert.Equal(t, map[string]interface{}{"tools": true}, entry["caps"])
	assert.Equal(t, "test error", entry["error"])
	assert.Equal(t, "collides", entry["fields.msg"])
}

func TestJSONFormatterRejectsUnmarshalable(t *testing.T) {
	_, err := NewJSONFormatter().Format(&Entry{
		Level:   InfoLevel,
		Message: "bad",
		Fields:  []Field{Any("ch", make(chan int))},
	})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   DebugLevel,
		"INFO":    InfoLevel,
		"":        InfoLevel,
		"warning": WarnLevel,
		" error ": ErrorLevel,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil {
			t.Errorf("ParseLevel(%q) returned error: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}

	if _, err := ParseLevel("loud"); err == nil {
		t.Error("Expected error for unknown level")
	}
}

func TestNopLogger(t *testing.T) {
	logger := NewNop()
	logger.Error("dropped", String("k", "v"))
	logger.WithFields(Session("s-1")).Warn("dropped too")
}

func TestDerivedLoggersShareOutput(t *testing.T) {
	var buf bytes.Buffer
	root := newTextLogger(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			root.WithFields(Int("worker", i)).Info("tick")
		}(i)
	}
	wg.Wait()

	if got := strings.Count(buf.String(), "INF tick worker="); got != 8 {
		t.Errorf("Expected 8 whole entries, got %d", got)
	}
}

func TestHTTPMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := newTextLogger(&buf)
	logger.SetLevel(DebugLevel)

	var flushable bool
	var seenID string
	handler := HTTPMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, flushable = w.(http.Flusher)
		seenID = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("X-Request-ID", "abc")
	req.Header.Set("Mcp-Session-Id", "s-9")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.True(t, flushable, "wrapped writer must implement http.Flusher")
	assert.Equal(t, "abc", seenID)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
	out := buf.String()
	assert.Contains(t, out, "DBG http: request done session=s-9")
	assert.Contains(t, out, "status=202")
}

func TestHTTPMiddlewareLevels(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{http.StatusOK, ""},
		{http.StatusForbidden, "WRN http: request refused"},
		{http.StatusInternalServerError, "ERR http: request failed"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		handler := HTTPMiddleware(newTextLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/mcp", nil))

		if tt.want == "" {
			assert.Empty(t, buf.String(), "successful requests log at debug")
			continue
		}
		assert.Contains(t, buf.String(), tt.want)
	}
}

func TestHTTPMiddlewareLogsStreamOpen(t *testing.T) {
	var buf bytes.Buffer
	logger := newTextLogger(&buf)
	logger.SetLevel(DebugLevel)

	handler := HTTPMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Mcp-Session-Id", "s-3")
		w.(http.Flusher).Flush()
		w.(http.Flusher).Flush()
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/mcp", nil))

	assert.Equal(t, 1, strings.Count(buf.String(), "event stream open"))
	assert.Contains(t, buf.String(), "event stream open session=s-3")
}
