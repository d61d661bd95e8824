package logging

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

const sessionHeader = "Mcp-Session-Id"

// HTTPMiddleware logs each request of the HTTP transport. It reuses an
// incoming X-Request-ID or assigns one, makes it available to handlers
// through RequestIDFromContext and echoes it in the response. Server errors
// are logged at error level, refused requests at warn and the rest at
// debug; event streams also log when they open.
func HTTPMiddleware(logger Logger) func(http.Handler) http.Handler {
	logger = logger.WithFields(Component("http"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", id)
			r = r.WithContext(ContextWithRequestID(r.Context(), id))

			fields := []Field{
				String("http_request", id),
				String("verb", r.Method),
				String("path", r.URL.Path),
				String("remote", r.RemoteAddr),
			}
			if s := r.Header.Get(sessionHeader); s != "" {
				fields = append(fields, Session(s))
			}
			reqLogger := logger.WithFields(fields...)

			rw := &responseWriter{ResponseWriter: w, logger: reqLogger}
			start := time.Now()
			next.ServeHTTP(rw, r)

			status := rw.statusCode
			if status == 0 {
				status = http.StatusOK
			}
			done := reqLogger.WithFields(
				Int("status", status),
				Int("bytes", rw.bytesWritten),
				Duration("duration", time.Since(start)),
			)
			switch {
			case status >= 500:
				done.Error("request failed")
			case status >= 400:
				done.Warn("request refused")
			default:
				done.Debug("request done")
			}
		})
	}
}

// responseWriter records the status and size of a response.
type responseWriter struct {
	http.ResponseWriter
	logger       Logger
	statusCode   int
	bytesWritten int
	streaming    bool
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	if rw.statusCode == 0 {
		rw.statusCode = statusCode
	}
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Write(data []byte) (int, error) {
	if rw.statusCode == 0 {
		rw.statusCode = http.StatusOK
	}
	n, err := rw.ResponseWriter.Write(data)
	rw.bytesWritten += n
	return n, err
}

// Flush keeps server-sent event streams working through the wrapper. The
// first flush of a text/event-stream response is logged as the stream
// opening.
func (rw *responseWriter) Flush() {
	if !rw.streaming && rw.Header().Get("Content-Type") == "text/event-stream" {
		rw.streaming = true
		rw.logger.Debug("event stream open", Session(rw.Header().Get(sessionHeader)))
	}
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
