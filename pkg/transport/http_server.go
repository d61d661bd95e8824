package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"
	"github.com/tmaxmax/go-sse"

	mcperrors "github.com/ajitpratap0/mcp-engine/pkg/errors"
	"github.com/ajitpratap0/mcp-engine/pkg/logging"
	"github.com/ajitpratap0/mcp-engine/pkg/sessionstore"
)

const (
	httpName = "http"

	// SessionIDParam is the query parameter naming the session on POST and
	// DELETE requests.
	SessionIDParam = "sessionId"

	eventEndpoint = "endpoint"
	eventMessage  = "message"
)

var (
	jsonMediaType         = contenttype.NewMediaType("application/json")
	eventStreamMediaType  = contenttype.NewMediaType("text/event-stream")
	eventStreamMediaTypes = []contenttype.MediaType{eventStreamMediaType}
)

// SessionFunc runs one session over its transport. It is called on its own
// goroutine when a client opens the event stream and should return when
// Receive reports io.EOF.
type SessionFunc func(ctx context.Context, sessionID string, t Transport)

// HTTPOption configures an HTTPHandler.
type HTTPOption func(*HTTPHandler)

// WithSessionStore records live sessions in store.
func WithSessionStore(store sessionstore.Store) HTTPOption {
	return func(h *HTTPHandler) { h.store = store }
}

// WithKeepAlive sets the interval of keepalive comments on idle streams.
func WithKeepAlive(d time.Duration) HTTPOption {
	return func(h *HTTPHandler) { h.keepAlive = d }
}

// WithMaxMessageSize bounds POST bodies.
func WithMaxMessageSize(n int) HTTPOption {
	return func(h *HTTPHandler) { h.maxMessageSize = n }
}

// WithHTTPLogger sets the handler's logger.
func WithHTTPLogger(logger logging.Logger) HTTPOption {
	return func(h *HTTPHandler) { h.logger = logger }
}

// HTTPHandler is the server side of the HTTP transport. GET opens a session
// and streams server messages as SSE events; POST delivers one client
// message; DELETE ends the session. All three share one path.
type HTTPHandler struct {
	onSession      SessionFunc
	store          sessionstore.Store
	keepAlive      time.Duration
	maxMessageSize int
	logger         logging.Logger

	mu       sync.RWMutex
	sessions map[string]*sseSession
	closed   bool
}

// NewHTTPHandler creates the handler. onSession is required.
func NewHTTPHandler(onSession SessionFunc, opts ...HTTPOption) *HTTPHandler {
	h := &HTTPHandler{
		onSession:      onSession,
		keepAlive:      DefaultKeepAlive,
		maxMessageSize: DefaultMaxMessageSize,
		sessions:       make(map[string]*sseSession),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = logging.New(nil, nil)
	}
	h.logger = h.logger.WithFields(logging.Component("HTTPHandler"))
	return h
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleStream(w, r)
	case http.MethodPost:
		h.handleMessage(w, r)
	case http.MethodDelete:
		h.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// Sessions returns the number of open event streams.
func (h *HTTPHandler) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Close ends every session and rejects new ones.
func (h *HTTPHandler) Close() error {
	h.mu.Lock()
	h.closed = true
	sessions := make([]*sseSession, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		_ = s.Close()
	}
	return nil
}

func (h *HTTPHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	if _, _, err := contenttype.GetAcceptableMediaType(r, eventStreamMediaTypes); err != nil {
		w.WriteHeader(http.StatusNotAcceptable)
		return
	}

	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	sess, err := sse.Upgrade(w, r)
	if err != nil {
		h.logger.WithError(err).Error("failed to upgrade session")
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	id := uuid.New().String()
	logger := h.logger.WithFields(logging.Session(id))

	// Registered before the endpoint event so an immediate POST finds it.
	s := &sseSession{
		id:       id,
		incoming: make(chan []byte, 16),
		outgoing: make(chan outgoingEvent),
		done:     make(chan struct{}),
	}
	h.register(r.Context(), s, r.RemoteAddr)
	defer h.unregister(s)

	endpoint := url.URL{Path: r.URL.Path, RawQuery: url.Values{SessionIDParam: {id}}.Encode()}
	msg := sse.Message{Type: sse.Type(eventEndpoint)}
	msg.AppendData(endpoint.String())
	if err := sess.Send(&msg); err != nil {
		logger.WithError(err).Warn("failed to write endpoint event")
		return
	}
	if err := sess.Flush(); err != nil {
		logger.WithError(err).Warn("failed to flush endpoint event")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.onSession(ctx, id, s)
	}()

	logger.Info("session opened", logging.String("remote_addr", r.RemoteAddr))
	s.writeLoop(ctx, sess, h.keepAlive, logger)

	_ = s.Close()
	wg.Wait()
	logger.Info("session closed")
}

func (h *HTTPHandler) handleMessage(w http.ResponseWriter, r *http.Request) {
	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		w.WriteHeader(http.StatusUnsupportedMediaType)
		return
	}

	s, ok := h.lookup(r)
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, int64(h.maxMessageSize)))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "message too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if len(body) == 0 {
		http.Error(w, "empty body", http.StatusBadRequest)
		return
	}

	select {
	case s.incoming <- body:
	case <-s.done:
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	case <-r.Context().Done():
		return
	}

	if h.store != nil {
		if err := h.store.Touch(r.Context(), s.id); err != nil && !errors.Is(err, sessionstore.ErrNotFound) {
			h.logger.WithError(err).Warn("failed to touch session", logging.Session(s.id))
		}
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *HTTPHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(r)
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	_ = s.Close()
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) lookup(r *http.Request) (*sseSession, bool) {
	id := r.URL.Query().Get(SessionIDParam)
	if id == "" {
		return nil, false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	return s, ok
}

func (h *HTTPHandler) register(ctx context.Context, s *sseSession, remoteAddr string) {
	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()

	if h.store != nil {
		rec := sessionstore.Record{ID: s.id, Transport: httpName, RemoteAddr: remoteAddr}
		if err := h.store.Put(ctx, rec); err != nil {
			h.logger.WithError(err).Warn("failed to record session", logging.Session(s.id))
		}
	}
}

func (h *HTTPHandler) unregister(s *sseSession) {
	h.mu.Lock()
	delete(h.sessions, s.id)
	h.mu.Unlock()

	if h.store != nil {
		// The request context is already done here.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := h.store.Delete(ctx, s.id); err != nil {
			h.logger.WithError(err).Warn("failed to delete session record", logging.Session(s.id))
		}
	}
}

type outgoingEvent struct {
	msg  *sse.Message
	errs chan error
}

// sseSession is the Transport of one HTTP session. Every event is written
// by writeLoop; sse.Session is not safe for concurrent use.
type sseSession struct {
	id        string
	incoming  chan []byte
	outgoing  chan outgoingEvent
	done      chan struct{}
	closeOnce sync.Once
}

func (s *sseSession) writeLoop(ctx context.Context, sess *sse.Session, keepAlive time.Duration, logger logging.Logger) {
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case ev := <-s.outgoing:
			err := sess.Send(ev.msg)
			if err == nil {
				err = sess.Flush()
			}
			ev.errs <- err
			if err != nil {
				logger.WithError(err).Warn("failed to write event")
				return
			}
		case <-ticker.C:
			ping := &sse.Message{}
			ping.AppendComment("keepalive")
			if err := sess.Send(ping); err != nil {
				return
			}
			if err := sess.Flush(); err != nil {
				return
			}
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *sseSession) Send(ctx context.Context, msg []byte) error {
	ev := &sse.Message{Type: sse.Type(eventMessage)}
	ev.AppendData(string(msg))
	errs := make(chan error, 1)

	select {
	case s.outgoing <- outgoingEvent{msg: ev, errs: errs}:
	case <-s.done:
		return mcperrors.TransportClosed(httpName)
	case <-ctx.Done():
		return ctx.Err()
	}

	// Once queued the event is always answered, even if the stream fails.
	if err := <-errs; err != nil {
		return mcperrors.TransportError(httpName, "write", err)
	}
	return nil
}

func (s *sseSession) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data := <-s.incoming:
		return data, nil
	case <-s.done:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *sseSession) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

func (s *sseSession) String() string {
	return fmt.Sprintf("sse session %s", s.id)
}
