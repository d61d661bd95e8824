package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ajitpratap0/mcp-engine/pkg/auth"
	"github.com/ajitpratap0/mcp-engine/pkg/logging"
	"github.com/ajitpratap0/mcp-engine/pkg/transport"
)

var defaultAllowedOrigins = []string{"http://localhost", "https://localhost"}

var localhostOrigins = []string{
	"http://localhost",
	"https://localhost",
	"http://127.0.0.1",
	"https://127.0.0.1",
	"http://[::1]",
	"https://[::1]",
}

// HTTPHandler serves the MCP HTTP transport. Each event stream is one
// connection of the Server. Requests carrying an Origin header outside the
// allowed list are refused before authentication runs.
type HTTPHandler struct {
	server    *Server
	transport *transport.HTTPHandler
	next      http.Handler
	logger    logging.Logger
}

// HTTPHandler returns an http.Handler serving this server. opts configure
// the underlying transport handler.
func (s *Server) HTTPHandler(opts ...transport.HTTPOption) *HTTPHandler {
	h := &HTTPHandler{
		server: s,
		logger: s.logger.WithFields(logging.Component("http")),
	}

	base := []transport.HTTPOption{transport.WithHTTPLogger(s.logger)}
	if s.store != nil {
		base = append(base, transport.WithSessionStore(s.store))
	}
	h.transport = transport.NewHTTPHandler(func(ctx context.Context, sessionID string, t transport.Transport) {
		_ = s.serve(ctx, sessionID, t)
	}, append(base, opts...)...)

	h.next = h.transport
	if s.authn != nil {
		config := s.authConfig
		if config.Logger == nil {
			config.Logger = s.logger
		}
		h.next = auth.HTTPMiddleware(s.authn, config)(h.transport)
	}
	return h
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if origin := r.Header.Get("Origin"); origin != "" && !h.isOriginAllowed(origin) {
		h.logger.Warn("rejected origin", logging.String("origin", origin))
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}
	h.next.ServeHTTP(w, r)
}

// Sessions returns the number of open event streams.
func (h *HTTPHandler) Sessions() int {
	return h.transport.Sessions()
}

// Close ends every HTTP session.
func (h *HTTPHandler) Close() error {
	return h.transport.Close()
}

// ListenAndServe serves the handler at addr under path until ctx is done.
func (h *HTTPHandler) ListenAndServe(ctx context.Context, addr, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, h)
	srv := &http.Server{
		Addr:              addr,
		Handler:           logging.HTTPMiddleware(h.logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	h.logger.Info("listening", logging.String("addr", addr), logging.String("path", path))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	_ = h.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// isOriginAllowed reports whether a browser origin may open a session. A
// "*" entry allows every origin. A localhost entry allows every loopback
// origin on any port.
func (h *HTTPHandler) isOriginAllowed(origin string) bool {
	for _, allowed := range h.server.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
		if isLocalhost(allowed) && isLocalhostOrigin(origin) {
			return true
		}
	}
	return false
}

func isLocalhost(origin string) bool {
	for _, p := range localhostOrigins {
		if origin == p {
			return true
		}
	}
	return false
}

func isLocalhostOrigin(origin string) bool {
	for _, p := range localhostOrigins {
		if origin == p || strings.HasPrefix(origin, p+":") {
			return true
		}
	}
	return false
}
