package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/tmaxmax/go-sse"

	mcperrors "github.com/ajitpratap0/mcp-engine/pkg/errors"
	"github.com/ajitpratap0/mcp-engine/pkg/logging"
)

// HTTPClientTransport is the client side of the HTTP transport. It holds the
// SSE stream open for server messages and POSTs each client message to the
// endpoint the server announced.
type HTTPClientTransport struct {
	httpClient *http.Client
	streamURL  *url.URL
	mu         sync.Mutex
	messageURL string
	maxSize    int
	header     http.Header
	logger     logging.Logger

	incoming chan []byte
	readErr  error // written before incoming is closed

	cancelStream context.CancelFunc
	readerDone   chan struct{}
	done         chan struct{}
	closeOnce    sync.Once
}

// DialHTTP opens the event stream at config.Endpoint and waits, bounded by
// ctx and config.ConnectTimeout, for the endpoint event.
func DialHTTP(ctx context.Context, config TransportConfig) (*HTTPClientTransport, error) {
	config = config.withDefaults()

	streamURL, err := url.Parse(config.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", config.Endpoint, err)
	}

	// The stream outlives ctx, which only bounds the dial.
	streamCtx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, streamURL.String(), nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range config.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := config.HTTPClient.Do(req)
	if err != nil {
		cancel()
		return nil, mcperrors.TransportError(httpName, "connect", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, mcperrors.TransportError(httpName, "connect",
			fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	header := make(http.Header, len(config.Headers))
	for k, v := range config.Headers {
		header.Set(k, v)
	}
	t := &HTTPClientTransport{
		httpClient:   config.HTTPClient,
		streamURL:    streamURL,
		maxSize:      config.MaxMessageSize,
		header:       header,
		logger:       config.Logger.WithFields(logging.Component("HTTPClientTransport")),
		incoming:     make(chan []byte, 16),
		cancelStream: cancel,
		readerDone:   make(chan struct{}),
		done:         make(chan struct{}),
	}

	ready := make(chan error, 1)
	go t.readStream(resp.Body, ready)

	timer := time.NewTimer(config.ConnectTimeout)
	defer timer.Stop()

	select {
	case err := <-ready:
		if err != nil {
			_ = t.Close()
			return nil, err
		}
	case <-timer.C:
		_ = t.Close()
		return nil, mcperrors.TransportError(httpName, "connect", errors.New("timed out waiting for endpoint event"))
	case <-ctx.Done():
		_ = t.Close()
		return nil, ctx.Err()
	}
	return t, nil
}

func (t *HTTPClientTransport) readStream(body io.ReadCloser, ready chan<- error) {
	defer close(t.readerDone)
	defer close(t.incoming)
	defer body.Close()

	announced := false
	for ev, err := range sse.Read(body, &sse.ReadConfig{MaxEventSize: t.maxSize}) {
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				t.readErr = mcperrors.TransportError(httpName, "read", err)
			}
			break
		}

		switch ev.Type {
		case eventEndpoint:
			if announced {
				continue
			}
			u, err := t.streamURL.Parse(ev.Data)
			if err != nil || ev.Data == "" {
				ready <- mcperrors.TransportError(httpName, "connect", fmt.Errorf("invalid endpoint %q", ev.Data))
				return
			}
			t.mu.Lock()
			t.messageURL = u.String()
			t.mu.Unlock()
			announced = true
			ready <- nil
		case eventMessage, "":
			if !announced {
				t.logger.Warn("message before endpoint event")
				continue
			}
			select {
			case t.incoming <- []byte(ev.Data):
			case <-t.done:
				return
			}
		default:
			t.logger.Debug("ignoring event", logging.String("type", ev.Type))
		}
	}

	if !announced {
		ready <- mcperrors.TransportClosed(httpName)
	}
}

func (t *HTTPClientTransport) endpoint() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.messageURL
}

// Receive returns the data of the next message event.
func (t *HTTPClientTransport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-t.done:
		return nil, io.EOF
	default:
	}

	select {
	case data, ok := <-t.incoming:
		if !ok {
			if t.readErr != nil {
				return nil, t.readErr
			}
			return nil, io.EOF
		}
		return data, nil
	case <-t.done:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Send POSTs msg to the session endpoint.
func (t *HTTPClientTransport) Send(ctx context.Context, msg []byte) error {
	select {
	case <-t.done:
		return mcperrors.TransportClosed(httpName)
	default:
	}
	if len(msg) > t.maxSize {
		return mcperrors.MessageTooLarge(httpName, len(msg), t.maxSize)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint(), bytes.NewReader(msg))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range t.header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return mcperrors.TransportError(httpName, "send", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted, http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return mcperrors.TransportClosed(httpName)
	case http.StatusRequestEntityTooLarge:
		return mcperrors.MessageTooLarge(httpName, len(msg), t.maxSize)
	default:
		return mcperrors.TransportError(httpName, "send", fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}
}

// Close ends the session on the server and drops the stream.
func (t *HTTPClientTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)

		if endpoint := t.endpoint(); endpoint != "" {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
			if err == nil {
				if resp, err := t.httpClient.Do(req); err == nil {
					resp.Body.Close()
				} else {
					t.logger.Debug("session delete failed", logging.ErrorField(err))
				}
			}
			cancel()
		}

		t.cancelStream()
		<-t.readerDone
	})
	return nil
}
