package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/mcp-engine/pkg/logging"
	"github.com/ajitpratap0/mcp-engine/pkg/protocol"
	"github.com/ajitpratap0/mcp-engine/pkg/registry"
	"github.com/ajitpratap0/mcp-engine/pkg/session"
	"github.com/ajitpratap0/mcp-engine/pkg/transport"
)

const testTimeout = 2 * time.Second

func serverSession() session.Config {
	return session.Config{
		SupportedVersions: []string{"1.0", "0.9"},
		Capabilities: protocol.Capabilities{
			Resources: &protocol.CategoryCapability{ListChanged: true},
			Tools:     &protocol.CategoryCapability{ListChanged: true},
			Prompts:   &protocol.CategoryCapability{},
		},
		Info: protocol.Implementation{Name: "weather", Version: "0.1.0"},
	}
}

// harness runs a server Conn on one end of a pipe; the test speaks raw JSON
// on the other end.
type harness struct {
	t    *testing.T
	peer transport.Transport
	conn *Conn
	reg  *registry.Registry
	errc chan error
}

func newHarness(t *testing.T, reg *registry.Registry, mutate ...func(*Options)) *harness {
	t.Helper()
	if reg == nil {
		reg = registry.New()
	}
	serverEnd, peer := transport.NewPipe()
	opts := Options{
		Role:      RoleServer,
		SessionID: "test",
		Session:   serverSession(),
		Registry:  reg,
		Logger:    logging.NewNop(),
	}
	for _, m := range mutate {
		m(&opts)
	}

	h := &harness{t: t, peer: peer, conn: New(serverEnd, opts), reg: reg, errc: make(chan error, 1)}
	go func() { h.errc <- h.conn.Serve(context.Background()) }()
	t.Cleanup(func() {
		_ = h.peer.Close()
		select {
		case <-h.errc:
		case <-time.After(testTimeout):
			t.Error("Serve did not return")
		}
	})
	return h
}

func (h *harness) send(raw string) {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	require.NoError(h.t, h.peer.Send(ctx, []byte(raw)))
}

func (h *harness) recv() protocol.Message {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	data, err := h.peer.Receive(ctx)
	require.NoError(h.t, err, "no message from server")
	msg, err := protocol.Decode(data)
	require.NoError(h.t, err, "server sent %s", data)
	return msg
}

func (h *harness) response() *protocol.Response {
	h.t.Helper()
	msg := h.recv()
	resp, ok := msg.(*protocol.Response)
	require.True(h.t, ok, "expected response, got %T", msg)
	return resp
}

// expectSilence fails if the server sends anything within d.
func (h *harness) expectSilence(d time.Duration) {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	data, err := h.peer.Receive(ctx)
	if err == nil {
		h.t.Fatalf("unexpected message: %s", data)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		h.t.Fatalf("receive: %v", err)
	}
}

func (h *harness) initialize() {
	h.t.Helper()
	h.send(`{"jsonrpc":"2.0","id":0,"method":"initialize","params":{"protocolVersion":"1.0","capabilities":{},"clientInfo":{"name":"test-host"}}}`)
	resp := h.response()
	require.Nil(h.t, resp.Error, "initialize failed: %+v", resp.Error)
	h.send(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	waitFor(h.t, h.conn.Session().Ready)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func result[T any](t *testing.T, resp *protocol.Response) T {
	t.Helper()
	require.Nil(t, resp.Error, "unexpected error: %+v", resp.Error)
	var out T
	require.NoError(t, json.Unmarshal(resp.Result, &out))
	return out
}

// toolText decodes a tools/call result and returns its text.
func toolText(t *testing.T, resp *protocol.Response) string {
	t.Helper()
	call := result[protocol.CallToolResult](t, resp)
	return call.Text()
}
