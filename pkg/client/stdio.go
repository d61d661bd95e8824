package client

import (
	"context"
	"io"

	"github.com/ajitpratap0/mcp-engine/pkg/transport"
)

// NewStdioClient creates a client that reads server messages from r and
// writes client messages to w, typically the stdout and stdin pipes of a
// server subprocess. Nil streams mean the process's own stdin and stdout.
func NewStdioClient(r io.Reader, w io.Writer, options ...ClientOption) *Client {
	c := &Client{}
	for _, option := range options {
		option(c)
	}

	config := transport.DefaultTransportConfig(transport.TransportTypeStdio)
	config.StdioReader = r
	config.StdioWriter = w
	config.Logger = c.logger
	return New(transport.NewStdioTransport(config), options...)
}

// DialHTTP connects to an MCP server's HTTP endpoint and returns a started
// client. The caller still runs Initialize.
func DialHTTP(ctx context.Context, endpoint string, options ...ClientOption) (*Client, error) {
	c := &Client{}
	for _, option := range options {
		option(c)
	}

	config := transport.DefaultTransportConfig(transport.TransportTypeHTTP)
	config.Endpoint = endpoint
	config.Headers = c.httpHeaders
	config.Logger = c.logger
	t, err := transport.NewTransport(ctx, config)
	if err != nil {
		return nil, err
	}

	client := New(t, options...)
	if err := client.Start(context.Background()); err != nil {
		_ = t.Close()
		return nil, err
	}
	return client, nil
}
