// Package mcp provides an engine for the Model Context Protocol.
//
// MCP is JSON-RPC 2.0 between a client, usually an AI application, and a
// server exposing tools, resources and prompts. This package re-exports the
// most used constructors from the sub-packages:
//
//   - pkg/protocol: JSON-RPC envelopes and MCP message types
//   - pkg/engine: the per-connection dispatcher shared by clients and servers
//   - pkg/session: handshake, version and capability negotiation
//   - pkg/registry: tools, resources and prompts with change notifications
//   - pkg/transport: stdio, in-memory pipe and streamable HTTP transports
//   - pkg/server and pkg/client: the two ends of a connection
//   - pkg/auth, pkg/observability, pkg/config: optional server infrastructure
//
// # Creating a Server
//
//	type greetArgs struct {
//	    Name string `json:"name" jsonschema:"required"`
//	}
//
//	s := mcp.NewServer(mcp.WithServerName("greeter"))
//	tool, handler := registry.Tool("greet", "Say hello",
//	    func(ctx context.Context, in greetArgs) (*protocol.CallToolResult, error) {
//	        return mcp.TextResult("Hello, %s!", in.Name), nil
//	    })
//	if err := s.AddTool(tool, handler); err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(s.ServeStdio(ctx))
//
// The same server handles HTTP clients through s.HTTPHandler(), one session
// per client.
//
// # Creating a Client
//
//	c := mcp.NewStdioClient(serverStdout, serverStdin, mcp.WithClientName("app"))
//	if err := c.InitializeAndStart(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	result, err := c.CallTool(ctx, "greet", map[string]string{"name": "Ada"})
//
// A server answers requests that arrive before the handshake completes with
// a not initialized error (-32002); ping is always allowed. Calls can be
// cancelled through their context, or with CallToolAsync and
// PendingCall.Cancel.
package mcp
