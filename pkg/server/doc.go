// Package server implements the server side of the Model Context Protocol
// (MCP).
//
// A Server owns a registry of resources, tools and prompts and serves it
// over any number of connections. Each connection negotiates its own
// session; registry changes made while connections are open are announced
// to every ready peer as list_changed notifications.
//
// # Creating a Server
//
//	srv := server.New(
//	    server.WithName("weather"),
//	    server.WithVersion("1.0.0"),
//	    server.WithSupportedVersions("1.0", "0.9"),
//	)
//
//	tool, handler := registry.Tool("get_weather", "Current conditions",
//	    func(ctx context.Context, in struct {
//	        City string `json:"city" jsonschema:"required"`
//	    }) (*protocol.CallToolResult, error) {
//	        return protocol.TextResult("Sunny in %s", in.City), nil
//	    })
//	if err := srv.AddTool(tool, handler); err != nil {
//	    log.Fatal(err)
//	}
//
// # Serving
//
// ServeStdio serves one peer over stdin and stdout:
//
//	if err := srv.ServeStdio(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// HTTPHandler serves peers over HTTP with server-sent events:
//
//	h := srv.HTTPHandler()
//	http.Handle("/mcp", h)
//
// Browser requests are accepted only from the allowed origins (localhost by
// default, see WithAllowedOrigins). Requests without an Origin header are
// accepted.
package server
