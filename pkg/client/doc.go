// Package client provides the client side of the Model Context Protocol.
//
// A Client wraps one transport connection to a server. Start begins reading
// messages; Initialize negotiates the protocol version and capabilities.
// Every other call fails until the handshake has completed.
//
// # Connecting to a Server
//
//	cmd := exec.Command("weather-server")
//	stdin, _ := cmd.StdinPipe()
//	stdout, _ := cmd.StdoutPipe()
//	if err := cmd.Start(); err != nil {
//	    log.Fatal(err)
//	}
//
//	c := client.NewStdioClient(stdout, stdin,
//	    client.WithName("weather-cli"),
//	    client.WithListChangedHandler(func(category protocol.CapabilityType) {
//	        log.Printf("%s changed", category)
//	    }),
//	)
//	if err := c.InitializeAndStart(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	tools, err := c.ListAllTools(ctx)
//	result, err := c.CallTool(ctx, "get_weather", map[string]string{"city": "Paris"})
//
// # Cancellation
//
// Cancelling the context of a call sends notifications/cancelled for it and
// returns immediately. CallToolAsync returns the pending call so the caller
// can request cancellation and still receive the server's final answer:
//
//	call, err := c.CallToolAsync(ctx, "slow_echo", args)
//	call.Cancel("user aborted")
//	var result protocol.CallToolResult
//	err = call.Wait(ctx, &result) // RequestCancelled, or the result if it finished first
package client
