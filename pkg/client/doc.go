// Package client talks to an MCP tool server over its event stream endpoint.
//
// Requests are sent as POST exchanges: each call opens a short-lived stream,
// reads the single response frame and hangs up. Server notifications are
// received by subscribing to a GET stream.
//
//	c := client.New("http://localhost:8080/sse", client.WithClientInfo("inventory-cli", "1.0.0"))
//
//	info, err := c.Initialize(ctx)
//	if err != nil {
//	    return err
//	}
//
//	result, err := c.CallTool(ctx, "lookup_item", map[string]interface{}{"sku": "BOLT-M6"})
//	if err != nil {
//	    // JSON-RPC failures are *errors.MCPError values carrying the server's code
//	    return err
//	}
//	fmt.Println(result.Content[0].Text)
//
// # Notifications
//
// Subscribe blocks until the server closes the stream, which happens on the
// server's auto-close timer or at shutdown:
//
//	err := c.Subscribe(ctx, func(n *protocol.Notification) {
//	    log.Printf("server says %s", n.Method)
//	})
//
// Heartbeat comments keep the connection alive and are not delivered.
package client
