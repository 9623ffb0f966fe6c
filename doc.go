// Package mcp serves Model Context Protocol tools over a server-sent event stream.
//
// A client opens the stream with GET and receives notification/initialized,
// then notification/tools/list_changed, then heartbeat comments until the
// server closes the stream. Requests travel as POST bodies; each is answered
// with exactly one response frame on its own short-lived stream.
//
// # Packages
//
//   - pkg/protocol: JSON-RPC envelopes, the error code taxonomy and MCP payloads
//   - pkg/tools: the tool registry and the DataProvider interface
//   - pkg/server: the dispatcher, the HTTP handler and the Server composition root
//   - pkg/transport: event stream sessions and their timers
//   - pkg/client: a client for calling tools and subscribing to notifications
//   - pkg/config, pkg/logging, pkg/errors, pkg/observability: the ambient stack
//
// # Serving Tools
//
//	registry, err := mcp.NewRegistry(protocol.Tool{
//	    Name:        "lookup_item",
//	    Description: "Look up an inventory item by SKU",
//	    InputSchema: json.RawMessage(`{"type":"object","required":["sku"]}`),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	srv, err := mcp.NewServer(mcp.DefaultConfig(), registry, tools.NewStaticProvider("42 in stock"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(srv.Start(ctx))
//
// # Calling Tools
//
//	c := mcp.NewClient("http://localhost:8080/sse")
//	result, err := c.CallTool(ctx, "lookup_item", map[string]interface{}{"sku": "BOLT-M6"})
//
// See examples/sse-server for a complete server with environment configuration,
// signal handling and broadcast notifications.
package mcp
