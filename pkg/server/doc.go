// Package server answers MCP tool requests over an event stream endpoint.
//
// The package is split in three layers:
//
//   - Dispatcher: routes a decoded JSON-RPC request to initialize, tools/list,
//     tools/call or ping and always produces exactly one response
//   - HTTPHandler: maps GET, POST and OPTIONS on the endpoint to stream
//     sessions, exchange sessions and CORS preflights
//   - Server: the composition root wiring config, logging, metrics, tracing,
//     the session manager and the HTTP listener together
//
// # Creating a Server
//
//	registry := tools.MustNewRegistry(protocol.Tool{
//	    Name:        "lookup_item",
//	    Description: "Look up an inventory item by SKU",
//	    InputSchema: json.RawMessage(`{"type":"object","properties":{"sku":{"type":"string"}},"required":["sku"]}`),
//	})
//
//	provider := tools.ProviderFunc(func(ctx context.Context, tool string, args map[string]interface{}) (string, error) {
//	    sku, ok := tools.StringArg(args, "sku")
//	    if !ok {
//	        return "", errors.New("sku is required")
//	    }
//	    return inventory.Describe(sku)
//	})
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	srv, err := server.New(cfg, registry, provider)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Blocks until ctx is canceled, then shuts down gracefully
//	if err := srv.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Error Handling
//
// Malformed input never reaches a handler. Bodies that are not JSON are
// answered with a ParseError frame carrying a null id, envelopes that are not
// requests with InvalidRequest. Provider failures and recovered panics come
// back as InternalError with the failure description in error.data.
//
// The dispatcher is permissive by default: it does not require initialize
// before other calls and does not validate tool arguments. WithStrictValidation
// turns on argument checks against each tool's input schema.
//
// # Notifications
//
// Server.Broadcast pushes a notification to every open stream. Frames queue
// behind the session's tools/list_changed notification and are dropped for
// sessions whose queue is full.
package server
