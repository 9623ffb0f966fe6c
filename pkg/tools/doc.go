// Package tools holds the tool catalog and the data provider capability behind tools/call.
//
// A Registry is constructed once by the composition root and handed to the server:
//
//	reg, err := tools.NewRegistry(
//		protocol.Tool{Name: "lookup", Description: "Look up an item", InputSchema: schema},
//	)
//
// Tool output comes from a DataProvider. StaticProvider returns fixed text and
// Router fans calls out to per-tool providers.
package tools
