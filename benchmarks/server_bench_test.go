package benchmarks

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ajitpratap0/mcp-sse-server/pkg/client"
	"github.com/ajitpratap0/mcp-sse-server/pkg/config"
	"github.com/ajitpratap0/mcp-sse-server/pkg/logging"
	"github.com/ajitpratap0/mcp-sse-server/pkg/protocol"
	"github.com/ajitpratap0/mcp-sse-server/pkg/server"
	"github.com/ajitpratap0/mcp-sse-server/pkg/tools"
)

var benchTools = []protocol.Tool{
	{Name: "search", Description: "Search the catalog"},
	{Name: "lookup", Description: "Look up one item"},
}

// BenchmarkServerOperations benchmarks request handling at each layer
func BenchmarkServerOperations(b *testing.B) {
	b.Run("Parse", benchmarkParse)
	b.Run("HandleRaw/ping", func(b *testing.B) {
		benchmarkHandleRaw(b, `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	})
	b.Run("HandleRaw/tools_call", func(b *testing.B) {
		benchmarkHandleRaw(b, `{"jsonrpc":"2.0","id":"abc","method":"tools/call","params":{"name":"search","arguments":{"query":"bolts"}}}`)
	})
	b.Run("HandleRaw/malformed", func(b *testing.B) {
		benchmarkHandleRaw(b, `{"jsonrpc":"2.0",`)
	})
	b.Run("Exchange", benchmarkExchange)
	for _, n := range []int{10, 100} {
		b.Run(fmt.Sprintf("ConcurrentExchanges/%d", n), func(b *testing.B) {
			benchmarkConcurrentExchanges(b, n)
		})
	}
}

func benchmarkParse(b *testing.B) {
	payload := []byte(`{"jsonrpc":"2.0","id":42,"method":"tools/call","params":{"name":"search","arguments":{"query":"bolts","limit":5}}}`)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := protocol.Parse(payload); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkHandleRaw(b *testing.B, payload string) {
	registry, err := tools.NewRegistry(benchTools...)
	if err != nil {
		b.Fatal(err)
	}
	d := server.NewDispatcher(registry, tools.NewStaticProvider("ok"))
	ctx := context.Background()
	data := []byte(payload)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if resp := d.HandleRaw(ctx, data); resp == nil {
			b.Fatal("nil response")
		}
	}
}

// startServer serves with a near-zero drain delay so exchanges end quickly
func startServer(b *testing.B) *client.Client {
	b.Helper()
	cfg := config.Default()
	cfg.EnableMetrics = false
	cfg.DrainDelay = time.Microsecond

	registry, err := tools.NewRegistry(benchTools...)
	if err != nil {
		b.Fatal(err)
	}
	srv, err := server.New(cfg, registry, tools.NewStaticProvider("ok"), server.WithLogger(logging.Nop()))
	if err != nil {
		b.Fatal(err)
	}
	ts := httptest.NewServer(srv.Handler())
	b.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		ts.Close()
	})
	return client.New(ts.URL + cfg.SSEPath)
}

func benchmarkExchange(b *testing.B) {
	c := startServer(b)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.CallTool(ctx, "search", map[string]interface{}{"query": "bolts"}); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkConcurrentExchanges(b *testing.B, parallelism int) {
	c := startServer(b)
	ctx := context.Background()

	b.SetParallelism(parallelism)
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if err := c.Ping(ctx); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
