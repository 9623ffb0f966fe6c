package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/mcp-sse-server/pkg/logging"
	"github.com/ajitpratap0/mcp-sse-server/pkg/protocol"
	"github.com/ajitpratap0/mcp-sse-server/pkg/tools"
)

// blockingProvider parks every call until its context ends
type blockingProvider struct {
	started  chan struct{}
	canceled chan error
}

func (p *blockingProvider) Invoke(ctx context.Context, tool string, args map[string]interface{}) (string, error) {
	p.started <- struct{}{}
	<-ctx.Done()
	p.canceled <- ctx.Err()
	return "", ctx.Err()
}

func TestToolCallCanceledWhenClientDisconnects(t *testing.T) {
	provider := &blockingProvider{started: make(chan struct{}, 1), canceled: make(chan error, 1)}
	registry := tools.MustNewRegistry(protocol.Tool{Name: "slow", Description: "Never finishes"})

	srv, err := New(testConfig(), registry, provider, WithLogger(logging.Nop()))
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.URL+"/sse",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"slow"}}`))
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		resp, err := http.DefaultClient.Do(req)
		if resp != nil {
			resp.Body.Close()
		}
		errc <- err
	}()

	select {
	case <-provider.started:
	case <-time.After(2 * time.Second):
		t.Fatal("provider was never called")
	}
	cancel()

	select {
	case err := <-provider.canceled:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("provider context was not canceled")
	}
	assert.Error(t, <-errc)

	require.Eventually(t, func() bool { return srv.Sessions().Count() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestShutdownCancelsInFlightToolCall(t *testing.T) {
	provider := &blockingProvider{started: make(chan struct{}, 1), canceled: make(chan error, 1)}
	registry := tools.MustNewRegistry(protocol.Tool{Name: "slow", Description: "Never finishes"})

	srv, err := New(testConfig(), registry, provider, WithLogger(logging.Nop()))
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	go func() {
		resp, err := http.Post(ts.URL+"/sse", "application/json",
			strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"slow"}}`))
		if err == nil {
			resp.Body.Close()
		}
	}()

	select {
	case <-provider.started:
	case <-time.After(2 * time.Second):
		t.Fatal("provider was never called")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	select {
	case err := <-provider.canceled:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("provider context was not canceled")
	}
	assert.Equal(t, 0, srv.Sessions().Count())
}
