// Package transport runs event stream sessions on top of HTTP responses.
//
// A Session wraps one response writer upgraded to text/event-stream and owns
// every timer that writes to it. Two modes exist:
//
// Stream sessions (GET) follow a fixed lifecycle:
//
//	data: {"jsonrpc":"2.0","method":"notification/initialized"}     on open
//	data: {"jsonrpc":"2.0","method":"notification/tools/list_changed"}  after ListChangedDelay
//	: heartbeat                                                      every HeartbeatInterval
//	(closed)                                                         AutoCloseAfter after open
//
// Frames pushed with Session.Push or Manager.Broadcast are written after the
// list_changed notification, in the order they were queued.
//
// Exchange sessions (POST) write a single response frame and stay open for
// DrainDelay, or until the client hangs up.
//
// # Teardown
//
// A session moves Connecting, Open, Closing, Closed. It closes on client
// disconnect, a failed write, the auto-close timer, drain completion or
// Manager.Shutdown. The goroutine running Serve or Exchange is the only
// writer and stops every timer before it returns, so nothing is written to a
// response after its handler finished.
//
//	m := transport.NewManager(transport.WithLogger(logger))
//
//	http.HandleFunc("/sse", func(w http.ResponseWriter, r *http.Request) {
//	    reason, err := m.ServeStream(w, r)
//	    if err != nil {
//	        http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
//	        return
//	    }
//	    logger.Debug("stream ended", logging.String("reason", string(reason)))
//	})
package transport
