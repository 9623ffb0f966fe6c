package logging

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader carries the request ID on requests and responses
const RequestIDHeader = "X-Request-ID"

// correlationHeader is accepted as a fallback for RequestIDHeader
const correlationHeader = "X-Correlation-ID"

// requestID returns the ID already on the context, then the one sent by the
// client, then a freshly generated one
func requestID(r *http.Request, generate func() string) string {
	if id := RequestIDFromContext(r.Context()); id != "" {
		return id
	}
	for _, h := range []string{RequestIDHeader, correlationHeader} {
		if id := strings.TrimSpace(r.Header.Get(h)); id != "" {
			return id
		}
	}
	return generate()
}

// RequestIDMiddleware tags each request context with an ID and echoes it in
// the response headers. A nil generate uses random UUIDs.
func RequestIDMiddleware(generate func() string) func(http.Handler) http.Handler {
	if generate == nil {
		generate = uuid.NewString
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := requestID(r, generate)
			w.Header().Set(RequestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(ContextWithRequestID(r.Context(), id)))
		})
	}
}

// HTTPMiddleware logs one line per HTTP request once the handler returns.
// For event streams that is when the stream closes, so the line also reports
// whether the response was a stream and how many bytes it carried.
func HTTPMiddleware(logger Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := requestID(r, uuid.NewString)
			r = r.WithContext(ContextWithRequestID(r.Context(), id))

			log := logger.WithFields(
				String("request_id", id),
				String("http_method", r.Method),
				String("path", r.URL.Path),
				String("remote_addr", r.RemoteAddr),
			)
			log.Debug("HTTP request started")

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)

			log.Info("HTTP request completed",
				Int("status", rec.status),
				Int("bytes", rec.bytes),
				Bool("stream", strings.HasPrefix(rec.Header().Get("Content-Type"), "text/event-stream")),
				Duration("duration", time.Since(start)),
			)
		})
	}
}

// statusRecorder remembers the status code and body size of a response. It
// forwards Flush so event streams still reach the client frame by frame.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	r.wroteHeader = true
	n, err := r.ResponseWriter.Write(p)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) Flush() {
	_ = http.NewResponseController(r.ResponseWriter).Flush()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }
