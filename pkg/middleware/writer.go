package middleware

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
)

// HeaderLoginRequired is set by handlers when the backend invalidated the
// session and the UI should prompt for login.
const HeaderLoginRequired = "X-Login-Required"

// statusRecorder captures the status code and body size written by the
// wrapped handler. Logging, metrics and tracing share it.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

// record wraps w unless it is already a recorder, in which case the outer
// middleware's recorder is reused.
func record(w http.ResponseWriter) *statusRecorder {
	if rec, ok := w.(*statusRecorder); ok {
		return rec
	}
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.wroteHeader = true
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

// Status returns the written status, 200 if the handler never set one.
func (rw *statusRecorder) Status() int { return rw.status }

// loginRequired reports whether the handler flagged the session as logged out.
func (rw *statusRecorder) loginRequired() bool {
	return rw.Header().Get(HeaderLoginRequired) == "true"
}

// Flush forwards to the underlying writer when it supports streaming.
func (rw *statusRecorder) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack forwards to the underlying writer when it supports hijacking.
func (rw *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("status recorder: %w", http.ErrNotSupported)
	}
	return h.Hijack()
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
