package gateway

import (
	"bufio"
	"net"
	"net/http"
	"net/url"
)

// hijackWriter is the minimal http.ResponseWriter + http.Hijacker adapter
// that lets gorilla/websocket's Upgrader operate over a net.Conn the
// gateway has already read a raw HTTP request from, per spec.md §9's
// design note: the Connection Gateway is hand-rolled (no net/http server),
// but WebSocket framing still comes from the teacher's gorilla/websocket
// dependency. Upgrade() only ever calls Hijack() on this type; the other
// http.ResponseWriter methods exist solely to satisfy the interface.
type hijackWriter struct {
	conn   net.Conn
	header http.Header
}

func newHijackWriter(conn net.Conn) *hijackWriter {
	return &hijackWriter{conn: conn, header: make(http.Header)}
}

func (h *hijackWriter) Header() http.Header { return h.header }

func (h *hijackWriter) Write(b []byte) (int, error) { return h.conn.Write(b) }

func (h *hijackWriter) WriteHeader(statusCode int) {}

func (h *hijackWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	brw := bufio.NewReadWriter(bufio.NewReader(h.conn), bufio.NewWriter(h.conn))
	return h.conn, brw, nil
}

// buildHTTPRequest adapts a parsedRequest into a *http.Request shaped
// enough for websocket.Upgrader.Upgrade to validate (method, headers).
func buildHTTPRequest(pr *parsedRequest, remoteAddr string) *http.Request {
	req := &http.Request{
		Method:     pr.Method,
		URL:        &url.URL{Path: pr.Path, RawQuery: pr.Query.Encode()},
		Header:     pr.Header,
		Host:       pr.Header.Get("Host"),
		RemoteAddr: remoteAddr,
	}
	return req
}
