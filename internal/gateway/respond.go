package gateway

import (
	"fmt"
	"net"
	"net/http"
)

// commonHeaders are attached to every response the gateway writes, per
// spec.md §6.4: aggressive no-cache, cross-origin resource policy, and a
// forced connection close since each connection serves exactly one
// request-response cycle in this design.
func commonHeaders() string {
	return "Cross-Origin-Resource-Policy: cross-origin\r\n" +
		"Cache-Control: no-store, no-cache, must-revalidate, max-age=0\r\n" +
		"Pragma: no-cache\r\n" +
		"Expires: 0\r\n" +
		"Connection: close\r\n"
}

func statusText(code int) string {
	if t := http.StatusText(code); t != "" {
		return t
	}
	return "Unknown"
}

// writeResponse writes a full HTTP/1.1 response with the given status,
// content type, and body, including the headers every response carries.
func writeResponse(conn net.Conn, status int, contentType string, body []byte) {
	header := fmt.Sprintf("HTTP/1.1 %d %s\r\n"+
		"Content-Type: %s\r\n"+
		"Content-Length: %d\r\n"+
		"%s\r\n",
		status, statusText(status), contentType, len(body), commonHeaders())
	_, _ = conn.Write([]byte(header))
	_, _ = conn.Write(body)
}

func writeSimpleResponse(conn net.Conn, status int, message string) {
	writeResponse(conn, status, "text/plain; charset=utf-8", []byte(message))
}

// writeRedirect writes a 302 redirect to location.
func writeRedirect(conn net.Conn, location string) {
	header := fmt.Sprintf("HTTP/1.1 302 Found\r\n"+
		"Location: %s\r\n"+
		"Content-Length: 0\r\n"+
		"%s\r\n",
		location, commonHeaders())
	_, _ = conn.Write([]byte(header))
}

// tokenExchangePage is the tiny HTML page spec.md §4.3 step 6 describes: it
// replaces location with the freshly minted signed token, scrubbing the
// long-lived permanent token from browser history.
func tokenExchangePage(signedToken string) []byte {
	return []byte(fmt.Sprintf(
		`<!doctype html><html><body><script>location.replace(location.pathname+'?token=' + %q);</script></body></html>`,
		signedToken,
	))
}
