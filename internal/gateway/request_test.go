package gateway

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadRequestParsesLineAndHeaders(t *testing.T) {
	raw := "GET /ws/h264?token=abc HTTP/1.1\r\nHost: example.com\r\nUpgrade: WebSocket\r\n\r\n"
	req, err := readRequest(bufio.NewReader(strings.NewReader(raw)))
	require.NoError(t, err)
	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "/ws/h264", req.Path)
	assert.Equal(t, "abc", req.Query.Get("token"))
	assert.Equal(t, "example.com", req.Header.Get("Host"))
	assert.True(t, isWebSocketUpgrade(req.Header))
}

func TestReadRequestWithBody(t *testing.T) {
	body := "token=deadbeef"
	raw := "POST /auth/login HTTP/1.1\r\nContent-Length: " + itoa(len(body)) + "\r\n\r\n" + body
	req, err := readRequest(bufio.NewReader(strings.NewReader(raw)))
	require.NoError(t, err)
	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, body, string(req.Body))
}

func TestReadRequestMalformedLine(t *testing.T) {
	_, err := readRequest(bufio.NewReader(strings.NewReader("garbage\r\n\r\n")))
	assert.Error(t, err)
}

func TestIsPublicPath(t *testing.T) {
	assert.True(t, isPublicPath("/manifest.json"))
	assert.True(t, isPublicPath("/favicon.ico"))
	assert.True(t, isPublicPath("/auth/github"))
	assert.True(t, isPublicPath("/auth/github/callback"))
	assert.False(t, isPublicPath("/ws/file"))
	assert.False(t, isPublicPath("/"))
}

func TestIsPermanentTokenShape(t *testing.T) {
	assert.True(t, isPermanentTokenShape(strings.Repeat("a", 64)))
	assert.False(t, isPermanentTokenShape(signedTokenHeaderPrefixForTest()+"payload.sig"))
	assert.False(t, isPermanentTokenShape("short"))
}

func TestParseFormBody(t *testing.T) {
	v := parseFormBody([]byte("token=abc123&other=1"))
	assert.Equal(t, "abc123", v.Get("token"))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := ""
	for n > 0 {
		digits = string(rune('0'+n%10)) + digits
		n /= 10
	}
	return digits
}

func signedTokenHeaderPrefixForTest() string {
	return "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9."
}
