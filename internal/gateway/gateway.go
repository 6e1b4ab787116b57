// Package gateway implements the Connection Gateway from spec.md §4.3: a
// hand-rolled (no net/http server) listener that accepts raw TCP
// connections, parses one HTTP request per connection, authenticates it
// against the Token Store and Rate Limiter, and either serves a static
// asset, mints a signed token, handles an OAuth redirect, or upgrades to a
// WebSocket.
//
// The original implementation is a from-scratch systems program with no
// HTTP framework underneath it; this package mirrors that shape instead of
// reaching for Go's net/http server, while still using gorilla/websocket
// (via the http.Hijacker adapter in hijack.go) for RFC 6455 framing.
package gateway

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/termweb-dev/termweb-core/internal/authstore"
	"github.com/termweb-dev/termweb-core/internal/logger"
	"github.com/termweb-dev/termweb-core/internal/oauthbridge"
	"github.com/termweb-dev/termweb-core/internal/ratelimit"
)

// WebSocketHandler processes one upgraded connection for a given route.
// Handlers own the *websocket.Conn for the lifetime of the session.
type WebSocketHandler func(ctx context.Context, conn *websocket.Conn, verdict authstore.Verdict)

// APIHandler optionally serves /api/* routes. handled=false means the
// gateway should respond 404, per spec.md §4.3: "404 if unhandled".
type APIHandler func(path string, query url.Values) (status int, contentType string, body []byte, handled bool)

// Assets serves static content for everything else the gateway routes:
// the login/app HTML (with a config fragment injected at a named marker),
// the PWA manifest, and embedded worker/wasm files.
type Assets interface {
	// IndexHTML returns the app shell with configJSON spliced in at the
	// implementation's marker, per spec.md §4.3's "/" route.
	IndexHTML(configJSON string) ([]byte, error)
	// Manifest returns manifest.json's bytes.
	Manifest() ([]byte, error)
	// Asset returns the bytes and content-type for any other embedded
	// path (file-worker.js, zstd.wasm, ...), or ok=false if not found.
	Asset(path string) (data []byte, contentType string, ok bool)
}

// receiveTimeout bounds how long the gateway will block reading a
// request off a freshly accepted connection, per spec.md §5's "blocking
// read on the client socket (bounded by a configurable receive timeout,
// default 1 s)".
const receiveTimeout = 1 * time.Second

// drainTimeout is the cap spec.md §4.3/§5 place on waiting for in-flight
// connection workers during shutdown.
const drainTimeout = 2 * time.Second

var publicPaths = map[string]bool{
	"/manifest.json": true,
	"/favicon.ico":   true,
}

func isPublicPath(path string) bool {
	if publicPaths[path] {
		return true
	}
	return strings.HasPrefix(path, "/auth/")
}

// Gateway is the process-wide connection front door.
type Gateway struct {
	listener net.Listener
	stopped  atomic.Bool
	wg       sync.WaitGroup

	store   *authstore.Store
	limiter *ratelimit.Limiter
	bridge  *oauthbridge.Bridge
	assets  Assets

	upgrader websocket.Upgrader

	H264Handler    WebSocketHandler
	ControlHandler WebSocketHandler
	FileHandler    WebSocketHandler
	API            APIHandler

	// ConfigJSON is injected into the index page at the app's marker.
	ConfigJSON func() string
}

// New constructs a Gateway bound to addr. Call Serve to start accepting.
func New(addr string, store *authstore.Store, limiter *ratelimit.Limiter, bridge *oauthbridge.Bridge, assets Assets) (*Gateway, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Gateway{
		listener: ln,
		store:    store,
		limiter:  limiter,
		bridge:   bridge,
		assets:   assets,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}, nil
}

// Addr returns the listener's bound address.
func (g *Gateway) Addr() net.Addr { return g.listener.Addr() }

// Serve accepts connections until Stop is called. One goroutine handles
// each connection, matching spec.md §5's "thread-per-accept... given
// expected low connection count."
func (g *Gateway) Serve() error {
	for {
		conn, err := g.listener.Accept()
		if err != nil {
			if g.stopped.Load() {
				return nil
			}
			logger.Gateway().Warn().Err(err).Msg("accept failed")
			continue
		}
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			g.handleConn(conn)
		}()
	}
}

// Stop flips the shutdown flag, closes the listener to unblock Accept,
// and waits up to drainTimeout for in-flight workers, per spec.md §4.3/§5.
func (g *Gateway) Stop() {
	g.stopped.Store(true)
	_ = g.listener.Close()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(drainTimeout):
		logger.Gateway().Warn().Msg("shutdown drain timed out, proceeding anyway")
	}
}

func (g *Gateway) handleConn(conn net.Conn) {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(receiveTimeout))
	br := bufio.NewReaderSize(conn, maxRequestSize)

	req, err := readRequest(br)
	if err != nil {
		writeSimpleResponse(conn, http.StatusBadRequest, "bad request")
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	if req.Method != http.MethodGet && req.Method != http.MethodPost {
		writeSimpleResponse(conn, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	g.dispatch(conn, req)
}

func remoteHost(conn net.Conn) string {
	addr := conn.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
