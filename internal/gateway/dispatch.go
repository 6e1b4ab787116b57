package gateway

import (
	"context"
	"encoding/hex"
	"net"
	"net/http"
	"path"
	"strings"

	"github.com/termweb-dev/termweb-core/internal/authstore"
	"github.com/termweb-dev/termweb-core/internal/logger"
	"github.com/termweb-dev/termweb-core/internal/oauthbridge"
)

// dispatch runs the auth gate, then routes req to the matching handler,
// per spec.md §4.3's routing table.
func (g *Gateway) dispatch(conn net.Conn, req *parsedRequest) {
	source := remoteHost(conn)

	if req.Method == http.MethodPost && req.Path == "/auth/login" {
		g.handleLoginPost(conn, req, source)
		return
	}

	if isPublicPath(req.Path) {
		g.routePublic(conn, req, source)
		return
	}

	verdict, ok := g.authGate(conn, req, source)
	if !ok {
		return
	}

	g.routeAuthenticated(conn, req, verdict)
}

// authGate implements spec.md §4.3's pre-dispatch authentication steps
// 1-6. It returns ok=false once it has already written a response (429,
// 401, the login page, or the token-exchange page) and the caller must
// not continue routing.
func (g *Gateway) authGate(conn net.Conn, req *parsedRequest, source string) (authstore.Verdict, bool) {
	if g.limiter.IsBlocked(source) {
		writeSimpleResponse(conn, http.StatusTooManyRequests, "too many attempts")
		return authstore.Verdict{}, false
	}

	token := req.Query.Get("token")
	if token == "" {
		if req.Method == http.MethodGet && (req.Path == "/" || req.Path == "/index.html") {
			g.serveIndex(conn, authstore.Verdict{Role: authstore.RoleNone})
			return authstore.Verdict{}, false
		}
		writeSimpleResponse(conn, http.StatusUnauthorized, "unauthorized")
		return authstore.Verdict{}, false
	}

	verdict := g.store.Verify(token)
	if verdict.Role == authstore.RoleNone {
		g.limiter.RecordFailure(source)
		writeSimpleResponse(conn, http.StatusUnauthorized, "unauthorized")
		return authstore.Verdict{}, false
	}
	g.limiter.RecordSuccess(source)

	// step 6: a permanent token presented outside a WebSocket upgrade is
	// exchanged for a signed token and scrubbed from browser history.
	// Only session-bound permanent tokens can be exchanged: minting
	// requires that session's own key, which a bare share-link token
	// doesn't carry (see DESIGN.md's resolution of this ambiguity).
	if isPermanentTokenShape(token) && verdict.SessionID != "" && !isWebSocketUpgrade(req.Header) {
		sess, found := g.store.SessionByID(verdict.SessionID)
		if found {
			signed, err := g.store.Mint(&sess)
			if err == nil {
				writeResponse(conn, http.StatusOK, "text/html; charset=utf-8", tokenExchangePage(signed))
				return authstore.Verdict{}, false
			}
		}
	}

	return verdict, true
}

// isPermanentTokenShape reports whether token is the 64-hex-char shape
// (permanent token or share-link token) rather than a signed token.
func isPermanentTokenShape(token string) bool {
	if len(token) != 64 {
		return false
	}
	_, err := hex.DecodeString(token)
	return err == nil
}

func (g *Gateway) routePublic(conn net.Conn, req *parsedRequest, source string) {
	switch {
	case req.Path == "/manifest.json":
		data, err := g.assets.Manifest()
		if err != nil {
			writeSimpleResponse(conn, http.StatusNotFound, "not found")
			return
		}
		writeResponse(conn, http.StatusOK, "application/manifest+json", data)

	case strings.HasPrefix(req.Path, "/auth/") && strings.HasSuffix(req.Path, "/callback"):
		g.handleOAuthCallback(conn, req, source)

	case strings.HasPrefix(req.Path, "/auth/"):
		g.handleOAuthRedirect(conn, req)

	default:
		writeSimpleResponse(conn, http.StatusNotFound, "not found")
	}
}

func (g *Gateway) routeAuthenticated(conn net.Conn, req *parsedRequest, verdict authstore.Verdict) {
	switch {
	case req.Path == "/ws/h264":
		g.upgradeTo(conn, req, verdict, g.H264Handler)
	case req.Path == "/ws/control":
		g.upgradeTo(conn, req, verdict, g.ControlHandler)
	case req.Path == "/ws/file":
		g.upgradeTo(conn, req, verdict, g.FileHandler)

	case strings.HasPrefix(req.Path, "/api/"):
		if g.API == nil {
			writeSimpleResponse(conn, http.StatusNotFound, "not found")
			return
		}
		status, contentType, body, handled := g.API(req.Path, req.Query)
		if !handled {
			writeSimpleResponse(conn, http.StatusNotFound, "not found")
			return
		}
		writeResponse(conn, status, contentType, body)

	case req.Path == "/" || req.Path == "/index.html":
		g.serveIndex(conn, verdict)

	default:
		data, contentType, ok := g.assets.Asset(req.Path)
		if !ok {
			writeSimpleResponse(conn, http.StatusNotFound, "not found")
			return
		}
		writeResponse(conn, http.StatusOK, contentType, data)
	}
}

func (g *Gateway) serveIndex(conn net.Conn, _ authstore.Verdict) {
	cfg := ""
	if g.ConfigJSON != nil {
		cfg = g.ConfigJSON()
	}
	html, err := g.assets.IndexHTML(cfg)
	if err != nil {
		writeSimpleResponse(conn, http.StatusInternalServerError, "internal error")
		return
	}
	writeResponse(conn, http.StatusOK, "text/html; charset=utf-8", html)
}

func (g *Gateway) upgradeTo(conn net.Conn, req *parsedRequest, verdict authstore.Verdict, handler WebSocketHandler) {
	if !isWebSocketUpgrade(req.Header) || handler == nil {
		writeSimpleResponse(conn, http.StatusBadRequest, "expected websocket upgrade")
		return
	}
	hw := newHijackWriter(conn)
	httpReq := buildHTTPRequest(req, conn.RemoteAddr().String())

	wsConn, err := g.upgrader.Upgrade(hw, httpReq, nil)
	if err != nil {
		logger.Gateway().Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	handler(context.Background(), wsConn, verdict)
}

func (g *Gateway) handleOAuthRedirect(conn net.Conn, req *parsedRequest) {
	provider := path.Base(req.Path)
	url, err := g.bridge.AuthorizeURL(provider, req.Header.Get("Host"), req.Header.Get("X-Forwarded-Proto"))
	if err != nil {
		writeRedirect(conn, oauthbridge.ErrorRedirect(err.Error()))
		return
	}
	writeRedirect(conn, url)
}

func (g *Gateway) handleOAuthCallback(conn net.Conn, req *parsedRequest, source string) {
	provider := strings.TrimSuffix(path.Base(strings.TrimSuffix(req.Path, "/callback")), "/")
	segments := strings.Split(strings.Trim(req.Path, "/"), "/")
	if len(segments) >= 2 {
		provider = segments[1]
	}

	code := req.Query.Get("code")
	if code == "" {
		writeRedirect(conn, oauthbridge.ErrorRedirect("missing code"))
		return
	}

	identity, err := g.bridge.Exchange(provider, code, req.Header.Get("Host"), req.Header.Get("X-Forwarded-Proto"))
	if err != nil {
		oauthbridge.Logf(provider, err)
		writeRedirect(conn, oauthbridge.ErrorRedirect(err.Error()))
		return
	}

	sess, err := g.store.FindOrCreateOAuthSession(identity.Provider, identity.ProviderUserID, identity.DisplayName)
	if err != nil {
		writeRedirect(conn, oauthbridge.ErrorRedirect("session creation failed"))
		return
	}

	signed, err := g.store.Mint(sess)
	if err != nil {
		writeRedirect(conn, oauthbridge.ErrorRedirect("token mint failed"))
		return
	}
	g.limiter.RecordSuccess(source)
	writeResponse(conn, http.StatusOK, "text/html; charset=utf-8", tokenExchangePage(signed))
}

func (g *Gateway) handleLoginPost(conn net.Conn, req *parsedRequest, source string) {
	form := parseFormBody(req.Body)
	token := form.Get("token")
	if token == "" {
		writeSimpleResponse(conn, http.StatusBadRequest, "missing token")
		return
	}

	verdict := g.store.Verify(token)
	if verdict.Role == authstore.RoleNone {
		g.limiter.RecordFailure(source)
		writeSimpleResponse(conn, http.StatusUnauthorized, "unauthorized")
		return
	}
	g.limiter.RecordSuccess(source)

	if verdict.SessionID == "" {
		writeSimpleResponse(conn, http.StatusBadRequest, "token does not identify a session")
		return
	}
	sess, ok := g.store.SessionByID(verdict.SessionID)
	if !ok {
		writeSimpleResponse(conn, http.StatusUnauthorized, "unauthorized")
		return
	}
	signed, err := g.store.Mint(&sess)
	if err != nil {
		writeSimpleResponse(conn, http.StatusInternalServerError, "mint failed")
		return
	}
	writeResponse(conn, http.StatusOK, "text/html; charset=utf-8", tokenExchangePage(signed))
}
