package wsapi

import (
	"sync"

	"github.com/termweb-dev/termweb-core/internal/video"
	"github.com/termweb-dev/termweb-core/internal/video/quality"
)

// videoSession pairs one viewer's Quality Controller with its Video
// Encoder. Both the /ws/control and /ws/h264 handlers for the same
// session id share one of these, since spec.md §4.6 has the controller
// reconfigure "the encoder" as a single shared target rather than two
// independent objects.
type videoSession struct {
	mu         sync.Mutex
	controller *quality.Controller
	encoder    *video.Encoder
	refs       int
}

// VideoSessions keys a videoSession by authstore.Verdict.SessionID, the
// only identifier the gateway hands a WebSocketHandler that is stable
// across a viewer's separate /ws/control and /ws/h264 connections.
type VideoSessions struct {
	mu       sync.Mutex
	sessions map[string]*videoSession
}

// NewVideoSessions constructs an empty registry.
func NewVideoSessions() *VideoSessions {
	return &VideoSessions{sessions: make(map[string]*videoSession)}
}

// get returns the shared videoSession for sessionID, creating it on first
// access, and registers one reference against it. Each of a viewer's two
// handlers (control, h264) holds exactly one reference for its connection's
// lifetime.
func (v *VideoSessions) get(sessionID string) *videoSession {
	v.mu.Lock()
	defer v.mu.Unlock()
	vs, ok := v.sessions[sessionID]
	if !ok {
		vs = &videoSession{controller: quality.New()}
		v.sessions[sessionID] = vs
	}
	vs.refs++
	return vs
}

// Drop releases one reference to sessionID's encoder/controller pair,
// freeing it once both its control and h264 sockets have closed (refs
// reaches zero). Safe to call more than once per reference held.
func (v *VideoSessions) Drop(sessionID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	vs, ok := v.sessions[sessionID]
	if !ok {
		return
	}
	vs.refs--
	if vs.refs <= 0 {
		delete(v.sessions, sessionID)
	}
}
