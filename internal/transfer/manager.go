package transfer

import (
	"sync"
	"time"

	"github.com/termweb-dev/termweb-core/internal/logger"
	"github.com/termweb-dev/termweb-core/internal/wire"
)

// Manager holds every active TransferSession behind a single mutex, per
// spec.md §5: "Transfer Manager holds its sessions mapping under a mutex;
// individual sessions are single-threaded per transfer."
type Manager struct {
	mu       sync.Mutex
	sessions map[uint32]*Session
	nextID   uint32
	stateDir string
	idleAfter time.Duration
	lastTouch map[uint32]time.Time
}

// NewManager constructs an empty Manager. stateDir is where session
// checkpoints are written (spec.md §6.2); idleAfter bounds how long a
// session may sit without activity before the reaper removes it.
func NewManager(stateDir string, idleAfter time.Duration) *Manager {
	return &Manager{
		sessions:  make(map[uint32]*Session),
		stateDir:  stateDir,
		idleAfter: idleAfter,
		lastTouch: make(map[uint32]time.Time),
	}
}

// Create allocates a new session id and registers a fresh Session.
func (m *Manager) Create(direction wire.Direction, flags uint8, basePath string, excludes []string) (*Session, error) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.mu.Unlock()

	sess, err := NewSession(id, direction, flags, basePath, excludes, m.stateDir)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[id] = sess
	m.lastTouch[id] = time.Now()
	m.mu.Unlock()
	return sess, nil
}

// Restore registers a session reconstructed from a saved checkpoint (see
// RestoreSession), bumping nextID past it so future Create calls never
// collide with a resumed id.
func (m *Manager) Restore(sess *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess
	m.lastTouch[sess.ID] = time.Now()
	if sess.ID > m.nextID {
		m.nextID = sess.ID
	}
}

// StateDir exposes the directory Create/Restore checkpoint sessions to,
// for callers that need to load a checkpoint before restoring it.
func (m *Manager) StateDir() string { return m.stateDir }

// Get looks up a session by id.
func (m *Manager) Get(id uint32) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if ok {
		m.lastTouch[id] = time.Now()
	}
	return s, ok
}

// Remove drops a session from the map without touching its on-disk state,
// per spec.md §5's cancel semantics: "removes in-memory session."
func (m *Manager) Remove(id uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	delete(m.lastTouch, id)
}

// Cancel flushes state, releases file handles, and removes the session,
// matching spec.md §5's TRANSFER_CANCEL handling.
func (m *Manager) Cancel(id uint32) error {
	sess, ok := m.Get(id)
	if !ok {
		return nil
	}
	sess.Abort()
	err := sess.SaveState()
	m.Remove(id)
	return err
}

// ReapIdle removes sessions that have had no activity for idleAfter. This
// is the ambient background task SPEC_FULL.md wires to robfig/cron,
// mirroring the teacher codebase's scheduled-task pattern.
func (m *Manager) ReapIdle() {
	now := time.Now()
	var toRemove []uint32

	m.mu.Lock()
	for id, last := range m.lastTouch {
		if now.Sub(last) > m.idleAfter {
			toRemove = append(toRemove, id)
		}
	}
	for _, id := range toRemove {
		if sess, ok := m.sessions[id]; ok {
			sess.Abort()
		}
		delete(m.sessions, id)
		delete(m.lastTouch, id)
	}
	m.mu.Unlock()

	if len(toRemove) > 0 {
		logger.Transfer().Info().Ints32("session_ids", toInt32s(toRemove)).Msg("reaped idle transfer sessions")
	}
}

func toInt32s(ids []uint32) []int32 {
	out := make([]int32, len(ids))
	for i, id := range ids {
		out[i] = int32(id)
	}
	return out
}
