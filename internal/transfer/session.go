// Package transfer implements the stateful file-transfer session lifecycle
// from spec.md §4.5.2: directory scan on open, resumable checkpoints,
// streaming zstd compression, and small-file batching.
package transfer

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/termweb-dev/termweb-core/internal/apperr"
	"github.com/termweb-dev/termweb-core/internal/transfer/scan"
	"github.com/termweb-dev/termweb-core/internal/wire"
)

// State is the TransferSession lifecycle state from spec.md §4.5.2:
// idle -> active (built file list) -> streaming (chunks flowing) ->
// completed | aborted | suspended.
type State string

const (
	StateIdle       State = "idle"
	StateActive     State = "active"
	StateStreaming  State = "streaming"
	StateCompleted  State = "completed"
	StateAborted    State = "aborted"
	StateSuspended  State = "suspended"
)

// batchSizeThreshold is the "small file" cutoff spec.md §4.5.2 pins at 16 KB
// for BATCH_DATA grouping.
const batchSizeThreshold = 16 * 1024

// defaultChunkSize is this implementation's choice within spec.md
// §4.5.2's "64-256 KB is typical" guidance for FILE_REQUEST/FILE_DATA
// chunks.
const defaultChunkSize = 128 * 1024

// Session is one resumable bulk transfer. A session is single-threaded per
// transfer: one WebSocket owns it, per spec.md §5.
type Session struct {
	mu sync.Mutex

	ID        uint32
	Direction wire.Direction
	Flags     uint8
	BasePath  string
	Excludes  []string

	State State

	Files      []wire.FileEntry
	TotalBytes uint64

	CursorFile       uint32
	CursorOffset     uint64
	BytesTransferred uint64

	currentFile   *os.File
	currentIndex  int
	encoder       *zstd.Encoder
	decoder       *zstd.Decoder

	stateDir string
}

// NewSession constructs a session in the idle state, per spec.md §4.5.2.
func NewSession(id uint32, direction wire.Direction, flags uint8, basePath string, excludes []string, stateDir string) (*Session, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "create zstd encoder", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "create zstd decoder", err)
	}
	return &Session{
		ID:           id,
		Direction:    direction,
		Flags:        flags,
		BasePath:     basePath,
		Excludes:     excludes,
		State:        StateIdle,
		currentIndex: -1,
		encoder:      enc,
		decoder:      dec,
		stateDir:     stateDir,
	}, nil
}

// BuildFileList runs the synchronous scan + hash step, per spec.md
// §4.5.2's buildFileList(), and transitions the session to active.
func (s *Session) BuildFileList() error {
	entries, err := scan.Walk(scan.Options{BasePath: s.BasePath, Excludes: s.Excludes})
	if err != nil {
		return apperr.Wrap(apperr.KindTransferIO, "scan base path", err)
	}
	scan.SortEntries(entries)

	var total uint64
	for _, e := range entries {
		total += e.Size
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.Files = entries
	s.TotalBytes = total
	s.State = StateActive
	return nil
}

// IsSmallFile reports whether entry qualifies for BATCH_DATA grouping
// rather than a streamed FILE_REQUEST/FILE_DATA chunk sequence.
func IsSmallFile(e wire.FileEntry) bool {
	return !e.IsDir && e.Size < batchSizeThreshold
}

// openFile memory-maps the file on first access in the source design;
// here it opens (and keeps open) an *os.File for fileIndex, closing any
// previously open file first — spec.md §4.5.2: "the mapping is held until
// closeCurrentFile or a different file is requested." See DESIGN.md for
// why this implementation uses os.File over an actual mmap.
func (s *Session) openFile(fileIndex int) error {
	if s.currentIndex == fileIndex && s.currentFile != nil {
		return nil
	}
	s.closeCurrentFileLocked()

	if fileIndex < 0 || fileIndex >= len(s.Files) {
		return apperr.New(apperr.KindTransferIO, "file index out of range")
	}
	full := filepath.Join(s.BasePath, filepath.FromSlash(s.Files[fileIndex].Path))
	f, err := os.Open(full)
	if err != nil {
		return apperr.Wrap(apperr.KindTransferIO, "open file", err)
	}
	s.currentFile = f
	s.currentIndex = fileIndex
	return nil
}

// ReadFileChunk serves up to maxSize bytes starting at offset from the
// file named by fileIndex, per spec.md §4.5.2's readFileChunk().
func (s *Session) ReadFileChunk(fileIndex int, offset int64, maxSize int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.openFile(fileIndex); err != nil {
		return nil, err
	}
	buf := make([]byte, maxSize)
	n, err := s.currentFile.ReadAt(buf, offset)
	if err != nil && n == 0 {
		return nil, apperr.Wrap(apperr.KindTransferIO, "read file chunk", err)
	}
	return buf[:n], nil
}

// CloseCurrentFile releases the currently held file handle, per spec.md
// §9's design note: "release the mapping when switching files or ending
// the transfer."
func (s *Session) CloseCurrentFile() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCurrentFileLocked()
}

func (s *Session) closeCurrentFileLocked() {
	if s.currentFile != nil {
		_ = s.currentFile.Close()
		s.currentFile = nil
		s.currentIndex = -1
	}
}

// Compress streams data through zstd at the configured level (3), per
// spec.md §4.5.2's compress().
func (s *Session) Compress(data []byte) []byte {
	return s.encoder.EncodeAll(data, nil)
}

// Decompress reverses Compress, allocating expectedSize bytes up front as
// a hint, per spec.md §4.5.2's decompress(data, expected_size).
func (s *Session) Decompress(data []byte, expectedSize int) ([]byte, error) {
	out, err := s.decoder.DecodeAll(data, make([]byte, 0, expectedSize))
	if err != nil {
		// spec.md §4.5.4: "Compression errors abort the affected chunk
		// only; the session is not torn down."
		return nil, apperr.Wrap(apperr.KindTransferIO, "decompress chunk", err)
	}
	return out, nil
}

// SaveState checkpoints the session to `<state_dir>/<id>.state`, per
// spec.md §6.2's binary layout.
func (s *Session) SaveState() error {
	s.mu.Lock()
	st := wire.SessionState{
		ID:               s.ID,
		Direction:        s.Direction,
		Flags:            s.Flags,
		CursorFile:       s.CursorFile,
		CursorOffset:     s.CursorOffset,
		BytesTransferred: s.BytesTransferred,
		BasePath:         s.BasePath,
		Files:            s.Files,
	}
	s.mu.Unlock()

	if err := os.MkdirAll(s.stateDir, 0700); err != nil {
		return apperr.Wrap(apperr.KindPersistence, "create transfer state dir", err)
	}
	path := statePath(s.stateDir, s.ID)
	if err := os.WriteFile(path, st.Marshal(), 0600); err != nil {
		return apperr.Wrap(apperr.KindPersistence, "write transfer state", err)
	}
	return nil
}

// LoadState reads a checkpoint for id from stateDir, per spec.md §4.5.2's
// loadState(id). A state file whose embedded id does not match the
// requested id is rejected as invalid (spec.md's open question on the
// resume handshake: this implementation chooses to enforce the match).
func LoadState(stateDir string, id uint32) (wire.SessionState, error) {
	raw, err := os.ReadFile(statePath(stateDir, id))
	if err != nil {
		return wire.SessionState{}, apperr.Wrap(apperr.KindTransferIO, "read transfer state", err)
	}
	st, err := wire.UnmarshalSessionState(raw)
	if err != nil {
		return wire.SessionState{}, apperr.Wrap(apperr.KindTransferWire, "parse transfer state", err)
	}
	if st.ID != id {
		return wire.SessionState{}, apperr.New(apperr.KindTransferWire, "state file id mismatch")
	}
	return st, nil
}

func statePath(stateDir string, id uint32) string {
	return filepath.Join(stateDir, fmt.Sprintf("%d.state", id))
}

// RestoreSession rebuilds a Session from a saved checkpoint, per spec.md
// §4.5.2's loadState(id). The restored session starts in the streaming
// state: its file list and cursor are already known, so the client can
// resume FILE_DATA/FILE_REQUEST frames from CursorFile/CursorOffset
// without re-running BuildFileList.
func RestoreSession(st wire.SessionState, stateDir string) (*Session, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "create zstd encoder", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "create zstd decoder", err)
	}
	return &Session{
		ID:               st.ID,
		Direction:        st.Direction,
		Flags:            st.Flags,
		BasePath:         st.BasePath,
		State:            StateStreaming,
		Files:            st.Files,
		CursorFile:       st.CursorFile,
		CursorOffset:     st.CursorOffset,
		BytesTransferred: st.BytesTransferred,
		currentIndex:     -1,
		encoder:          enc,
		decoder:          dec,
		stateDir:         stateDir,
	}, nil
}

// Abort transitions the session to aborted and releases its resources,
// per spec.md §5's "Transfer cancel: ... flushes state, closes mmaps,
// removes in-memory session."
func (s *Session) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCurrentFileLocked()
	s.State = StateAborted
}

// DefaultChunkSize exposes this implementation's FILE_REQUEST/FILE_DATA
// chunk size choice.
func DefaultChunkSize() int { return defaultChunkSize }
