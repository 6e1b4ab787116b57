// Package wsapi wires the three WebSocket routes spec.md §4.3's routing
// table names (/ws/file, /ws/control, /ws/h264) to the Transfer Manager,
// Quality Controller, and Video Encoder respectively. Each handler owns
// its connection for the handler's lifetime, per spec.md §5: "one
// WebSocket owns a session."
package wsapi

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/termweb-dev/termweb-core/internal/authstore"
	"github.com/termweb-dev/termweb-core/internal/logger"
	"github.com/termweb-dev/termweb-core/internal/transfer"
	"github.com/termweb-dev/termweb-core/internal/transfer/delta"
	"github.com/termweb-dev/termweb-core/internal/transfer/scan"
	"github.com/termweb-dev/termweb-core/internal/wire"
)

// NewFileHandler returns the /ws/file WebSocketHandler: it decodes one
// wire.Frame per inbound message and dispatches it against mgr, replying
// with the matching server-opcode frame(s).
func NewFileHandler(mgr *transfer.Manager) func(ctx context.Context, conn *websocket.Conn, verdict authstore.Verdict) {
	return func(ctx context.Context, conn *websocket.Conn, verdict authstore.Verdict) {
		h := &fileConn{
			conn:      conn,
			mgr:       mgr,
			verdict:   verdict,
			cancelled: make(map[uint32]bool),
			uploads:   make(map[uint32]*uploadState),
			syncs:     make(map[uint32]*syncState),
		}
		h.run()
	}
}

// uploadState tracks which file indices of an in-progress upload have
// received all their declared bytes, plus the dry-run classification
// counts spec.md §3's DRY_RUN_REPORT reports instead of mutating disk.
type uploadState struct {
	completed   map[uint32]bool
	wouldAdd    uint32
	wouldUpdate uint32
}

// syncState tracks per-file SYNC_ACK receipts for one reconciliation
// round started by SYNC_REQUEST.
type syncState struct {
	completed map[uint32]bool
}

type fileConn struct {
	conn    *websocket.Conn
	mgr     *transfer.Manager
	verdict authstore.Verdict

	// writeMu serializes writes onto conn: the read loop and a
	// streamDownload goroutine both write frames, and gorilla/websocket
	// does not allow concurrent writers.
	writeMu sync.Mutex

	mu        sync.Mutex
	cancelled map[uint32]bool
	uploads   map[uint32]*uploadState
	syncs     map[uint32]*syncState
}

func (h *fileConn) run() {
	defer h.conn.Close()
	log := logger.Transfer()

	for {
		_, msg, err := h.conn.ReadMessage()
		if err != nil {
			return
		}
		frame, err := wire.Decode(msg)
		if err != nil {
			continue
		}

		if err := h.dispatch(frame); err != nil {
			log.Warn().Err(err).Uint8("opcode", uint8(frame.Op)).Msg("transfer frame error")
		}
	}
}

// dispatch implements spec.md §4.5.4: a malformed or failed frame reports
// TRANSFER_ERROR and leaves the session alive for the client to retry.
func (h *fileConn) dispatch(frame wire.Frame) error {
	switch frame.Op {
	case wire.OpTransferInit:
		return h.handleInit(frame.Body)
	case wire.OpFileListRequest:
		return h.handleFileListRequest(frame.Body)
	case wire.OpFileData:
		return h.handleFileData(frame.Body)
	case wire.OpTransferResume:
		return h.handleResume(frame.Body)
	case wire.OpTransferCancel:
		return h.handleCancel(frame.Body)
	case wire.OpSyncRequest:
		return h.handleSyncRequest(frame.Body)
	case wire.OpBlockChecksums:
		return h.handleBlockChecksums(frame.Body)
	case wire.OpSyncAck:
		return h.handleSyncAck(frame.Body)
	default:
		return h.sendError(0, "unknown opcode")
	}
}

func (h *fileConn) send(op wire.Opcode, body []byte) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	return h.conn.WriteMessage(websocket.BinaryMessage, wire.Encode(op, body))
}

func (h *fileConn) sendError(transferID uint32, message string) error {
	return h.send(wire.OpTransferError, wire.TransferError{TransferID: transferID, Message: message}.Marshal())
}

// editAllowed reports whether the current verdict can create an upload
// session: write access to the host filesystem is gated at editor role or
// above, per spec.md §3's role ordering (admin > editor > viewer > none).
func (h *fileConn) editAllowed() bool {
	return h.verdict.Role.AtLeast(authstore.RoleEditor)
}

func (h *fileConn) handleInit(body []byte) error {
	init, err := wire.UnmarshalTransferInit(body)
	if err != nil {
		return h.sendError(0, "malformed TRANSFER_INIT")
	}
	if init.Direction == wire.DirectionUpload && !h.editAllowed() {
		return h.sendError(0, "insufficient role for upload")
	}

	sess, err := h.mgr.Create(init.Direction, init.Flags, init.Path, init.Excludes)
	if err != nil {
		return h.sendError(0, "failed to create transfer session")
	}
	if err := sess.BuildFileList(); err != nil {
		return h.sendError(sess.ID, "failed to scan base path")
	}

	if err := h.send(wire.OpTransferReady, wire.TransferReady{TransferID: sess.ID}.Marshal()); err != nil {
		return err
	}
	if err := h.sendFileList(sess); err != nil {
		return err
	}

	switch init.Direction {
	case wire.DirectionUpload:
		h.mu.Lock()
		h.uploads[sess.ID] = &uploadState{completed: make(map[uint32]bool)}
		h.mu.Unlock()
	case wire.DirectionDownload:
		go h.streamDownload(sess)
	}
	return nil
}

func (h *fileConn) sendFileList(sess *transfer.Session) error {
	return h.send(wire.OpFileList, wire.FileList{
		TransferID: sess.ID,
		TotalBytes: sess.TotalBytes,
		Entries:    sess.Files,
	}.Marshal())
}

func (h *fileConn) handleFileListRequest(body []byte) error {
	req, err := wire.UnmarshalTransferID(body)
	if err != nil {
		return h.sendError(0, "malformed FILE_LIST_REQUEST")
	}
	sess, ok := h.mgr.Get(req.TransferID)
	if !ok {
		return h.sendError(req.TransferID, "unknown transfer id")
	}
	return h.sendFileList(sess)
}

// handleFileData applies one upload chunk, per spec.md §4.5.2. Chunks are
// written directly at their byte offset so out-of-order delivery (not
// expected within one WebSocket, per spec.md §5's ordering guarantee, but
// possible on retry) still lands correctly. A session opened with
// FlagDryRun skips the write entirely: the TransferSession's dry_run
// invariant is that nothing on disk changes, so only the accounting that
// feeds DRY_RUN_REPORT happens here.
func (h *fileConn) handleFileData(body []byte) error {
	chunk, err := wire.UnmarshalFileChunk(body)
	if err != nil {
		return h.sendError(0, "malformed FILE_DATA")
	}
	sess, ok := h.mgr.Get(chunk.TransferID)
	if !ok {
		return h.sendError(chunk.TransferID, "unknown transfer id")
	}
	if !h.editAllowed() {
		return h.sendError(chunk.TransferID, "insufficient role for upload")
	}
	if int(chunk.FileIndex) >= len(sess.Files) {
		return h.sendError(chunk.TransferID, "file index out of range")
	}

	data, err := sess.Decompress(chunk.Compressed, int(chunk.UncompressedSize))
	if err != nil {
		// spec.md §4.5.4: compression errors abort only the affected chunk.
		return h.sendError(chunk.TransferID, "chunk decompression failed")
	}

	entry := sess.Files[chunk.FileIndex]
	dryRun := sess.Flags&wire.FlagDryRun != 0

	if !dryRun {
		full := filepath.Join(sess.BasePath, filepath.FromSlash(entry.Path))
		if err := writeChunkAt(full, chunk.ChunkOffset, data); err != nil {
			// spec.md §4.5.4: file IO errors during a transfer are
			// frame-level, the session is not torn down.
			return h.sendError(chunk.TransferID, "write failed")
		}
	}

	sess.CursorFile = chunk.FileIndex
	sess.CursorOffset = chunk.ChunkOffset + uint64(len(data))
	sess.BytesTransferred += uint64(len(data))

	if entry.Size == 0 || sess.CursorOffset >= entry.Size {
		if h.markUploadFileComplete(sess, chunk.FileIndex, dryRun) {
			return h.finishUpload(sess, dryRun)
		}
	}

	return h.send(wire.OpFileAck, wire.FileAck{
		TransferID: chunk.TransferID,
		FileIndex:  chunk.FileIndex,
		BytesAcked: sess.CursorOffset,
	}.Marshal())
}

// markUploadFileComplete records fileIndex as fully received and reports
// whether every non-directory entry in the session's file list has now
// been received, meaning the upload is done.
func (h *fileConn) markUploadFileComplete(sess *transfer.Session, fileIndex uint32, dryRun bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	st := h.uploads[sess.ID]
	if st == nil || st.completed[fileIndex] {
		return false
	}
	st.completed[fileIndex] = true

	if dryRun {
		entry := sess.Files[fileIndex]
		full := filepath.Join(sess.BasePath, filepath.FromSlash(entry.Path))
		if _, err := os.Stat(full); err == nil {
			st.wouldUpdate++
		} else {
			st.wouldAdd++
		}
	}

	return len(st.completed) >= countFiles(sess.Files)
}

// finishUpload runs delete_extra reconciliation (if requested) and
// reports the upload's outcome: a DRY_RUN_REPORT for a dry-run session,
// TRANSFER_COMPLETE otherwise.
func (h *fileConn) finishUpload(sess *transfer.Session, dryRun bool) error {
	h.mu.Lock()
	st := h.uploads[sess.ID]
	delete(h.uploads, sess.ID)
	h.mu.Unlock()

	wouldDelete, err := h.reconcileDeleteExtra(sess, dryRun)
	if err != nil {
		logger.Transfer().Warn().Err(err).Uint32("transfer_id", sess.ID).Msg("delete_extra reconciliation failed")
	}

	if dryRun {
		var add, update uint32
		if st != nil {
			add, update = st.wouldAdd, st.wouldUpdate
		}
		return h.send(wire.OpDryRunReport, wire.DryRunReport{
			TransferID:  sess.ID,
			WouldAdd:    add,
			WouldUpdate: update,
			WouldDelete: wouldDelete,
		}.Marshal())
	}

	sess.State = transfer.StateCompleted
	return h.send(wire.OpTransferComplete, wire.TransferID{TransferID: sess.ID}.Marshal())
}

// reconcileDeleteExtra implements the delete_extra flag (spec.md §3):
// entries that exist under sess.BasePath but are absent from the
// client-declared manifest are removed (or, under dry_run, only counted).
// A no-op when FlagDeleteExtra is unset.
func (h *fileConn) reconcileDeleteExtra(sess *transfer.Session, dryRun bool) (uint32, error) {
	if sess.Flags&wire.FlagDeleteExtra == 0 {
		return 0, nil
	}

	manifest := make(map[string]bool, len(sess.Files))
	for _, e := range sess.Files {
		if !e.IsDir {
			manifest[e.Path] = true
		}
	}

	existing, err := scan.Walk(scan.Options{BasePath: sess.BasePath, Excludes: sess.Excludes})
	if err != nil {
		return 0, err
	}

	var count uint32
	for _, e := range existing {
		if e.IsDir || manifest[e.Path] {
			continue
		}
		count++
		if !dryRun {
			full := filepath.Join(sess.BasePath, filepath.FromSlash(e.Path))
			_ = os.Remove(full)
		}
	}
	return count, nil
}

func countFiles(entries []wire.FileEntry) int {
	n := 0
	for _, e := range entries {
		if !e.IsDir {
			n++
		}
	}
	return n
}

func writeChunkAt(path string, offset uint64, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteAt(data, int64(offset))
	return err
}

// streamDownload serves a DirectionDownload transfer. FILE_REQUEST
// (0x32) and BATCH_DATA (0x37) are server opcodes, per spec.md §6.3: the
// server pushes chunks/batches autonomously rather than waiting on a
// per-chunk client pull. Small files (spec.md §4.5.2's < 16 KB cutoff,
// transfer.IsSmallFile) are grouped into BATCH_DATA messages; everything
// else streams as a sequence of FILE_REQUEST chunks sized by
// transfer.DefaultChunkSize.
func (h *fileConn) streamDownload(sess *transfer.Session) {
	defer sess.CloseCurrentFile()

	dryRun := sess.Flags&wire.FlagDryRun != 0
	if dryRun {
		// The server has no visibility into what the client already has
		// locally, so a download dry-run can only report the candidate
		// set it would push, not an add/update split. See DESIGN.md.
		_ = h.send(wire.OpDryRunReport, wire.DryRunReport{
			TransferID: sess.ID,
			WouldAdd:   uint32(countFiles(sess.Files)),
		}.Marshal())
		return
	}

	const maxBatchBytes = 256 * 1024
	chunkSize := transfer.DefaultChunkSize()

	var batch []wire.BatchedFile
	var batchBytes int

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		payload := wire.BatchPayload{Files: batch}.MarshalPayload()
		compressed := sess.Compress(payload)
		err := h.send(wire.OpBatchData, wire.BatchData{
			TransferID:       sess.ID,
			UncompressedSize: uint32(len(payload)),
			Compressed:       compressed,
		}.Marshal())
		batch = nil
		batchBytes = 0
		return err
	}

	for idx, entry := range sess.Files {
		if entry.IsDir {
			continue
		}
		if h.isCancelled(sess.ID) {
			return
		}

		if transfer.IsSmallFile(entry) {
			data, err := sess.ReadFileChunk(idx, 0, int(entry.Size))
			if err != nil {
				_ = h.sendError(sess.ID, "failed to read file for batch")
				continue
			}
			batch = append(batch, wire.BatchedFile{FileIndex: uint32(idx), Data: data})
			batchBytes += len(data)
			if batchBytes >= maxBatchBytes {
				if err := flush(); err != nil {
					return
				}
			}
			continue
		}

		if err := flush(); err != nil {
			return
		}

		var offset int64
		for offset < int64(entry.Size) {
			if h.isCancelled(sess.ID) {
				return
			}
			data, err := sess.ReadFileChunk(idx, offset, chunkSize)
			if err != nil || len(data) == 0 {
				_ = h.sendError(sess.ID, "failed to read file chunk")
				break
			}
			compressed := sess.Compress(data)
			err = h.send(wire.OpFileRequest, wire.FileChunk{
				TransferID:       sess.ID,
				FileIndex:        uint32(idx),
				ChunkOffset:      uint64(offset),
				UncompressedSize: uint32(len(data)),
				Compressed:       compressed,
			}.Marshal())
			if err != nil {
				return
			}
			offset += int64(len(data))
			sess.CursorFile = uint32(idx)
			sess.CursorOffset = uint64(offset)
			sess.BytesTransferred += uint64(len(data))
		}
	}

	if err := flush(); err != nil {
		return
	}

	sess.State = transfer.StateCompleted
	_ = h.send(wire.OpTransferComplete, wire.TransferID{TransferID: sess.ID}.Marshal())
}

func (h *fileConn) isCancelled(transferID uint32) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled[transferID]
}

func (h *fileConn) handleResume(body []byte) error {
	req, err := wire.UnmarshalTransferResume(body)
	if err != nil {
		return h.sendError(0, "malformed TRANSFER_RESUME")
	}

	if sess, ok := h.mgr.Get(req.TransferID); ok {
		return h.send(wire.OpTransferReady, wire.TransferReady{
			TransferID:   sess.ID,
			ResumeFile:   sess.CursorFile,
			ResumeOffset: sess.CursorOffset,
		}.Marshal())
	}

	// Per spec.md's open question: this implementation requires the saved
	// state's id to match the requested resume state id exactly.
	st, loadErr := transfer.LoadState(h.mgr.StateDir(), req.ResumeStateID)
	if loadErr != nil {
		return h.sendError(req.TransferID, "no resumable state for this id")
	}
	restored, err := transfer.RestoreSession(st, h.mgr.StateDir())
	if err != nil {
		return h.sendError(req.TransferID, "failed to restore session")
	}
	h.mgr.Restore(restored)

	if restored.Direction == wire.DirectionUpload {
		h.mu.Lock()
		h.uploads[restored.ID] = &uploadState{completed: make(map[uint32]bool)}
		h.mu.Unlock()
	}

	return h.send(wire.OpTransferReady, wire.TransferReady{
		TransferID:   restored.ID,
		ResumeFile:   restored.CursorFile,
		ResumeOffset: restored.CursorOffset,
	}.Marshal())
}

func (h *fileConn) handleCancel(body []byte) error {
	req, err := wire.UnmarshalTransferID(body)
	if err != nil {
		return h.sendError(0, "malformed TRANSFER_CANCEL")
	}

	h.mu.Lock()
	h.cancelled[req.TransferID] = true
	delete(h.uploads, req.TransferID)
	delete(h.syncs, req.TransferID)
	h.mu.Unlock()

	return h.mgr.Cancel(req.TransferID)
}

func (h *fileConn) handleSyncRequest(body []byte) error {
	req, err := wire.UnmarshalTransferID(body)
	if err != nil {
		return h.sendError(0, "malformed SYNC_REQUEST")
	}
	sess, ok := h.mgr.Get(req.TransferID)
	if !ok {
		return h.sendError(req.TransferID, "unknown transfer id")
	}

	h.mu.Lock()
	h.syncs[sess.ID] = &syncState{completed: make(map[uint32]bool)}
	h.mu.Unlock()

	return h.send(wire.OpSyncFileList, wire.FileList{
		TransferID: sess.ID,
		TotalBytes: sess.TotalBytes,
		Entries:    sess.Files,
	}.Marshal())
}

// handleBlockChecksums runs the rsync-style delta engine from spec.md
// §4.5.3: the client offers block checksums for its stale copy, and the
// server replies with a COPY/LITERAL command stream reconstructing the
// current server bytes.
func (h *fileConn) handleBlockChecksums(body []byte) error {
	req, err := wire.UnmarshalBlockChecksums(body)
	if err != nil {
		return h.sendError(0, "malformed BLOCK_CHECKSUMS")
	}
	sess, ok := h.mgr.Get(req.TransferID)
	if !ok {
		return h.sendError(req.TransferID, "unknown transfer id")
	}
	if int(req.FileIndex) >= len(sess.Files) {
		return h.sendError(req.TransferID, "file index out of range")
	}

	full := filepath.Join(sess.BasePath, filepath.FromSlash(sess.Files[req.FileIndex].Path))
	serverBytes, err := os.ReadFile(full)
	if err != nil {
		return h.sendError(req.TransferID, "server file unreadable")
	}

	checksums := make([]delta.BlockChecksum, len(req.Blocks))
	for i, b := range req.Blocks {
		checksums[i] = delta.BlockChecksum{BlockIndex: i, Rolling: b.Rolling, Strong: b.Strong}
	}

	cmds := delta.Compute(serverBytes, checksums, req.BlockSize)
	encoded := delta.EncodeCommands(cmds)
	compressed := sess.Compress(encoded)

	return h.send(wire.OpDeltaData, wire.DeltaData{
		TransferID:       req.TransferID,
		FileIndex:        req.FileIndex,
		UncompressedSize: uint32(len(encoded)),
		Compressed:       compressed,
	}.Marshal())
}

// handleSyncAck records one file's delta reconstruction as applied by the
// client. Once every non-directory entry in the session's file list has
// been acknowledged, this reconciliation round is done: delete_extra (if
// set) runs and SYNC_COMPLETE is sent.
func (h *fileConn) handleSyncAck(body []byte) error {
	ack, err := wire.UnmarshalSyncAck(body)
	if err != nil {
		return h.sendError(0, "malformed SYNC_ACK")
	}
	sess, ok := h.mgr.Get(ack.TransferID)
	if !ok {
		return h.sendError(ack.TransferID, "unknown transfer id")
	}

	h.mu.Lock()
	st := h.syncs[ack.TransferID]
	if st == nil {
		h.mu.Unlock()
		return nil
	}
	st.completed[ack.FileIndex] = true
	done := len(st.completed) >= countFiles(sess.Files)
	if done {
		delete(h.syncs, ack.TransferID)
	}
	h.mu.Unlock()

	if !done {
		return nil
	}

	dryRun := sess.Flags&wire.FlagDryRun != 0
	if _, err := h.reconcileDeleteExtra(sess, dryRun); err != nil {
		logger.Transfer().Warn().Err(err).Uint32("transfer_id", sess.ID).Msg("delete_extra reconciliation failed")
	}

	sess.State = transfer.StateCompleted
	return h.send(wire.OpSyncComplete, wire.TransferID{TransferID: ack.TransferID}.Marshal())
}
