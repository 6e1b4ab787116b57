package wire

// SessionState is the resumable on-disk checkpoint from spec.md §6.2,
// written to `<state_dir>/<id>.state` at the server's discretion between
// frames (never mid-chunk, per spec.md §5's ordering guarantees).
type SessionState struct {
	ID                uint32
	Direction         Direction
	Flags             uint8
	CursorFile        uint32
	CursorOffset      uint64
	BytesTransferred  uint64
	BasePath          string
	Files             []FileEntry
}

// Marshal encodes the state exactly as spec.md §6.2 lays it out:
//
//	[id:u32][direction:u8][flags:u8][cursor_file:u32][cursor_offset:u64][bytes_transferred:u64]
//	[base_path_len:u16][base_path]
//	[file_count:u32]
//	  per file: [path_len:u16][path][size:u64][mtime:u64][hash:u64][is_dir:u8]
func (s SessionState) Marshal() []byte {
	w := newWriter()
	w.u32(s.ID)
	w.u8(uint8(s.Direction))
	w.u8(s.Flags)
	w.u32(s.CursorFile)
	w.u64(s.CursorOffset)
	w.u64(s.BytesTransferred)
	w.lenPrefixedString(s.BasePath)
	w.u32(uint32(len(s.Files)))
	for _, f := range s.Files {
		w.fileEntry(f)
	}
	return w.Bytes()
}

// UnmarshalSessionState decodes a state file written by Marshal. A length
// mismatch or truncated record returns an error; spec.md §4.5.4 requires
// the caller treat this as "invalid-state, client must start fresh"
// rather than attempting partial recovery.
func UnmarshalSessionState(data []byte) (SessionState, error) {
	r := newReader(data)

	id, err := r.u32()
	if err != nil {
		return SessionState{}, wrapErr("id", err)
	}
	dir, err := r.u8()
	if err != nil {
		return SessionState{}, wrapErr("direction", err)
	}
	flags, err := r.u8()
	if err != nil {
		return SessionState{}, wrapErr("flags", err)
	}
	cursorFile, err := r.u32()
	if err != nil {
		return SessionState{}, wrapErr("cursor_file", err)
	}
	cursorOffset, err := r.u64()
	if err != nil {
		return SessionState{}, wrapErr("cursor_offset", err)
	}
	bytesTransferred, err := r.u64()
	if err != nil {
		return SessionState{}, wrapErr("bytes_transferred", err)
	}
	basePath, err := r.lenPrefixedString()
	if err != nil {
		return SessionState{}, wrapErr("base_path", err)
	}
	fileCount, err := r.u32()
	if err != nil {
		return SessionState{}, wrapErr("file_count", err)
	}
	files := make([]FileEntry, 0, fileCount)
	for i := uint32(0); i < fileCount; i++ {
		f, err := r.fileEntry()
		if err != nil {
			return SessionState{}, wrapErr("file", err)
		}
		files = append(files, f)
	}

	return SessionState{
		ID:               id,
		Direction:        Direction(dir),
		Flags:            flags,
		CursorFile:       cursorFile,
		CursorOffset:     cursorOffset,
		BytesTransferred: bytesTransferred,
		BasePath:         basePath,
		Files:            files,
	}, nil
}
