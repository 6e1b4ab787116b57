package delta

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Command opcodes, per spec.md §4.5.3: COPY reuses bytes from the client's
// stale copy; LITERAL carries new bytes from the server.
const (
	cmdCopy    byte = 0x00
	cmdLiteral byte = 0x01
)

// Command is one entry of the delta stream computeDelta produces.
type Command struct {
	IsCopy  bool
	Offset  uint64 // COPY only: offset into the client's stale copy
	Length  uint32
	Literal []byte // LITERAL only
}

// EncodeCommands serializes a command stream to the pre-compression wire
// shape from spec.md §4.5.3:
//
//	COPY:    [0x00][offset:u64 LE][length:u32 LE]
//	LITERAL: [0x01][length:u32 LE][bytes...]
//
// The caller compresses the result with zstd before sending it as
// DELTA_DATA.
func EncodeCommands(cmds []Command) []byte {
	var buf bytes.Buffer
	for _, c := range cmds {
		if c.IsCopy {
			buf.WriteByte(cmdCopy)
			binary.Write(&buf, binary.LittleEndian, c.Offset)
			binary.Write(&buf, binary.LittleEndian, c.Length)
		} else {
			buf.WriteByte(cmdLiteral)
			binary.Write(&buf, binary.LittleEndian, uint32(len(c.Literal)))
			buf.Write(c.Literal)
		}
	}
	return buf.Bytes()
}

// DecodeCommands parses a decompressed command stream back into Commands.
func DecodeCommands(data []byte) ([]Command, error) {
	r := bytes.NewReader(data)
	var cmds []Command
	for r.Len() > 0 {
		op, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("delta: read opcode: %w", err)
		}
		switch op {
		case cmdCopy:
			var offset uint64
			var length uint32
			if err := binary.Read(r, binary.LittleEndian, &offset); err != nil {
				return nil, fmt.Errorf("delta: read copy offset: %w", err)
			}
			if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
				return nil, fmt.Errorf("delta: read copy length: %w", err)
			}
			cmds = append(cmds, Command{IsCopy: true, Offset: offset, Length: length})
		case cmdLiteral:
			var length uint32
			if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
				return nil, fmt.Errorf("delta: read literal length: %w", err)
			}
			lit := make([]byte, length)
			if _, err := io.ReadFull(r, lit); err != nil {
				return nil, fmt.Errorf("delta: read literal bytes: %w", err)
			}
			cmds = append(cmds, Command{IsCopy: false, Literal: lit})
		default:
			return nil, fmt.Errorf("delta: unknown command opcode 0x%02x", op)
		}
	}
	return cmds, nil
}

// Apply reconstructs the target bytes by running cmds against source, the
// client's stale copy. Applying the output of computeDelta(serverBytes,
// ..., source) against source reproduces serverBytes exactly, per spec.md
// §8's testable property 6.
func Apply(cmds []Command, source []byte) ([]byte, error) {
	var out bytes.Buffer
	for _, c := range cmds {
		if c.IsCopy {
			end := c.Offset + uint64(c.Length)
			if end > uint64(len(source)) {
				return nil, fmt.Errorf("delta: copy range [%d:%d) exceeds source length %d", c.Offset, end, len(source))
			}
			out.Write(source[c.Offset:end])
		} else {
			out.Write(c.Literal)
		}
	}
	return out.Bytes(), nil
}
