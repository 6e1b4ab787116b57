package delta

// BlockChecksum pairs a rolling and strong checksum for one client-side
// block, per spec.md §3's BlockChecksum type.
type BlockChecksum struct {
	BlockIndex int
	Rolling    uint32
	Strong     uint64
}

// BlockSize clamps a candidate block size the way spec.md §4.5.3
// describes: floor(sqrt(file_size)), bounded to [512, 65536].
func BlockSize(fileSize int64) uint32 {
	if fileSize <= 0 {
		return 512
	}
	s := isqrt(uint64(fileSize))
	switch {
	case s < 512:
		return 512
	case s > 65536:
		return 65536
	default:
		return uint32(s)
	}
}

func isqrt(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	x := n
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return x
}

// multimap buckets client blocks by rolling checksum, matching spec.md
// §4.5.3's "builds a multimap from rolling -> list of (client_block_index,
// strong)... Single-key entries resolve to a single index; collisions
// tracked by a list."
type multimap map[uint32][]BlockChecksum

func buildMultimap(checksums []BlockChecksum) multimap {
	m := make(multimap, len(checksums))
	for _, c := range checksums {
		m[c.Rolling] = append(m[c.Rolling], c)
	}
	return m
}

// Compute walks serverBytes one byte at a time, maintaining a rolling
// checksum over a block_size window, and emits COPY/LITERAL commands that
// reconstruct serverBytes from the client's stale copy plus new bytes, per
// spec.md §4.5.3's algorithm. clientChecksums need not be sorted.
func Compute(serverBytes []byte, clientChecksums []BlockChecksum, blockSize uint32) []Command {
	if blockSize == 0 || len(serverBytes) == 0 {
		if len(serverBytes) == 0 {
			return nil
		}
		return []Command{{IsCopy: false, Literal: append([]byte(nil), serverBytes...)}}
	}

	mm := buildMultimap(clientChecksums)
	n := len(serverBytes)
	b := int(blockSize)

	var cmds []Command
	literalStart := 0
	pos := 0

	var rc *RollingChecksum
	for pos+b <= n {
		if rc == nil {
			rc = NewRollingChecksum(serverBytes[pos : pos+b])
		}

		matched := false
		if candidates, ok := mm[rc.Value()]; ok {
			strong := StrongHash(serverBytes[pos : pos+b])
			for _, cand := range candidates {
				if cand.Strong == strong {
					if pos > literalStart {
						cmds = append(cmds, Command{IsCopy: false, Literal: append([]byte(nil), serverBytes[literalStart:pos]...)})
					}
					cmds = append(cmds, Command{IsCopy: true, Offset: uint64(cand.BlockIndex) * uint64(blockSize), Length: blockSize})
					pos += b
					literalStart = pos
					matched = true
					break
				}
			}
		}
		if matched {
			rc = nil
			continue
		}

		// advance by one byte: slide the window if another full window
		// still fits, otherwise there is nothing left worth checking.
		if pos+b < n {
			rc.Roll(serverBytes[pos], serverBytes[pos+b])
		} else {
			rc = nil
		}
		pos++
	}

	if literalStart < n {
		cmds = append(cmds, Command{IsCopy: false, Literal: append([]byte(nil), serverBytes[literalStart:n]...)})
	}
	return cmds
}
