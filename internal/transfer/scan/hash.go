package scan

import (
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

// hashChunkSize is the read buffer size for content hashing. No pack
// dependency provides a memory-mapping primitive, so files are hashed via
// chunked reads over os.File rather than mmap; see DESIGN.md for the
// justification spec.md §9 requires for this stdlib fallback. The OS is
// still advised of sequential access where that capability exists (Linux,
// via adviseSequential in hash_linux.go).
const hashChunkSize = 1 << 20

// HashFile computes the 64-bit content hash spec.md §3 and §4.5.1 require,
// equivalent in role to XXH3 (cespare/xxhash/v2, the same algorithm family
// the delta engine's strong hash uses).
func HashFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	adviseSequential(f)

	h := xxhash.New()
	buf := make([]byte, hashChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}
