package delta

import "github.com/cespare/xxhash/v2"

// StrongHash computes the 64-bit non-cryptographic content hash spec.md §3
// and §4.5.3 use to confirm a rolling-hash candidate match. It is the same
// function the scan engine uses for whole-file content hashes (see
// transfer/scan), applied here to a single block-sized window.
func StrongHash(data []byte) uint64 {
	return xxhash.Sum64(data)
}
