// Package delta implements the rsync-style block-delta engine from
// spec.md §4.5.3: an Adler-like rolling checksum with O(1) window-slide
// updates, a 64-bit strong hash for collision confirmation, and COPY/
// LITERAL command emission. Every type here is pure and platform-agnostic,
// per spec.md §9's design note separating this from the OS-specific scan
// capability.
package delta

const rollingMod = 1 << 16

// RollingChecksum is the Adler-style (a, b) pair spec.md §4.5.3 describes:
// two 16-bit lanes combined into a single 32-bit value as (b<<16)|a.
type RollingChecksum struct {
	a, b   uint32
	window []byte
}

// NewRollingChecksum computes the initial checksum over window, the first
// block_size bytes of a block.
func NewRollingChecksum(window []byte) *RollingChecksum {
	r := &RollingChecksum{window: append([]byte(nil), window...)}
	var a, b uint32
	n := uint32(len(window))
	for i, c := range window {
		a += uint32(c)
		b += (n - uint32(i)) * uint32(c)
	}
	r.a = a % rollingMod
	r.b = b % rollingMod
	return r
}

// Value returns the combined 32-bit rolling hash.
func (r *RollingChecksum) Value() uint32 {
	return (r.b << 16) | r.a
}

// Roll slides the window forward by one byte: oldByte leaves at the front,
// newByte enters at the back. This is the O(1) update spec.md §4.5.3 and
// §8's testable property 5 require.
func (r *RollingChecksum) Roll(oldByte, newByte byte) {
	n := uint32(len(r.window))
	r.a = (r.a - uint32(oldByte) + uint32(newByte)) % rollingMod
	r.b = (r.b - n*uint32(oldByte) + r.a) % rollingMod
	// keep using two's-complement wraparound semantics consistent with the
	// modular arithmetic above; Go's uint32 subtraction wraps exactly like
	// the unsigned arithmetic the source relies on.
	if len(r.window) > 0 {
		copy(r.window, r.window[1:])
		r.window[len(r.window)-1] = newByte
	}
}

// RollingValue computes the combined rolling checksum of window directly,
// without retaining state — used by the client side, which only ever
// computes one checksum per block and never rolls within it.
func RollingValue(window []byte) uint32 {
	return NewRollingChecksum(window).Value()
}
