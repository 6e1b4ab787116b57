//go:build linux

package scan

import (
	"os"

	"golang.org/x/sys/unix"
)

// adviseSequential hints to the kernel that f will be read sequentially
// start-to-finish, per spec.md §4.5.1: "the kernel is advised of
// sequential access." This is a best-effort call; a failure here never
// aborts hashing.
func adviseSequential(f *os.File) {
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
}
