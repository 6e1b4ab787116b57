//go:build !linux

package scan

import "os"

// adviseSequential is a no-op on platforms without fadvise(2).
func adviseSequential(f *os.File) {}
