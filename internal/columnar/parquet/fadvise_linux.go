//go:build linux

package parquet

import (
	"os"

	"golang.org/x/sys/unix"
)

// adviseSequential hints the kernel that row groups are scanned front to
// back. Failure is harmless.
func adviseSequential(f *os.File) {
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
}
