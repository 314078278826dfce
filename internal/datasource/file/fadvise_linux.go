//go:build linux

package file

import (
	"os"

	"golang.org/x/sys/unix"
)

// adviseSequential hints the kernel that the file will be read once, front to
// back. Input files here are hundreds of megabytes; readahead makes a
// measurable difference. Failure is ignored: the hint is optional.
func adviseSequential(f *os.File) {
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
}
