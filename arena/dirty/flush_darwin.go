//go:build darwin

package dirty

import "golang.org/x/sys/unix"

// syncFile uses F_FULLFSYNC when full is set so the image reaches the
// platters and not just the drive cache. macOS has no fdatasync.
func syncFile(fd uintptr, full bool) error {
	if full {
		_, err := unix.FcntlInt(fd, unix.F_FULLFSYNC, 0)
		return err
	}
	return unix.Fsync(int(fd))
}
