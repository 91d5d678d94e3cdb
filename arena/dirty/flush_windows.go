//go:build windows

package dirty

import "golang.org/x/sys/windows"

func syncFile(fd uintptr, _ bool) error {
	return windows.FlushFileBuffers(windows.Handle(fd))
}
