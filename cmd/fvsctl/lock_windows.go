//go:build windows

package main

import (
	"fmt"
	"os"
	"syscall"
	"unsafe"
)

var (
	modkernel32      = syscall.NewLazyDLL("kernel32.dll")
	procLockFileEx   = modkernel32.NewProc("LockFileEx")
	procUnlockFileEx = modkernel32.NewProc("UnlockFileEx")
)

const (
	lockfileExclusiveLock = 0x00000002
	lockfileFailImmediate = 0x00000001
)

// osLock is an OS-level exclusive lock on path+".lock", taken via LockFileEx.
type osLock struct {
	file *os.File
}

func acquireLock(path string) (*osLock, error) {
	lockPath := path + ".lock"
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("fvsctl: cannot open lock file: %w", err)
	}

	ol := new(syscall.Overlapped)
	r1, _, _ := procLockFileEx.Call(
		f.Fd(),
		uintptr(lockfileExclusiveLock|lockfileFailImmediate),
		0,
		1, 0,
		uintptr(unsafe.Pointer(ol)),
	)
	if r1 == 0 {
		f.Close()
		return nil, fmt.Errorf("fvsctl: %q is locked by another invocation", path)
	}

	return &osLock{file: f}, nil
}

func (l *osLock) release() {
	if l == nil || l.file == nil {
		return
	}
	ol := new(syscall.Overlapped)
	procUnlockFileEx.Call(
		l.file.Fd(),
		0,
		1, 0,
		uintptr(unsafe.Pointer(ol)),
	)
	name := l.file.Name()
	l.file.Close()
	os.Remove(name)
}
