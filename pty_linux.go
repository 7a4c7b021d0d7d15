//go:build linux

package ptyexpect

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

var (
	unixOpen    = unix.Open
	unixSyscall = unix.Syscall
)

func openPTY() (*os.File, *os.File, error) {
	masterFd, err := unixOpen("/dev/ptmx", unix.O_RDWR|unix.O_NOCTTY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, nil, err
	}

	ptmxN := new(uint32)
	if _, _, errno := unixSyscall(unix.SYS_IOCTL, uintptr(masterFd), unix.TIOCGPTN, uintptr(unsafe.Pointer(ptmxN))); errno != 0 {
		_ = unix.Close(masterFd)
		return nil, nil, fmt.Errorf("ioctl(TIOCGPTN): %w", errno)
	}

	unlock := new(int32)
	if _, _, errno := unixSyscall(unix.SYS_IOCTL, uintptr(masterFd), unix.TIOCSPTLCK, uintptr(unsafe.Pointer(unlock))); errno != 0 {
		_ = unix.Close(masterFd)
		return nil, nil, fmt.Errorf("ioctl(TIOCSPTLCK): %w", errno)
	}

	slavePath := fmt.Sprintf("/dev/pts/%d", *ptmxN)
	slaveFd, err := unixOpen(slavePath, unix.O_RDWR|unix.O_NOCTTY|unix.O_CLOEXEC, 0)
	if err != nil {
		_ = unix.Close(masterFd)
		return nil, nil, err
	}

	master, err := newMaster(masterFd)
	if err != nil {
		_ = unix.Close(masterFd)
		_ = unix.Close(slaveFd)
		return nil, nil, err
	}
	return master, os.NewFile(uintptr(slaveFd), slavePath), nil
}
