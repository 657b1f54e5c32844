// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

//go:build linux

package diskio

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// fileSize returns the usable byte size of f: the BLKGETSIZE64 value
// for block devices, the stat size for everything else.
func fileSize(f *os.File) (int64, error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if fi.Mode()&os.ModeDevice == 0 {
		return fi.Size(), nil
	}
	var sz uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&sz)))
	if errno != 0 {
		return 0, &os.PathError{Op: "ioctl BLKGETSIZE64", Path: f.Name(), Err: errno}
	}
	return int64(sz), nil
}

// Discard issues a BLKDISCARD for the first size bytes of the device.
// It returns unix.EOPNOTSUPP for non-devices and for devices that do
// not support discard, so callers can fall back to writing zeroes.
func Discard(f *os.File, size int64) error {
	fi, err := f.Stat()
	if err != nil {
		return err
	}
	if fi.Mode()&os.ModeDevice == 0 {
		return unix.EOPNOTSUPP
	}
	rng := [2]uint64{0, uint64(size)}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), unix.BLKDISCARD, uintptr(unsafe.Pointer(&rng[0])))
	if errno != 0 {
		return &os.PathError{Op: "ioctl BLKDISCARD", Path: f.Name(), Err: errno}
	}
	return nil
}
