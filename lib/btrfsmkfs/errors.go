// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsmkfs

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Errors returned from this package wrap a unix.Errno where an
// OS-level error number is part of the contract, so callers can test
// with errors.Is(err, unix.ENOSPC) and the like.

func errWrap(errno unix.Errno, format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, errno)...)
}

func errNoSpace(format string, a ...any) error {
	return errWrap(unix.ENOSPC, format, a...)
}

func errExists(format string, a ...any) error {
	return errWrap(unix.EEXIST, format, a...)
}

func errInval(format string, a ...any) error {
	return errWrap(unix.EINVAL, format, a...)
}
