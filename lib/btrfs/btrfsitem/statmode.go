// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import (
	"strings"
)

// StatMode is the Unix `stat.st_mode` of an inode: the file type bits
// plus the permission bits.
type StatMode uint32

const (
	// 16 bits: xxxxxxxxxxxxxxxx
	// categorize:
	//            TTTTsssspppppppp
	ModeFmtMask = StatMode(0o17_7777)

	ModeFmtSticky = StatMode(0o1000)
	ModeFmtSetgid = StatMode(0o2000)
	ModeFmtSetuid = StatMode(0o4000)

	ModeFmtTypeMask = StatMode(0o17_0000)

	ModeFmtPipe        = StatMode(0o01_0000)
	ModeFmtCharDevice  = StatMode(0o02_0000)
	ModeFmtDir         = StatMode(0o04_0000)
	ModeFmtBlockDevice = StatMode(0o06_0000)
	ModeFmtRegular     = StatMode(0o10_0000)
	ModeFmtSymlink     = StatMode(0o12_0000)
	ModeFmtSocket      = StatMode(0o14_0000)
)

func (mode StatMode) IsDir() bool {
	return mode&ModeFmtTypeMask == ModeFmtDir
}

func (mode StatMode) IsRegular() bool {
	return mode&ModeFmtTypeMask == ModeFmtRegular
}

func (mode StatMode) IsSymlink() bool {
	return mode&ModeFmtTypeMask == ModeFmtSymlink
}

func (mode StatMode) String() string {
	var buf strings.Builder
	buf.Grow(10)
	switch mode & ModeFmtTypeMask {
	case ModeFmtPipe:
		buf.WriteByte('p')
	case ModeFmtCharDevice:
		buf.WriteByte('c')
	case ModeFmtDir:
		buf.WriteByte('d')
	case ModeFmtBlockDevice:
		buf.WriteByte('b')
	case ModeFmtRegular:
		buf.WriteByte('-')
	case ModeFmtSymlink:
		buf.WriteByte('l')
	case ModeFmtSocket:
		buf.WriteByte('s')
	default:
		buf.WriteByte('?')
	}
	for i := 8; i >= 0; i-- {
		if mode&(1<<i) != 0 {
			buf.WriteByte("rwxrwxrwx"[8-i])
		} else {
			buf.WriteByte('-')
		}
	}
	return buf.String()
}
