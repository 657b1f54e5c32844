// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package diskio

import (
	"os"
)

// OSFile is a File backed by an *os.File; for block devices the size
// is probed with an ioctl rather than stat.
type OSFile[A ~int64] struct {
	*os.File
}

var _ File[int64] = (*OSFile[int64])(nil)

func (f *OSFile[A]) Size() A {
	sz, err := fileSize(f.File)
	if err != nil {
		return 0
	}
	return A(sz)
}

func (f *OSFile[A]) ReadAt(p []byte, off A) (int, error) {
	return f.File.ReadAt(p, int64(off))
}

func (f *OSFile[A]) WriteAt(p []byte, off A) (int, error) {
	return f.File.WriteAt(p, int64(off))
}
