// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package diskio provides utilities for working with disks and disk
// images.
package diskio

import (
	"fmt"
)

type File[A ~int64] interface {
	Name() string
	Size() A
	Close() error

	ReadAt(p []byte, off A) (n int, err error)
	WriteAt(p []byte, off A) (n int, err error)
}

// ReadAll reads exactly len(p) bytes at off, wrapping short reads in
// a descriptive error.
func ReadAll[A ~int64](f File[A], p []byte, off A) error {
	n, err := f.ReadAt(p, off)
	if err != nil {
		return fmt.Errorf("read %v bytes at %v=%#x from %q: %w", len(p), off, int64(off), f.Name(), err)
	}
	if n < len(p) {
		return fmt.Errorf("read %v bytes at %v=%#x from %q: short read (%v bytes)", len(p), off, int64(off), f.Name(), n)
	}
	return nil
}

// WriteAll writes all of p at off, wrapping short writes in a
// descriptive error.
func WriteAll[A ~int64](f File[A], p []byte, off A) error {
	n, err := f.WriteAt(p, off)
	if err != nil {
		return fmt.Errorf("write %v bytes at %v=%#x to %q: %w", len(p), off, int64(off), f.Name(), err)
	}
	if n < len(p) {
		return fmt.Errorf("write %v bytes at %v=%#x to %q: short write (%v bytes)", len(p), off, int64(off), f.Name(), n)
	}
	return nil
}
