// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package btrfsprim holds the primitive types that the btrfs on-disk
// format is built out of.
package btrfsprim

import (
	"time"

	"github.com/gobtrfs/btrfs-mkfs/lib/binstruct"
)

type Generation uint64

type Time struct {
	Sec           int64  `bin:"off=0x0, siz=0x8"` // Number of seconds since 1970-01-01T00:00:00Z.
	NSec          uint32 `bin:"off=0x8, siz=0x4"` // Number of nanoseconds since the beginning of the second.
	binstruct.End `bin:"off=0xc"`
}

func TimeFromStd(t time.Time) Time {
	return Time{
		Sec:  t.Unix(),
		NSec: uint32(t.Nanosecond()),
	}
}

func (t Time) ToStd() time.Time {
	return time.Unix(t.Sec, int64(t.NSec))
}
