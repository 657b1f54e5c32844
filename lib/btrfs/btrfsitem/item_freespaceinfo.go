// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import (
	"github.com/gobtrfs/btrfs-mkfs/lib/binstruct"
)

// FreeSpaceInfo is a FREE_SPACE_INFO, the free-space tree's summary
// record for one block group.
//
// key.objectid = logical address of the block group
// key.offset   = size of the block group
type FreeSpaceInfo struct { // FREE_SPACE_INFO=198
	ExtentCount   int32                `bin:"off=0, siz=4"`
	Flags         FreeSpaceFlags       `bin:"off=4, siz=4"`
	binstruct.End `bin:"off=8"`
}

type FreeSpaceFlags uint32

const (
	FREE_SPACE_USING_BITMAPS = FreeSpaceFlags(1 << iota)
)

func (f FreeSpaceFlags) Has(req FreeSpaceFlags) bool { return f&req == req }
