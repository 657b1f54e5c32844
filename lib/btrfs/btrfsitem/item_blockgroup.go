// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import (
	"github.com/gobtrfs/btrfs-mkfs/lib/binstruct"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsprim"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsvol"
)

// BlockGroup is a BLOCK_GROUP_ITEM.
//
// key.objectid = logical address of the block group
// key.offset   = size of the block group
type BlockGroup struct { // BLOCK_GROUP_ITEM=192
	Used          int64                    `bin:"off=0x0, siz=0x8"`
	ChunkObjectID btrfsprim.ObjID          `bin:"off=0x8, siz=0x8"` // always FIRST_CHUNK_TREE_OBJECTID
	Flags         btrfsvol.BlockGroupFlags `bin:"off=0x10, siz=0x8"`
	binstruct.End `bin:"off=0x18"`
}
