// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import (
	"github.com/gobtrfs/btrfs-mkfs/lib/binstruct"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsprim"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsvol"
)

// DevExtent is a DEV_EXTENT; one exists in the device tree for each
// stripe of each chunk.
//
// key.objectid = device ID
// key.offset   = physical address of the start of the stripe
type DevExtent struct { // DEV_EXTENT=204
	ChunkTree     btrfsprim.ObjID    `bin:"off=0x0,  siz=0x8"` // always CHUNK_TREE_OBJECTID
	ChunkObjectID btrfsprim.ObjID    `bin:"off=0x8,  siz=0x8"` // always FIRST_CHUNK_TREE_OBJECTID
	ChunkOffset   btrfsvol.LogicalAddr `bin:"off=0x10, siz=0x8"`
	Length        btrfsvol.AddrDelta `bin:"off=0x18, siz=0x8"`
	ChunkTreeUUID btrfsprim.UUID     `bin:"off=0x20, siz=0x10"`
	binstruct.End `bin:"off=0x30"`
}
