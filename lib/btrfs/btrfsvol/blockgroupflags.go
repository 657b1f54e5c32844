// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsvol

import (
	"github.com/gobtrfs/btrfs-mkfs/lib/fmtutil"
)

type BlockGroupFlags uint64

const (
	BLOCK_GROUP_DATA = BlockGroupFlags(1 << iota)
	BLOCK_GROUP_SYSTEM
	BLOCK_GROUP_METADATA
	BLOCK_GROUP_RAID0
	BLOCK_GROUP_RAID1
	BLOCK_GROUP_DUP
	BLOCK_GROUP_RAID10
	BLOCK_GROUP_RAID5
	BLOCK_GROUP_RAID6
	BLOCK_GROUP_RAID1C3
	BLOCK_GROUP_RAID1C4
	BLOCK_GROUP_METADATA_REMAP

	BLOCK_GROUP_TYPE_MASK = BLOCK_GROUP_DATA |
		BLOCK_GROUP_SYSTEM |
		BLOCK_GROUP_METADATA |
		BLOCK_GROUP_METADATA_REMAP

	BLOCK_GROUP_PROFILE_MASK = BLOCK_GROUP_RAID0 |
		BLOCK_GROUP_RAID1 |
		BLOCK_GROUP_DUP |
		BLOCK_GROUP_RAID10 |
		BLOCK_GROUP_RAID5 |
		BLOCK_GROUP_RAID6 |
		BLOCK_GROUP_RAID1C3 |
		BLOCK_GROUP_RAID1C4

	BLOCK_GROUP_RAID56_MASK = BLOCK_GROUP_RAID5 | BLOCK_GROUP_RAID6

	BLOCK_GROUP_RAID1_MASK = BLOCK_GROUP_RAID1 |
		BLOCK_GROUP_RAID1C3 |
		BLOCK_GROUP_RAID1C4
)

var blockGroupFlagNames = []string{
	"DATA",
	"SYSTEM",
	"METADATA",

	"RAID0",
	"RAID1",
	"DUP",
	"RAID10",
	"RAID5",
	"RAID6",
	"RAID1C3",
	"RAID1C4",
	"METADATA_REMAP",
}

func (f BlockGroupFlags) Has(req BlockGroupFlags) bool { return f&req == req }
func (f BlockGroupFlags) String() string {
	ret := fmtutil.BitfieldString(f, blockGroupFlagNames, fmtutil.HexNone)
	if f&BLOCK_GROUP_PROFILE_MASK == 0 {
		if ret == "" {
			ret = "single"
		} else {
			ret += "|single"
		}
	}
	return ret
}

// Type returns just the type bits of the flags.  A well-formed block
// group has exactly one type bit set, except for mixed groups, which
// have both DATA and METADATA set.
func (f BlockGroupFlags) Type() BlockGroupFlags { return f & BLOCK_GROUP_TYPE_MASK }

// Profile returns just the profile bits of the flags; zero means the
// "single" profile.
func (f BlockGroupFlags) Profile() BlockGroupFlags { return f & BLOCK_GROUP_PROFILE_MASK }
