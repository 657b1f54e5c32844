// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import (
	"github.com/gobtrfs/btrfs-mkfs/lib/binstruct"
)

// Empty is the empty body shared by item types whose key carries all
// of the information (FREE_SPACE_EXTENT, ORPHAN_ITEM).
type Empty struct { // FREE_SPACE_EXTENT=199 ORPHAN_ITEM=48
	binstruct.End `bin:"off=0"`
}
