// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsvol_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsvol"
)

func TestBlockGroupFlagsString(t *testing.T) {
	t.Parallel()
	testcases := map[string]btrfsvol.BlockGroupFlags{
		"DATA|single":           btrfsvol.BLOCK_GROUP_DATA,
		"METADATA|DUP":          btrfsvol.BLOCK_GROUP_METADATA | btrfsvol.BLOCK_GROUP_DUP,
		"SYSTEM|RAID1":          btrfsvol.BLOCK_GROUP_SYSTEM | btrfsvol.BLOCK_GROUP_RAID1,
		"DATA|METADATA|single":  btrfsvol.BLOCK_GROUP_DATA | btrfsvol.BLOCK_GROUP_METADATA,
		"METADATA_REMAP|single": btrfsvol.BLOCK_GROUP_METADATA_REMAP,
	}
	for exp, flags := range testcases {
		exp, flags := exp, flags
		t.Run(exp, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, exp, fmt.Sprint(flags))
		})
	}
}

func TestBlockGroupFlagsSplit(t *testing.T) {
	t.Parallel()
	flags := btrfsvol.BLOCK_GROUP_METADATA | btrfsvol.BLOCK_GROUP_RAID1C3
	assert.Equal(t, btrfsvol.BLOCK_GROUP_METADATA, flags.Type())
	assert.Equal(t, btrfsvol.BLOCK_GROUP_RAID1C3, flags.Profile())

	mixed := btrfsvol.BLOCK_GROUP_DATA | btrfsvol.BLOCK_GROUP_METADATA
	assert.Equal(t, mixed, mixed.Type())
	assert.Equal(t, btrfsvol.BlockGroupFlags(0), mixed.Profile())

	remap := btrfsvol.BLOCK_GROUP_METADATA_REMAP
	assert.True(t, btrfsvol.BLOCK_GROUP_TYPE_MASK.Has(remap))
}

func TestLookupRaidAttrs(t *testing.T) {
	t.Parallel()

	_, err := btrfsvol.LookupRaidAttrs(btrfsvol.BLOCK_GROUP_METADATA)
	assert.Error(t, err)
	_, err = btrfsvol.LookupRaidAttrs(btrfsvol.BLOCK_GROUP_RAID0 | btrfsvol.BLOCK_GROUP_RAID1)
	assert.Error(t, err)

	single, err := btrfsvol.LookupRaidAttrs(0)
	assert.NoError(t, err)
	assert.Equal(t, 1, single.MaxStripes(1))
	assert.Equal(t, 1, single.DataStripes(1))

	dup, err := btrfsvol.LookupRaidAttrs(btrfsvol.BLOCK_GROUP_DUP)
	assert.NoError(t, err)
	assert.Equal(t, 2, dup.MaxStripes(1))
	assert.Equal(t, 1, dup.DataStripes(2))

	raid1, err := btrfsvol.LookupRaidAttrs(btrfsvol.BLOCK_GROUP_RAID1)
	assert.NoError(t, err)
	assert.Equal(t, 0, raid1.MaxStripes(1))
	assert.Equal(t, 2, raid1.MaxStripes(3))
	assert.Equal(t, 1, raid1.DataStripes(2))

	raid0, err := btrfsvol.LookupRaidAttrs(btrfsvol.BLOCK_GROUP_RAID0)
	assert.NoError(t, err)
	assert.Equal(t, 3, raid0.MaxStripes(3))
	assert.Equal(t, 3, raid0.DataStripes(3))

	raid10, err := btrfsvol.LookupRaidAttrs(btrfsvol.BLOCK_GROUP_RAID10)
	assert.NoError(t, err)
	assert.Equal(t, 0, raid10.MaxStripes(3))
	assert.Equal(t, 4, raid10.MaxStripes(5))
	assert.Equal(t, 2, raid10.DataStripes(4))

	raid6, err := btrfsvol.LookupRaidAttrs(btrfsvol.BLOCK_GROUP_RAID6)
	assert.NoError(t, err)
	assert.Equal(t, 4, raid6.MaxStripes(4))
	assert.Equal(t, 2, raid6.DataStripes(4))
}
