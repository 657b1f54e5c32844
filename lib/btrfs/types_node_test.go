// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsitem"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsprim"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfssum"
)

func testNode(level uint8) btrfs.Node {
	return btrfs.Node{
		Size:         0x4000,
		ChecksumType: btrfssum.TYPE_CRC32,
		Head: btrfs.NodeHeader{
			MetadataUUID:  btrfsprim.UUID{0x01},
			Addr:          0x1de0000,
			Flags:         btrfs.NodeWritten,
			BackrefRev:    btrfs.MixedBackrefRev,
			ChunkTreeUUID: btrfsprim.UUID{0x02},
			Generation:    7,
			Owner:         btrfsprim.FREE_SPACE_TREE_OBJECTID,
			Level:         level,
		},
	}
}

func TestNodeRoundTripLeaf(t *testing.T) {
	t.Parallel()
	node := testNode(0)
	node.BodyLeaf = []btrfs.Item{
		{
			Key:  btrfsprim.Key{ObjectID: 0x1500000, ItemType: btrfsprim.FREE_SPACE_INFO_KEY, Offset: 0x800000},
			Body: btrfsitem.FreeSpaceInfo{ExtentCount: 2},
		},
		{
			Key:  btrfsprim.Key{ObjectID: 0x1540000, ItemType: btrfsprim.FREE_SPACE_EXTENT_KEY, Offset: 0x40000},
			Body: btrfsitem.Empty{},
		},
	}

	dat, err := node.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, dat, 0x4000)

	parsed := btrfs.Node{Size: 0x4000, ChecksumType: btrfssum.TYPE_CRC32}
	n, err := parsed.UnmarshalBinary(dat)
	require.NoError(t, err)
	assert.Equal(t, 0x4000, n)

	assert.Equal(t, uint32(2), parsed.Head.NumItems)
	assert.Equal(t, node.Head.Addr, parsed.Head.Addr)
	assert.Equal(t, node.Head.Owner, parsed.Head.Owner)
	require.Len(t, parsed.BodyLeaf, 2)
	assert.Equal(t, node.BodyLeaf[0].Key, parsed.BodyLeaf[0].Key)
	assert.Equal(t, btrfsitem.FreeSpaceInfo{ExtentCount: 2}, parsed.BodyLeaf[0].Body)
	assert.Equal(t, btrfsitem.Empty{}, parsed.BodyLeaf[1].Body)
}

func TestNodeRoundTripInterior(t *testing.T) {
	t.Parallel()
	node := testNode(1)
	node.BodyInternal = []btrfs.KeyPointer{
		{
			Key:        btrfsprim.Key{ObjectID: btrfsprim.EXTENT_TREE_OBJECTID, ItemType: btrfsprim.ROOT_ITEM_KEY},
			BlockPtr:   0x1dec000,
			Generation: 7,
		},
		{
			Key:        btrfsprim.Key{ObjectID: btrfsprim.FS_TREE_OBJECTID, ItemType: btrfsprim.ROOT_ITEM_KEY},
			BlockPtr:   0x1df0000,
			Generation: 7,
		},
	}

	dat, err := node.MarshalBinary()
	require.NoError(t, err)

	parsed := btrfs.Node{Size: 0x4000, ChecksumType: btrfssum.TYPE_CRC32}
	_, err = parsed.UnmarshalBinary(dat)
	require.NoError(t, err)

	assert.Equal(t, uint8(1), parsed.Head.Level)
	assert.Equal(t, node.BodyInternal, parsed.BodyInternal)
	assert.Nil(t, parsed.BodyLeaf)
}

func TestNodeChecksumMismatch(t *testing.T) {
	t.Parallel()
	node := testNode(0)
	dat, err := node.MarshalBinary()
	require.NoError(t, err)

	dat[0x100] ^= 0xff

	parsed := btrfs.Node{Size: 0x4000, ChecksumType: btrfssum.TYPE_CRC32}
	_, err = parsed.UnmarshalBinary(dat)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
}

func TestNodeSizeRequired(t *testing.T) {
	t.Parallel()
	var node btrfs.Node
	_, err := node.MarshalBinary()
	assert.Error(t, err)
	_, err = node.UnmarshalBinary(make([]byte, 0x4000))
	assert.Error(t, err)
}

func TestNodeLeafFreeSpace(t *testing.T) {
	t.Parallel()
	node := testNode(0)
	empty := node.LeafFreeSpace()
	assert.Equal(t, uint32(0x4000-0x65), empty)

	node.BodyLeaf = []btrfs.Item{{
		Key:  btrfsprim.Key{ObjectID: 0x1500000, ItemType: btrfsprim.FREE_SPACE_INFO_KEY, Offset: 0x800000},
		Body: btrfsitem.FreeSpaceInfo{ExtentCount: 1},
	}}
	assert.Equal(t, empty-0x19-8, node.LeafFreeSpace())

	interior := testNode(1)
	assert.Panics(t, func() { interior.LeafFreeSpace() })
	assert.Equal(t, uint32((0x4000-0x65)/0x21), interior.MaxItems())
}
