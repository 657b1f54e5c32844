// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobtrfs/btrfs-mkfs/lib/binstruct"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsitem"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsprim"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsvol"
)

func TestNameHash(t *testing.T) {
	t.Parallel()
	// value that btrfs-progs computes for "default"
	assert.Equal(t, uint32(0x8dbfc2d2), btrfsitem.NameHash([]byte("default")))
}

func TestDirEntryRoundTrip(t *testing.T) {
	t.Parallel()
	in := btrfsitem.DirEntry{
		Location: btrfsprim.Key{
			ObjectID: btrfsprim.FS_TREE_OBJECTID,
			ItemType: btrfsprim.ROOT_ITEM_KEY,
			Offset:   btrfsprim.MaxOffset,
		},
		TransID: 1,
		Type:    btrfsitem.FT_DIR,
		Name:    []byte("default"),
	}

	dat, err := binstruct.Marshal(in)
	require.NoError(t, err)
	require.Len(t, dat, 0x1e+len("default"))

	got := btrfsitem.UnmarshalItem(
		btrfsprim.Key{ObjectID: 6, ItemType: btrfsprim.DIR_ITEM_KEY, Offset: uint64(btrfsitem.NameHash([]byte("default")))},
		dat)
	entry, ok := got.(btrfsitem.DirEntry)
	require.True(t, ok, "got %T", got)
	assert.Equal(t, in.Location, entry.Location)
	assert.Equal(t, uint16(7), entry.NameLen)
	assert.Equal(t, []byte("default"), entry.Name)
	assert.Equal(t, btrfsitem.FT_DIR, entry.Type)
}

func TestChunkRoundTrip(t *testing.T) {
	t.Parallel()
	in := btrfsitem.Chunk{
		Head: btrfsitem.ChunkHead{
			Size:      8 * 1024 * 1024,
			Owner:     btrfsprim.EXTENT_TREE_OBJECTID,
			StripeLen: 0x10000,
			Type:      btrfsvol.BLOCK_GROUP_METADATA | btrfsvol.BLOCK_GROUP_RAID1,
			IOMinSize: 0x1000,
		},
		Stripes: []btrfsitem.ChunkStripe{
			{DeviceID: 1, Offset: 0x500000, DeviceUUID: btrfsprim.UUID{0x01}},
			{DeviceID: 2, Offset: 0x100000, DeviceUUID: btrfsprim.UUID{0x02}},
		},
	}

	dat, err := binstruct.Marshal(in)
	require.NoError(t, err)
	require.Len(t, dat, 0x30+2*0x20)

	got := btrfsitem.UnmarshalItem(
		btrfsprim.Key{ObjectID: btrfsprim.FIRST_CHUNK_TREE_OBJECTID, ItemType: btrfsprim.CHUNK_ITEM_KEY, Offset: 0x1500000},
		dat)
	chunk, ok := got.(btrfsitem.Chunk)
	require.True(t, ok, "got %T", got)
	assert.Equal(t, uint16(2), chunk.Head.NumStripes)
	assert.Equal(t, in.Stripes, chunk.Stripes)
	assert.Equal(t, in.Head.Type, chunk.Head.Type)
}

func TestMetadataRoundTrip(t *testing.T) {
	t.Parallel()
	in := btrfsitem.Metadata{
		Head: btrfsitem.ExtentHeader{
			Refs:       1,
			Generation: 4,
			Flags:      btrfsitem.EXTENT_FLAG_TREE_BLOCK,
		},
		Refs: []btrfsitem.ExtentInlineRef{{
			Type:   btrfsprim.TREE_BLOCK_REF_KEY,
			Offset: uint64(btrfsprim.ROOT_TREE_OBJECTID),
		}},
	}

	dat, err := binstruct.Marshal(in)
	require.NoError(t, err)
	require.Len(t, dat, 24+1+8)

	got := btrfsitem.UnmarshalItem(
		btrfsprim.Key{ObjectID: 0x1dec000, ItemType: btrfsprim.METADATA_ITEM_KEY, Offset: 0},
		dat)
	md, ok := got.(btrfsitem.Metadata)
	require.True(t, ok, "got %T", got)
	assert.Equal(t, in, md)
}

func TestInodeRefsRoundTrip(t *testing.T) {
	t.Parallel()
	in := btrfsitem.InodeRefs{
		Refs: []btrfsitem.InodeRef{{
			Index: 0,
			Name:  []byte(".."),
		}},
	}

	dat, err := binstruct.Marshal(in)
	require.NoError(t, err)

	got := btrfsitem.UnmarshalItem(
		btrfsprim.Key{ObjectID: 256, ItemType: btrfsprim.INODE_REF_KEY, Offset: 256},
		dat)
	refs, ok := got.(btrfsitem.InodeRefs)
	require.True(t, ok, "got %T", got)
	require.Len(t, refs.Refs, 1)
	assert.Equal(t, []byte(".."), refs.Refs[0].Name)
	assert.Equal(t, uint16(2), refs.Refs[0].NameLen)
}

func TestUUIDMapRoundTrip(t *testing.T) {
	t.Parallel()
	in := btrfsitem.UUIDMap{
		ObjIDs: []btrfsprim.ObjID{btrfsprim.FS_TREE_OBJECTID, 257},
	}
	dat, err := binstruct.Marshal(in)
	require.NoError(t, err)
	require.Len(t, dat, 16)

	uuid := btrfsprim.UUID{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f}
	key := btrfsitem.KeyForUUID(uuid, btrfsprim.UUID_SUBVOL_KEY)
	assert.Equal(t, btrfsprim.ObjID(0x0706050403020100), key.ObjectID)
	assert.Equal(t, uint64(0x0f0e0d0c0b0a0908), key.Offset)

	got := btrfsitem.UnmarshalItem(key, dat)
	m, ok := got.(btrfsitem.UUIDMap)
	require.True(t, ok, "got %T", got)
	assert.Equal(t, in, m)
}

func TestUnmarshalItemErrors(t *testing.T) {
	t.Parallel()
	// unknown item type
	got := btrfsitem.UnmarshalItem(
		btrfsprim.Key{ItemType: btrfsprim.ItemType(0xfe)},
		[]byte{0x00})
	_, ok := got.(btrfsitem.Error)
	assert.True(t, ok, "got %T", got)

	// short body
	got = btrfsitem.UnmarshalItem(
		btrfsprim.Key{ItemType: btrfsprim.CHUNK_ITEM_KEY},
		make([]byte, 4))
	_, ok = got.(btrfsitem.Error)
	assert.True(t, ok, "got %T", got)

	// trailing garbage
	got = btrfsitem.UnmarshalItem(
		btrfsprim.Key{ItemType: btrfsprim.FREE_SPACE_INFO_KEY},
		make([]byte, 12))
	_, ok = got.(btrfsitem.Error)
	assert.True(t, ok, "got %T", got)
}
