// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsmkfs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsitem"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsprim"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsvol"
)

func TestTreeInsertLookupDelete(t *testing.T) {
	t.Parallel()
	tr := &tree{key: treeKey{ID: btrfsprim.FS_TREE_OBJECTID}}

	keys := []btrfsprim.Key{
		{ObjectID: 256, ItemType: btrfsprim.INODE_REF_KEY, Offset: 256},
		{ObjectID: 256, ItemType: btrfsprim.INODE_ITEM_KEY},
		{ObjectID: 257, ItemType: btrfsprim.INODE_ITEM_KEY},
	}
	for _, k := range keys {
		require.NoError(t, tr.insert(k, btrfsitem.Empty{}))
	}

	// items are kept in key order regardless of insertion order
	assert.Equal(t, btrfsprim.Key{ObjectID: 256, ItemType: btrfsprim.INODE_ITEM_KEY}, tr.items[0].Key)
	assert.Equal(t, keys[0], tr.items[1].Key)
	assert.Equal(t, keys[2], tr.items[2].Key)

	// duplicate insert is EEXIST
	err := tr.insert(keys[1], btrfsitem.Empty{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, unix.EEXIST))

	body, ok := tr.lookup(keys[0])
	require.True(t, ok)
	assert.Equal(t, btrfsitem.Empty{}, body)
	_, ok = tr.lookup(btrfsprim.Key{ObjectID: 999})
	assert.False(t, ok)

	assert.True(t, tr.delete(keys[0]))
	assert.False(t, tr.delete(keys[0]))
	assert.Len(t, tr.items, 2)
}

func TestLedgerSlots(t *testing.T) {
	t.Parallel()
	var l Ledger

	slot, err := l.slotFor(btrfsvol.BLOCK_GROUP_DATA | btrfsvol.BLOCK_GROUP_RAID0)
	require.NoError(t, err)
	assert.Same(t, &l.Data, slot)

	slot, err = l.slotFor(btrfsvol.BLOCK_GROUP_METADATA | btrfsvol.BLOCK_GROUP_DUP)
	require.NoError(t, err)
	assert.Same(t, &l.Metadata, slot)

	slot, err = l.slotFor(btrfsvol.BLOCK_GROUP_DATA | btrfsvol.BLOCK_GROUP_METADATA)
	require.NoError(t, err)
	assert.Same(t, &l.Mixed, slot)

	slot, err = l.slotFor(btrfsvol.BLOCK_GROUP_SYSTEM)
	require.NoError(t, err)
	assert.Same(t, &l.System, slot)

	// the mixed-mode system group is still system space
	slot, err = l.slotFor(btrfsvol.BLOCK_GROUP_SYSTEM | btrfsvol.BLOCK_GROUP_DATA | btrfsvol.BLOCK_GROUP_METADATA)
	require.NoError(t, err)
	assert.Same(t, &l.System, slot)

	slot, err = l.slotFor(btrfsvol.BLOCK_GROUP_METADATA_REMAP)
	require.NoError(t, err)
	assert.Same(t, &l.Remap, slot)

	_, err = l.slotFor(btrfsvol.BLOCK_GROUP_SYSTEM | btrfsvol.BLOCK_GROUP_METADATA)
	require.Error(t, err)
	assert.True(t, errors.Is(err, unix.EINVAL))
}

func TestTreeOrder(t *testing.T) {
	t.Parallel()
	fs := &FS{trees: make(map[treeKey]*tree)}
	fs.simpleTree(btrfsprim.CHUNK_TREE_OBJECTID)
	fs.simpleTree(btrfsprim.ROOT_TREE_OBJECTID)
	fs.simpleTree(btrfsprim.DEV_TREE_OBJECTID)
	fs.simpleTree(btrfsprim.EXTENT_TREE_OBJECTID)
	fs.tree(treeKey{ID: btrfsprim.EXTENT_TREE_OBJECTID, GlobalID: 1})

	order := fs.treeOrder()
	require.Len(t, order, 5)
	// shards of the same tree are adjacent, ordered by shard
	assert.Equal(t, treeKey{ID: btrfsprim.EXTENT_TREE_OBJECTID}, order[0].key)
	assert.Equal(t, treeKey{ID: btrfsprim.EXTENT_TREE_OBJECTID, GlobalID: 1}, order[1].key)
	assert.Equal(t, btrfsprim.DEV_TREE_OBJECTID, order[2].key.ID)
	// the root tree is serialized after everything it references,
	// and the chunk tree last
	assert.Equal(t, btrfsprim.ROOT_TREE_OBJECTID, order[3].key.ID)
	assert.Equal(t, btrfsprim.CHUNK_TREE_OBJECTID, order[4].key.ID)
}

func TestNodeAllocType(t *testing.T) {
	t.Parallel()
	assert.Equal(t, btrfsvol.BLOCK_GROUP_SYSTEM, nodeAllocType(btrfsprim.CHUNK_TREE_OBJECTID))
	assert.Equal(t, btrfsvol.BLOCK_GROUP_METADATA, nodeAllocType(btrfsprim.ROOT_TREE_OBJECTID))
	assert.Equal(t, btrfsvol.BLOCK_GROUP_METADATA, nodeAllocType(btrfsprim.FS_TREE_OBJECTID))
}
