// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsmkfs

import (
	"sort"

	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsitem"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsprim"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsvol"
)

// treeKey names one tree.  GlobalID is non-zero only for the
// extent-tree-v2 per-shard copies of the extent, checksum, and
// free-space trees.
type treeKey struct {
	ID       btrfsprim.ObjID
	GlobalID uint64
}

// tree is an in-memory tree: a sorted list of items.  The root node
// address and level are (re)assigned on every commit.
type tree struct {
	key treeKey

	// UUID is stamped into the tree's ROOT_ITEM; only subvolume
	// trees get one.
	uuid      btrfsprim.UUID
	rootDirID btrfsprim.ObjID
	flags     btrfsitem.RootFlags

	items []btrfs.Item

	// outputs of the last commit
	root      btrfsvol.LogicalAddr
	level     uint8
	bytesUsed int64
}

func (t *tree) search(key btrfsprim.Key) (int, bool) {
	i := sort.Search(len(t.items), func(i int) bool {
		return t.items[i].Key.Compare(key) >= 0
	})
	return i, i < len(t.items) && t.items[i].Key == key
}

// insert adds an item; an item with the same key must not already
// exist.
func (t *tree) insert(key btrfsprim.Key, body btrfsitem.Item) error {
	i, exists := t.search(key)
	if exists {
		return errExists("tree %v: item %v", t.key.ID, key)
	}
	t.items = append(t.items, btrfs.Item{})
	copy(t.items[i+1:], t.items[i:])
	t.items[i] = btrfs.Item{Key: key, Body: body}
	return nil
}

func (t *tree) delete(key btrfsprim.Key) bool {
	i, exists := t.search(key)
	if !exists {
		return false
	}
	t.items = append(t.items[:i], t.items[i+1:]...)
	return true
}

func (t *tree) lookup(key btrfsprim.Key) (btrfsitem.Item, bool) {
	i, exists := t.search(key)
	if !exists {
		return nil, false
	}
	return t.items[i].Body, true
}

// Ledger is the running account of bytes committed to each
// block-group type.
type Ledger struct {
	Data     int64
	Metadata int64
	Mixed    int64
	System   int64
	Remap    int64
}

// slotFor resolves a chunk's type mask to the ledger slot it is
// accounted under.  Exactly the four expected masks are accepted;
// anything else is an internal consistency error.
func (l *Ledger) slotFor(flags btrfsvol.BlockGroupFlags) (*int64, error) {
	switch flags.Type() {
	case btrfsvol.BLOCK_GROUP_DATA:
		return &l.Data, nil
	case btrfsvol.BLOCK_GROUP_METADATA:
		return &l.Metadata, nil
	case btrfsvol.BLOCK_GROUP_DATA | btrfsvol.BLOCK_GROUP_METADATA:
		return &l.Mixed, nil
	case btrfsvol.BLOCK_GROUP_SYSTEM,
		// In mixed mode the system group is additionally tagged
		// DATA|METADATA; it is still accounted as system space.
		btrfsvol.BLOCK_GROUP_SYSTEM | btrfsvol.BLOCK_GROUP_DATA | btrfsvol.BLOCK_GROUP_METADATA:
		return &l.System, nil
	case btrfsvol.BLOCK_GROUP_METADATA_REMAP:
		return &l.Remap, nil
	default:
		return nil, errInval("block group type mask %v matches no known category", flags.Type())
	}
}

// liveBlock describes one tree block written by the most recent
// commit.
type liveBlock struct {
	Size  uint32
	Owner btrfsprim.ObjID
	Level uint8
	Gen   btrfsprim.Generation
}

// FS is the filesystem being created.  It is the only entity that
// survives across the operation's transactions.
type FS struct {
	cfg   Config
	state State

	devices  []*preparedDevice // all prepared devices, in input order
	attached []*preparedDevice // subset registered in the device set

	fsUUID        btrfsprim.UUID
	chunkTreeUUID btrfsprim.UUID

	gen    btrfsprim.Generation
	space  *spaceManager
	ledger Ledger
	trees  map[treeKey]*tree

	// lastLive is the set of tree blocks written by the most
	// recent commit, keyed by logical address.
	lastLive map[btrfsvol.LogicalAddr]liveBlock

	sb btrfs.Superblock // as last written
}

func (fs *FS) tree(key treeKey) *tree {
	t, ok := fs.trees[key]
	if !ok {
		t = &tree{key: key}
		fs.trees[key] = t
	}
	return t
}

func (fs *FS) simpleTree(id btrfsprim.ObjID) *tree {
	return fs.tree(treeKey{ID: id})
}

func (fs *FS) hasTree(key treeKey) bool {
	_, ok := fs.trees[key]
	return ok
}

// treeOrder returns all trees in a deterministic serialization order:
// everything else first, then the root tree (which records the
// others' roots), then the chunk tree.
func (fs *FS) treeOrder() []*tree {
	keys := make([]treeKey, 0, len(fs.trees))
	for key := range fs.trees {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		iOrd := treeSerOrd(keys[i].ID)
		jOrd := treeSerOrd(keys[j].ID)
		if iOrd != jOrd {
			return iOrd < jOrd
		}
		if keys[i].ID != keys[j].ID {
			return keys[i].ID < keys[j].ID
		}
		return keys[i].GlobalID < keys[j].GlobalID
	})
	ret := make([]*tree, 0, len(keys))
	for _, key := range keys {
		ret = append(ret, fs.trees[key])
	}
	return ret
}

func treeSerOrd(id btrfsprim.ObjID) int {
	switch id {
	case btrfsprim.ROOT_TREE_OBJECTID:
		return 1
	case btrfsprim.CHUNK_TREE_OBJECTID:
		return 2
	default:
		return 0
	}
}

// nodeAllocType returns which chunk type a tree's blocks are
// allocated from.
func nodeAllocType(id btrfsprim.ObjID) btrfsvol.BlockGroupFlags {
	if id == btrfsprim.CHUNK_TREE_OBJECTID {
		return btrfsvol.BLOCK_GROUP_SYSTEM
	}
	return btrfsvol.BLOCK_GROUP_METADATA
}

// ledgerAdd accounts size bytes of a newly created chunk; negative
// size accounts a removal.
func (fs *FS) ledgerAdd(flags btrfsvol.BlockGroupFlags, size btrfsvol.AddrDelta) error {
	slot, err := fs.ledger.slotFor(flags)
	if err != nil {
		return err
	}
	*slot += int64(size)
	return nil
}
