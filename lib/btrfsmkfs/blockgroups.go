// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsmkfs

import (
	"context"
	"time"

	"github.com/datawire/dlib/dlog"

	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsitem"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsprim"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsvol"
)

// Chunk sizing policy.  The system group is a fixed size; metadata
// and data chunks scale with the filesystem, within clamps.
const (
	minChunkSize     = 8 * 1024 * 1024
	maxMetaChunkSize = 256 * 1024 * 1024
	maxDataChunkSize = 1024 * 1024 * 1024

	// remapGroupSize is the block group reserved for remapped
	// metadata when the remap tree is enabled.
	remapGroupSize = 8 * 1024 * 1024
)

func clampChunkSize(size, max btrfsvol.AddrDelta) btrfsvol.AddrDelta {
	if size < minChunkSize {
		size = minChunkSize
	}
	if size > max {
		size = max
	}
	return size
}

func (fs *FS) metaChunkSize() btrfsvol.AddrDelta {
	return clampChunkSize(btrfsvol.AddrDelta(fs.space.totalBytes()/8), maxMetaChunkSize)
}

func (fs *FS) dataChunkSize() btrfsvol.AddrDelta {
	return clampChunkSize(btrfsvol.AddrDelta(fs.space.totalBytes()/10), maxDataChunkSize)
}

// allocGroup allocates one chunk and accounts it.
func (fs *FS) allocGroup(ctx context.Context, flags btrfsvol.BlockGroupFlags, size btrfsvol.AddrDelta) (*chunkRecord, error) {
	chunk, err := fs.space.allocChunk(flags, size)
	if err != nil {
		return nil, err
	}
	if err := fs.ledgerAdd(flags, chunk.size); err != nil {
		return nil, err
	}
	dlog.Debugf(ctx, "block group: laddr=%v size=%v flags=%v",
		chunk.laddr, chunk.size, chunk.flags)
	return chunk, nil
}

// createMetadataGroups makes sure a metadata block group of a real
// working size exists; in mixed mode that is a combined data+metadata
// group.  The remap group, when enabled, is carved out in the same
// transaction.
func (fs *FS) createMetadataGroups(ctx context.Context) error {
	flags := btrfsvol.BLOCK_GROUP_METADATA
	if fs.cfg.Mixed {
		flags |= btrfsvol.BLOCK_GROUP_DATA
	}
	if _, err := fs.allocGroup(ctx, flags, fs.metaChunkSize()); err != nil {
		return err
	}
	if fs.cfg.Features.Has(btrfs.FeatureIncompatRemapTree) {
		if _, err := fs.allocGroup(ctx, btrfsvol.BLOCK_GROUP_METADATA_REMAP, remapGroupSize); err != nil {
			return err
		}
	}
	if err := fs.commit(ctx); err != nil {
		return err
	}
	fs.advance(StateMetadataGroupsCreated)
	return nil
}

// createDataGroupsAndRootDir allocates the first data block group and
// populates the root directory of the FS tree, plus the "default"
// entry in the root tree that names it.
func (fs *FS) createDataGroupsAndRootDir(ctx context.Context) error {
	if !fs.cfg.Mixed {
		if _, err := fs.allocGroup(ctx, btrfsvol.BLOCK_GROUP_DATA, fs.dataChunkSize()); err != nil {
			return err
		}
	}

	fsTree := fs.simpleTree(btrfsprim.FS_TREE_OBJECTID)
	if err := fs.makeRootDir(fsTree, btrfsprim.FIRST_FREE_OBJECTID); err != nil {
		return err
	}

	rootTree := fs.simpleTree(btrfsprim.ROOT_TREE_OBJECTID)
	if err := fs.makeRootDir(rootTree, btrfsprim.ROOT_TREE_DIR_OBJECTID); err != nil {
		return err
	}
	defaultEntry := btrfsitem.DirEntry{
		Location: btrfsprim.Key{
			ObjectID: btrfsprim.FS_TREE_OBJECTID,
			ItemType: btrfsprim.ROOT_ITEM_KEY,
			Offset:   btrfsprim.MaxOffset,
		},
		Type: btrfsitem.FT_DIR,
		Name: []byte("default"),
	}
	if err := rootTree.insert(btrfsprim.Key{
		ObjectID: btrfsprim.ROOT_TREE_DIR_OBJECTID,
		ItemType: btrfsprim.DIR_ITEM_KEY,
		Offset:   uint64(btrfsitem.NameHash(defaultEntry.Name)),
	}, defaultEntry); err != nil {
		return err
	}
	if err := rootTree.insert(btrfsprim.Key{
		ObjectID: btrfsprim.FS_TREE_OBJECTID,
		ItemType: btrfsprim.INODE_REF_KEY,
		Offset:   uint64(btrfsprim.ROOT_TREE_DIR_OBJECTID),
	}, btrfsitem.InodeRefs{
		Refs: []btrfsitem.InodeRef{{
			Index: 0,
			Name:  defaultEntry.Name,
		}},
	}); err != nil {
		return err
	}

	if err := fs.commit(ctx); err != nil {
		return err
	}
	fs.advance(StateDataGroupsAndRootDirCreated)
	return nil
}

// makeRootDir inserts an empty directory inode that is its own
// parent, the way the top directory of a tree is.
func (fs *FS) makeRootDir(t *tree, ino btrfsprim.ObjID) error {
	now := time.Now()
	inode := btrfsitem.Inode{
		Generation: fs.gen,
		Size:       0,
		NLink:      1,
		Mode:       btrfsitem.ModeFmtDir | 0o755,
		CTime:      btrfsprim.TimeFromStd(now),
		MTime:      btrfsprim.TimeFromStd(now),
		OTime:      btrfsprim.TimeFromStd(now),
	}
	if err := t.insert(btrfsprim.Key{
		ObjectID: ino,
		ItemType: btrfsprim.INODE_ITEM_KEY,
	}, inode); err != nil {
		return err
	}
	return t.insert(btrfsprim.Key{
		ObjectID: ino,
		ItemType: btrfsprim.INODE_REF_KEY,
		Offset:   uint64(ino),
	}, btrfsitem.InodeRefs{
		Refs: []btrfsitem.InodeRef{{
			Index: 0,
			Name:  []byte(".."),
		}},
	})
}
