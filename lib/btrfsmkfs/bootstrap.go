// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsmkfs

import (
	"context"

	"github.com/datawire/dlib/dlog"

	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsprim"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsvol"
)

// initialMetadataChunkSize is the single-profile metadata chunk
// created at bootstrap, before the final RAID groups exist.
const initialMetadataChunkSize = 8 * 1024 * 1024

func newFS(cfg Config, devices []*preparedDevice) *FS {
	fsUUID := cfg.UUID
	if fsUUID == (btrfsprim.UUID{}) {
		fsUUID = btrfsprim.NewUUID()
	}
	return &FS{
		cfg:           cfg,
		devices:       devices,
		fsUUID:        fsUUID,
		chunkTreeUUID: btrfsprim.NewUUID(),
		space:         newSpaceManager(),
		trees:         make(map[treeKey]*tree),
	}
}

// bootstrapChunkFlags returns the type mask for the bootstrap system
// group.  In mixed mode the one group carries everything.
func (fs *FS) bootstrapChunkFlags() btrfsvol.BlockGroupFlags {
	flags := btrfsvol.BLOCK_GROUP_SYSTEM
	if fs.cfg.Mixed {
		flags |= btrfsvol.BLOCK_GROUP_DATA | btrfsvol.BLOCK_GROUP_METADATA
	}
	return flags
}

// bootstrap brings the first device from zeroed to a mountable
// skeleton: the bootstrap chunks, the core trees, and a valid
// superblock.
func (fs *FS) bootstrap(ctx context.Context) error {
	first := fs.devices[0]
	fs.attached = []*preparedDevice{first}
	fs.space.addDevice(first.id, first.uuid, first.size)

	sysFlags := fs.bootstrapChunkFlags()
	sysChunk, err := fs.space.allocChunk(sysFlags, systemGroupSize)
	if err != nil {
		return err
	}
	if err := fs.ledgerAdd(sysFlags, sysChunk.size); err != nil {
		return err
	}
	dlog.Debugf(ctx, "bootstrap system chunk: laddr=%v size=%v flags=%v",
		sysChunk.laddr, sysChunk.size, sysChunk.flags)

	if !fs.cfg.Mixed {
		metaChunk, err := fs.space.allocChunk(btrfsvol.BLOCK_GROUP_METADATA, initialMetadataChunkSize)
		if err != nil {
			return err
		}
		if err := fs.ledgerAdd(btrfsvol.BLOCK_GROUP_METADATA, metaChunk.size); err != nil {
			return err
		}
	}

	fs.simpleTree(btrfsprim.ROOT_TREE_OBJECTID)
	fs.simpleTree(btrfsprim.CHUNK_TREE_OBJECTID)
	fs.simpleTree(btrfsprim.DEV_TREE_OBJECTID)
	fs.simpleTree(btrfsprim.EXTENT_TREE_OBJECTID)

	if err := fs.commit(ctx); err != nil {
		return err
	}
	fs.advance(StateSuperblockWritten)

	fs.simpleTree(btrfsprim.CSUM_TREE_OBJECTID)
	fs.simpleTree(btrfsprim.FREE_SPACE_TREE_OBJECTID)
	if fs.cfg.RuntimeFeatures.Has(btrfs.FeatureCompatROBlockGroupTree) {
		fs.simpleTree(btrfsprim.BLOCK_GROUP_TREE_OBJECTID)
	}
	fsTree := fs.simpleTree(btrfsprim.FS_TREE_OBJECTID)
	fsTree.uuid = btrfsprim.NewUUID()
	fsTree.rootDirID = btrfsprim.FIRST_FREE_OBJECTID

	if err := fs.commit(ctx); err != nil {
		return err
	}
	fs.advance(StateTreesBootstrapped)
	return nil
}
