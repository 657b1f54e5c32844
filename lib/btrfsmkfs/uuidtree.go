// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsmkfs

import (
	"context"

	"github.com/datawire/dlib/dlog"

	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsitem"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsprim"
)

// setupRelocOrRemap creates the data relocation tree.  With the remap
// tree feature, metadata relocation goes through the remap tree
// instead and the relocation tree is not needed.
func (fs *FS) setupRelocOrRemap(ctx context.Context) error {
	if fs.cfg.Features.Has(btrfs.FeatureIncompatRemapTree) {
		fs.advance(StateRelocOrRemapReady)
		return nil
	}
	dlog.Debugf(ctx, "creating data relocation tree")
	relocTree := fs.simpleTree(btrfsprim.DATA_RELOC_TREE_OBJECTID)
	relocTree.rootDirID = btrfsprim.FIRST_FREE_OBJECTID
	if err := fs.makeRootDir(relocTree, btrfsprim.FIRST_FREE_OBJECTID); err != nil {
		return err
	}
	if err := fs.commit(ctx); err != nil {
		return err
	}
	fs.advance(StateRelocOrRemapReady)
	return nil
}

// rebuildUUIDIndex builds the UUID tree from scratch: every tree that
// carries a subvolume UUID gets an entry mapping that UUID back to
// the tree ID.
func (fs *FS) rebuildUUIDIndex(ctx context.Context) error {
	uuidTree := fs.simpleTree(btrfsprim.UUID_TREE_OBJECTID)
	uuidTree.items = nil

	n := 0
	for _, t := range fs.treeOrder() {
		if t.uuid.IsZero() {
			continue
		}
		key := btrfsitem.KeyForUUID(t.uuid, btrfsprim.UUID_SUBVOL_KEY)
		if body, ok := uuidTree.lookup(key); ok {
			// hash collision on the split key; append to the
			// existing entry
			entry := body.(btrfsitem.UUIDMap)
			entry.ObjIDs = append(entry.ObjIDs, t.key.ID)
			uuidTree.delete(key)
			if err := uuidTree.insert(key, entry); err != nil {
				return err
			}
		} else if err := uuidTree.insert(key, btrfsitem.UUIDMap{
			ObjIDs: []btrfsprim.ObjID{t.key.ID},
		}); err != nil {
			return err
		}
		n++
	}
	dlog.Debugf(ctx, "uuid index: %v subvolume entries", n)

	if err := fs.commit(ctx); err != nil {
		return err
	}
	fs.advance(StateUUIDIndexRebuilt)
	return nil
}
